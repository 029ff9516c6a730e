package document

import (
	"errors"
	"reflect"
	"testing"
)

func TestParse_LinesAndOrder(t *testing.T) {
	src := `
use: builtins
zeta: 1
alpha:
  host: localhost
  port: 5432
items:
  - a: 1
  - b: 2
`
	m, err := ParseMapping([]byte(src), "test.yaml")
	if err != nil {
		t.Fatalf("ParseMapping failed: %v", err)
	}

	if got, want := m.Keys(), []string{"use", "zeta", "alpha", "items"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}

	alpha, ok := m.Get("alpha")
	if !ok {
		t.Fatal("alpha missing")
	}
	if alpha.Kind() != KindMapping {
		t.Fatalf("alpha kind = %s", alpha.Kind())
	}
	if alpha.Line() != 5 {
		t.Errorf("alpha line = %d, want 5", alpha.Line())
	}

	port, _ := alpha.(*Mapping).Get("port")
	if port.(*Scalar).Value() != int64(5432) {
		t.Errorf("port = %#v, want int64(5432)", port.(*Scalar).Value())
	}
	if port.Line() != 6 {
		t.Errorf("port line = %d, want 6", port.Line())
	}

	items, _ := m.Get("items")
	seq, ok := items.(*Sequence)
	if !ok || seq.Len() != 2 {
		t.Fatalf("items = %#v", items)
	}
}

func TestParse_ScalarKinds(t *testing.T) {
	m, err := ParseMapping([]byte("s: hi\ni: 3\nf: 1.5\nb: true\nn: null\nq: \"42\"\n"), "")
	if err != nil {
		t.Fatalf("ParseMapping failed: %v", err)
	}
	want := map[string]interface{}{
		"s": "hi",
		"i": int64(3),
		"f": 1.5,
		"b": true,
		"n": nil,
		"q": "42",
	}
	if got := ToAny(m); !reflect.DeepEqual(got, want) {
		t.Errorf("ToAny = %#v, want %#v", got, want)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", "a: [unclosed"},
		{"duplicate key", "a: 1\na: 2\n"},
		{"top-level list", "- a\n- b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMapping([]byte(tt.src), "bad.yaml")
			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("expected SyntaxError, got %v", err)
			}
			if syntaxErr.File != "bad.yaml" {
				t.Errorf("File = %q", syntaxErr.File)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	m, err := ParseMapping([]byte(""), "")
	if err != nil {
		t.Fatalf("ParseMapping failed: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("expected empty mapping")
	}
}

func TestParse_Alias(t *testing.T) {
	src := "base: &b\n  x: 1\ncopy: *b\n"
	m, err := ParseMapping([]byte(src), "")
	if err != nil {
		t.Fatalf("ParseMapping failed: %v", err)
	}
	copyVal, _ := m.Get("copy")
	if !reflect.DeepEqual(ToAny(copyVal), map[string]interface{}{"x": int64(1)}) {
		t.Errorf("alias not expanded: %#v", ToAny(copyVal))
	}
}

func TestFromAny_StripsLineKey(t *testing.T) {
	v, err := FromAny(map[string]interface{}{
		LineKey: 7,
		"b":     "two",
		"a":     []interface{}{1, 2.5},
	})
	if err != nil {
		t.Fatalf("FromAny failed: %v", err)
	}
	m := v.(*Mapping)
	if m.Line() != 7 {
		t.Errorf("Line() = %d, want 7", m.Line())
	}
	if m.Has(LineKey) {
		t.Errorf("line key not stripped")
	}
	if got := m.Keys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Keys() = %v", got)
	}
	a, _ := m.Get("a")
	if !reflect.DeepEqual(ToAny(a), []interface{}{int64(1), 2.5}) {
		t.Errorf("a = %#v", ToAny(a))
	}

	if _, err := FromAny(map[string]interface{}{LineKey: "x"}); err == nil {
		t.Errorf("expected error for non-integer line")
	}
	if _, err := FromAny(struct{}{}); err == nil {
		t.Errorf("expected error for unsupported type")
	}
}

func TestMapping_Without(t *testing.T) {
	m := NewMapping(1)
	_ = m.Set("use", NewScalar(1, "x"), 1)
	_ = m.Set("a", NewScalar(2, 1), 2)
	out := m.Without("use")
	if out.Has("use") || !out.Has("a") || out.Len() != 1 {
		t.Errorf("Without = %v", out.Keys())
	}
	if !m.Has("use") {
		t.Errorf("Without modified the receiver")
	}
}
