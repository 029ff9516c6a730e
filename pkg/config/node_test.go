package config

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperconf/hyperconf/pkg/errs"
)

func TestNode_Immutable(t *testing.T) {
	l := newTestLoader(t, fixture(t))
	root := mustLoad(t, l, "use: ships\nncc1701=ship:\n  captain: Kirk\n  crew: 5\n")

	if err := root.Set("extra", 1); !errors.Is(err, errs.ErrImmutableConfiguration) {
		t.Errorf("root.Set() = %v, want ImmutableConfiguration", err)
	}
	ship, _ := root.Get("ncc1701").Node()
	if err := ship.Set("captain", "Spock"); !errors.Is(err, errs.ErrImmutableConfiguration) {
		t.Errorf("ship.Set() = %v, want ImmutableConfiguration", err)
	}
	if err := ship.Delete("crew"); !errors.Is(err, errs.ErrImmutableConfiguration) {
		t.Errorf("ship.Delete() = %v, want ImmutableConfiguration", err)
	}

	m := ship.ToMap()
	m["captain"] = "Spock"
	if captain, _ := ship.Get("captain").AsString(); captain != "Kirk" {
		t.Error("ToMap() must return a copy")
	}
	keys := ship.Keys()
	keys[0] = "changed"
	if ship.Keys()[0] != "captain" {
		t.Error("Keys() must return a copy")
	}
}

func TestNode_ImmutableData(t *testing.T) {
	l := newTestLoader(t, t.TempDir())
	ctx := context.Background()
	if _, err := l.Registry().LoadString(ctx, `
pair:
  type: str
  converter: "{'raw': value, 'parts': value.split('-')}"
`); err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	root := mustLoad(t, l, "x=list[int]: '1, 2, 3'\np=pair: a-b\n")

	s, _ := root.Get("x").AsSlice()
	s[0] = int64(99)
	root.ToMap()["x"].([]interface{})[1] = "mutated"
	raw, _ := root.Get("x").Scalar()
	raw.([]interface{})[2] = "mutated"
	if got := fmt.Sprint(root.Get("x")); got != "[1 2 3]" {
		t.Errorf("x = %s after mutating copies", got)
	}

	p := root.Get("p").Interface().(map[string]interface{})
	p["raw"] = "changed"
	p["parts"].([]interface{})[0] = "changed"
	if got := root.Lookup("p").Interface().(map[string]interface{}); got["raw"] != "a-b" ||
		got["parts"].([]interface{})[0] != "a" {
		t.Errorf("p = %v after mutating a copy", got)
	}
}

func TestNode_Lookup(t *testing.T) {
	l := newTestLoader(t, fixture(t))
	root := mustLoad(t, l, `use: detectors
m=detector:
  stem: s
  heads:
    - h1:
        labels: a
`)

	tests := []struct {
		path string
		want ValueKind
	}{
		{"", NodeValue},
		{"m", NodeValue},
		{"m.stem", ScalarValue},
		{"m.heads", NodeListValue},
		{"m.heads.h1", NodeValue},
		{"m.heads.0", NodeValue},
		{"m.heads.0.labels", ScalarValue},
		{"m.heads.1", Missing},
		{"m.heads.-1", Missing},
		{"m.missing", Missing},
		{"m.stem.deeper", Missing},
		{"nope.x", Missing},
	}
	for _, tt := range tests {
		if got := root.Lookup(tt.path).Kind(); got != tt.want {
			t.Errorf("Lookup(%q) kind = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestNode_Walk(t *testing.T) {
	l := newTestLoader(t, fixture(t))
	root := mustLoad(t, l, `use: detectors
m=detector:
  stem: s
  heads:
    - h1:
        labels: a
    - h2:
        labels: b, c
n: 1
`)

	var paths []string
	err := root.Walk(func(path string, v Value) error {
		paths = append(paths, path+":"+v.Kind().String())
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	want := []string{
		"m:node", "m.stem:scalar", "m.heads:list",
		"m.heads.h1:node", "m.heads.h1.labels:scalar",
		"m.heads.h2:node", "m.heads.h2.labels:scalar",
		"n:scalar",
	}
	if fmt.Sprint(paths) != fmt.Sprint(want) {
		t.Errorf("Walk() visited %v, want %v", paths, want)
	}
	if got := root.Count(); got != len(want) {
		t.Errorf("Count() = %d, want %d", got, len(want))
	}

	stop := errors.New("stop")
	visited := 0
	err = root.Walk(func(string, Value) error {
		visited++
		if visited == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || visited != 2 {
		t.Errorf("Walk() = %v after %d visits, want stop after 2", err, visited)
	}
}

func TestValue_Accessors(t *testing.T) {
	v := scalarValue(int64(3))
	if n, ok := v.AsInt(); !ok || n != 3 {
		t.Errorf("AsInt() = %d, %v", n, ok)
	}
	if f, ok := v.AsFloat(); !ok || f != 3 {
		t.Errorf("AsFloat() = %v, %v", f, ok)
	}
	if _, ok := v.AsString(); ok {
		t.Error("AsString() on an int should fail")
	}
	if _, ok := v.Node(); ok {
		t.Error("Node() on a scalar should fail")
	}

	var missing Value
	if !missing.IsMissing() || missing.Interface() != nil {
		t.Error("zero Value should be missing")
	}
	if _, ok := missing.AsBool(); ok {
		t.Error("AsBool() on a missing value should fail")
	}
	if got := fmt.Sprintf("%v", missing); got != "<missing>" {
		t.Errorf("missing formats as %q", got)
	}
	if got := fmt.Sprintf("%v", scalarValue("x")); got != "x" {
		t.Errorf("scalar formats as %q", got)
	}
}

func TestMappings(t *testing.T) {
	l := newTestLoader(t, fixture(t))
	root := mustLoad(t, l, `use: [ships, detectors]
ncc1701=ship:
  captain: Kirk
  crew: 5
m=detector:
  heads:
    - h1:
        labels: a
untyped:
  a: 1
`)

	type ship struct{ Captain string }
	mappings := NewMappings()
	err := mappings.Register("ship", func(n *Node) (interface{}, error) {
		captain, _ := n.Get("captain").AsString()
		return ship{Captain: captain}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mappings.Register("ship", func(*Node) (interface{}, error) { return nil, nil }); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := mappings.Register("head", func(n *Node) (interface{}, error) { return n.Identifier(), nil }); err != nil {
		t.Fatal(err)
	}

	got, err := mappings.Apply(root.Lookup("ncc1701").node)
	if err != nil || got != (ship{Captain: "Kirk"}) {
		t.Errorf("Apply(ship) = %v, %v", got, err)
	}

	head, _ := root.Lookup("m.heads.h1").Node()
	if got, err := mappings.Apply(head); err != nil || got != "h1" {
		t.Errorf("Apply(head) = %v, %v", got, err)
	}

	untyped, _ := root.Get("untyped").Node()
	if _, ok := mappings.HandlerFor(untyped); ok {
		t.Error("untyped nodes have no handler")
	}
	detector, _ := root.Get("m").Node()
	if _, err := mappings.Apply(detector); err == nil {
		t.Error("Apply without a handler should fail")
	}

	if names := mappings.Names(); len(names) != 2 || names[0] != "head" {
		t.Errorf("Names() = %v", names)
	}
}

func TestLoad_ReusedRegistry(t *testing.T) {
	l := newTestLoader(t, fixture(t))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := l.LoadString(ctx, "use: ships\nx=ship:\n  captain: a\n  crew: 1\n"); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if got := len(l.Registry().LoadedFiles()); got != 2 {
		t.Errorf("LoadedFiles() = %v", l.Registry().LoadedFiles())
	}
}
