package templates

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperconf/hyperconf/pkg/document"
	"github.com/hyperconf/hyperconf/pkg/errs"
)

func describe(t *testing.T, r *Registry, name string) *Shape {
	t.Helper()
	def, err := r.Resolve(name)
	if err != nil {
		t.Fatalf("Resolve(%s) error = %v", name, err)
	}
	shape, err := r.Describe(def)
	if err != nil {
		t.Fatalf("Describe(%s) error = %v", name, err)
	}
	return shape
}

func TestConvertScalar(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LoadString(context.Background(), `
use: common
even:
  type: int
  validator: "value % 2 == 0"
small_even:
  type: even
  validator: "(value < 10, 'must be below 10')"
doubled:
  type: int
  converter: "value * 2"
kind:
  type: str
  validator: "typedef.type == 'str' and typedef.name == 'kind'"
ship:
  captain: str
`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	tests := []struct {
		name     string
		typeName string
		raw      interface{}
		want     interface{}
		wantKind errs.Kind
		wantMsg  string
		notMsg   string
	}{
		{name: "pos_int", typeName: "pos_int", raw: int64(2023), want: int64(2023)},
		{name: "pos_int negative", typeName: "pos_int", raw: int64(-1), wantKind: errs.KindValidationFailed},
		{name: "int from string", typeName: "int", raw: "42", want: int64(42)},
		{name: "int mismatch", typeName: "int", raw: "forty", wantKind: errs.KindTypeMismatch},
		{name: "str rejects int", typeName: "str", raw: int64(5), wantKind: errs.KindTypeMismatch},
		{name: "float widens int", typeName: "float", raw: int64(3), want: float64(3)},
		{name: "bool from string", typeName: "bool", raw: "True", want: true},
		{name: "list of ints", typeName: "list[int]", raw: "1, 2, 3", want: []interface{}{int64(1), int64(2), int64(3)}},
		{name: "list with bad element", typeName: "list[int]", raw: "1,a", wantKind: errs.KindTypeMismatch},
		{name: "port tuple message", typeName: "port", raw: int64(70000), wantKind: errs.KindValidationFailed, wantMsg: "port must be between 1 and 65535"},
		{name: "chain base first", typeName: "small_even", raw: int64(13), wantKind: errs.KindValidationFailed, notMsg: "must be below 10"},
		{name: "chain derived", typeName: "small_even", raw: int64(12), wantKind: errs.KindValidationFailed, wantMsg: "must be below 10"},
		{name: "chain passes", typeName: "small_even", raw: int64(4), want: int64(4)},
		{name: "converter", typeName: "doubled", raw: int64(21), want: int64(42)},
		{name: "lower_str", typeName: "lower_str", raw: "MiXeD", want: "mixed"},
		{name: "file_path cleaned", typeName: "file_path", raw: "a/b/../c/", want: "a/c"},
		{name: "typedef binding", typeName: "kind", raw: "x", want: "x"},
		{name: "composite", typeName: "ship", raw: "Enterprise", wantKind: errs.KindTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape := describe(t, r, tt.typeName)
			got, err := r.ConvertScalar(shape, tt.raw, "app.yaml", 3)
			if tt.wantKind != "" {
				if !errs.IsKind(err, tt.wantKind) {
					t.Fatalf("expected %s, got %v", tt.wantKind, err)
				}
				if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
					t.Errorf("error %q should contain %q", err.Error(), tt.wantMsg)
				}
				if tt.notMsg != "" && strings.Contains(err.Error(), tt.notMsg) {
					t.Errorf("error %q should not contain %q", err.Error(), tt.notMsg)
				}
				if !strings.Contains(err.Error(), "line 3") {
					t.Errorf("error should carry its location: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ConvertScalar() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ConvertScalar() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestConvert_Failure(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LoadString(context.Background(), `
broken:
  type: str
  converter: "int(value)"
`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	_, err = r.ConvertScalar(describe(t, r, "broken"), "abc", "", 1)
	if !errs.IsKind(err, errs.KindConversionFailed) {
		t.Errorf("expected ConversionFailed, got %v", err)
	}
}

func TestValidate_RuntimeError(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LoadString(context.Background(), `
fragile:
  type: str
  validator: "value[10] == 'x'"
`)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}

	err = r.Validate(describe(t, r, "fragile"), "short", "", 1)
	if !errs.IsKind(err, errs.KindValidationFailed) {
		t.Errorf("expected ValidationFailed, got %v", err)
	}
}

func TestCheckStructure(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.LoadString(context.Background(), shipTemplates); err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	ship := describe(t, r, "ship")

	parse := func(text string) *document.Mapping {
		m, err := document.ParseMapping([]byte(text), "")
		if err != nil {
			t.Fatalf("ParseMapping() error = %v", err)
		}
		return m
	}

	tests := []struct {
		name     string
		text     string
		shape    *Shape
		wantKind errs.Kind
		wantLine int
	}{
		{
			name:  "complete",
			text:  "captain: Kirk\ncrew: 430\nclass: Constitution\n",
			shape: ship,
		},
		{
			name:  "explicit option types",
			text:  "captain=str: Kirk\ncrew=int: 430\nclass: Constitution\ncolor: grey\n",
			shape: ship,
		},
		{
			name:     "missing required",
			text:     "captain: Kirk\nclass: Constitution\n",
			shape:    ship,
			wantKind: errs.KindMissingRequiredOption,
			wantLine: 1,
		},
		{
			name:     "unknown option",
			text:     "captain: Kirk\ncrew: 430\nclass: Constitution\nshields: 100\n",
			shape:    ship,
			wantKind: errs.KindUnknownOption,
			wantLine: 4,
		},
		{
			name:     "missing reported before unknown",
			text:     "captain: Kirk\nshields: 100\n",
			shape:    ship,
			wantKind: errs.KindMissingRequiredOption,
		},
		{
			name:     "primitive cannot hold options",
			text:     "a: b\n",
			shape:    describe(t, r, "int"),
			wantKind: errs.KindTypeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.CheckStructure(tt.shape, parse(tt.text), "ship.yaml")
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("CheckStructure() error = %v", err)
				}
				return
			}
			if !errs.IsKind(err, tt.wantKind) {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}
			if tt.wantLine > 0 {
				e := err.(*errs.Error)
				if e.Line != tt.wantLine || e.File != "ship.yaml" {
					t.Errorf("location = %s:%d, want ship.yaml:%d", e.File, e.Line, tt.wantLine)
				}
			}
		})
	}
}
