package types

import (
	"errors"
	"reflect"
	"testing"
)

func TestPrimitives_Validate(t *testing.T) {
	c := NewCatalog()

	tests := []struct {
		typeName string
		value    interface{}
		want     bool
	}{
		{Str, "hello", true},
		{Str, 5, false},
		{Int, 42, true},
		{Int, int64(-7), true},
		{Int, "-12", true},
		{Int, "+3", true},
		{Int, "1.5", false},
		{Int, "abc", false},
		{Int, 1.5, false},
		{Float, 1.5, true},
		{Float, "2.5e10", true},
		{Float, ".5", true},
		{Float, "3.", true},
		{Float, 3, true},
		{Float, "x1", false},
		{Bool, true, true},
		{Bool, "TRUE", true},
		{Bool, "False", true},
		{Bool, "yes", false},
		{Bool, 1, false},
		{ClassName, "pkg.module.Class", true},
		{ClassName, "_private", true},
		{ClassName, "pkg..Class", false},
		{ClassName, "1abc", false},
		{ClassName, 3, false},
	}

	for _, tt := range tests {
		typ, ok := c.Lookup(tt.typeName)
		if !ok {
			t.Fatalf("type %s not found", tt.typeName)
		}
		if got := typ.Validate(tt.value); got != tt.want {
			t.Errorf("%s.Validate(%#v) = %v, want %v", tt.typeName, tt.value, got, tt.want)
		}
	}
}

func TestPrimitives_Convert(t *testing.T) {
	c := NewCatalog()

	tests := []struct {
		typeName string
		value    interface{}
		want     interface{}
	}{
		{Str, "x", "x"},
		{Int, "-12", int64(-12)},
		{Int, 7, int64(7)},
		{Float, "2.5", 2.5},
		{Float, 2, 2.0},
		{Bool, "TRUE", true},
		{Bool, false, false},
		{ClassName, "a.b", "a.b"},
	}

	for _, tt := range tests {
		typ, _ := c.Lookup(tt.typeName)
		got, err := typ.Convert(tt.value)
		if err != nil {
			t.Errorf("%s.Convert(%#v) failed: %v", tt.typeName, tt.value, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s.Convert(%#v) = %#v, want %#v", tt.typeName, tt.value, got, tt.want)
		}
	}
}

func TestPrimitives_ConvertRejectsInvalid(t *testing.T) {
	c := NewCatalog()
	typ, _ := c.Lookup(Int)

	_, err := typ.Convert("nope")
	var convErr *ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("expected ConversionError, got %v", err)
	}
	if convErr.Type != Int {
		t.Errorf("ConversionError.Type = %s", convErr.Type)
	}

	// Out of range for int64 although it matches the digit pattern.
	if _, err := typ.Convert("99999999999999999999"); err == nil {
		t.Errorf("expected overflow error")
	}
}

func TestList(t *testing.T) {
	c := NewCatalog()

	listInt, ok := c.Lookup("list[int]")
	if !ok {
		t.Fatal("list[int] not resolved")
	}
	if listInt.Name() != "list[int]" {
		t.Errorf("Name() = %s", listInt.Name())
	}

	got, err := listInt.Convert("1, 2, 3")
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !reflect.DeepEqual(got, []interface{}{int64(1), int64(2), int64(3)}) {
		t.Errorf("Convert = %#v", got)
	}

	if listInt.Validate("1,a") {
		t.Errorf("list[int] should reject \"1,a\"")
	}
	if listInt.Validate(5) {
		t.Errorf("list[int] should reject non-string values")
	}

	listBool, _ := c.Lookup("list[bool]")
	got, err = listBool.Convert("true, FALSE")
	if err != nil || !reflect.DeepEqual(got, []interface{}{true, false}) {
		t.Errorf("list[bool] Convert = %#v, %v", got, err)
	}
}

func TestCatalog_Lookup(t *testing.T) {
	c := NewCatalog()

	for _, name := range []string{"str", "int", "float", "bool", "classname", "list[classname]"} {
		if !c.IsSupported(name) {
			t.Errorf("%s should be supported", name)
		}
	}
	for _, name := range []string{"list[list[int]]", "list[]", "dict", "list[nope]"} {
		if c.IsSupported(name) {
			t.Errorf("%s should not be supported", name)
		}
	}
}

func TestCatalog_Register(t *testing.T) {
	c := NewCatalog()
	if err := c.Register(strType{}); err == nil {
		t.Errorf("expected duplicate registration error")
	}
	if err := c.Register(nil); err == nil {
		t.Errorf("expected nil type error")
	}
}

func TestDefaults(t *testing.T) {
	c := NewCatalog()
	want := map[string]interface{}{
		Str:         "",
		Int:         int64(0),
		Float:       float64(0),
		Bool:        false,
		ClassName:   "",
		"list[str]": []interface{}{},
	}
	for name, def := range want {
		typ, _ := c.Lookup(name)
		if !reflect.DeepEqual(typ.Default(), def) {
			t.Errorf("%s.Default() = %#v, want %#v", name, typ.Default(), def)
		}
	}
}

func TestShapeOf(t *testing.T) {
	tests := map[interface{}]string{
		"s":        Str,
		true:       Bool,
		1.5:        Float,
		int64(3):   Int,
		3:          Int,
		struct{}{}: "",
	}
	for v, want := range tests {
		if got := ShapeOf(v); got != want {
			t.Errorf("ShapeOf(%#v) = %q, want %q", v, got, want)
		}
	}
}
