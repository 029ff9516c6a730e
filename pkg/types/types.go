package types

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Primitive type names.
const (
	Str       = "str"
	Int       = "int"
	Float     = "float"
	Bool      = "bool"
	ClassName = "classname"
)

// Type validates and converts raw scalar values.
type Type interface {
	// Name returns the type name used in templates.
	Name() string

	// Validate reports whether value is acceptable for this type.
	Validate(value interface{}) bool

	// Convert returns value in its Go representation. It fails with a
	// *ConversionError when Validate would return false.
	Convert(value interface{}) (interface{}, error)

	// Default returns the zero value of the type.
	Default() interface{}
}

// ConversionError reports a value that cannot be converted to a type.
type ConversionError struct {
	Type  string
	Value interface{}
	Err   error
}

// Error implements the error interface.
func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot convert %#v to %s: %v", e.Value, e.Type, e.Err)
	}
	return fmt.Sprintf("cannot convert %#v to %s", e.Value, e.Type)
}

// Unwrap returns the underlying error.
func (e *ConversionError) Unwrap() error {
	return e.Err
}

var (
	intPattern       = regexp.MustCompile(`^[-+]?\d+$`)
	floatPattern     = regexp.MustCompile(`^[-+]?(?:\d*\.\d+|\d+\.?)(?:[Ee][-+]?\d+)?$`)
	classNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

type strType struct{}

func (strType) Name() string { return Str }

func (strType) Validate(value interface{}) bool {
	_, ok := value.(string)
	return ok
}

func (t strType) Convert(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, &ConversionError{Type: t.Name(), Value: value}
	}
	return s, nil
}

func (strType) Default() interface{} { return "" }

type intType struct{}

func (intType) Name() string { return Int }

func (intType) Validate(value interface{}) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return true
	case uint, uint64:
		_, ok := toInt64(v)
		return ok
	case string:
		return intPattern.MatchString(v)
	}
	return false
}

func (t intType) Convert(value interface{}) (interface{}, error) {
	if s, ok := value.(string); ok {
		if !intPattern.MatchString(s) {
			return nil, &ConversionError{Type: t.Name(), Value: value}
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, &ConversionError{Type: t.Name(), Value: value, Err: err}
		}
		return n, nil
	}
	n, ok := toInt64(value)
	if !ok {
		return nil, &ConversionError{Type: t.Name(), Value: value}
	}
	return n, nil
}

func (intType) Default() interface{} { return int64(0) }

// toInt64 widens native Go integers.
func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

type floatType struct{}

func (floatType) Name() string { return Float }

func (floatType) Validate(value interface{}) bool {
	switch v := value.(type) {
	case float32, float64:
		return true
	case string:
		return floatPattern.MatchString(v)
	}
	_, ok := toInt64(value)
	return ok
}

func (t floatType) Convert(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		if !floatPattern.MatchString(v) {
			return nil, &ConversionError{Type: t.Name(), Value: value}
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, &ConversionError{Type: t.Name(), Value: value, Err: err}
		}
		return f, nil
	}
	if n, ok := toInt64(value); ok {
		return float64(n), nil
	}
	return nil, &ConversionError{Type: t.Name(), Value: value}
}

func (floatType) Default() interface{} { return float64(0) }

type boolType struct{}

func (boolType) Name() string { return Bool }

func (boolType) Validate(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return true
	case string:
		l := strings.ToLower(v)
		return l == "true" || l == "false"
	}
	return false
}

func (t boolType) Convert(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, &ConversionError{Type: t.Name(), Value: value}
}

func (boolType) Default() interface{} { return false }

type classNameType struct{}

func (classNameType) Name() string { return ClassName }

func (classNameType) Validate(value interface{}) bool {
	s, ok := value.(string)
	return ok && classNamePattern.MatchString(s)
}

func (t classNameType) Convert(value interface{}) (interface{}, error) {
	if !t.Validate(value) {
		return nil, &ConversionError{Type: t.Name(), Value: value}
	}
	return value.(string), nil
}

func (classNameType) Default() interface{} { return "" }

// ListType is a homogeneous list of a scalar element type, written as a
// single comma-separated string.
type ListType struct {
	elem Type
}

// NewList creates list[elem].
func NewList(elem Type) *ListType {
	return &ListType{elem: elem}
}

// Name returns "list[T]".
func (l *ListType) Name() string {
	return ListName(l.elem.Name())
}

// Elem returns the element type.
func (l *ListType) Elem() Type {
	return l.elem
}

// Validate accepts a string whose comma-separated, trimmed segments are all
// valid for the element type.
func (l *ListType) Validate(value interface{}) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	for _, part := range strings.Split(s, ",") {
		if !l.elem.Validate(strings.TrimSpace(part)) {
			return false
		}
	}
	return true
}

// Convert splits value and converts every segment.
func (l *ListType) Convert(value interface{}) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, &ConversionError{Type: l.Name(), Value: value}
	}
	parts := strings.Split(s, ",")
	out := make([]interface{}, 0, len(parts))
	for _, part := range parts {
		v, err := l.elem.Convert(strings.TrimSpace(part))
		if err != nil {
			return nil, &ConversionError{Type: l.Name(), Value: value, Err: err}
		}
		out = append(out, v)
	}
	return out, nil
}

// Default returns an empty list.
func (l *ListType) Default() interface{} {
	return []interface{}{}
}

// ListName returns the list type name for an element type name.
func ListName(elem string) string {
	return "list[" + elem + "]"
}
