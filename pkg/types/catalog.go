package types

import (
	"fmt"
	"regexp"
	"sort"
)

var listPattern = regexp.MustCompile(`^list\[(\w+)\]$`)

// Catalog maps type names to primitive types.
type Catalog struct {
	types map[string]Type
}

// NewCatalog creates a catalog with the built-in primitives.
func NewCatalog() *Catalog {
	c := &Catalog{types: make(map[string]Type)}
	for _, t := range []Type{strType{}, intType{}, floatType{}, boolType{}, classNameType{}} {
		c.types[t.Name()] = t
	}
	return c
}

// Register adds a scalar type. Names of existing types and list[...] names are
// rejected.
func (c *Catalog) Register(t Type) error {
	if t == nil {
		return fmt.Errorf("type is nil")
	}
	if _, exists := c.types[t.Name()]; exists {
		return fmt.Errorf("type %s already registered", t.Name())
	}
	if listPattern.MatchString(t.Name()) {
		return fmt.Errorf("type name %s is reserved for lists", t.Name())
	}
	c.types[t.Name()] = t
	return nil
}

// Lookup returns the type with the given name. list[T] is resolved for any
// registered scalar T.
func (c *Catalog) Lookup(name string) (Type, bool) {
	if t, ok := c.types[name]; ok {
		return t, true
	}
	m := listPattern.FindStringSubmatch(name)
	if m == nil {
		return nil, false
	}
	elem, ok := c.types[m[1]]
	if !ok {
		return nil, false
	}
	return NewList(elem), true
}

// IsSupported reports whether name resolves to a type.
func (c *Catalog) IsSupported(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Scalars returns the registered scalar type names, sorted.
func (c *Catalog) Scalars() []string {
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ShapeOf returns the primitive name matching the native kind of a decoded
// scalar, or "" when the value has no primitive counterpart.
func ShapeOf(value interface{}) string {
	switch value.(type) {
	case string:
		return Str
	case bool:
		return Bool
	case float32, float64:
		return Float
	}
	if _, ok := toInt64(value); ok {
		return Int
	}
	return ""
}
