package templates

import (
	"github.com/hyperconf/hyperconf/pkg/errs"
	"github.com/hyperconf/hyperconf/pkg/expr"
	"github.com/hyperconf/hyperconf/pkg/types"
)

// Shape is a definition with its chain of type references followed to a
// primitive or a composite.
type Shape struct {
	// Definition is the governing definition.
	Definition *Definition

	// Primitive is set when the chain ends in a primitive type.
	Primitive types.Type

	// Object is set when the chain ends in a composite; it supplies Options.
	Object *Definition

	// chain holds the governing definition first and the base-most last.
	chain []*Definition
}

// IsComposite reports whether the shape describes an object.
func (s *Shape) IsComposite() bool {
	return s.Object != nil
}

// Options returns the options of a composite shape.
func (s *Shape) Options() []*Definition {
	if s.Object == nil {
		return nil
	}
	return s.Object.Options
}

// Option returns the option named name.
func (s *Shape) Option(name string) (*Definition, bool) {
	if s.Object == nil {
		return nil, false
	}
	return s.Object.Option(name)
}

// BaseType returns the primitive name or Composite.
func (s *Shape) BaseType() string {
	if s.Object != nil {
		return Composite
	}
	return s.Primitive.Name()
}

// TypeName returns the name of the type the governing definition refers to:
// the composite's name or the primitive's name.
func (s *Shape) TypeName() string {
	if s.Object != nil {
		return s.Object.Name
	}
	return s.Primitive.Name()
}

// TypeInfo returns the typedef binding exposed to expressions.
func (s *Shape) TypeInfo() expr.TypeInfo {
	var options []string
	if s.Object != nil {
		options = s.Object.OptionNames()
	}
	return expr.TypeInfo{
		Name:     s.Definition.Name,
		BaseType: s.BaseType(),
		Required: s.Definition.Required,
		Options:  options,
	}
}

// Describe follows the type references of def. It fails with UnknownDataType
// when a reference is undefined and with TemplateSyntaxError on a cycle.
func (r *Registry) Describe(def *Definition) (*Shape, error) {
	shape := &Shape{Definition: def}
	seen := make(map[*Definition]bool)

	cur := def
	for {
		shape.chain = append(shape.chain, cur)
		seen[cur] = true

		if cur.IsComposite() {
			shape.Object = cur
			return shape, nil
		}

		base := cur.BaseType
		if base != cur.Name {
			if next, ok := r.definitions[base]; ok && next != cur {
				if seen[next] {
					return nil, errs.Newf(errs.KindTemplateSyntax,
						"circular type reference through '%s'", next.Name).At(def.File, def.Line)
				}
				cur = next
				continue
			}
		}

		t, ok := r.catalog.Lookup(base)
		if !ok {
			if next, registered := r.definitions[base]; registered && next != cur && !seen[next] {
				cur = next
				continue
			}
			return nil, unknownType(base, cur)
		}
		shape.Primitive = t
		return shape, nil
	}
}

// HasValidator reports whether any definition along the chain carries a
// validator expression.
func (s *Shape) HasValidator() bool {
	for _, def := range s.chain {
		if def.validator != nil {
			return true
		}
	}
	return false
}
