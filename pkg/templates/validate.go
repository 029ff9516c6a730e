package templates

import (
	"fmt"
	"strings"

	"github.com/hyperconf/hyperconf/pkg/document"
	"github.com/hyperconf/hyperconf/pkg/errs"
)

// Expression roles reported to metrics.
const (
	roleValidator = "validator"
	roleConverter = "converter"
)

// CheckStructure verifies the keys of m against the options of a composite
// shape: every required option must be present and every key must name an
// option. The use key is ignored.
func (r *Registry) CheckStructure(shape *Shape, m *document.Mapping, file string) error {
	if !shape.IsComposite() {
		return errs.Newf(errs.KindTypeMismatch,
			"'%s' is of type %s and cannot hold options", shape.Definition.Name, shape.TypeName()).
			At(file, m.Line())
	}

	present := make(map[string]bool, m.Len())
	for _, e := range m.Entries() {
		if e.Key == KeyUse || e.Key == document.LineKey {
			continue
		}
		ident, _, ok := ParseKey(e.Key)
		if !ok {
			return errs.Newf(errs.KindUndefinedTag,
				"invalid declaration '%s': expected identifier[=type]", e.Key).At(file, e.Line)
		}
		present[ident] = true
	}

	for _, opt := range shape.Options() {
		if opt.Required && !present[opt.Name] {
			return errs.Newf(errs.KindMissingRequiredOption,
				"missing required option '%s' for '%s'", opt.Name, shape.Definition.Name).
				At(file, m.Line())
		}
	}

	for _, e := range m.Entries() {
		if e.Key == KeyUse || e.Key == document.LineKey {
			continue
		}
		ident, _, _ := ParseKey(e.Key)
		if _, ok := shape.Option(ident); !ok {
			return errs.Newf(errs.KindUnknownOption,
				"unknown option '%s' for '%s' (options: %s)",
				ident, shape.Definition.Name, strings.Join(shape.Object.OptionNames(), ", ")).
				At(file, e.Line)
		}
	}
	return nil
}

// Validate runs the validator expressions along the shape's chain, base-most
// first, against value.
func (r *Registry) Validate(shape *Shape, value interface{}, file string, line int) error {
	info := shape.TypeInfo()
	for i := len(shape.chain) - 1; i >= 0; i-- {
		def := shape.chain[i]
		if def.validator == nil {
			continue
		}
		ok, msg, err := def.validator.Check(value, info)
		r.metrics.RecordExpression(roleValidator, err)
		if err != nil {
			return errs.Newf(errs.KindValidationFailed,
				"validator of '%s' failed on value %s", def.Name, render(value)).
				At(file, line).WithCause(err)
		}
		if !ok {
			e := errs.Newf(errs.KindValidationFailed,
				"invalid value %s for '%s'", render(value), shape.Definition.Name)
			if msg != "" {
				e.Message += ": " + msg
			}
			return e.At(file, line)
		}
	}
	return nil
}

// Convert runs the converter expressions along the shape's chain, base-most
// first. Without converters value is returned unchanged.
func (r *Registry) Convert(shape *Shape, value interface{}, file string, line int) (interface{}, error) {
	info := shape.TypeInfo()
	for i := len(shape.chain) - 1; i >= 0; i-- {
		def := shape.chain[i]
		if def.converter == nil {
			continue
		}
		converted, err := def.converter.Transform(value, info)
		r.metrics.RecordExpression(roleConverter, err)
		if err != nil {
			return nil, errs.Newf(errs.KindConversionFailed,
				"could not convert value %s for '%s'", render(value), shape.Definition.Name).
				At(file, line).WithCause(err)
		}
		value = converted
	}
	return value, nil
}

// ConvertScalar checks raw against the shape's primitive type, converts it,
// then applies validators and converters.
func (r *Registry) ConvertScalar(shape *Shape, raw interface{}, file string, line int) (interface{}, error) {
	if shape.IsComposite() {
		return nil, errs.Newf(errs.KindTypeMismatch,
			"'%s' is of type %s and requires a mapping, got %s",
			shape.Definition.Name, shape.TypeName(), render(raw)).At(file, line)
	}

	prim := shape.Primitive
	if !prim.Validate(raw) {
		return nil, errs.Newf(errs.KindTypeMismatch,
			"value %s is not a valid %s for '%s'", render(raw), prim.Name(), shape.Definition.Name).
			At(file, line)
	}
	value, err := prim.Convert(raw)
	if err != nil {
		return nil, errs.Newf(errs.KindConversionFailed,
			"could not convert value %s to %s", render(raw), prim.Name()).
			At(file, line).WithCause(err)
	}

	if err := r.Validate(shape, value, file, line); err != nil {
		return nil, err
	}
	return r.Convert(shape, value, file, line)
}

func render(v interface{}) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("'%s'", s)
	}
	return fmt.Sprintf("%v", v)
}
