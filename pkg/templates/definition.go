package templates

import (
	"fmt"

	"github.com/hyperconf/hyperconf/pkg/expr"
)

// Composite is the base type of definitions that declare options.
const Composite = "composite"

// Reserved attribute keys of a definition body.
const (
	KeyType      = "type"
	KeyRequired  = "required"
	KeyValidator = "validator"
	KeyConverter = "converter"
	KeyAllowMany = "allow_many"
)

// Reserved top-level keys of a template document.
const (
	KeyUse         = "use"
	KeyName        = "name"
	KeyDescription = "description"
)

var reservedAttributes = map[string]bool{
	KeyType:      true,
	KeyRequired:  true,
	KeyValidator: true,
	KeyConverter: true,
	KeyAllowMany: true,
}

// IsReservedAttribute reports whether key is a reserved definition attribute.
func IsReservedAttribute(key string) bool {
	return reservedAttributes[key]
}

// Definition is a parsed template entry: a primitive alias, a reference to
// another definition, or a composite object with options. Options of a
// composite are Definitions themselves whose BaseType names their value type.
//
// Definitions are immutable once registered.
type Definition struct {
	// Name is the type name, or the option name for options.
	Name string

	// BaseType is a primitive name, a registered type name, or Composite.
	BaseType string

	// Required marks an option that an enclosing object must supply.
	Required bool

	// AllowMany lets an option take a sequence of single-entry mappings.
	AllowMany bool

	// Validator and Converter hold the expression sources, if any.
	Validator string
	Converter string

	// Options lists the members of a composite, in declaration order.
	Options []*Definition

	// File and Line locate the definition in its template.
	File string
	Line int

	validator *expr.Program
	converter *expr.Program
}

// IsComposite reports whether the definition declares options.
func (d *Definition) IsComposite() bool {
	return d.BaseType == Composite
}

// Option returns the option with the given name.
func (d *Definition) Option(name string) (*Definition, bool) {
	for _, o := range d.Options {
		if o.Name == name {
			return o, true
		}
	}
	return nil, false
}

// OptionNames returns the option names in declaration order.
func (d *Definition) OptionNames() []string {
	names := make([]string, len(d.Options))
	for i, o := range d.Options {
		names[i] = o.Name
	}
	return names
}

// Location renders the definition's source location.
func (d *Definition) Location() string {
	switch {
	case d.File != "" && d.Line > 0:
		return fmt.Sprintf("%s:%d", d.File, d.Line)
	case d.File != "":
		return d.File
	case d.Line > 0:
		return fmt.Sprintf("line %d", d.Line)
	}
	return "<unknown>"
}

// String implements fmt.Stringer.
func (d *Definition) String() string {
	if d.IsComposite() {
		return fmt.Sprintf("%s%v", d.Name, d.OptionNames())
	}
	return fmt.Sprintf("%s(%s)", d.Name, d.BaseType)
}

// compile prepares the validator and converter programs.
func (d *Definition) compile(e *expr.Evaluator) error {
	if d.Validator != "" {
		p, err := e.Compile(d.Name+"."+KeyValidator, d.Validator)
		if err != nil {
			return fmt.Errorf("validator of '%s': %w", d.Name, err)
		}
		d.validator = p
	}
	if d.Converter != "" {
		p, err := e.Compile(d.Name+"."+KeyConverter, d.Converter)
		if err != nil {
			return fmt.Errorf("converter of '%s': %w", d.Name, err)
		}
		d.converter = p
	}
	return nil
}
