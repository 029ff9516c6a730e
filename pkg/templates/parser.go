package templates

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperconf/hyperconf/pkg/document"
	"github.com/hyperconf/hyperconf/pkg/errs"
)

var typeNamePattern = regexp.MustCompile(`^([_A-Za-z][_0-9A-Za-z]*|list\[[_A-Za-z][_0-9A-Za-z]*\])$`)

// ParseDocument parses a template document and registers its definitions.
// Files named by a top-level use entry are loaded first. All definitions of
// the document are registered together once they parsed cleanly.
func (r *Registry) ParseDocument(ctx context.Context, m *document.Mapping, file string) ([]*Definition, error) {
	return r.parse(ctx, m, file)
}

func (r *Registry) parse(ctx context.Context, m *document.Mapping, file string) ([]*Definition, error) {
	if m == nil {
		return nil, errs.New(errs.KindTemplateSyntax, "template document is empty").At(file, 0)
	}

	info := TemplateInfo{File: file}
	if err := r.parseHeader(m, file, &info); err != nil {
		return nil, err
	}

	if use, ok := m.Get(KeyUse); ok {
		paths, err := UsePaths(use, file)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if err := r.LoadFile(ctx, p, file, use.Line()); err != nil {
				return nil, err
			}
		}
	}

	var defs []*Definition
	for _, e := range m.Without(KeyUse, KeyName, KeyDescription, document.LineKey).Entries() {
		def, err := r.parseDefinition(e, file)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	if err := r.checkReferences(defs); err != nil {
		return nil, err
	}
	if err := r.registerAll(defs); err != nil {
		return nil, err
	}
	for _, def := range defs {
		if _, err := r.Describe(def); err != nil {
			return nil, err
		}
	}

	for _, def := range defs {
		info.Definitions = append(info.Definitions, def.Name)
	}
	r.templates = append(r.templates, info)
	return defs, nil
}

func (r *Registry) parseHeader(m *document.Mapping, file string, info *TemplateInfo) error {
	header := make(map[string]interface{})
	for _, key := range []string{KeyName, KeyDescription} {
		if v, ok := m.Get(key); ok {
			header[key] = document.ToAny(v)
		}
	}
	if len(header) == 0 {
		return nil
	}
	if err := r.schema.check("#Header", header); err != nil {
		return errs.New(errs.KindTemplateSyntax, "invalid template metadata").
			At(file, m.Line()).WithCause(err)
	}
	info.Name, _ = header[KeyName].(string)
	info.Description, _ = header[KeyDescription].(string)
	return nil
}

// UsePaths returns the template paths named by a use entry: a single path or
// a sequence of paths.
func UsePaths(v document.Value, file string) ([]string, error) {
	invalid := func() error {
		return errs.Newf(errs.KindTemplateSyntax,
			"the '%s' directive must specify a file path or a list of file paths", KeyUse).
			At(file, v.Line())
	}

	switch val := v.(type) {
	case *document.Scalar:
		s, ok := val.Value().(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, invalid()
		}
		return []string{s}, nil
	case *document.Sequence:
		paths := make([]string, 0, val.Len())
		for _, item := range val.Items() {
			sc, ok := item.(*document.Scalar)
			if !ok {
				return nil, invalid()
			}
			s, ok := sc.Value().(string)
			if !ok || strings.TrimSpace(s) == "" {
				return nil, invalid()
			}
			paths = append(paths, s)
		}
		return paths, nil
	default:
		return nil, invalid()
	}
}

// parseDefinition builds the definition of one template entry.
func (r *Registry) parseDefinition(e document.Entry, file string) (*Definition, error) {
	if !typeNamePattern.MatchString(e.Key) {
		return nil, errs.Newf(errs.KindTemplateSyntax, "invalid type name '%s'", e.Key).At(file, e.Line)
	}

	switch body := e.Value.(type) {
	case *document.Scalar:
		base, ok := body.Value().(string)
		if !ok || base == "" {
			return nil, errs.Newf(errs.KindTemplateSyntax,
				"invalid type definition '%s': expected a type name or a mapping, got %v",
				e.Key, body.Value()).At(file, e.Line)
		}
		return &Definition{Name: e.Key, BaseType: base, File: file, Line: e.Line}, nil

	case *document.Mapping:
		return r.parseObject(e.Key, body, e.Line, file)

	default:
		return nil, errs.Newf(errs.KindTemplateSyntax,
			"invalid type definition '%s': unsupported %s body", e.Key, e.Value.Kind()).At(file, e.Line)
	}
}

func (r *Registry) parseObject(name string, body *document.Mapping, line int, file string) (*Definition, error) {
	def := &Definition{Name: name, File: file, Line: line}
	if err := r.applyAttributes(def, body, name, file); err != nil {
		return nil, err
	}
	explicitType := def.BaseType

	for _, e := range body.Entries() {
		if IsReservedAttribute(e.Key) || e.Key == document.LineKey {
			continue
		}
		opt, err := r.parseOption(name, e, file)
		if err != nil {
			return nil, err
		}
		def.Options = append(def.Options, opt)
	}

	switch {
	case len(def.Options) > 0:
		if explicitType != "" && explicitType != Composite {
			return nil, errs.Newf(errs.KindTemplateSyntax,
				"invalid type definition '%s': a definition with options cannot have type '%s'",
				name, explicitType).At(file, line)
		}
		def.BaseType = Composite
	case explicitType == "":
		def.BaseType = defaultOptionType
	}

	if def.IsComposite() && def.Converter != "" {
		return nil, errs.Newf(errs.KindTemplateSyntax,
			"invalid type definition '%s': converters apply to scalar types only", name).At(file, line)
	}
	return def, nil
}

// defaultOptionType is the type of options declared without one.
const defaultOptionType = "str"

func (r *Registry) parseOption(owner string, e document.Entry, file string) (*Definition, error) {
	if !typeNamePattern.MatchString(e.Key) || strings.HasPrefix(e.Key, "list[") {
		return nil, errs.Newf(errs.KindTemplateSyntax,
			"invalid option name '%s' in '%s'", e.Key, owner).At(file, e.Line)
	}

	switch body := e.Value.(type) {
	case *document.Scalar:
		base, ok := body.Value().(string)
		if !ok || base == "" {
			return nil, errs.Newf(errs.KindTemplateSyntax,
				"invalid option '%s' in '%s': expected a type name or an attribute mapping",
				e.Key, owner).At(file, e.Line)
		}
		return &Definition{Name: e.Key, BaseType: base, File: file, Line: e.Line}, nil

	case *document.Mapping:
		for _, k := range body.Keys() {
			if !IsReservedAttribute(k) && k != document.LineKey {
				return nil, errs.Newf(errs.KindTemplateSyntax,
					"invalid option definition '%s' in '%s': found unexpected key '%s'; nesting definitions is not allowed",
					e.Key, owner, k).At(file, body.Line())
			}
		}
		opt := &Definition{Name: e.Key, Required: true, File: file, Line: e.Line}
		if err := r.applyAttributes(opt, body, owner+"."+e.Key, file); err != nil {
			return nil, err
		}
		if opt.BaseType == Composite {
			return nil, errs.Newf(errs.KindTemplateSyntax,
				"invalid option definition '%s' in '%s': nesting definitions is not allowed",
				e.Key, owner).At(file, e.Line)
		}
		if opt.BaseType == "" {
			opt.BaseType = defaultOptionType
		}
		return opt, nil

	default:
		return nil, errs.Newf(errs.KindTemplateSyntax,
			"invalid option '%s' in '%s': unsupported %s value", e.Key, owner, e.Value.Kind()).At(file, e.Line)
	}
}

// applyAttributes copies the reserved attributes of body onto def after
// checking their types.
func (r *Registry) applyAttributes(def *Definition, body *document.Mapping, name, file string) error {
	attrs := make(map[string]interface{})
	for _, e := range body.Entries() {
		if IsReservedAttribute(e.Key) {
			attrs[e.Key] = document.ToAny(e.Value)
		}
	}
	if len(attrs) == 0 {
		return nil
	}

	if err := r.schema.check("#Attributes", attrs); err != nil {
		return errs.Newf(errs.KindTemplateSyntax, "invalid attributes for '%s'", name).
			At(file, body.Line()).WithCause(err)
	}

	if v, ok := attrs[KeyType].(string); ok {
		def.BaseType = v
	}
	if v, ok := attrs[KeyRequired].(bool); ok {
		def.Required = v
	}
	if v, ok := attrs[KeyAllowMany].(bool); ok {
		def.AllowMany = v
	}
	if v, ok := attrs[KeyValidator].(string); ok {
		def.Validator = v
	}
	if v, ok := attrs[KeyConverter].(string); ok {
		def.Converter = v
	}
	return nil
}

// checkReferences verifies that every type named by defs is a primitive, a
// registered definition, or one of defs.
func (r *Registry) checkReferences(defs []*Definition) error {
	local := make(map[string]bool, len(defs))
	for _, d := range defs {
		local[d.Name] = true
	}
	known := func(name string) bool {
		return local[name] || r.IsKnownType(name)
	}

	for _, d := range defs {
		if !d.IsComposite() && !known(d.BaseType) {
			return unknownType(d.BaseType, d)
		}
		for _, o := range d.Options {
			if !known(o.BaseType) {
				return unknownType(o.BaseType, o)
			}
		}
	}
	return nil
}

func unknownType(name string, def *Definition) error {
	return errs.New(errs.KindUnknownDataType,
		fmt.Sprintf("unknown type '%s' for '%s'", name, def.Name)).At(def.File, def.Line)
}
