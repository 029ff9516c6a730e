package config

import (
	"context"
	"errors"

	"github.com/hyperconf/hyperconf/pkg/document"
	"github.com/hyperconf/hyperconf/pkg/errs"
	"github.com/hyperconf/hyperconf/pkg/templates"
)

// builder turns one configuration document into a Node tree.
type builder struct {
	reg    *templates.Registry
	strict bool
	file   string
	count  int
}

// root builds the tree of the top-level mapping.
func (b *builder) root(ctx context.Context, m *document.Mapping) (*Node, error) {
	if err := b.loadUses(ctx, m); err != nil {
		return nil, err
	}
	root := newNode("", nil, b.file, m.Line())
	if err := b.fill(ctx, root, nil, m); err != nil {
		return nil, err
	}
	return root, nil
}

// loadUses loads the templates named by the use entry of m, if any.
func (b *builder) loadUses(ctx context.Context, m *document.Mapping) error {
	use, ok := m.Get(templates.KeyUse)
	if !ok {
		return nil
	}
	paths, err := templates.UsePaths(use, b.file)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := b.reg.LoadFile(ctx, p, b.file, use.Line()); err != nil {
			return err
		}
	}
	return nil
}

// fill resolves and builds every declaration of m into node. parent is the
// shape of node's governing definition, nil when node is untyped.
func (b *builder) fill(ctx context.Context, node *Node, parent *templates.Shape, m *document.Mapping) error {
	for _, e := range m.Entries() {
		if e.Key == templates.KeyUse || e.Key == document.LineKey {
			continue
		}

		decl, err := b.reg.ResolveDeclaration(e.Key, e.Value, parent, b.strict)
		if err != nil {
			return b.locate(errs.Wrap(decl.Identifier, err), e.Line)
		}

		v, err := b.value(ctx, decl, e.Value, e.Line)
		if err != nil {
			return errs.Wrap(decl.Identifier, err)
		}
		if !node.Has(decl.Identifier) {
			b.count++
		}
		node.add(decl.Identifier, v, e.Line, decl.Definition)
	}
	return nil
}

// value builds the value of one resolved declaration.
func (b *builder) value(ctx context.Context, decl templates.Declaration, raw document.Value, line int) (Value, error) {
	if decl.Definition == nil {
		return b.untyped(ctx, decl, raw, line)
	}

	shape, err := b.reg.Describe(decl.Definition)
	if err != nil {
		return Value{}, b.locate(err, line)
	}

	switch val := raw.(type) {
	case *document.Mapping:
		n, err := b.object(ctx, decl.Identifier, shape, val)
		if err != nil {
			return Value{}, err
		}
		return nodeValue(n), nil

	case *document.Sequence:
		if err := b.checkElements(decl.Identifier, val); err != nil {
			return Value{}, err
		}
		if !decl.Definition.AllowMany {
			return Value{}, errs.Newf(errs.KindTypeMismatch,
				"'%s' is of type %s and does not accept a list", decl.Identifier, shape.TypeName()).
				At(b.file, val.Line())
		}
		l, err := b.list(ctx, decl, val)
		if err != nil {
			return Value{}, err
		}
		return listValue(l), nil

	case *document.Scalar:
		if shape.IsComposite() && val.IsNull() {
			n, err := b.object(ctx, decl.Identifier, shape, document.NewMapping(line))
			if err != nil {
				return Value{}, err
			}
			return nodeValue(n), nil
		}
		converted, err := b.reg.ConvertScalar(shape, val.Value(), b.file, line)
		if err != nil {
			return Value{}, err
		}
		return scalarValue(converted), nil
	}
	return Value{}, errs.Newf(errs.KindTypeMismatch, "unsupported value for '%s'", decl.Identifier).
		At(b.file, line)
}

// object builds a child node governed by a composite shape.
func (b *builder) object(ctx context.Context, identifier string, shape *templates.Shape, m *document.Mapping) (*Node, error) {
	if err := b.loadUses(ctx, m); err != nil {
		return nil, err
	}
	if err := b.reg.CheckStructure(shape, m, b.file); err != nil {
		return nil, err
	}

	child := newNode(identifier, shape.Definition, b.file, m.Line())
	if err := b.fill(ctx, child, shape, m); err != nil {
		return nil, err
	}
	if shape.HasValidator() {
		if err := b.reg.Validate(shape, child.ToMap(), b.file, m.Line()); err != nil {
			return nil, err
		}
	}
	return child, nil
}

// list builds the elements of a sequence declaration. Every element must be
// a mapping with exactly one entry whose value is a mapping.
func (b *builder) list(ctx context.Context, decl templates.Declaration, seq *document.Sequence) (*NodeList, error) {
	out := &NodeList{identifier: decl.Identifier, definition: decl.Definition}
	for i, item := range seq.Items() {
		key, inner, err := b.element(decl.Identifier, i, item, seq.Line())
		if err != nil {
			return nil, err
		}

		edecl, err := b.reg.ResolveElement(key, inner, decl.Definition, b.strict)
		if err != nil {
			return nil, b.locate(errs.Wrap(edecl.Identifier, err), item.Line())
		}
		if edecl.Definition == nil {
			n := newNode(edecl.Identifier, nil, b.file, inner.Line())
			if err := b.fill(ctx, n, nil, inner); err != nil {
				return nil, errs.Wrap(edecl.Identifier, err)
			}
			out.items = append(out.items, n)
			continue
		}

		shape, err := b.reg.Describe(edecl.Definition)
		if err != nil {
			return nil, b.locate(err, inner.Line())
		}
		n, err := b.object(ctx, edecl.Identifier, shape, inner)
		if err != nil {
			return nil, errs.Wrap(edecl.Identifier, err)
		}
		out.items = append(out.items, n)
	}
	return out, nil
}

// checkElements reports the first element of seq that is not a
// single-entry mapping.
func (b *builder) checkElements(identifier string, seq *document.Sequence) error {
	for i, item := range seq.Items() {
		if _, _, err := b.element(identifier, i, item, seq.Line()); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) element(identifier string, index int, item document.Value, line int) (string, *document.Mapping, error) {
	if item.Line() > 0 {
		line = item.Line()
	}
	m, ok := item.(*document.Mapping)
	if !ok || m.Len() != 1 {
		return "", nil, errs.Newf(errs.KindMalformedList,
			"element %d of '%s' must be a mapping with exactly one entry", index, identifier).
			At(b.file, line)
	}
	e := m.Entries()[0]
	inner, ok := e.Value.(*document.Mapping)
	if !ok {
		if sc, isScalar := e.Value.(*document.Scalar); isScalar && sc.IsNull() {
			return e.Key, document.NewMapping(e.Line), nil
		}
		return "", nil, errs.Newf(errs.KindMalformedList,
			"element '%s' of '%s' must hold a mapping", e.Key, identifier).At(b.file, e.Line)
	}
	return e.Key, inner, nil
}

// untyped keeps a declaration that resolved to no definition in a lenient
// load. Mappings become untyped nodes. Sequences of single-entry mappings
// become node lists; any other sequence is kept as raw data.
func (b *builder) untyped(ctx context.Context, decl templates.Declaration, raw document.Value, line int) (Value, error) {
	switch val := raw.(type) {
	case *document.Mapping:
		if err := b.loadUses(ctx, val); err != nil {
			return Value{}, err
		}
		n := newNode(decl.Identifier, nil, b.file, val.Line())
		if err := b.fill(ctx, n, nil, val); err != nil {
			return Value{}, err
		}
		return nodeValue(n), nil

	case *document.Sequence:
		if !isNodeList(val) {
			return scalarValue(document.ToAny(val)), nil
		}
		l, err := b.list(ctx, decl, val)
		if err != nil {
			return Value{}, err
		}
		return listValue(l), nil
	}
	return scalarValue(document.ToAny(raw)), nil
}

func isNodeList(seq *document.Sequence) bool {
	if seq.Len() == 0 {
		return false
	}
	for _, item := range seq.Items() {
		m, ok := item.(*document.Mapping)
		if !ok || m.Len() != 1 {
			return false
		}
		if _, ok := m.Entries()[0].Value.(*document.Mapping); !ok {
			return false
		}
	}
	return true
}

// locate fills in the position of errors raised without one.
func (b *builder) locate(err error, line int) error {
	var e *errs.Error
	if errors.As(err, &e) && e.Line == 0 && e.File == "" {
		e.At(b.file, line)
	}
	return err
}
