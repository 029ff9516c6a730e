package templates

import (
	"regexp"
	"strings"

	"github.com/hyperconf/hyperconf/pkg/document"
	"github.com/hyperconf/hyperconf/pkg/errs"
	"github.com/hyperconf/hyperconf/pkg/types"
)

var keyPattern = regexp.MustCompile(`^([_A-Za-z][_0-9A-Za-z]*)(?:=(.*))?$`)

// ParseKey splits a declaration key of the form identifier[=type].
func ParseKey(key string) (identifier, explicit string, ok bool) {
	m := keyPattern.FindStringSubmatch(strings.TrimSpace(key))
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

// Resolution tells how the type of a declaration was determined.
type Resolution int

const (
	// Unresolved declarations carry no definition (lenient mode only).
	Unresolved Resolution = iota
	// ByExplicitType means the key named its type after '='.
	ByExplicitType
	// ByIdentity means the identifier itself is a registered type.
	ByIdentity
	// ByParentOption means the enclosing definition declares the identifier.
	ByParentOption
	// ByShape means the type was inferred from the value's data kind.
	ByShape
)

// String returns the resolution name.
func (r Resolution) String() string {
	switch r {
	case ByExplicitType:
		return "explicit"
	case ByIdentity:
		return "identity"
	case ByParentOption:
		return "option"
	case ByShape:
		return "shape"
	default:
		return "unresolved"
	}
}

// Declaration is a resolved configuration key.
type Declaration struct {
	Identifier string
	Definition *Definition
	Resolution Resolution
}

// ResolveDeclaration determines the identifier and governing definition of a
// configuration key. parent is the shape of the enclosing object, nil at the
// root. The explicit suffix wins over the identifier naming a registered
// type, which wins over an option of parent. Inference from the value's data
// kind happens only when strict is false; a strict miss is UndefinedTag.
func (r *Registry) ResolveDeclaration(key string, value document.Value, parent *Shape, strict bool) (Declaration, error) {
	decl, done, err := r.resolveNamed(key)
	if err != nil || done {
		return decl, err
	}

	if parent != nil {
		if opt, ok := parent.Option(decl.Identifier); ok {
			decl.Definition = opt
			decl.Resolution = ByParentOption
			return decl, nil
		}
	}

	return r.resolveFallback(decl, value, strict)
}

// ResolveElement determines the governing definition of one element of a
// sequence option. The element key is resolved like a declaration, except
// that the sequence option's own definition replaces the parent lookup.
func (r *Registry) ResolveElement(key string, value document.Value, sequence *Definition, strict bool) (Declaration, error) {
	decl, done, err := r.resolveNamed(key)
	if err != nil || done {
		return decl, err
	}

	if sequence != nil {
		decl.Definition = sequence
		decl.Resolution = ByParentOption
		return decl, nil
	}

	return r.resolveFallback(decl, value, strict)
}

// resolveNamed applies the explicit suffix and identity rules.
func (r *Registry) resolveNamed(key string) (Declaration, bool, error) {
	ident, explicit, ok := ParseKey(key)
	if !ok {
		return Declaration{}, false, errs.Newf(errs.KindUndefinedTag,
			"invalid declaration '%s': expected identifier[=type]", key)
	}
	decl := Declaration{Identifier: ident}

	if explicit != "" {
		def, err := r.Resolve(explicit)
		if err != nil {
			return decl, false, errs.Newf(errs.KindUndefinedTag,
				"undefined type '%s' for declaration '%s'", explicit, ident)
		}
		decl.Definition = def
		decl.Resolution = ByExplicitType
		return decl, true, nil
	}

	if def, ok := r.definitions[ident]; ok {
		decl.Definition = def
		decl.Resolution = ByIdentity
		return decl, true, nil
	}
	return decl, false, nil
}

func (r *Registry) resolveFallback(decl Declaration, value document.Value, strict bool) (Declaration, error) {
	if strict {
		return decl, errs.Newf(errs.KindUndefinedTag,
			"undefined declaration '%s': no type given, registered, or declared by the enclosing object",
			decl.Identifier)
	}

	if sc, ok := value.(*document.Scalar); ok {
		if name := types.ShapeOf(sc.Value()); name != "" {
			def, err := r.Resolve(name)
			if err == nil {
				decl.Definition = def
				decl.Resolution = ByShape
			}
		}
	}
	return decl, nil
}
