package policy

import (
	"github.com/hyperconf/hyperconf/pkg/config"
)

// NewInput flattens a configuration tree into policy input.
func NewInput(root *config.Node) *Input {
	in := &Input{
		File:         root.File(),
		Config:       root.ToMap(),
		Declarations: []Declaration{},
	}
	collect(in, root, "")
	return in
}

func collect(in *Input, n *config.Node, prefix string) {
	for _, key := range n.Keys() {
		path := join(prefix, key)
		line, _ := n.LineOf(key)
		v := n.Get(key)
		decl := Declaration{
			Path:       path,
			Identifier: key,
			Kind:       v.Kind().String(),
			Line:       line,
		}
		if def := n.DefinitionOf(key); def != nil {
			decl.Type = def.Name
			decl.BaseType = def.BaseType
		}

		switch v.Kind() {
		case config.NodeValue:
			child, _ := v.Node()
			in.Declarations = append(in.Declarations, decl)
			collect(in, child, path)
		case config.NodeListValue:
			list, _ := v.List()
			in.Declarations = append(in.Declarations, decl)
			for _, item := range list.Items() {
				itemPath := join(path, item.Identifier())
				in.Declarations = append(in.Declarations, Declaration{
					Path:       itemPath,
					Identifier: item.Identifier(),
					Type:       item.TypeName(),
					BaseType:   baseType(item),
					Kind:       config.NodeValue.String(),
					Line:       item.Line(),
				})
				collect(in, item, itemPath)
			}
		default:
			decl.Value = v.Interface()
			in.Declarations = append(in.Declarations, decl)
		}
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func baseType(n *config.Node) string {
	if def := n.Definition(); def != nil {
		return def.BaseType
	}
	return ""
}
