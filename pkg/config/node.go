package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperconf/hyperconf/pkg/errs"
	"github.com/hyperconf/hyperconf/pkg/templates"
)

// Node is one object of a loaded configuration. Nodes are read-only once
// the loader returns them.
type Node struct {
	identifier string
	definition *templates.Definition
	file       string
	line       int

	keys     []string
	children map[string]Value
	lines    map[string]int
	defs     map[string]*templates.Definition
}

func newNode(identifier string, def *templates.Definition, file string, line int) *Node {
	return &Node{
		identifier: identifier,
		definition: def,
		file:       file,
		line:       line,
		children:   make(map[string]Value),
		lines:      make(map[string]int),
		defs:       make(map[string]*templates.Definition),
	}
}

// add stores a child during construction. A repeated identifier replaces
// the earlier declaration and keeps its position.
func (n *Node) add(identifier string, v Value, line int, def *templates.Definition) {
	if _, exists := n.children[identifier]; !exists {
		n.keys = append(n.keys, identifier)
	}
	n.children[identifier] = v
	n.lines[identifier] = line
	if def != nil {
		n.defs[identifier] = def
	} else {
		delete(n.defs, identifier)
	}
}

// Identifier returns the declaration name with any type suffix removed. The
// root node has an empty identifier.
func (n *Node) Identifier() string { return n.identifier }

// Definition returns the governing type definition, nil for untyped nodes
// of a lenient load.
func (n *Node) Definition() *templates.Definition { return n.definition }

// File returns the file the node was read from.
func (n *Node) File() string { return n.file }

// Line returns the line the node starts at.
func (n *Node) Line() int { return n.line }

// LineOf returns the line of the declaration identifier.
func (n *Node) LineOf(identifier string) (int, bool) {
	l, ok := n.lines[identifier]
	return l, ok
}

// DefinitionOf returns the definition governing the child identifier, nil
// when the child is untyped.
func (n *Node) DefinitionOf(identifier string) *templates.Definition {
	return n.defs[identifier]
}

// Keys returns the child identifiers in document order.
func (n *Node) Keys() []string {
	out := make([]string, len(n.keys))
	copy(out, n.keys)
	return out
}

// Len returns the number of children.
func (n *Node) Len() int { return len(n.keys) }

// Has reports whether identifier is declared on n.
func (n *Node) Has(identifier string) bool {
	_, ok := n.children[identifier]
	return ok
}

// Get returns the child declared as identifier.
func (n *Node) Get(identifier string) Value {
	return n.children[identifier]
}

// Lookup follows a dotted path of identifiers. A segment applied to a node
// list selects an element by identifier or by index.
func (n *Node) Lookup(path string) Value {
	if path == "" {
		return nodeValue(n)
	}
	cur := nodeValue(n)
	for _, seg := range strings.Split(path, ".") {
		switch cur.kind {
		case NodeValue:
			cur = cur.node.Get(seg)
		case NodeListValue:
			if item, ok := cur.list.Get(seg); ok {
				cur = nodeValue(item)
			} else if i, err := strconv.Atoi(seg); err == nil && i >= 0 && i < cur.list.Len() {
				cur = nodeValue(cur.list.items[i])
			} else {
				return Value{}
			}
		default:
			return Value{}
		}
	}
	return cur
}

// Set always fails: configurations cannot be modified after loading.
func (n *Node) Set(identifier string, _ interface{}) error {
	return immutable(n, identifier)
}

// Delete always fails: configurations cannot be modified after loading.
func (n *Node) Delete(identifier string) error {
	return immutable(n, identifier)
}

func immutable(n *Node, identifier string) error {
	return errs.Newf(errs.KindImmutableConfiguration,
		"cannot modify '%s': configuration is read-only", qualify(n.identifier, identifier)).
		At(n.file, n.line)
}

func qualify(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

// ToMap returns a deep copy of the node as plain Go data.
func (n *Node) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(n.keys))
	for _, k := range n.keys {
		out[k] = n.children[k].Interface()
	}
	return out
}

// WalkFunc is called for each declaration visited by Walk.
type WalkFunc func(path string, v Value) error

// Walk visits every declaration below n depth first, in document order.
// List items are visited as node values under their identifier. A non-nil
// error from fn stops the walk.
func (n *Node) Walk(fn WalkFunc) error {
	return n.walk("", fn)
}

func (n *Node) walk(prefix string, fn WalkFunc) error {
	for _, k := range n.keys {
		path := qualify(prefix, k)
		v := n.children[k]
		if err := fn(path, v); err != nil {
			return err
		}
		switch v.kind {
		case NodeValue:
			if err := v.node.walk(path, fn); err != nil {
				return err
			}
		case NodeListValue:
			for _, item := range v.list.items {
				itemPath := qualify(path, item.identifier)
				if err := fn(itemPath, nodeValue(item)); err != nil {
					return err
				}
				if err := item.walk(itemPath, fn); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Count returns the number of declarations Walk visits.
func (n *Node) Count() int {
	count := 0
	_ = n.Walk(func(string, Value) error {
		count++
		return nil
	})
	return count
}

// TypeName returns the name of the governing definition, or "" when untyped.
func (n *Node) TypeName() string {
	if n.definition == nil {
		return ""
	}
	return n.definition.Name
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	name := n.identifier
	if name == "" {
		name = "<root>"
	}
	if t := n.TypeName(); t != "" && t != n.identifier {
		name += "=" + t
	}
	return fmt.Sprintf("%s%v", name, n.keys)
}

// NodeList is the ordered value of a sequence declaration: one node per
// element, each named by the element's single key.
type NodeList struct {
	identifier string
	definition *templates.Definition
	items      []*Node
}

// Identifier returns the identifier of the sequence declaration.
func (l *NodeList) Identifier() string { return l.identifier }

// Definition returns the definition of the sequence declaration, nil when
// untyped.
func (l *NodeList) Definition() *templates.Definition { return l.definition }

// Len returns the number of elements.
func (l *NodeList) Len() int { return len(l.items) }

// Items returns the elements in order.
func (l *NodeList) Items() []*Node {
	out := make([]*Node, len(l.items))
	copy(out, l.items)
	return out
}

// At returns element i.
func (l *NodeList) At(i int) *Node {
	return l.items[i]
}

// Identifiers returns the element identifiers in order.
func (l *NodeList) Identifiers() []string {
	out := make([]string, len(l.items))
	for i, item := range l.items {
		out[i] = item.identifier
	}
	return out
}

// Has reports whether an element is named identifier.
func (l *NodeList) Has(identifier string) bool {
	_, ok := l.Get(identifier)
	return ok
}

// Get returns the first element named identifier.
func (l *NodeList) Get(identifier string) (*Node, bool) {
	for _, item := range l.items {
		if item.identifier == identifier {
			return item, true
		}
	}
	return nil, false
}

// ToSlice returns the elements as single-entry maps, mirroring the
// document shape they were read from.
func (l *NodeList) ToSlice() []interface{} {
	out := make([]interface{}, len(l.items))
	for i, item := range l.items {
		out[i] = map[string]interface{}{item.identifier: item.ToMap()}
	}
	return out
}
