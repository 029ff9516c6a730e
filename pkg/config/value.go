package config

import (
	"fmt"
)

// ValueKind identifies what a lookup on a Node returned.
type ValueKind int

const (
	// Missing means no declaration has the requested identifier.
	Missing ValueKind = iota
	// ScalarValue is a converted leaf value.
	ScalarValue
	// NodeValue is a child node.
	NodeValue
	// NodeListValue is an ordered list of child nodes.
	NodeListValue
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case ScalarValue:
		return "scalar"
	case NodeValue:
		return "node"
	case NodeListValue:
		return "list"
	default:
		return "missing"
	}
}

// Value is the tagged result of a Node lookup.
type Value struct {
	kind   ValueKind
	scalar interface{}
	node   *Node
	list   *NodeList
}

func scalarValue(v interface{}) Value { return Value{kind: ScalarValue, scalar: v} }
func nodeValue(n *Node) Value         { return Value{kind: NodeValue, node: n} }
func listValue(l *NodeList) Value     { return Value{kind: NodeListValue, list: l} }

// Kind returns the variant held by v.
func (v Value) Kind() ValueKind { return v.kind }

// IsMissing reports whether the lookup found nothing.
func (v Value) IsMissing() bool { return v.kind == Missing }

// Scalar returns the leaf value. Slices and maps are copied.
func (v Value) Scalar() (interface{}, bool) {
	return copyData(v.scalar), v.kind == ScalarValue
}

// Node returns the child node.
func (v Value) Node() (*Node, bool) {
	return v.node, v.kind == NodeValue
}

// List returns the child node list.
func (v Value) List() (*NodeList, bool) {
	return v.list, v.kind == NodeListValue
}

// AsString returns a string scalar.
func (v Value) AsString() (string, bool) {
	s, ok := v.scalar.(string)
	return s, ok && v.kind == ScalarValue
}

// AsInt returns an integer scalar.
func (v Value) AsInt() (int64, bool) {
	n, ok := v.scalar.(int64)
	return n, ok && v.kind == ScalarValue
}

// AsFloat returns a floating point scalar. Integers are widened.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != ScalarValue {
		return 0, false
	}
	switch f := v.scalar.(type) {
	case float64:
		return f, true
	case int64:
		return float64(f), true
	}
	return 0, false
}

// AsBool returns a boolean scalar.
func (v Value) AsBool() (bool, bool) {
	b, ok := v.scalar.(bool)
	return b, ok && v.kind == ScalarValue
}

// AsSlice returns a copy of a list scalar, such as a converted list[T]
// value.
func (v Value) AsSlice() ([]interface{}, bool) {
	s, ok := v.scalar.([]interface{})
	if !ok || v.kind != ScalarValue {
		return nil, false
	}
	return copyData(s).([]interface{}), true
}

// Interface returns v as plain Go data: scalars as is, nodes as maps and
// node lists as slices of single-entry maps. Missing values yield nil.
func (v Value) Interface() interface{} {
	switch v.kind {
	case ScalarValue:
		return copyData(v.scalar)
	case NodeValue:
		return v.node.ToMap()
	case NodeListValue:
		return v.list.ToSlice()
	}
	return nil
}

// copyData deep-copies the slices and maps a scalar may hold, so callers
// cannot reach the tree's own storage.
func copyData(v interface{}) interface{} {
	switch d := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(d))
		for i, item := range d {
			out[i] = copyData(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(d))
		for k, item := range d {
			out[k] = copyData(item)
		}
		return out
	}
	return v
}

// Format implements fmt.Formatter so values print like their content.
func (v Value) Format(f fmt.State, verb rune) {
	if v.kind == Missing {
		fmt.Fprint(f, "<missing>")
		return
	}
	fmt.Fprintf(f, "%"+string(verb), v.Interface())
}
