package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"
)

// SyntaxError reports a document that could not be parsed.
type SyntaxError struct {
	File string
	Err  error
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("invalid YAML in %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("invalid YAML: %v", e.Err)
}

// Unwrap returns the parser error.
func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Parse decodes a YAML document. An empty document yields an empty mapping.
func Parse(data []byte, filename string) (Value, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var root yaml.Node
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return NewMapping(1), nil
		}
		return nil, &SyntaxError{File: filename, Err: err}
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return NewMapping(1), nil
	}
	v, err := convertNode(root.Content[0], 0)
	if err != nil {
		return nil, &SyntaxError{File: filename, Err: err}
	}
	return v, nil
}

// ParseMapping decodes a YAML document whose top level must be a mapping.
func ParseMapping(data []byte, filename string) (*Mapping, error) {
	v, err := Parse(data, filename)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*Mapping)
	if !ok {
		if s, isScalar := v.(*Scalar); isScalar && s.IsNull() {
			return NewMapping(s.Line()), nil
		}
		return nil, &SyntaxError{
			File: filename,
			Err:  fmt.Errorf("top level must be a mapping, got %s", v.Kind()),
		}
	}
	return m, nil
}

// maxAliasDepth bounds alias expansion.
const maxAliasDepth = 64

func convertNode(n *yaml.Node, depth int) (Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		if depth > maxAliasDepth {
			return nil, fmt.Errorf("line %d: alias nesting too deep", n.Line)
		}
		return convertNode(n.Alias, depth+1)

	case yaml.MappingNode:
		m := NewMapping(n.Line)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			child, err := convertNode(v, depth)
			if err != nil {
				return nil, err
			}
			if err := m.Set(k.Value, child, k.Line); err != nil {
				return nil, err
			}
		}
		return m, nil

	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			child, err := convertNode(c, depth)
			if err != nil {
				return nil, err
			}
			items = append(items, child)
		}
		return NewSequence(n.Line, items...), nil

	case yaml.ScalarNode:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return NewScalar(n.Line, normalizeScalar(v, n.Value)), nil
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

// normalizeScalar widens yaml.v3's native integer kinds to int64. Values
// without a primitive counterpart, such as timestamps, keep their source text.
func normalizeScalar(v interface{}, text string) interface{} {
	switch n := v.(type) {
	case nil, string, bool, float64, int64:
		return v
	case int:
		return int64(n)
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
		return float64(n)
	}
	return text
}
