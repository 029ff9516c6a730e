// Package document models raw configuration and template documents as a
// tagged union of mappings, sequences and scalars annotated with the source
// line they were read from.
package document

import (
	"fmt"
	"sort"
)

// LineKey is the reserved key carrying the source line of a mapping when a
// document is built from generic Go values.
const LineKey = "__line__"

// Kind identifies the variant of a Value.
type Kind int

const (
	// KindScalar is a string, number, boolean or null.
	KindScalar Kind = iota
	// KindMapping is an ordered set of key/value entries.
	KindMapping
	// KindSequence is an ordered list of values.
	KindSequence
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Value is a node of a raw document.
type Value interface {
	Kind() Kind
	Line() int
}

// Entry is one key/value pair of a Mapping.
type Entry struct {
	Key   string
	Value Value
	Line  int
}

// Mapping is an insertion-ordered map.
type Mapping struct {
	line    int
	entries []Entry
	index   map[string]int
}

// NewMapping creates an empty mapping starting at line.
func NewMapping(line int) *Mapping {
	return &Mapping{line: line, index: make(map[string]int)}
}

// Kind returns KindMapping.
func (m *Mapping) Kind() Kind { return KindMapping }

// Line returns the line the mapping starts at.
func (m *Mapping) Line() int { return m.line }

// Set appends an entry. Keys must be unique.
func (m *Mapping) Set(key string, value Value, line int) error {
	if _, exists := m.index[key]; exists {
		return fmt.Errorf("duplicate key %q at line %d", key, line)
	}
	m.index[key] = len(m.entries)
	m.entries = append(m.entries, Entry{Key: key, Value: value, Line: line})
	return nil
}

// Get returns the value stored under key.
func (m *Mapping) Get(key string) (Value, bool) {
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.entries[i].Value, true
}

// Has reports whether key is present.
func (m *Mapping) Has(key string) bool {
	_, ok := m.index[key]
	return ok
}

// Entries returns the entries in document order.
func (m *Mapping) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Keys returns the keys in document order.
func (m *Mapping) Keys() []string {
	keys := make([]string, len(m.entries))
	for i, e := range m.entries {
		keys[i] = e.Key
	}
	return keys
}

// Len returns the number of entries.
func (m *Mapping) Len() int { return len(m.entries) }

// Without returns a copy of m lacking the given keys.
func (m *Mapping) Without(keys ...string) *Mapping {
	skip := make(map[string]bool, len(keys))
	for _, k := range keys {
		skip[k] = true
	}
	out := NewMapping(m.line)
	for _, e := range m.entries {
		if skip[e.Key] {
			continue
		}
		out.index[e.Key] = len(out.entries)
		out.entries = append(out.entries, e)
	}
	return out
}

// Sequence is an ordered list of values.
type Sequence struct {
	line  int
	items []Value
}

// NewSequence creates a sequence starting at line.
func NewSequence(line int, items ...Value) *Sequence {
	return &Sequence{line: line, items: items}
}

// Kind returns KindSequence.
func (s *Sequence) Kind() Kind { return KindSequence }

// Line returns the line the sequence starts at.
func (s *Sequence) Line() int { return s.line }

// Items returns the elements in order.
func (s *Sequence) Items() []Value {
	out := make([]Value, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of elements.
func (s *Sequence) Len() int { return len(s.items) }

// Scalar holds a decoded leaf value: nil, string, int64, float64 or bool.
type Scalar struct {
	line  int
	value interface{}
}

// NewScalar creates a scalar.
func NewScalar(line int, value interface{}) *Scalar {
	return &Scalar{line: line, value: value}
}

// Kind returns KindScalar.
func (s *Scalar) Kind() Kind { return KindScalar }

// Line returns the source line.
func (s *Scalar) Line() int { return s.line }

// Value returns the native value.
func (s *Scalar) Value() interface{} { return s.value }

// IsNull reports whether the scalar is null.
func (s *Scalar) IsNull() bool { return s.value == nil }

// ToAny converts a document value to plain Go values: map[string]interface{},
// []interface{} and scalars.
func ToAny(v Value) interface{} {
	switch n := v.(type) {
	case *Mapping:
		out := make(map[string]interface{}, n.Len())
		for _, e := range n.entries {
			out[e.Key] = ToAny(e.Value)
		}
		return out
	case *Sequence:
		out := make([]interface{}, len(n.items))
		for i, item := range n.items {
			out[i] = ToAny(item)
		}
		return out
	case *Scalar:
		return n.value
	}
	return nil
}

// FromAny builds a document from generic Go values. Maps may carry their
// source line under LineKey, which is stripped. Keys of plain Go maps have no
// order, so they are sorted for determinism.
func FromAny(v interface{}) (Value, error) {
	return fromAny(v, 0)
}

func fromAny(v interface{}, line int) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case map[string]interface{}:
		if l, ok := val[LineKey]; ok {
			n, ok := asInt(l)
			if !ok {
				return nil, fmt.Errorf("%s must be an integer, got %T", LineKey, l)
			}
			line = n
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			if k != LineKey {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		m := NewMapping(line)
		for _, k := range keys {
			child, err := fromAny(val[k], line)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			if err := m.Set(k, child, child.Line()); err != nil {
				return nil, err
			}
		}
		return m, nil
	case []interface{}:
		items := make([]Value, len(val))
		for i, item := range val {
			child, err := fromAny(item, line)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = child
		}
		return NewSequence(line, items...), nil
	case nil, string, bool, float64, int64:
		return NewScalar(line, val), nil
	case float32:
		return NewScalar(line, float64(val)), nil
	}
	if n, ok := asInt(v); ok {
		return NewScalar(line, int64(n)), nil
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	}
	return 0, false
}
