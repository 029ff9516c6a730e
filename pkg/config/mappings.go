package config

import (
	"fmt"
	"sort"
	"sync"
)

// Handler turns a loaded node into an application object.
type Handler func(n *Node) (interface{}, error)

// Mappings associates type names with handlers.
type Mappings struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewMappings creates an empty mapping set.
func NewMappings() *Mappings {
	return &Mappings{handlers: make(map[string]Handler)}
}

// Register binds typeName to h. A name can be bound once.
func (m *Mappings) Register(typeName string, h Handler) error {
	if typeName == "" {
		return fmt.Errorf("type name is required")
	}
	if h == nil {
		return fmt.Errorf("handler for '%s' is nil", typeName)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.handlers[typeName]; exists {
		return fmt.Errorf("a handler for '%s' is already registered", typeName)
	}
	m.handlers[typeName] = h
	return nil
}

// Lookup returns the handler bound to typeName.
func (m *Mappings) Lookup(typeName string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[typeName]
	return h, ok
}

// Names returns the bound type names, sorted.
func (m *Mappings) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandlerFor returns the handler of the node's governing definition, trying
// the definition name and then the type it refers to.
func (m *Mappings) HandlerFor(n *Node) (Handler, bool) {
	def := n.Definition()
	if def == nil {
		return nil, false
	}
	if h, ok := m.Lookup(def.Name); ok {
		return h, true
	}
	return m.Lookup(def.BaseType)
}

// Apply runs the handler of n.
func (m *Mappings) Apply(n *Node) (interface{}, error) {
	h, ok := m.HandlerFor(n)
	if !ok {
		return nil, fmt.Errorf("no handler for '%s' of type '%s'", n.Identifier(), n.TypeName())
	}
	return h(n)
}
