package node

import (
	"fmt"
	"slices"
	"sync"
	"weak"

	"github.com/Carmen-Shannon/oxy-graph/engine/renderer"
)

// Manager indexes templates by kind, by name and by insertion order. It holds them weakly:
// a template whose owner drops it disappears from every lookup after the next collection.
type Manager struct {
	mu     sync.Mutex
	byKind map[KindID]weak.Pointer[Template]
	byName map[string]weak.Pointer[Template]
	order  []weak.Pointer[Template]
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		byKind: make(map[KindID]weak.Pointer[Template]),
		byName: make(map[string]weak.Pointer[Template]),
	}
}

// Insert registers t, replacing any template with the same name. Kind lookups resolve to
// the most recently inserted template of that kind; earlier ones stay reachable by name and
// index, which is how the per-cascade shadow mappers coexist.
//
// Parameters:
//   - t: the template; the caller keeps it alive
func (m *Manager) Insert(t *Template) {
	wp := weak.Make(t)
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.byName[t.name]; ok {
		m.drop(prev)
	}
	m.byKind[t.kind] = wp
	m.byName[t.name] = wp
	m.order = append(m.order, wp)
}

// drop removes every index entry of wp. Callers hold m.mu.
func (m *Manager) drop(wp weak.Pointer[Template]) {
	m.order = slices.DeleteFunc(m.order, func(o weak.Pointer[Template]) bool { return o == wp })
	for k, v := range m.byKind {
		if v == wp {
			delete(m.byKind, k)
		}
	}
	for k, v := range m.byName {
		if v == wp {
			delete(m.byName, k)
		}
	}
}

// Template returns the live template of kind.
func (m *Manager) Template(kind KindID) (*Template, bool) {
	m.mu.Lock()
	wp, ok := m.byKind[kind]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	t := wp.Value()
	return t, t != nil
}

// ByKind instantiates the most recent template of kind.
//
// Parameters:
//   - kind: the node kind
//   - r: the renderer the instance is bound to
//
// Returns:
//   - *Instance: the new instance
//   - error: ErrUnknownTemplate, or an instantiation error
func (m *Manager) ByKind(kind KindID, r renderer.Renderer) (*Instance, error) {
	m.mu.Lock()
	wp, ok := m.byKind[kind]
	m.mu.Unlock()
	return m.instantiate(wp, ok, fmt.Sprintf("kind %d", kind), r)
}

// ByName instantiates the template called name.
func (m *Manager) ByName(name string, r renderer.Renderer) (*Instance, error) {
	m.mu.Lock()
	wp, ok := m.byName[name]
	m.mu.Unlock()
	return m.instantiate(wp, ok, fmt.Sprintf("name %q", name), r)
}

// ByIndex instantiates the index-th live template in insertion order.
func (m *Manager) ByIndex(index int, r renderer.Renderer) (*Instance, error) {
	m.mu.Lock()
	m.prune()
	var wp weak.Pointer[Template]
	ok := index >= 0 && index < len(m.order)
	if ok {
		wp = m.order[index]
	}
	m.mu.Unlock()
	return m.instantiate(wp, ok, fmt.Sprintf("index %d", index), r)
}

func (m *Manager) instantiate(wp weak.Pointer[Template], ok bool, what string, r renderer.Renderer) (*Instance, error) {
	var t *Template
	if ok {
		t = wp.Value()
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, what)
	}
	return t.Instantiate(r)
}

// Len returns the number of live templates.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune()
	return len(m.order)
}

// prune drops collected templates. Callers hold m.mu.
func (m *Manager) prune() {
	for _, wp := range slices.Clone(m.order) {
		if wp.Value() == nil {
			m.drop(wp)
		}
	}
}
