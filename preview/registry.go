package preview

import "sync"

// Registry holds modules in registration order, keyed by unique name.
type Registry struct {
	mu      sync.RWMutex
	modules []*Module
	byName  map[string]*Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Module)}
}

// Define registers m unless a module with the same name exists, in which
// case it does nothing. Returns whether m was added.
func (r *Registry) Define(m *Module) bool {
	if m == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[m.Name]; ok {
		return false
	}
	r.byName[m.Name] = m
	r.modules = append(r.modules, m)
	return true
}

// Find returns a snapshot of the registered module called name. Use Enable
// and Disable to change the registered module.
func (r *Registry) Find(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// EnabledList returns snapshots of the enabled modules in registration order.
func (r *Registry) EnabledList() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var enabled []*Module
	for _, m := range r.modules {
		if m.Enabled {
			enabled = append(enabled, m.Clone())
		}
	}
	return enabled
}

// List returns snapshots of every module in registration order.
func (r *Registry) List() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		all = append(all, m.Clone())
	}
	return all
}

// Enable turns a module on. Unknown names are ignored.
func (r *Registry) Enable(name string) {
	r.setEnabled(name, true)
}

// Disable turns a module off. Unknown names are ignored.
func (r *Registry) Disable(name string) {
	r.setEnabled(name, false)
}

func (r *Registry) setEnabled(name string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byName[name]; ok {
		m.Enabled = enabled
	}
}
