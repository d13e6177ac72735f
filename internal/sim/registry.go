package sim

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds registered simulation engines by name.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Simulator
}

// NewRegistry creates an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Simulator),
	}
}

// DefaultRegistry returns a registry with the builtin engine registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewBuiltin())
	return r
}

// Register adds an engine to the registry under its own name.
func (r *Registry) Register(s Simulator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[s.Name()] = s
}

// Resolve returns the engine registered under the given name.
func (r *Registry) Resolve(name string) (Simulator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("simulation engine %q is not registered", name)
	}
	return s, nil
}

// List returns the registered engine names, sorted for stable output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
