package bridge

import "sync"

// Registry maps recording ids to their live bridges.
type Registry struct {
	mu      sync.RWMutex
	bridges map[string]*Bridge
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{bridges: make(map[string]*Bridge)}
}

// Register adds b under its recording id, replacing any previous entry.
func (r *Registry) Register(b *Bridge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridges[b.ID()] = b
}

// Unregister removes the bridge for id and returns it.
func (r *Registry) Unregister(id string) (*Bridge, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bridges[id]
	delete(r.bridges, id)
	return b, ok
}

// Lookup returns the bridge for id.
func (r *Registry) Lookup(id string) (*Bridge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bridges[id]
	return b, ok
}

// Len returns the number of registered bridges.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bridges)
}
