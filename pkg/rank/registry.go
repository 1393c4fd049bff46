package rank

import "sync/atomic"

// Registry holds the active ladder. Readers never observe a partially
// rebuilt ladder.
type Registry struct {
	current atomic.Pointer[Ladder]
}

// NewRegistry returns a registry serving l.
func NewRegistry(l *Ladder) *Registry {
	r := &Registry{}
	r.current.Store(l)
	return r
}

// Ladder returns the active ladder.
func (r *Registry) Ladder() *Ladder {
	return r.current.Load()
}

// Swap replaces the active ladder and returns the previous one.
func (r *Registry) Swap(l *Ladder) *Ladder {
	return r.current.Swap(l)
}
