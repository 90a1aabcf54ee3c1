package connector

import (
	"slices"
	"sync"
)

// Registry maps node ids to their currently mounted elements. The host owns
// it: entries are bound when a card mounts and unbound when it unmounts.
// The geometry engine only reads it.
type Registry struct {
	mu  sync.RWMutex
	els map[int64]Element
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{els: make(map[int64]Element)}
}

// Bind records el as the element for id. A nil element unbinds id.
func (r *Registry) Bind(id int64, el Element) {
	if el == nil {
		r.Unbind(id)
		return
	}
	r.mu.Lock()
	r.els[id] = el
	r.mu.Unlock()
}

// Unbind forgets the element for id, if any.
func (r *Registry) Unbind(id int64) {
	r.mu.Lock()
	delete(r.els, id)
	r.mu.Unlock()
}

// Ref returns a callback suitable for a mount hook: called with the mounted
// element it binds, called with nil it unbinds.
func (r *Registry) Ref(id int64) func(Element) {
	return func(el Element) { r.Bind(id, el) }
}

// Lookup implements Lookup.
func (r *Registry) Lookup(id int64) (Element, bool) {
	r.mu.RLock()
	el, ok := r.els[id]
	r.mu.RUnlock()
	return el, ok
}

// Len returns the number of mounted elements.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.els)
}

// IDs returns the mounted ids in ascending order.
func (r *Registry) IDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.els))
	for id := range r.els {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Elements returns the mounted elements ordered by id.
func (r *Registry) Elements() []Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.els))
	for id := range r.els {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Element, len(ids))
	for i, id := range ids {
		out[i] = r.els[id]
	}
	return out
}
