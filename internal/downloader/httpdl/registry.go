package httpdl

import "sync"

// Registry maps download ids to their current handle. A handle is kept after
// pause, completion or failure so its stream can be reused on resume; it is
// removed only on cancel.
type Registry struct {
	mu sync.RWMutex
	m  map[string]*Handle
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]*Handle)}
}

// Register installs h under id, replacing an inert handle atomically. It
// refuses, returning the current handle, when that handle is still active.
func (r *Registry) Register(id string, h *Handle) (prev *Handle, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev = r.m[id]
	if prev != nil && prev.Active() {
		return prev, false
	}
	r.m[id] = h
	return prev, true
}

func (r *Registry) Lookup(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.m[id]
	return h, ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.m, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// ActiveCount is the number of handles with a running attempt.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, h := range r.handles() {
		if h.Active() {
			n++
		}
	}
	return n
}

func (r *Registry) handles() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, 0, len(r.m))
	for _, h := range r.m {
		out = append(out, h)
	}
	return out
}
