package workflow

import "sync"

// Registry hands out one Orchestrator per user session. Workflows of one
// session are serialized by that Orchestrator; different sessions never
// block each other.
type Registry struct {
	newFn func(sessionID string) *Orchestrator

	mu    sync.Mutex
	byKey map[string]*Orchestrator
}

// NewRegistry creates a Registry that builds orchestrators with newFn.
func NewRegistry(newFn func(sessionID string) *Orchestrator) *Registry {
	return &Registry{newFn: newFn, byKey: make(map[string]*Orchestrator)}
}

// For returns the Orchestrator for sessionID, creating it on first use.
func (r *Registry) For(sessionID string) *Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byKey[sessionID]
	if !ok {
		o = r.newFn(sessionID)
		r.byKey[sessionID] = o
	}
	return o
}

// Drop forgets the Orchestrator for sessionID, typically after logout.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, sessionID)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}
