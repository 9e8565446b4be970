package chat

import (
	"sync"
)

// Registry is the process-local map of live clients. Owned exclusively by
// this gateway; must tolerate concurrent register/unregister/deliver from
// many connection goroutines.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*Client // user -> conn_id -> client
	byConn map[string]*Client            // conn_id -> client
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]map[string]*Client),
		byConn: make(map[string]*Client),
	}
}

func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byUser[c.UserID]
	if m == nil {
		m = make(map[string]*Client)
		r.byUser[c.UserID] = m
	}
	m[c.ConnID] = c
	r.byConn[c.ConnID] = c
}

func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m := r.byUser[c.UserID]; m != nil {
		delete(m, c.ConnID)
		if len(m) == 0 {
			delete(r.byUser, c.UserID)
		}
	}
	delete(r.byConn, c.ConnID)
}

// IsLocal reports whether the user has at least one live connection here.
func (r *Registry) IsLocal(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// ListByUser snapshots the user's clients for delivery outside the lock.
func (r *Registry) ListByUser(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[userID]
	if len(m) == 0 {
		return nil
	}
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// Deliver queues the payload on every connection the user holds here.
// Returns false when the user is not locally present or every queue
// rejected the frame; a failed send never propagates to the caller.
func (r *Registry) Deliver(userID string, payload []byte) bool {
	delivered := false
	for _, c := range r.ListByUser(userID) {
		if c.Enqueue(payload) {
			delivered = true
		}
	}
	return delivered
}

// Len reports the number of live connections (diagnostics).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
