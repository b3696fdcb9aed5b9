// Package signaling relays opaque call-setup payloads between users over a
// per-user signaling slot.
package signaling

import (
	"sync"
)

// Peer is one deliverable signaling connection.
type Peer interface {
	Deliver(payload []byte) error
}

// Registry binds each user id to at most one live signaling connection.
// A new registration for the same id replaces the old one
// (last-writer-wins); the replaced connection is abandoned, not closed.
type Registry struct {
	mu    sync.RWMutex
	slots map[int64]Peer
}

func NewRegistry() *Registry {
	return &Registry{
		slots: make(map[int64]Peer),
	}
}

func (r *Registry) Register(userID int64, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[userID] = p
}

// Unregister clears the slot only if it is still bound to p, so a
// replaced connection's late teardown cannot evict its successor.
func (r *Registry) Unregister(userID int64, p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots[userID] == p {
		delete(r.slots, userID)
	}
}

// Relay forwards payload verbatim to the recipient's slot. Returns false
// when the recipient has no live connection or its buffer is gone; that
// is an expected outcome, not an error.
func (r *Registry) Relay(recipientID int64, payload []byte) bool {
	r.mu.RLock()
	p, ok := r.slots[recipientID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return p.Deliver(payload) == nil
}
