package peer

import (
	"sync"
	"time"
)

// Info is what the registry keeps about a connected peer.
type Info struct {
	ID          ID
	Addr        string
	ConnectedAt time.Time
	LastSeen    time.Time
}

// Registry tracks the peers the node currently knows about. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	peers map[ID]Info
}

func NewRegistry() *Registry {
	return &Registry{
		peers: make(map[ID]Info),
	}
}

// Add inserts the peer and reports whether it was not present before.
// Re-adding a known peer only refreshes its address and last-seen time.
func (r *Registry) Add(info Info) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if info.LastSeen.IsZero() {
		info.LastSeen = now
	}

	existing, ok := r.peers[info.ID]
	if ok {
		if info.Addr != "" {
			existing.Addr = info.Addr
		}
		existing.LastSeen = info.LastSeen
		r.peers[info.ID] = existing
		return false
	}

	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = now
	}
	r.peers[info.ID] = info
	return true
}

func (r *Registry) Remove(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.peers[id]
	delete(r.peers, id)
	return ok
}

func (r *Registry) Contains(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.peers[id]
	return ok
}

func (r *Registry) Get(id ID) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.peers[id]
	return info, ok
}

// Touch records activity from the peer. Unknown peers are ignored.
func (r *Registry) Touch(id ID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.peers[id]
	if !ok {
		return
	}
	info.LastSeen = at
	r.peers[id] = info
}

// List returns the known peers in no particular order.
func (r *Registry) List() []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]ID, 0, len(r.peers))
	for id := range r.peers {
		res = append(res, id)
	}
	return res
}

// Stale returns the peers not seen since cutoff.
func (r *Registry) Stale(cutoff time.Time) []ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]ID, 0)
	for id, info := range r.peers {
		if info.LastSeen.Before(cutoff) {
			res = append(res, id)
		}
	}
	return res
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.peers)
}
