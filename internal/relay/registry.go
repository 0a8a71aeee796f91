package relay

import (
	"cmp"
	"slices"
	"sync"
)

// Registry is the synchronized set of open peers, keyed by id. The backing
// map never leaves the registry; readers get copies.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

// Add registers p and marks it open. It fails with *DuplicateIDError when
// the id is taken and with ErrPeerClosed when p already started closing.
func (r *Registry) Add(p *Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.peers[p.ID()]; exists {
		return &DuplicateIDError{ID: p.ID()}
	}
	if !p.advance(StateOpen) {
		return ErrPeerClosed
	}
	r.peers[p.ID()] = p
	return nil
}

// Remove deletes the peer registered under id. Removing an absent id is a
// no-op; the return value reports whether anything was removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	return true
}

// discard removes p only if it is still the peer registered under its id,
// so a late cleanup never evicts a newer connection from the same address.
func (r *Registry) discard(p *Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.peers[p.ID()]; !ok || cur != p {
		return false
	}
	delete(r.peers, p.ID())
	return true
}

// Get returns the peer registered under id.
func (r *Registry) Get(id string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.peers[id]
	return p, ok
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot returns the registered peers except the one with id excluding,
// ordered by connection time. The slice is a private copy: later Add and
// Remove calls do not affect it.
func (r *Registry) Snapshot(excluding string) []*Peer {
	r.mu.RLock()
	peers := make([]*Peer, 0, len(r.peers))
	for id, p := range r.peers {
		if id == excluding {
			continue
		}
		peers = append(peers, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(peers, func(a, b *Peer) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return peers
}

// drain empties the registry and returns everything it held.
func (r *Registry) drain() []*Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make([]*Peer, 0, len(r.peers))
	for id, p := range r.peers {
		peers = append(peers, p)
		delete(r.peers, id)
	}
	return peers
}
