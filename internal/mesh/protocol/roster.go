package protocol

import (
	"fmt"
	"sync"

	"github.com/oskarlindberg/agentcore/internal/mesh/identity"
)

// RosterEntry is one known peer: its identity, last-announced AgentCard,
// and dial address (set by discovery, empty for a peer we only ever
// received an inbound connection from).
type RosterEntry struct {
	PeerID  identity.PeerID
	Card    AgentCard
	Address string
}

// Roster tracks every peer this node has announced-to, been announced by,
// or discovered, keyed by PeerID and by display name for the
// resolve-by-name-or-id lookup spec §4.G's delegation flow requires.
type Roster struct {
	mu      sync.RWMutex
	byID    map[identity.PeerID]*RosterEntry
	byName  map[string]identity.PeerID
}

func NewRoster() *Roster {
	return &Roster{
		byID:   make(map[identity.PeerID]*RosterEntry),
		byName: make(map[string]identity.PeerID),
	}
}

// Upsert records or refreshes a roster entry.
func (r *Roster) Upsert(entry RosterEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[entry.PeerID] = &entry
	if entry.Card.Name != "" {
		r.byName[entry.Card.Name] = entry.PeerID
	}
}

// Remove drops a peer from the roster, e.g. after a connection is lost.
func (r *Roster) Remove(id identity.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byID[id]; ok && e.Card.Name != "" {
		delete(r.byName, e.Card.Name)
	}
	delete(r.byID, id)
}

// Resolve finds a peer by its PeerID (hex) first, then by display name,
// per spec §4.G's "resolve peer by name or base58 id" step. Returns a
// descriptive error listing every known peer when nameOrID matches
// nothing, so the caller can surface it straight back to the model.
func (r *Roster) Resolve(nameOrID string) (*RosterEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.byID[identity.PeerID(nameOrID)]; ok {
		return e, nil
	}
	if id, ok := r.byName[nameOrID]; ok {
		return r.byID[id], nil
	}

	return nil, fmt.Errorf("unknown peer %q; known peers: %s", nameOrID, r.summary())
}

func (r *Roster) summary() string {
	if len(r.byID) == 0 {
		return "(none discovered yet)"
	}
	names := make([]string, 0, len(r.byID))
	for id, e := range r.byID {
		label := string(id)
		if e.Card.Name != "" {
			label = e.Card.Name
		}
		names = append(names, label)
	}
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}

// List returns every known roster entry.
func (r *Roster) List() []RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RosterEntry, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, *e)
	}
	return out
}
