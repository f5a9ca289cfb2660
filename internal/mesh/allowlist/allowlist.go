// Package allowlist implements spec §4.G's PeerId -> role authorization
// map: a peer not present is dropped post-handshake at the application
// layer (the Noise handshake itself still completes), and an Observer is
// restricted to a small read-only command set.
package allowlist

import (
	"sync"

	"github.com/oskarlindberg/agentcore/internal/mesh/identity"
)

// Role is a peer's authorization level.
type Role string

const (
	RoleOperator Role = "operator"
	RoleObserver Role = "observer"
)

// ObserverAllowedCommands is the command whitelist for RoleObserver, per
// spec §4.G: any other command returns a permission error.
var ObserverAllowedCommands = map[string]bool{
	"Subscribe":    true,
	"Unsubscribe":  true,
	"ListSessions": true,
}

// Allowlist maps PeerID -> Role, safe for concurrent use as peers are
// added/removed by an operator while connections are live.
type Allowlist struct {
	mu    sync.RWMutex
	roles map[identity.PeerID]Role
}

func New() *Allowlist {
	return &Allowlist{roles: make(map[identity.PeerID]Role)}
}

// Set grants peer the given role, overwriting any existing grant.
func (a *Allowlist) Set(peer identity.PeerID, role Role) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roles[peer] = role
}

// Remove revokes peer's authorization entirely.
func (a *Allowlist) Remove(peer identity.PeerID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.roles, peer)
}

// Role reports peer's role and whether it is present at all.
func (a *Allowlist) Role(peer identity.PeerID) (Role, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.roles[peer]
	return r, ok
}

// Authorize reports whether peer may invoke command, applying spec §4.G's
// rules: an unlisted peer is authorized for nothing; an Observer may only
// invoke the commands in ObserverAllowedCommands; an Operator may invoke
// anything.
func (a *Allowlist) Authorize(peer identity.PeerID, command string) bool {
	role, ok := a.Role(peer)
	if !ok {
		return false
	}
	switch role {
	case RoleOperator:
		return true
	case RoleObserver:
		return ObserverAllowedCommands[command]
	default:
		return false
	}
}
