package protocol

import (
	"strings"
	"testing"

	"github.com/oskarlindberg/agentcore/internal/mesh/identity"
)

func TestRosterResolvesByIDAndName(t *testing.T) {
	r := NewRoster()
	r.Upsert(RosterEntry{PeerID: "abc123", Card: AgentCard{Name: "alice"}, Address: "10.0.0.1:9000"})

	byID, err := r.Resolve("abc123")
	if err != nil || byID.Address != "10.0.0.1:9000" {
		t.Fatalf("Resolve by id: %v, %+v", err, byID)
	}

	byName, err := r.Resolve("alice")
	if err != nil || byName.PeerID != identity.PeerID("abc123") {
		t.Fatalf("Resolve by name: %v, %+v", err, byName)
	}
}

func TestRosterResolveUnknownListsKnownPeers(t *testing.T) {
	r := NewRoster()
	r.Upsert(RosterEntry{PeerID: "abc123", Card: AgentCard{Name: "alice"}})

	_, err := r.Resolve("nobody")
	if err == nil {
		t.Fatal("expected an error for an unknown peer")
	}
	if !strings.Contains(err.Error(), "alice") {
		t.Fatalf("expected error to list known peers, got: %v", err)
	}
}

func TestRosterRemove(t *testing.T) {
	r := NewRoster()
	r.Upsert(RosterEntry{PeerID: "abc123", Card: AgentCard{Name: "alice"}})
	r.Remove("abc123")

	if _, err := r.Resolve("abc123"); err == nil {
		t.Fatal("expected removed peer to be unresolvable")
	}
	if _, err := r.Resolve("alice"); err == nil {
		t.Fatal("expected removed peer's name to be unresolvable too")
	}
}
