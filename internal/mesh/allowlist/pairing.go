package allowlist

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/oskarlindberg/agentcore/internal/mesh/identity"
)

// pairingCodeBytes sizes the random one-time code an operator reads off one
// node and types into the other to bootstrap trust between two peers that
// have never exchanged PeerIDs out of band.
const pairingCodeBytes = 10

// PendingPairing is a single outstanding pairing offer: a bcrypt hash of the
// one-time code, and the role the admitted peer will receive if it proves
// knowledge of that code before the offer is claimed or replaced.
type PendingPairing struct {
	hash []byte
	role Role
}

// Pairings holds outstanding pairing offers, keyed by an opaque offer ID the
// operator shares alongside the code (e.g. "scan this code on both ends").
// Safe for concurrent use.
type Pairings struct {
	mu      sync.Mutex
	pending map[string]PendingPairing
}

func NewPairings() *Pairings {
	return &Pairings{pending: make(map[string]PendingPairing)}
}

// Offer generates a random pairing code, bcrypt-hashes it, and stores the
// offer under offerID, replacing any earlier offer with that ID. It returns the plaintext code for the
// operator to relay out of band; the code itself is never stored.
func (p *Pairings) Offer(offerID string, role Role) (code string, err error) {
	raw := make([]byte, pairingCodeBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	code = strings.TrimRight(base32.StdEncoding.EncodeToString(raw), "=")

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.pending[offerID] = PendingPairing{hash: hash, role: role}
	p.mu.Unlock()
	return code, nil
}

// ErrPairingNotFound means offerID has no outstanding offer, either because
// it was never created or because it was already claimed.
var ErrPairingNotFound = errors.New("allowlist: no pairing offer with that id")

// ErrPairingCodeMismatch means the supplied code does not match the hash
// stored for offerID; the offer is left in place so the peer may retry.
var ErrPairingCodeMismatch = errors.New("allowlist: pairing code does not match")

// Admit verifies code against the offer stored under offerID and, on
// success, grants peer the offer's role in allow and consumes the offer
// so it cannot be replayed against a second peer.
func (p *Pairings) Admit(allow *Allowlist, offerID string, code string, peer identity.PeerID) error {
	p.mu.Lock()
	offer, ok := p.pending[offerID]
	p.mu.Unlock()
	if !ok {
		return ErrPairingNotFound
	}
	if err := bcrypt.CompareHashAndPassword(offer.hash, []byte(code)); err != nil {
		return ErrPairingCodeMismatch
	}

	p.mu.Lock()
	if _, still := p.pending[offerID]; !still {
		p.mu.Unlock()
		return ErrPairingNotFound
	}
	delete(p.pending, offerID)
	p.mu.Unlock()

	allow.Set(peer, offer.role)
	return nil
}
