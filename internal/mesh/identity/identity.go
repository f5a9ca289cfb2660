// Package identity manages a node's persistent Ed25519 keypair and the
// PeerId derived from it, per spec §4.G.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// PeerID is the hex encoding of a node's Ed25519 public key. The spec names
// base58 as one option for the on-wire string form; no base58 library is
// available anywhere in this module's dependency surface, so hex is used
// instead — it is equally suitable for uniqueness and lookup, just more
// characters wide.
type PeerID string

func peerIDFromPublicKey(pub ed25519.PublicKey) PeerID {
	return PeerID(hex.EncodeToString(pub))
}

// Identity is a node's long-lived keypair and derived PeerID.
type Identity struct {
	ID         PeerID
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Generate creates a fresh random identity without persisting it.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return &Identity{ID: peerIDFromPublicKey(pub), PublicKey: pub, PrivateKey: priv}, nil
}

// LoadOrCreate reads a persisted private key from path, or generates and
// writes a new one if path does not exist. The file holds the raw 64-byte
// ed25519.PrivateKey seed+public-key encoding.
func LoadOrCreate(path string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("identity file %s: expected %d bytes, got %d", path, ed25519.PrivateKeySize, len(raw))
		}
		priv := ed25519.PrivateKey(raw)
		pub := priv.Public().(ed25519.PublicKey)
		return &Identity{ID: peerIDFromPublicKey(pub), PublicKey: pub, PrivateKey: priv}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read identity file %s: %w", path, err)
	}

	id, genErr := Generate()
	if genErr != nil {
		return nil, genErr
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create identity directory: %w", err)
	}
	if err := os.WriteFile(path, id.PrivateKey, 0o600); err != nil {
		return nil, fmt.Errorf("write identity file %s: %w", path, err)
	}
	return id, nil
}
