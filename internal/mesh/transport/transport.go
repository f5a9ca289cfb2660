// Package transport implements spec §4.G's secure channel: TCP carrying a
// Noise XX handshake (ChaCha20-Poly1305 AEAD), with identity bound to the
// handshake by a post-handshake signed challenge so the negotiated Noise
// static key can't be reused to impersonate a different PeerID.
package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"

	"github.com/flynn/noise"
	"github.com/fxamacker/cbor/v2"

	"github.com/oskarlindberg/agentcore/internal/mesh/identity"
	"github.com/oskarlindberg/agentcore/internal/mesh/wire"
)

func cborMarshal(v any) ([]byte, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("transport: encode: %w", err)
	}
	return b, nil
}

func cborUnmarshal(b []byte, v any) error {
	if err := cbor.Unmarshal(b, v); err != nil {
		return fmt.Errorf("transport: decode: %w", err)
	}
	return nil
}

func encodeIdentify(msg identifyMessage) ([]byte, error) { return cborMarshal(msg) }

func decodeIdentify(b []byte) (identifyMessage, error) {
	var msg identifyMessage
	err := cborUnmarshal(b, &msg)
	return msg, err
}

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// GenerateNoiseKeypair creates a fresh X25519 keypair for the Noise
// handshake. This is independent of a node's long-term Ed25519 identity
// key; the two are bound together by the post-handshake Identify exchange.
func GenerateNoiseKeypair() (noise.DHKey, error) {
	return cipherSuite.GenerateKeypair(rand.Reader)
}

// identifyMessage is exchanged once immediately after the Noise handshake
// completes: each side proves it owns the Ed25519 private key behind its
// claimed PeerID by signing the Noise static public key it presented
// during the handshake.
type identifyMessage struct {
	PeerID    string
	Signature []byte
}

// Conn is an authenticated, encrypted connection to one peer, established
// by Handshake.
type Conn struct {
	net.Conn
	enc          *noise.CipherState
	dec          *noise.CipherState
	RemotePeerID identity.PeerID
}

// Handshake runs the Noise XX pattern over conn (as initiator or
// responder) followed by the identity-binding Identify exchange, and
// returns an authenticated Conn. The caller is responsible for consulting
// an allowlist with the returned RemotePeerID; per spec §4.G the
// handshake itself always completes even for a peer that will later be
// rejected by authorization.
func Handshake(conn net.Conn, initiator bool, localNoiseKey noise.DHKey, localID *identity.Identity) (*Conn, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: localNoiseKey,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: new handshake state: %w", err)
	}

	var enc, dec *noise.CipherState
	if initiator {
		enc, dec, err = runInitiatorHandshake(conn, hs)
	} else {
		enc, dec, err = runResponderHandshake(conn, hs)
	}
	if err != nil {
		return nil, err
	}

	remotePeerID, err := identifyPeer(conn, enc, dec, initiator, localID, localNoiseKey.Public, hs.PeerStatic())
	if err != nil {
		return nil, err
	}

	return &Conn{Conn: conn, enc: enc, dec: dec, RemotePeerID: remotePeerID}, nil
}

func runInitiatorHandshake(conn net.Conn, hs *noise.HandshakeState) (enc, dec *noise.CipherState, err error) {
	// -> e
	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: write e: %w", err)
	}
	if err := wire.WriteRawFrame(conn, msg); err != nil {
		return nil, nil, err
	}

	// <- e, ee, s, es
	resp, err := wire.ReadRawFrame(conn)
	if err != nil {
		return nil, nil, err
	}
	if _, _, _, err := hs.ReadMessage(nil, resp); err != nil {
		return nil, nil, fmt.Errorf("transport: read e,ee,s,es: %w", err)
	}

	// -> s, se
	msg, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: write s,se: %w", err)
	}
	if err := wire.WriteRawFrame(conn, msg); err != nil {
		return nil, nil, err
	}
	return cs1, cs2, nil
}

func runResponderHandshake(conn net.Conn, hs *noise.HandshakeState) (enc, dec *noise.CipherState, err error) {
	// <- e
	msg, err := wire.ReadRawFrame(conn)
	if err != nil {
		return nil, nil, err
	}
	if _, _, _, err := hs.ReadMessage(nil, msg); err != nil {
		return nil, nil, fmt.Errorf("transport: read e: %w", err)
	}

	// -> e, ee, s, es
	resp, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: write e,ee,s,es: %w", err)
	}
	if err := wire.WriteRawFrame(conn, resp); err != nil {
		return nil, nil, err
	}

	// <- s, se
	final, err := wire.ReadRawFrame(conn)
	if err != nil {
		return nil, nil, err
	}
	_, cs1, cs2, err := hs.ReadMessage(nil, final)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: read s,se: %w", err)
	}
	// Responder's cipher states come back swapped relative to the
	// initiator's: cs1 encrypts initiator->responder, cs2 the reverse.
	return cs2, cs1, nil
}

// identifyPeer runs the post-handshake Identify exchange: each side signs
// the Noise static public key it presented during the handshake with its
// long-term Ed25519 identity key, certifying "this identity vouches for
// this Noise static key" so a connection can't be attributed to the wrong
// PeerID even though Noise XX itself only authenticates the static key,
// not any higher-level identity.
func identifyPeer(conn net.Conn, enc, dec *noise.CipherState, initiator bool, localID *identity.Identity, localNoiseStatic, remoteNoiseStatic []byte) (identity.PeerID, error) {
	ours := identifyMessage{
		PeerID:    string(localID.ID),
		Signature: ed25519.Sign(localID.PrivateKey, localNoiseStatic),
	}

	var theirs identifyMessage
	var sendErr, recvErr error
	if initiator {
		sendErr = sendIdentify(conn, enc, ours)
		theirs, recvErr = recvIdentify(conn, dec)
	} else {
		theirs, recvErr = recvIdentify(conn, dec)
		sendErr = sendIdentify(conn, enc, ours)
	}
	if sendErr != nil {
		return "", sendErr
	}
	if recvErr != nil {
		return "", recvErr
	}

	peerID := identity.PeerID(theirs.PeerID)
	pubKey, err := hex.DecodeString(theirs.PeerID)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("transport: malformed peer id %q", theirs.PeerID)
	}
	if !ed25519.Verify(ed25519.PublicKey(pubKey), remoteNoiseStatic, theirs.Signature) {
		return "", fmt.Errorf("transport: identify signature verification failed for peer %s", peerID)
	}
	return peerID, nil
}

func sendIdentify(conn net.Conn, enc *noise.CipherState, msg identifyMessage) error {
	plain, err := encodeIdentify(msg)
	if err != nil {
		return err
	}
	ciphertext := enc.Encrypt(nil, nil, plain)
	return wire.WriteRawFrame(conn, ciphertext)
}

func recvIdentify(conn net.Conn, dec *noise.CipherState) (identifyMessage, error) {
	ciphertext, err := wire.ReadRawFrame(conn)
	if err != nil {
		return identifyMessage{}, err
	}
	plain, err := dec.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return identifyMessage{}, fmt.Errorf("transport: decrypt identify: %w", err)
	}
	return decodeIdentify(plain)
}

// Send CBOR-encodes v, encrypts it, and writes it as one length-prefixed
// frame.
func (c *Conn) Send(v any) error {
	plain, err := cborMarshal(v)
	if err != nil {
		return err
	}
	ciphertext := c.enc.Encrypt(nil, nil, plain)
	return wire.WriteRawFrame(c.Conn, ciphertext)
}

// Recv reads one length-prefixed frame, decrypts it, and CBOR-decodes it
// into v.
func (c *Conn) Recv(v any) error {
	ciphertext, err := wire.ReadRawFrame(c.Conn)
	if err != nil {
		return err
	}
	plain, err := c.dec.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return fmt.Errorf("transport: decrypt: %w", err)
	}
	return cborUnmarshal(plain, v)
}
