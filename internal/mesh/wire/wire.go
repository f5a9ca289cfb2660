// Package wire implements the P2P on-the-wire framing of spec §4.G/§6:
// CBOR-encoded payloads with a 4-byte big-endian length prefix, capped at
// 8 MiB per frame.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// MaxFrameSize is the hard cap on one frame's payload, per spec §4.G/§6.
const MaxFrameSize = 8 * 1024 * 1024

var errOversizedFrame = fmt.Errorf("wire: frame exceeds %d byte cap", MaxFrameSize)

// WriteFrame CBOR-encodes v and writes it to w as a 4-byte big-endian
// length prefix followed by the payload.
func WriteFrame(w io.Writer, v any) error {
	payload, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encode: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return errOversizedFrame
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed CBOR frame from r and decodes it
// into v. A frame whose declared length exceeds MaxFrameSize is rejected
// without reading its payload.
func ReadFrame(r io.Reader, v any) error {
	payload, err := ReadRawFrame(r)
	if err != nil {
		return err
	}
	if err := cbor.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("wire: decode: %w", err)
	}
	return nil
}

// WriteRawFrame writes payload as a length-prefixed frame with no CBOR
// encoding step, used by the transport layer to send both raw Noise
// handshake messages and already-encrypted application payloads.
func WriteRawFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return errOversizedFrame
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// ReadRawFrame reads one length-prefixed frame and returns its raw bytes
// without CBOR-decoding them.
func ReadRawFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("wire: read length prefix: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, errOversizedFrame
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: read payload: %w", err)
	}
	return payload, nil
}
