// Package transcript is a thin wrapper around the running handshake-
// message hash (spec.md §3 "transcript", §6 get_handshake_transcript).
// Grounded in mint's direct use of a hash.Hash field updated by
// handshakeHash.Write(hm.Marshal()) at every state transition
// (client-state-machine.go).
package transcript

import (
	"crypto"
	"hash"
)

// Transcript accumulates the serialized bytes of every handshake message
// seen so far, hashed with the negotiated ciphersuite's hash algorithm.
type Transcript struct {
	alg crypto.Hash
	h   hash.Hash
}

// New starts an empty transcript for the given hash algorithm.
func New(alg crypto.Hash) *Transcript {
	return &Transcript{alg: alg, h: alg.New()}
}

// Write feeds a handshake message's wire bytes (header included) into
// the running hash. Never returns a short write or error: hash.Hash.Write
// is defined never to do either.
func (t *Transcript) Write(msg []byte) {
	t.h.Write(msg)
}

// Sum returns the current transcript hash without consuming it, so
// further messages can still be appended (spec.md §6
// get_handshake_transcript returns a length but the same running state
// is reused for the next stage).
func (t *Transcript) Sum() []byte {
	return t.h.Sum(nil)
}

// Reset discards all accumulated state, used when HRR requires replacing
// the first ClientHello with its "message hash" pseudo-message (RFC 8446
// §4.4.1): the caller writes a message-hash record of the old transcript
// into the fresh Transcript via Write, then continues normally.
func (t *Transcript) Reset() {
	t.h = t.alg.New()
}

// HashAlg returns the configured hash algorithm.
func (t *Transcript) HashAlg() crypto.Hash { return t.alg }
