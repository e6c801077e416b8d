// Package ciphersuite is a minimal reference implementation of the
// "ciphersuite registry" spec.md §1 declares an external collaborator:
// the handshake core only needs a negotiated suite's transcript-hash
// algorithm, never its AEAD construction (sealing/opening is the record
// layer's job). Grounded in mint's cipherSuiteMap (crypto.go), trimmed to
// the three RFC 8446 §B.4 suites relevant to a from-scratch client.
package ciphersuite

import (
	"crypto"
	_ "crypto/sha256"
	_ "crypto/sha512"
)

// Info is everything the handshake core consults about a negotiated
// suite (spec.md §3 ciphersuite_info: "sets hash and AEAD" — AEAD
// selection itself belongs to the record layer, out of scope here).
type Info struct {
	ID   uint16
	Hash crypto.Hash
}

const (
	TLS_AES_128_GCM_SHA256       uint16 = 0x1301
	TLS_AES_256_GCM_SHA384       uint16 = 0x1302
	TLS_CHACHA20_POLY1305_SHA256 uint16 = 0x1303
)

var byID = map[uint16]Info{
	TLS_AES_128_GCM_SHA256:       {ID: TLS_AES_128_GCM_SHA256, Hash: crypto.SHA256},
	TLS_AES_256_GCM_SHA384:       {ID: TLS_AES_256_GCM_SHA384, Hash: crypto.SHA384},
	TLS_CHACHA20_POLY1305_SHA256: {ID: TLS_CHACHA20_POLY1305_SHA256, Hash: crypto.SHA256},
}

// Lookup resolves a TLS 1.3 ciphersuite codepoint.
func Lookup(id uint16) (Info, bool) {
	v, ok := byID[id]
	return v, ok
}

// IsTLS13 reports whether id names a suite from the TLS 1.3 registry
// this package knows, as opposed to a legacy TLS 1.2 suite the client
// may also have offered for downgrade compatibility.
func IsTLS13(id uint16) bool {
	_, ok := byID[id]
	return ok
}
