// Package groupset implements the named (EC)DHE group registry and the
// default key-exchange providers the handshake core consults through its
// narrow crypto interfaces (spec.md §6). Primitive key-exchange math is
// explicitly out of scope for the handshake core itself (spec.md §1); this
// package is the "external collaborator" that supplies it, the way
// mbedtls's ecdh.c lives outside ssl_tls13_client.c.
package groupset

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/hybrid"
)

// ID is an RFC 8446 / RFC 8422 NamedGroup value.
type ID uint16

// IDs this package can generate key shares for. X25519Kyber768Draft00 is
// the post-quantum hybrid codepoint used by the circl-backed group.
const (
	Secp256r1            ID = 0x0017
	Secp384r1            ID = 0x0018
	X25519               ID = 0x001D
	X25519Kyber768Draft00 ID = 0x6399
	FFDHE2048            ID = 0x0100 // finite-field group; see Kind
)

// Kind distinguishes ECDHE/hybrid-KEM groups (which this package can
// generate shares for) from finite-field DHE groups (which it cannot —
// spec.md §9's documented open question).
type Kind int

const (
	KindECDHE Kind = iota
	KindHybridKEM
	KindDHE
)

// Group is a registered named group plus the operations the key-share
// extension writer and the ServerHello key_share parser need.
type Group struct {
	ID   ID
	Kind Kind

	// generate produces an ephemeral share: the bytes to place on the
	// wire, and an opaque PrivateKey handle kept only by the caller.
	generate func() (share []byte, priv PrivateKey, err error)
	// derive computes the shared secret given our private handle and the
	// peer's wire-format public share.
	derive func(priv PrivateKey, peerShare []byte) ([]byte, error)
}

// PrivateKey is an opaque ephemeral private-key handle. Exactly one
// handle is live per handshake context at a time (spec.md §3's
// ecdh_private ownership rule); HRR destroys the old one before a new
// Generate call produces another.
type PrivateKey interface {
	// Destroy releases the underlying secret: the X25519 scalar is zeroed,
	// while NIST-curve and KEM keys are only dereferenced. Called on HRR
	// reset and at handshake end (spec.md §5 "Cancellation").
	Destroy()
}

// GenerateKeyShare runs g's ephemeral key generation.
func (g Group) GenerateKeyShare() (share []byte, priv PrivateKey, err error) {
	return g.generate()
}

// DeriveSecret runs g's shared-secret computation against a peer share.
func (g Group) DeriveSecret(priv PrivateKey, peerShare []byte) ([]byte, error) {
	return g.derive(priv, peerShare)
}

// byID is the registry consulted by Lookup and IsECDHECapable/IsDHE.
var byID = map[ID]Group{}

func register(g Group) { byID[g.ID] = g }

// Lookup returns the registered Group for id, or false if unregistered
// (e.g. a DHE codepoint this package does not implement).
func Lookup(id ID) (Group, bool) {
	g, ok := byID[id]
	return g, ok
}

// IsECDHECapable reports whether id names a group this package can
// actually generate a key share for (ECDHE or hybrid KEM).
func IsECDHECapable(id ID) bool {
	g, ok := byID[id]
	return ok && g.Kind != KindDHE
}

// IsDHE reports whether id names a finite-field DHE group. This package
// never implements DHE generation (spec.md §9 Open Question): any such
// group is recognized only so the handshake core can raise the correct
// internal error instead of silently misbehaving.
func IsDHE(id ID) bool {
	g, ok := byID[id]
	return ok && g.Kind == KindDHE
}

type x25519Priv struct{ scalar [32]byte }

func (p *x25519Priv) Destroy() {
	for i := range p.scalar {
		p.scalar[i] = 0
	}
}

func init() {
	register(Group{
		ID:   X25519,
		Kind: KindECDHE,
		generate: func() ([]byte, PrivateKey, error) {
			priv := &x25519Priv{}
			if _, err := rand.Read(priv.scalar[:]); err != nil {
				return nil, nil, fmt.Errorf("groupset: x25519 rand: %w", err)
			}
			pub, err := curve25519.X25519(priv.scalar[:], curve25519.Basepoint)
			if err != nil {
				return nil, nil, fmt.Errorf("groupset: x25519 basepoint mult: %w", err)
			}
			return pub, priv, nil
		},
		derive: func(priv PrivateKey, peerShare []byte) ([]byte, error) {
			p, ok := priv.(*x25519Priv)
			if !ok {
				return nil, fmt.Errorf("groupset: x25519 derive: wrong private key type")
			}
			if len(peerShare) != 32 {
				return nil, fmt.Errorf("groupset: x25519 peer share must be 32 bytes, got %d", len(peerShare))
			}
			return curve25519.X25519(p.scalar[:], peerShare)
		},
	})

	registerNISTCurve(Secp256r1, ecdh.P256())
	registerNISTCurve(Secp384r1, ecdh.P384())

	registerHybridKEM(X25519Kyber768Draft00, hybrid.Kyber768X25519())

	// FFDHE2048 is registered as a recognized-but-unimplemented DHE group
	// (spec.md §9 Open Question): IsDHE(FFDHE2048) reports true so the
	// handshake core's reset_key_share can raise alert.Internal instead
	// of silently treating an unknown group ID as "not found".
	register(Group{
		ID:   FFDHE2048,
		Kind: KindDHE,
		generate: func() ([]byte, PrivateKey, error) {
			return nil, nil, fmt.Errorf("groupset: finite-field DHE key exchange is not implemented")
		},
		derive: func(PrivateKey, []byte) ([]byte, error) {
			return nil, fmt.Errorf("groupset: finite-field DHE key exchange is not implemented")
		},
	})
}

type ecdhPriv struct{ key *ecdh.PrivateKey }

func (p *ecdhPriv) Destroy() {
	// crypto/ecdh keys carry no exported zeroing hook; dropping the only
	// reference and letting GC reclaim it is the best this package can
	// do without reaching into unexported fields.
	p.key = nil
}

func registerNISTCurve(id ID, curve ecdh.Curve) {
	register(Group{
		ID:   id,
		Kind: KindECDHE,
		generate: func() ([]byte, PrivateKey, error) {
			key, err := curve.GenerateKey(rand.Reader)
			if err != nil {
				return nil, nil, fmt.Errorf("groupset: nist curve keygen: %w", err)
			}
			return key.PublicKey().Bytes(), &ecdhPriv{key: key}, nil
		},
		derive: func(priv PrivateKey, peerShare []byte) ([]byte, error) {
			p, ok := priv.(*ecdhPriv)
			if !ok {
				return nil, fmt.Errorf("groupset: nist curve derive: wrong private key type")
			}
			peerKey, err := curve.NewPublicKey(peerShare)
			if err != nil {
				return nil, fmt.Errorf("groupset: invalid peer public key: %w", err)
			}
			return p.key.ECDH(peerKey)
		},
	})
}

type kemPriv struct{ key kem.PrivateKey }

func (p *kemPriv) Destroy() { p.key = nil }

// registerHybridKEM registers a KEM-shaped group. The client side is the
// KEM's decapsulator: per the hybrid draft, generate creates a KEM keypair
// and sends its public key as the key share, and derive decapsulates the
// ciphertext the server returns in its ServerHello key share.
func registerHybridKEM(id ID, scheme kem.Scheme) {
	register(Group{
		ID:   id,
		Kind: KindHybridKEM,
		generate: func() ([]byte, PrivateKey, error) {
			pub, priv, err := scheme.GenerateKeyPair()
			if err != nil {
				return nil, nil, fmt.Errorf("groupset: kem keygen: %w", err)
			}
			pubBytes, err := pub.MarshalBinary()
			if err != nil {
				return nil, nil, fmt.Errorf("groupset: kem public key marshal: %w", err)
			}
			return pubBytes, &kemPriv{key: priv}, nil
		},
		derive: func(priv PrivateKey, peerShare []byte) ([]byte, error) {
			p, ok := priv.(*kemPriv)
			if !ok {
				return nil, fmt.Errorf("groupset: kem derive: wrong private key type")
			}
			ss, err := scheme.Decapsulate(p.key, peerShare)
			if err != nil {
				return nil, fmt.Errorf("groupset: kem decapsulate: %w", err)
			}
			return ss, nil
		},
	})
}
