// Package clientcert loads client certificate material for mutual-TLS
// handshakes (the client Certificate/CertificateVerify path spec.md §4.8
// describes when a CertificateRequest arrives) and implements the
// handshake.CertificateProvider collaborator. Grounded in the teacher's
// own use of go.step.sm/crypto/pemutil and keyutil
// (modules/caddypki/crypto_test.go, modules/caddytls/internalissuer_test.go)
// for reading PEM-encoded certificates and keys.
package clientcert

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"os"

	"go.step.sm/crypto/pemutil"

	"github.com/caddyserver/tls13/handshake"
	"github.com/caddyserver/tls13/internal/certverify"
)

// Provider implements handshake.CertificateProvider from a PEM
// certificate chain and private key on disk.
type Provider struct {
	chain  []handshake.CertificateEntry
	signer crypto.Signer
	scheme uint16
}

// Load reads certFile (a PEM bundle, leaf certificate first) and keyFile
// (a PEM private key) and determines the one RFC 8446 §4.2.3 signature
// scheme its key type supports.
func Load(certFile, keyFile string) (*Provider, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("clientcert: read %s: %w", certFile, err)
	}
	certs, err := pemutil.ParseCertificateBundle(certPEM)
	if err != nil {
		return nil, fmt.Errorf("clientcert: parse certificate bundle: %w", err)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("clientcert: %s contains no certificates", certFile)
	}

	key, err := pemutil.Read(keyFile)
	if err != nil {
		return nil, fmt.Errorf("clientcert: read key %s: %w", keyFile, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("clientcert: %s does not hold a signing key", keyFile)
	}

	scheme, err := schemeFor(signer.Public())
	if err != nil {
		return nil, err
	}

	p := &Provider{signer: signer, scheme: scheme}
	for _, c := range certs {
		p.chain = append(p.chain, handshake.CertificateEntry{Data: c.Raw})
	}
	return p, nil
}

func schemeFor(pub crypto.PublicKey) (uint16, error) {
	switch pub.(type) {
	case *ecdsa.PublicKey:
		return certverify.SchemeECDSASecp256r1SHA256, nil
	case ed25519.PublicKey:
		return certverify.SchemeEd25519, nil
	case *rsa.PublicKey:
		return certverify.SchemeRSAPSSRSAESHA256, nil
	default:
		return 0, fmt.Errorf("clientcert: unsupported key type %T", pub)
	}
}

// HasCertificate reports whether a certificate chain was loaded.
func (p *Provider) HasCertificate() bool { return p != nil && len(p.chain) > 0 }

// Chain returns the loaded certificate chain, leaf first.
func (p *Provider) Chain() []handshake.CertificateEntry { return p.chain }

// SupportedSchemes returns the single signature scheme this provider's
// key type supports.
func (p *Provider) SupportedSchemes() []uint16 { return []uint16{p.scheme} }

// Sign implements handshake.CertificateProvider.
func (p *Provider) Sign(scheme uint16, signed []byte) ([]byte, error) {
	if scheme != p.scheme {
		return nil, fmt.Errorf("clientcert: requested scheme 0x%04x, provider only supports 0x%04x", scheme, p.scheme)
	}
	switch p.scheme {
	case certverify.SchemeECDSASecp256r1SHA256:
		digest := sha256.Sum256(signed)
		return p.signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	case certverify.SchemeEd25519:
		return p.signer.Sign(rand.Reader, signed, crypto.Hash(0))
	case certverify.SchemeRSAPSSRSAESHA256:
		digest := sha256.Sum256(signed)
		return p.signer.Sign(rand.Reader, digest[:], &rsa.PSSOptions{Hash: crypto.SHA256, SaltLength: rsa.PSSSaltLengthEqualsHash})
	default:
		return nil, fmt.Errorf("clientcert: unsupported scheme 0x%04x", p.scheme)
	}
}
