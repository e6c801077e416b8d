// Package certverify is a reference implementation of the two
// collaborators spec.md §1 declares external to the handshake core:
// "Certificate chain validation" and the signature-verification half of
// "Primitive crypto". It lets the demo client and tests drive a real
// handshake end to end; nothing here is invoked unless a Driver is
// constructed with it (see handshake.NewDriver).
package certverify

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// Signature scheme codepoints this reference verifier understands
// (RFC 8446 §4.2.3), limited to the handful a from-scratch client needs
// to interoperate with common servers.
const (
	SchemeECDSASecp256r1SHA256 uint16 = 0x0403
	SchemeRSAPSSRSAESHA256     uint16 = 0x0804
	SchemeEd25519              uint16 = 0x0807
)

// Verifier validates a server's certificate chain against Roots and
// checks CertificateVerify signatures.
type Verifier struct {
	Roots      *x509.CertPool
	ServerName string

	// InsecureSkipVerify disables chain validation entirely, trusting
	// whatever leaf certificate the server presents. For test fixtures
	// only; never set by config.Load.
	InsecureSkipVerify bool
}

// VerifyChain parses and validates a DER certificate chain, leaf first,
// returning the leaf's public key for CertificateVerify checking.
func (v *Verifier) VerifyChain(certs [][]byte) (crypto.PublicKey, error) {
	if len(certs) == 0 {
		return nil, fmt.Errorf("certverify: empty certificate chain")
	}
	parsed := make([]*x509.Certificate, len(certs))
	for i, der := range certs {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("certverify: parse certificate %d: %w", i, err)
		}
		parsed[i] = cert
	}
	if v.InsecureSkipVerify {
		return parsed[0].PublicKey, nil
	}

	intermediates := x509.NewCertPool()
	for _, c := range parsed[1:] {
		intermediates.AddCert(c)
	}
	opts := x509.VerifyOptions{
		Roots:         v.Roots,
		Intermediates: intermediates,
		DNSName:       v.ServerName,
	}
	if _, err := parsed[0].Verify(opts); err != nil {
		return nil, fmt.Errorf("certverify: chain verification failed: %w", err)
	}
	return parsed[0].PublicKey, nil
}

// VerifySignature checks a CertificateVerify signature against the
// already-context-wrapped signed content (see SignatureContext).
func (v *Verifier) VerifySignature(pub crypto.PublicKey, scheme uint16, signed []byte, sig []byte) error {
	switch scheme {
	case SchemeECDSASecp256r1SHA256:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("certverify: scheme 0x%04x requires an ECDSA key, got %T", scheme, pub)
		}
		digest := sha256.Sum256(signed)
		if !ecdsa.VerifyASN1(key, digest[:], sig) {
			return fmt.Errorf("certverify: ecdsa signature verification failed")
		}
		return nil

	case SchemeRSAPSSRSAESHA256:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("certverify: scheme 0x%04x requires an RSA key, got %T", scheme, pub)
		}
		digest := sha256.Sum256(signed)
		return rsa.VerifyPSS(key, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})

	case SchemeEd25519:
		key, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("certverify: scheme 0x%04x requires an Ed25519 key, got %T", scheme, pub)
		}
		if !ed25519.Verify(key, signed, sig) {
			return fmt.Errorf("certverify: ed25519 signature verification failed")
		}
		return nil

	default:
		return fmt.Errorf("certverify: unsupported signature scheme 0x%04x", scheme)
	}
}

// SignatureContext builds the RFC 8446 §4.4.3 signed content for a
// CertificateVerify: 64 spaces, a direction-specific context string,
// a zero byte, then the transcript hash. Both the signer (client side)
// and this verifier (server side) must wrap the transcript hash the
// same way before signing/verifying.
func SignatureContext(transcriptHash []byte, isClient bool) []byte {
	context := "TLS 1.3, server CertificateVerify"
	if isClient {
		context = "TLS 1.3, client CertificateVerify"
	}
	buf := make([]byte, 0, 64+len(context)+1+len(transcriptHash))
	for i := 0; i < 64; i++ {
		buf = append(buf, 0x20)
	}
	buf = append(buf, context...)
	buf = append(buf, 0x00)
	buf = append(buf, transcriptHash...)
	return buf
}
