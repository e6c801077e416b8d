package certverify

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifyChainInsecureSkipVerify(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der := makeSelfSigned(t, priv, priv.Public())

	v := &Verifier{InsecureSkipVerify: true}
	pub, err := v.VerifyChain([][]byte{der})
	require.NoError(t, err)
	require.IsType(t, &ecdsa.PublicKey{}, pub)
}

func TestVerifyChainValidatesAgainstRoots(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der := makeSelfSigned(t, priv, priv.Public())
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(leaf)

	v := &Verifier{Roots: roots, ServerName: "example.com"}
	_, err = v.VerifyChain([][]byte{der})
	require.NoError(t, err)
}

func TestVerifyChainRejectsUntrustedRoot(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der := makeSelfSigned(t, priv, priv.Public())

	v := &Verifier{Roots: x509.NewCertPool(), ServerName: "example.com"}
	_, err = v.VerifyChain([][]byte{der})
	require.Error(t, err)
}

func TestVerifyChainEmpty(t *testing.T) {
	v := &Verifier{InsecureSkipVerify: true}
	_, err := v.VerifyChain(nil)
	require.Error(t, err)
}

func TestVerifySignatureECDSA(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	signed := SignatureContext([]byte("transcript-hash"), false)
	digest := sha256.Sum256(signed)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	v := &Verifier{}
	require.NoError(t, v.VerifySignature(&priv.PublicKey, SchemeECDSASecp256r1SHA256, signed, sig))

	// Tampering with the signed content must invalidate the signature.
	tampered := SignatureContext([]byte("different-hash"), false)
	require.Error(t, v.VerifySignature(&priv.PublicKey, SchemeECDSASecp256r1SHA256, tampered, sig))
}

func TestVerifySignatureEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	signed := SignatureContext([]byte("transcript-hash"), true)
	sig := ed25519.Sign(priv, signed)

	v := &Verifier{}
	require.NoError(t, v.VerifySignature(pub, SchemeEd25519, signed, sig))
	require.Error(t, v.VerifySignature(pub, SchemeEd25519, signed, append([]byte(nil), sig...)[:len(sig)-1]))
}

func TestVerifySignatureRSAPSS(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signed := SignatureContext([]byte("transcript-hash"), false)
	digest := sha256.Sum256(signed)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
	require.NoError(t, err)

	v := &Verifier{}
	require.NoError(t, v.VerifySignature(&priv.PublicKey, SchemeRSAPSSRSAESHA256, signed, sig))
}

func TestVerifySignatureWrongKeyType(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	v := &Verifier{}
	err = v.VerifySignature(pub, SchemeECDSASecp256r1SHA256, []byte("x"), []byte("y"))
	require.Error(t, err)
}

func TestSignatureContextDiffersByDirection(t *testing.T) {
	hash := []byte("some-transcript-hash")
	client := SignatureContext(hash, true)
	server := SignatureContext(hash, false)
	require.NotEqual(t, client, server)
	require.Contains(t, string(client), "client CertificateVerify")
	require.Contains(t, string(server), "server CertificateVerify")
}

func makeSelfSigned(t *testing.T, priv *ecdsa.PrivateKey, pub any) []byte {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"example.com"},
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	require.NoError(t, err)
	return der
}
