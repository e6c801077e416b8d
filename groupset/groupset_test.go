package groupset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestX25519RoundTrip(t *testing.T) {
	g, ok := Lookup(X25519)
	require.True(t, ok)

	clientShare, clientPriv, err := g.GenerateKeyShare()
	require.NoError(t, err)
	defer clientPriv.Destroy()

	serverShare, serverPriv, err := g.GenerateKeyShare()
	require.NoError(t, err)
	defer serverPriv.Destroy()

	clientSecret, err := g.DeriveSecret(clientPriv, serverShare)
	require.NoError(t, err)

	serverSecret, err := g.DeriveSecret(serverPriv, clientShare)
	require.NoError(t, err)

	require.Equal(t, clientSecret, serverSecret)
	require.Len(t, clientShare, 32)
}

func TestNISTCurveRoundTrip(t *testing.T) {
	for _, id := range []ID{Secp256r1, Secp384r1} {
		g, ok := Lookup(id)
		require.True(t, ok)

		aShare, aPriv, err := g.GenerateKeyShare()
		require.NoError(t, err)
		bShare, bPriv, err := g.GenerateKeyShare()
		require.NoError(t, err)

		aSecret, err := g.DeriveSecret(aPriv, bShare)
		require.NoError(t, err)
		bSecret, err := g.DeriveSecret(bPriv, aShare)
		require.NoError(t, err)

		require.Equal(t, aSecret, bSecret)
	}
}

func TestHybridKEMGroup(t *testing.T) {
	g, ok := Lookup(X25519Kyber768Draft00)
	require.True(t, ok)
	require.Equal(t, KindHybridKEM, g.Kind)

	// The client generates a KEM keypair and sends its public key as the
	// "key share"; there is no peer share to derive against until the
	// server encapsulates, so DeriveSecret is not exercised here. This
	// test only confirms key generation round-trips.
	share, priv, err := g.GenerateKeyShare()
	require.NoError(t, err)
	require.NotEmpty(t, share)
	priv.Destroy()
}

func TestDHEGroupIsRecognizedButUnimplemented(t *testing.T) {
	require.True(t, IsDHE(FFDHE2048))
	require.False(t, IsECDHECapable(FFDHE2048))

	g, ok := Lookup(FFDHE2048)
	require.True(t, ok)
	_, _, err := g.GenerateKeyShare()
	require.Error(t, err)
}

func TestIsECDHECapable(t *testing.T) {
	require.True(t, IsECDHECapable(X25519))
	require.True(t, IsECDHECapable(Secp256r1))
	require.False(t, IsECDHECapable(ID(0xFFFF)))
}
