package handshake

import (
	"crypto"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/caddyserver/tls13/config"
	"github.com/caddyserver/tls13/extension"
	"github.com/caddyserver/tls13/groupset"
	"github.com/caddyserver/tls13/internal/ciphersuite"
	"github.com/caddyserver/tls13/keyschedule"
	"github.com/caddyserver/tls13/wire"
)

// fakeHRRPeer is a minimal RecordLayer that captures the ClientHello the
// Driver sends and hands back one pre-built HelloRetryRequest.
type fakeHRRPeer struct {
	t *testing.T

	clientHello []byte
	hrrBody     []byte
	ccsCount    int
}

func (p *fakeHRRPeer) WriteHandshakeMessage(msgType uint8, body []byte) error {
	require.Equal(p.t, handshakeTypeClientHello, msgType)
	p.clientHello = append([]byte(nil), body...)
	return nil
}

func (p *fakeHRRPeer) ReadHandshakeMessage() (uint8, []byte, error) {
	return handshakeTypeServerHello, p.hrrBody, nil
}

func (p *fakeHRRPeer) SetInboundTransform(keyschedule.Transform) error  { return nil }
func (p *fakeHRRPeer) SetOutboundTransform(keyschedule.Transform) error { return nil }
func (p *fakeHRRPeer) WriteChangeCipherSpec() error                     { p.ccsCount++; return nil }

// buildHRRBody writes a HelloRetryRequest-shaped ServerHello body
// selecting newGroup, echoing sessionID.
func buildHRRBody(t *testing.T, sessionID []byte, suite uint16, newGroup groupset.ID) []byte {
	t.Helper()
	ext := wire.NewWriter()

	ext.PutUint16(uint16(extension.SupportedVersions))
	ext.PutUint16(2)
	ext.PutUint16(extension.VersionTLS13)

	ext.PutUint16(uint16(extension.KeyShare))
	ext.PutUint16(2)
	ext.PutUint16(uint16(newGroup))

	sh := wire.NewWriter()
	sh.PutUint16(extension.VersionTLS12)
	sh.PutBytes(hrrRandom[:])
	require.NoError(t, sh.PutVector8(sessionID))
	sh.PutUint16(suite)
	sh.PutUint8(0)
	require.NoError(t, sh.PutVector16(ext.Bytes()))
	return sh.Bytes()
}

func TestReceiveServerHelloHRRResetsTranscriptToMessageHash(t *testing.T) {
	cfg := &config.Client{
		Endpoint: "example.com",
		Groups:   []groupset.ID{groupset.X25519, groupset.Secp256r1},
	}
	require.NoError(t, cfg.Validate())

	ctx, err := NewContext(cfg, nil)
	require.NoError(t, err)

	suite, ok := ciphersuite.Lookup(ciphersuite.TLS_AES_128_GCM_SHA256)
	require.True(t, ok)

	peer := &fakeHRRPeer{t: t}
	d := NewDriver(ctx, peer, nil, nil, nil, nil)

	// Step 1: send ClientHello1, offering X25519 first (per pickGroup's
	// preference-list order).
	_, err = d.Step()
	require.NoError(t, err)
	require.Equal(t, StateServerHello, ctx.State)
	require.Equal(t, groupset.X25519, ctx.OfferedGroup)

	peer.hrrBody = buildHRRBody(t, ctx.LegacySessionID, suite.ID, groupset.Secp256r1)

	// Step 2: receive the HRR selecting a different group.
	ev, err := d.Step()
	require.NoError(t, err)
	require.Equal(t, EventNone, ev)
	require.Equal(t, StateClientHello, ctx.State)
	require.Equal(t, 1, ctx.HRRCount)
	require.Equal(t, groupset.Secp256r1, ctx.OfferedGroup)
	require.Equal(t, 1, peer.ccsCount, "compatibility mode must emit a CCS after HRR")

	ch1Header := handshakeHeader(handshakeTypeClientHello, len(peer.clientHello))
	ch1Hash := sha256.New()
	ch1Hash.Write(ch1Header)
	ch1Hash.Write(peer.clientHello)

	want := crypto.SHA256.New()
	want.Write(handshakeHeader(handshakeTypeMessageHash, ch1Hash.Size()))
	want.Write(ch1Hash.Sum(nil))
	want.Write(handshakeHeader(handshakeTypeServerHello, len(peer.hrrBody)))
	want.Write(peer.hrrBody)

	require.Equal(t, want.Sum(nil), ctx.Transcript.Sum(),
		"transcript after HRR must replace ClientHello1 with its message_hash, not append onto it")
}

func TestReceiveServerHelloRejectsSecondHRR(t *testing.T) {
	cfg := &config.Client{
		Endpoint: "example.com",
		Groups:   []groupset.ID{groupset.X25519, groupset.Secp256r1},
	}
	require.NoError(t, cfg.Validate())
	ctx, err := NewContext(cfg, nil)
	require.NoError(t, err)

	suite, ok := ciphersuite.Lookup(ciphersuite.TLS_AES_128_GCM_SHA256)
	require.True(t, ok)

	peer := &fakeHRRPeer{t: t}
	d := NewDriver(ctx, peer, nil, nil, nil, nil)

	_, err = d.Step()
	require.NoError(t, err)
	peer.hrrBody = buildHRRBody(t, ctx.LegacySessionID, suite.ID, groupset.Secp256r1)
	_, err = d.Step()
	require.NoError(t, err)

	// Re-offer ClientHello2.
	_, err = d.Step()
	require.NoError(t, err)
	require.Equal(t, StateServerHello, ctx.State)

	// A second HRR on the same connection must be rejected.
	peer.hrrBody = buildHRRBody(t, ctx.LegacySessionID, suite.ID, groupset.X25519)
	_, err = d.Step()
	require.Error(t, err)
}
