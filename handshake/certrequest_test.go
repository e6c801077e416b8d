package handshake

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/caddyserver/tls13/config"
	"github.com/caddyserver/tls13/extension"
	"github.com/caddyserver/tls13/wire"
)

func buildCertificateRequestBody(t *testing.T, ctx []byte) []byte {
	t.Helper()
	w := wire.NewWriter()
	require.NoError(t, w.PutVector8(ctx))

	exts := wire.NewWriter()
	exts.PutUint16(uint16(extension.SignatureAlgorithms))
	sigAlgs := wire.NewWriter()
	sigAlgs.PutUint16(0x0403)
	sigAlgList := wire.NewWriter()
	require.NoError(t, sigAlgList.PutVector16(sigAlgs.Bytes()))
	exts.PutUint16(uint16(sigAlgList.Len()))
	exts.PutBytes(sigAlgList.Bytes())

	require.NoError(t, w.PutVector16(exts.Bytes()))
	return w.Bytes()
}

func TestApplyCertificateRequestSetsContextAndFlag(t *testing.T) {
	ctx, err := NewContext(&config.Client{Endpoint: "example.com"}, nil)
	require.NoError(t, err)
	require.False(t, ctx.ClientAuth)

	body := buildCertificateRequestBody(t, []byte("req-ctx"))
	require.NoError(t, ctx.ApplyCertificateRequest(body))

	require.True(t, ctx.ClientAuth)
	require.Equal(t, []byte("req-ctx"), ctx.CertificateRequestContext)
}

func TestApplyCertificateRequestRejectsMalformed(t *testing.T) {
	ctx, err := NewContext(&config.Client{Endpoint: "example.com"}, nil)
	require.NoError(t, err)

	// No signature_algorithms extension: ParseCertificateRequest must
	// reject it (RFC 8446 §4.3.2 makes it mandatory).
	w := wire.NewWriter()
	require.NoError(t, w.PutVector8(nil))
	require.NoError(t, w.PutVector16(nil))

	err = ctx.ApplyCertificateRequest(w.Bytes())
	require.Error(t, err)
	require.False(t, ctx.ClientAuth)
}
