package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, `
endpoint: example.com:443
groups: [x25519, secp256r1]
kex_modes: [psk_dhe_ke]
psk_hex: "0011223344556677889900112233445566778899001122334455667788990011"
psk_identity_hex: "636c69656e74"
early_data_enabled: true
alpn: [h2, http/1.1]
`)
	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "example.com:443", c.Endpoint)
	require.Len(t, c.Groups, 2)
	require.True(t, c.KEXModes.Has(PSKDHEKE))
	require.False(t, c.KEXModes.Has(PSKKE))
	require.True(t, c.EarlyDataEnabled)
	require.Equal(t, []byte("client"), c.PSKIdentity)
}

func TestLoadRejectsUnknownGroup(t *testing.T) {
	path := writeTemp(t, "endpoint: x:443\ngroups: [not-a-group]\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsPSKWithoutKEXMode(t *testing.T) {
	path := writeTemp(t, `
endpoint: x:443
psk_hex: "aabb"
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsEarlyDataWithoutKEXMode(t *testing.T) {
	path := writeTemp(t, `
endpoint: x:443
early_data_enabled: true
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresEndpoint(t *testing.T) {
	path := writeTemp(t, "groups: [x25519]\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestSupportedExtensionMask(t *testing.T) {
	path := writeTemp(t, `
endpoint: x:443
groups: [x25519]
kex_modes: [psk_ke]
psk_hex: "aabb"
alpn: [h2]
`)
	c, err := Load(path)
	require.NoError(t, err)

	mask := c.SupportedExtensionMask()
	require.True(t, mask.Has(1<<10+0) == false) // sanity: unrelated bit not set
}

func TestHasALPNOffer(t *testing.T) {
	c := &Client{ALPN: []string{"h2", "http/1.1"}}
	require.True(t, c.HasALPNOffer("h2"))
	require.False(t, c.HasALPNOffer("h3"))
}
