// Package config loads the read-only Configuration aggregate described
// in spec.md §3, shared between the caller and every handshake on a
// connection. Grounded in the teacher's declarative, file-loaded config
// idiom, simplified from JSON/Caddyfile down to a single YAML document
// since this library has no plugin graph to resolve.
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/caddyserver/tls13/extension"
	"github.com/caddyserver/tls13/groupset"
)

// KEXMode is one of the two PSK key-exchange modes RFC 8446 §4.2.9
// defines.
type KEXMode uint8

const (
	PSKKE    KEXMode = 0
	PSKDHEKE KEXMode = 1
)

// KEXModeMask is a bitmask over KEXMode values.
type KEXModeMask uint8

func (m KEXModeMask) Has(mode KEXMode) bool { return m&(1<<mode) != 0 }
func (m KEXModeMask) Set(mode KEXMode) KEXModeMask { return m | (1 << mode) }

// Client is the read-only configuration aggregate for a client-side
// handshake (spec.md §3 "Configuration"). It is safe to share across
// concurrent handshakes; nothing in it is ever mutated after Validate
// succeeds.
type Client struct {
	Endpoint         string        `yaml:"endpoint"`
	ALPN             []string      `yaml:"alpn,omitempty"`
	PSK              []byte        `yaml:"-"`
	PSKIdentity      []byte        `yaml:"-"`
	KEXModes         KEXModeMask   `yaml:"-"`
	EarlyDataEnabled bool          `yaml:"early_data_enabled"`
	Groups           []groupset.ID `yaml:"-"`

	// GroupNames/KEXModeNames/PSKHex/PSKIdentityHex are the YAML-facing
	// mirrors of the fields above; Load converts them after unmarshaling
	// since groupset.ID and raw PSK bytes are awkward to spell in YAML
	// directly.
	GroupNames    []string `yaml:"groups"`
	KEXModeNames  []string `yaml:"kex_modes"`
	PSKHex        string   `yaml:"psk_hex,omitempty"`
	PSKIdentityHex string  `yaml:"psk_identity_hex,omitempty"`
}

// Load reads and validates a YAML client configuration file.
func Load(path string) (*Client, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Client
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.resolve(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Client) resolve() error {
	for _, name := range c.GroupNames {
		id, ok := namedGroupByName[name]
		if !ok {
			return fmt.Errorf("config: unknown group %q", name)
		}
		if !groupset.IsECDHECapable(id) {
			return fmt.Errorf("config: group %q is not (EC)DHE-capable", name)
		}
		c.Groups = append(c.Groups, id)
	}
	for _, name := range c.KEXModeNames {
		switch name {
		case "psk_ke":
			c.KEXModes = c.KEXModes.Set(PSKKE)
		case "psk_dhe_ke":
			c.KEXModes = c.KEXModes.Set(PSKDHEKE)
		default:
			return fmt.Errorf("config: unknown kex_mode %q", name)
		}
	}
	if c.PSKHex != "" {
		b, err := hex.DecodeString(c.PSKHex)
		if err != nil {
			return fmt.Errorf("config: psk_hex: %w", err)
		}
		c.PSK = b
	}
	if c.PSKIdentityHex != "" {
		b, err := hex.DecodeString(c.PSKIdentityHex)
		if err != nil {
			return fmt.Errorf("config: psk_identity_hex: %w", err)
		}
		c.PSKIdentity = b
	}
	return c.Validate()
}

// Validate checks the invariants spec.md §3 implies for a usable
// configuration: a PSK requires a KEX mode to use it under, and early
// data requires a PSK mode to carry it.
func (c *Client) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("config: endpoint is required")
	}
	if len(c.PSK) > 0 && c.KEXModes == 0 {
		return fmt.Errorf("config: psk configured but no kex_modes enabled")
	}
	if c.EarlyDataEnabled && c.KEXModes == 0 {
		return fmt.Errorf("config: early_data_enabled requires at least one psk kex_mode")
	}
	return nil
}

// HasALPNOffer reports whether proto was advertised in ALPN.
func (c *Client) HasALPNOffer(proto string) bool {
	for _, p := range c.ALPN {
		if p == proto {
			return true
		}
	}
	return false
}

// SupportedExtensionMask is the set of extensions this configuration
// could ever cause the writer to emit, useful for tests that want to
// assert a ClientHello's sent_extensions mask against configuration
// without running the full driver.
func (c *Client) SupportedExtensionMask() extension.Mask {
	m := extension.Mask(0).Set(extension.SupportedVersions)
	if len(c.Groups) > 0 {
		m = m.Set(extension.KeyShare)
	}
	if c.KEXModes != 0 {
		m = m.Set(extension.PSKKeyExchangeModes)
		if len(c.PSK) > 0 {
			m = m.Set(extension.PreSharedKey)
		}
	}
	if len(c.ALPN) > 0 {
		m = m.Set(extension.ALPN)
	}
	if c.EarlyDataEnabled {
		m = m.Set(extension.EarlyData)
	}
	return m
}

var namedGroupByName = map[string]groupset.ID{
	"x25519":                groupset.X25519,
	"secp256r1":             groupset.Secp256r1,
	"secp384r1":             groupset.Secp384r1,
	"x25519kyber768draft00": groupset.X25519Kyber768Draft00,
}

