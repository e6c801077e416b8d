package handshake

import (
	"github.com/caddyserver/tls13/alert"
	"github.com/caddyserver/tls13/config"
	"github.com/caddyserver/tls13/extension"
	"github.com/caddyserver/tls13/groupset"
	"github.com/caddyserver/tls13/internal/ciphersuite"
	"github.com/caddyserver/tls13/wire"
)

// ServerHelloKind tags the three shapes spec.md §4.4 classifies a
// ServerHello-sized message into (spec.md §9: "tagged variants should
// replace integer sentinel returns" — this replaces the source's
// SSL_SERVER_HELLO / SSL_SERVER_HELLO_HRR / SSL_SERVER_HELLO_TLS1_2).
type ServerHelloKind int

const (
	KindServerHello ServerHelloKind = iota
	KindHelloRetryRequest
	KindServerHelloTLS12
)

// serverHelloPrefix is the wire layout ServerHello and HRR share:
// legacy_version | random(32) | legacy_session_id_echo |
// cipher_suite | legacy_compression_method | extensions (spec.md §4.5).
type serverHelloPrefix struct {
	random        [32]byte
	sessionIDEcho []byte
	cipherSuite   uint16
	extensionsRaw []byte
}

func parseServerHelloPrefix(body []byte) (*serverHelloPrefix, error) {
	r := wire.NewReader(body)

	version, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	if version != extension.VersionTLS12 {
		return nil, alert.Newf(alert.ProtocolVersion, "server_hello: legacy_version 0x%04x, want 0x0303", version)
	}
	random, err := r.Bytes(32)
	if err != nil {
		return nil, err
	}
	sid, err := r.Vector8()
	if err != nil {
		return nil, err
	}
	suite, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	compression, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	if compression != 0 {
		return nil, alert.Newf(alert.IllegalParameter, "server_hello: legacy_compression_method must be 0, got %d", compression)
	}
	extLen, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	extBytes, err := r.Bytes(int(extLen))
	if err != nil {
		return nil, err
	}
	if !r.Done() {
		return nil, alert.Newf(alert.DecodeError, "server_hello: trailing bytes after extensions")
	}

	out := &serverHelloPrefix{cipherSuite: suite, sessionIDEcho: append([]byte(nil), sid...), extensionsRaw: extBytes}
	copy(out.random[:], random)
	return out, nil
}

func scanForSupportedVersions(extRaw []byte) (bool, error) {
	r := wire.NewReader(extRaw)
	for !r.Done() {
		t, err := r.Uint16()
		if err != nil {
			return false, err
		}
		n, err := r.Uint16()
		if err != nil {
			return false, err
		}
		if err := r.Skip(int(n)); err != nil {
			return false, err
		}
		if extension.Type(t) == extension.SupportedVersions {
			return true, nil
		}
	}
	return false, nil
}

// classify implements spec.md §4.4's four-step classification.
func classify(prefix *serverHelloPrefix, offeredTLS13 bool) (ServerHelloKind, error) {
	hasSupportedVersions, err := scanForSupportedVersions(prefix.extensionsRaw)
	if err != nil {
		return 0, err
	}

	var last8 [8]byte
	copy(last8[:], prefix.random[24:])
	if offeredTLS13 && (last8 == downgradeTLS12 || last8 == downgradeTLS11) {
		return 0, alert.Newf(alert.IllegalParameter, "downgrade attack detected: server random ends in a DOWNGRD magic value")
	}

	if !hasSupportedVersions {
		return KindServerHelloTLS12, nil
	}
	if prefix.random == hrrRandom {
		return KindHelloRetryRequest, nil
	}
	return KindServerHello, nil
}

// ClassifyServerHello is the driver-facing entry point for spec.md §4.4:
// given a raw ServerHello-shaped handshake body, classify it and reject
// a duplicate HRR before any further parsing happens.
func (c *Context) ClassifyServerHello(body []byte) (ServerHelloKind, *serverHelloPrefix, error) {
	prefix, err := parseServerHelloPrefix(body)
	if err != nil {
		return 0, nil, err
	}
	kind, err := classify(prefix, true)
	if err != nil {
		return 0, nil, err
	}
	if kind == KindHelloRetryRequest {
		if c.HRRCount > 0 {
			return 0, nil, alert.Newf(alert.UnexpectedMessage, "second HelloRetryRequest on one connection")
		}
		if len(c.Config.Groups) == 0 {
			return 0, nil, alert.Newf(alert.IllegalParameter, "HelloRetryRequest received but no ephemeral mode is enabled")
		}
	}
	return kind, prefix, nil
}

// checkSessionIDEcho implements spec.md §4.5's byte-equality check and
// spec.md §8 invariant 4.
func (c *Context) checkSessionIDEcho(echo []byte) error {
	if len(echo) != len(c.LegacySessionID) {
		return alert.Newf(alert.IllegalParameter, "legacy_session_id_echo length mismatch: sent %d, echoed %d", len(c.LegacySessionID), len(echo))
	}
	for i := range echo {
		if echo[i] != c.LegacySessionID[i] {
			return alert.Newf(alert.IllegalParameter, "legacy_session_id_echo does not match the ClientHello we sent")
		}
	}
	return nil
}

// checkCipherSuite implements spec.md §4.5's ciphersuite checks: must be
// a valid, offered TLS 1.3 suite, and — if this ServerHello follows an
// HRR — must equal the suite the HRR already committed to.
func (c *Context) checkCipherSuite(suite uint16) (ciphersuite.Info, error) {
	info, ok := ciphersuite.Lookup(suite)
	if !ok {
		return ciphersuite.Info{}, alert.Newf(alert.IllegalParameter, "server selected unknown or non-TLS1.3 ciphersuite 0x%04x", suite)
	}
	offered := false
	for _, s := range offeredCipherSuites() {
		if s == suite {
			offered = true
			break
		}
	}
	if !offered {
		return ciphersuite.Info{}, alert.Newf(alert.IllegalParameter, "server selected ciphersuite 0x%04x we did not offer", suite)
	}
	if c.HRRCount > 0 && c.Suite.ID != 0 && c.Suite.ID != suite {
		return ciphersuite.Info{}, alert.Newf(alert.IllegalParameter, "ciphersuite changed after HelloRetryRequest: 0x%04x -> 0x%04x", c.Suite.ID, suite)
	}
	return info, nil
}

// ApplyHelloRetryRequest implements spec.md §4.5's HRR key_share/cookie
// handling plus §4.5's post-processing (reset_key_share, transition back
// to ClientHello). It leaves c.State at StateClientHello so the driver
// re-enters ClientHello construction with the updated group and cookie.
func (c *Context) ApplyHelloRetryRequest(prefix *serverHelloPrefix) error {
	info, err := c.checkCipherSuite(prefix.cipherSuite)
	if err != nil {
		return err
	}
	c.Suite = info

	sh, err := extension.ParseServerHello(wire.NewReader(prefix.extensionsRaw), true)
	if err != nil {
		return err
	}
	if !sh.HasKeyShare {
		return alert.Newf(alert.DecodeError, "hello_retry_request: key_share is required")
	}

	newGroup := sh.KeyShareGroup
	eligible := false
	for _, g := range c.Config.Groups {
		if g == newGroup {
			eligible = true
			break
		}
	}
	if !eligible || !groupset.IsECDHECapable(newGroup) {
		return alert.Newf(alert.IllegalParameter, "hello_retry_request selected group 0x%04x is not offerable", uint16(newGroup))
	}
	if newGroup == c.OfferedGroup {
		return alert.Newf(alert.IllegalParameter, "hello_retry_request selected the group already offered (0x%04x)", uint16(newGroup))
	}

	if len(sh.Cookie) > 0 {
		c.Cookie = append([]byte(nil), sh.Cookie...)
	}

	if err := c.resetKeyShare(newGroup); err != nil {
		return err
	}
	c.OfferedGroup = newGroup
	c.HRRCount++
	c.State = StateClientHello
	return nil
}

// ApplyServerHello implements spec.md §4.5's ServerHello body
// validation, key_share/pre_shared_key handling, and the key-exchange-
// mode inference table. On success c.Suite and c.Mode are set, and the
// returned dhSecret (nil in PSK-only mode) is what the driver feeds into
// the handshake transform it then computes and installs.
func (c *Context) ApplyServerHello(prefix *serverHelloPrefix) (dhSecret []byte, err error) {
	if err := c.checkSessionIDEcho(prefix.sessionIDEcho); err != nil {
		return nil, err
	}
	info, err := c.checkCipherSuite(prefix.cipherSuite)
	if err != nil {
		return nil, err
	}
	c.Suite = info

	sh, err := extension.ParseServerHello(wire.NewReader(prefix.extensionsRaw), false)
	if err != nil {
		return nil, err
	}
	c.ReceivedExtensions = sh.Mask

	if sh.HasKeyShare {
		if sh.KeyShareGroup != c.OfferedGroup {
			return nil, alert.Newf(alert.HandshakeFailure, "server_hello key_share group 0x%04x != offered 0x%04x", uint16(sh.KeyShareGroup), uint16(c.OfferedGroup))
		}
		g, ok := groupset.Lookup(c.OfferedGroup)
		if !ok {
			return nil, alert.Newf(alert.Internal, "offered_group_id 0x%04x has no registered provider", uint16(c.OfferedGroup))
		}
		dhSecret, err = g.DeriveSecret(c.ecdhPriv, sh.KeyShareData)
		if err != nil {
			return nil, alert.Newf(alert.HandshakeFailure, "derive (EC)DHE shared secret: %v", err)
		}
	}

	if sh.HasPSK {
		if sh.SelectedIdentity != 0 {
			return nil, alert.Newf(alert.IllegalParameter, "selected_identity %d out of range (configured 1 PSK)", sh.SelectedIdentity)
		}
	}

	switch {
	case sh.HasPSK && !sh.HasKeyShare:
		c.Mode = ModePSK
	case !sh.HasPSK && sh.HasKeyShare:
		c.Mode = ModeEphemeral
	case sh.HasPSK && sh.HasKeyShare:
		c.Mode = ModePSKEphemeral
	default:
		return nil, alert.Newf(alert.HandshakeFailure, "neither pre_shared_key nor key_share present in server_hello")
	}

	if !c.modeConfigured(c.Mode) {
		return nil, alert.Newf(alert.HandshakeFailure, "negotiated key_exchange_mode not permitted by configuration")
	}

	return dhSecret, nil
}

// modeConfigured checks the negotiated Mode against tls13_kex_modes
// (spec.md §4.5: "verify the selected mode is in the configured
// tls13_kex_modes"). A pure ephemeral handshake needs no PSK mode at
// all, so it is always permitted.
func (c *Context) modeConfigured(mode Mode) bool {
	switch mode {
	case ModeEphemeral:
		return true
	case ModePSK:
		return c.Config.KEXModes.Has(config.PSKKE)
	case ModePSKEphemeral:
		return c.Config.KEXModes.Has(config.PSKDHEKE)
	default:
		return false
	}
}
