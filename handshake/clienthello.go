package handshake

import (
	"time"

	"github.com/caddyserver/tls13/alert"
	"github.com/caddyserver/tls13/config"
	"github.com/caddyserver/tls13/extension"
	"github.com/caddyserver/tls13/groupset"
	"github.com/caddyserver/tls13/internal/ciphersuite"
	"github.com/caddyserver/tls13/keyschedule"
	"github.com/caddyserver/tls13/wire"
)

// handshakeType* are the RFC 8446 §B.3 handshake message type codepoints
// this core writes or reads directly.
const (
	handshakeTypeClientHello         uint8 = 1
	handshakeTypeServerHello         uint8 = 2
	handshakeTypeNewSessionTicket    uint8 = 4
	handshakeTypeEndOfEarlyData      uint8 = 5
	handshakeTypeEncryptedExtensions uint8 = 8
	handshakeTypeCertificate         uint8 = 11
	handshakeTypeCertificateRequest  uint8 = 13
	handshakeTypeCertificateVerify   uint8 = 15
	handshakeTypeFinished            uint8 = 20
	// handshakeTypeMessageHash is not a real wire message; RFC 8446
	// §4.4.1 uses it as the synthetic transcript entry that replaces
	// ClientHello1 after a HelloRetryRequest.
	handshakeTypeMessageHash uint8 = 254
)

// offeredCipherSuites is the fixed, priority-ordered list of TLS 1.3
// suites this core advertises (spec.md §1: the ciphersuite registry
// itself is an external collaborator; internal/ciphersuite is this
// module's reference instance of it).
func offeredCipherSuites() []uint16 {
	return []uint16{
		ciphersuite.TLS_AES_128_GCM_SHA256,
		ciphersuite.TLS_AES_256_GCM_SHA384,
		ciphersuite.TLS_CHACHA20_POLY1305_SHA256,
	}
}

// pskCandidate is the single PSK this core offers in a ClientHello, if
// any. spec.md §4.3 describes two possible PSK sources considered in
// priority order; this core carries forward exactly the higher-priority
// one that is eligible; see DESIGN.md for why only one identity is ever
// offered at a time.
type pskCandidate struct {
	identity        []byte
	obfuscatedAge   uint32
	secret          []byte
	pskType         keyschedule.PSKType
	hashLen         int
	allowsEarlyData bool
}

// selectPSK implements spec.md §4.3's two-source priority: a compatible,
// not-yet-exported resumption ticket first, else the configured static
// external PSK.
func (c *Context) selectPSK(now time.Time) *pskCandidate {
	if sess := c.Session; sess != nil && !sess.Exported && len(sess.Ticket) > 0 {
		compatible := (sess.TicketFlags.AllowsPSKKE() && c.Config.KEXModes.Has(config.PSKKE)) ||
			(sess.TicketFlags.AllowsPSKDHEKE() && c.Config.KEXModes.Has(config.PSKDHEKE))
		if compatible {
			hashLen := 32
			if info, ok := ciphersuite.Lookup(sess.Suite); ok {
				hashLen = info.Hash.Size()
			}
			return &pskCandidate{
				identity:        sess.Ticket,
				obfuscatedAge:   sess.ObfuscatedTicketAge(now),
				secret:          sess.ResumptionKey,
				pskType:         keyschedule.PSKResumption,
				hashLen:         hashLen,
				allowsEarlyData: sess.AllowsEarlyData(),
			}
		}
	}
	if len(c.Config.PSK) > 0 {
		return &pskCandidate{
			identity: c.Config.PSKIdentity,
			pskType:  keyschedule.PSKExternal,
			secret:   c.Config.PSK,
			hashLen:  32,
		}
	}
	return nil
}

// earlyDataEligible implements spec.md §4.2's early_data gate: a PSK
// mode must be enabled, the ticket must permit 0-RTT, the resumed
// ciphersuite must still be one this core offers, and the configuration
// must opt in.
func (c *Context) earlyDataEligible(psk *pskCandidate) bool {
	if psk == nil || psk.pskType != keyschedule.PSKResumption {
		return false
	}
	if !c.Config.EarlyDataEnabled || !psk.allowsEarlyData {
		return false
	}
	_, ok := ciphersuite.Lookup(c.Session.Suite)
	return ok
}

// pickGroup implements spec.md §4.2's key_share group selection: an HRR-
// dictated group takes precedence, otherwise the first (EC)DHE-capable,
// crypto-provider-supported group from the configured preference list.
func (c *Context) pickGroup() (groupset.ID, error) {
	if c.OfferedGroup != 0 {
		if groupset.IsECDHECapable(c.OfferedGroup) {
			return c.OfferedGroup, nil
		}
	}
	for _, id := range c.Config.Groups {
		if groupset.IsECDHECapable(id) {
			return id, nil
		}
	}
	return 0, alert.Newf(alert.HandshakeFailure, "no configured group is (EC)DHE-capable")
}

// clientHelloBody bundles the in-progress ClientHello body with whatever
// the driver still needs to finish the two-phase PSK write (spec.md
// §4.3, §9): the binder patch and the candidate the binder authenticates.
// patch/psk are nil when no PSK was offered.
type clientHelloBody struct {
	writer *wire.Writer
	patch  *extension.BinderPatch
	psk    *pskCandidate
}

// buildClientHelloBody writes every field and extension of a ClientHello
// body (spec.md §4.2) in the fixed order the driver must follow, up to
// and including reserved (zero) binder slots. It does not write the
// handshake header, and it does not fill in real binder values — that is
// phase B, driven once the truncated transcript hash is known (see
// driver.go's sendClientHello).
func (c *Context) buildClientHelloBody(clientRandom [32]byte) (*clientHelloBody, error) {
	w := wire.NewWriter()
	w.PutUint16(extension.VersionTLS12)
	w.PutBytes(clientRandom[:])
	if err := w.PutVector8(c.LegacySessionID); err != nil {
		return nil, err
	}

	suitesBuf := wire.NewWriter()
	for _, s := range offeredCipherSuites() {
		suitesBuf.PutUint16(s)
	}
	if err := w.PutVector16(suitesBuf.Bytes()); err != nil {
		return nil, err
	}
	if err := w.PutVector8([]byte{0}); err != nil { // legacy_compression_methods = {null}
		return nil, err
	}

	extLenOff := w.Uint16Placeholder()
	extStart := w.Len()

	c.SentExtensions = 0
	extension.WriteSupportedVersions(w, c.MinVersion <= extension.VersionTLS12)
	c.SentExtensions = c.SentExtensions.Set(extension.SupportedVersions)

	if len(c.Cookie) > 0 {
		if err := extension.WriteCookie(w, c.Cookie); err != nil {
			return nil, err
		}
		c.SentExtensions = c.SentExtensions.Set(extension.Cookie)
	}

	psk := c.selectPSK(time.Now())
	ephemeralEnabled := len(c.Config.Groups) > 0 && (psk == nil || c.Config.KEXModes.Has(config.PSKDHEKE))

	if ephemeralEnabled {
		group, err := c.pickGroup()
		if err != nil {
			return nil, err
		}
		g, ok := groupset.Lookup(group)
		if !ok {
			return nil, alert.Newf(alert.Internal, "pickGroup returned unregistered group 0x%04x", uint16(group))
		}
		share, priv, err := g.GenerateKeyShare()
		if err != nil {
			return nil, alert.Newf(alert.AllocFailed, "generate key share: %v", err)
		}
		c.OfferedGroup = group
		c.ecdhPriv = priv
		if err := extension.WriteKeyShare(w, []extension.KeyShareEntry{{Group: group, KeyExchange: share}}); err != nil {
			return nil, err
		}
		c.SentExtensions = c.SentExtensions.Set(extension.KeyShare)
	}

	if c.earlyDataEligible(psk) {
		extension.WriteEarlyData(w)
		c.SentExtensions = c.SentExtensions.Set(extension.EarlyData)
		c.EarlyDataStatus = EarlyDataRejected
	}

	var modes []uint8
	if c.Config.KEXModes.Has(config.PSKKE) {
		modes = append(modes, extension.PSKModeKE)
	}
	if c.Config.KEXModes.Has(config.PSKDHEKE) {
		modes = append(modes, extension.PSKModeDHEKE)
	}
	if len(modes) > 0 {
		if err := extension.WritePSKKeyExchangeModes(w, modes); err != nil {
			return nil, err
		}
		c.SentExtensions = c.SentExtensions.Set(extension.PSKKeyExchangeModes)
	}

	var patch *extension.BinderPatch
	if psk != nil {
		var err error
		patch, err = extension.WriteIdentitiesAndReserveBinders(w,
			[]extension.Identity{{Identity: psk.identity, ObfuscatedAge: psk.obfuscatedAge}},
			[]int{psk.hashLen})
		if err != nil {
			return nil, err
		}
		c.SentExtensions = c.SentExtensions.Set(extension.PreSharedKey)
	}

	w.PatchUint16(extLenOff, uint16(w.Len()-extStart))

	return &clientHelloBody{writer: w, patch: patch, psk: psk}, nil
}
