// Package handshake implements the client-side TLS 1.3 state machine
// (spec.md §2-§5): a single-threaded, cooperative driver whose Step
// method performs one transition at a time, dispatching to the
// extension writers/parsers, groupset key-exchange providers, and
// keyschedule derivations that the rest of this module supplies.
//
// Grounded in shape on ekr/mint's client-state-machine.go (one struct per
// protocol state), but driven by spec.md's externally-clocked step()
// model rather than mint's message-driven Next(hm): the record layer
// that actually reads/writes bytes off the wire is an external
// collaborator (spec.md §1, §6), referenced here only through the
// RecordLayer interface in driver.go.
package handshake

import (
	"crypto/rand"
	"fmt"

	"github.com/caddyserver/tls13/alert"
	"github.com/caddyserver/tls13/config"
	"github.com/caddyserver/tls13/extension"
	"github.com/caddyserver/tls13/groupset"
	"github.com/caddyserver/tls13/internal/ciphersuite"
	"github.com/caddyserver/tls13/internal/transcript"
	"github.com/caddyserver/tls13/keyschedule"
	"github.com/caddyserver/tls13/session"
)

// State is one node of the spec.md §4.10 state table.
type State int

const (
	StateHelloRequest State = iota
	StateClientHello
	StateServerHello
	StateEncryptedExtensions
	StateCertificateRequest
	StateServerCertificate
	StateCertificateVerify
	StateServerFinished
	StateEndOfEarlyData
	StateClientCertificate
	StateClientCertificateVerify
	StateClientFinished
	StateFlushBuffers
	StateHandshakeWrapup
	StateHandshakeOver
)

func (s State) String() string {
	switch s {
	case StateHelloRequest:
		return "HELLO_REQUEST"
	case StateClientHello:
		return "CLIENT_HELLO"
	case StateServerHello:
		return "SERVER_HELLO"
	case StateEncryptedExtensions:
		return "ENCRYPTED_EXTENSIONS"
	case StateCertificateRequest:
		return "CERTIFICATE_REQUEST"
	case StateServerCertificate:
		return "SERVER_CERTIFICATE"
	case StateCertificateVerify:
		return "CERTIFICATE_VERIFY"
	case StateServerFinished:
		return "SERVER_FINISHED"
	case StateEndOfEarlyData:
		return "END_OF_EARLY_DATA"
	case StateClientCertificate:
		return "CLIENT_CERTIFICATE"
	case StateClientCertificateVerify:
		return "CLIENT_CERTIFICATE_VERIFY"
	case StateClientFinished:
		return "CLIENT_FINISHED"
	case StateFlushBuffers:
		return "FLUSH_BUFFERS"
	case StateHandshakeWrapup:
		return "HANDSHAKE_WRAPUP"
	case StateHandshakeOver:
		return "HANDSHAKE_OVER"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Mode is the negotiated key-exchange mode, inferred from the extensions
// the server actually sent back (spec.md §4.5's PSK/KS table).
type Mode int

const (
	ModeUnknown Mode = iota
	ModePSK
	ModeEphemeral
	ModePSKEphemeral
)

// EarlyDataStatus tracks the 0-RTT lifecycle (spec.md §4.2, §4.6, §4.8).
type EarlyDataStatus int

const (
	EarlyDataNotOffered EarlyDataStatus = iota
	EarlyDataRejected
	EarlyDataAccepted
)

// hrrRandom is SHA-256("HelloRetryRequest"), the fixed random value
// an HRR carries in place of 32 random bytes (RFC 8446 §4.1.3).
var hrrRandom = [32]byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
	0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
	0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}

// downgradeTLS12, downgradeTLS11 are the last 8 bytes of the server
// random RFC 8446 §4.1.3 defines for detecting a negotiated downgrade.
var (
	downgradeTLS12 = [8]byte{0x44, 0x4F, 0x57, 0x4E, 0x47, 0x52, 0x44, 0x01}
	downgradeTLS11 = [8]byte{0x44, 0x4F, 0x57, 0x4E, 0x47, 0x52, 0x44, 0x00}
)

// Context is the transient per-connection state spec.md §3 describes as
// "Handshake context". Exactly one Context exists per in-progress
// handshake; nothing in it is shared across connections.
type Context struct {
	Config *config.Client

	State State

	MinVersion uint16
	MaxVersion uint16

	// CompatibilityMode enables the RFC 8446 Appendix D.4 dummy
	// ChangeCipherSpec record, sent once: after a HelloRetryRequest, or,
	// when no HRR occurred, after the server's Finished. It is for
	// middleboxes that choke on TLS records with no preceding
	// ChangeCipherSpec.
	CompatibilityMode bool

	LegacySessionID []byte

	OfferedGroup groupset.ID
	ecdhPriv     groupset.PrivateKey

	Cookie []byte

	CertificateRequestContext []byte

	HRRCount int

	ReceivedExtensions extension.Mask
	SentExtensions     extension.Mask

	Mode Mode

	EarlyDataStatus EarlyDataStatus
	ALPNSelected    string

	Transcript *transcript.Transcript
	Schedule   *keyschedule.Schedule

	Suite ciphersuite.Info

	ClientAuth bool
	Resume     bool

	// Session is the ticket/PSK this handshake is attempting to resume,
	// if any; nil when offering no PSK.
	Session *session.Session

	HandshakeTransform   keyschedule.Transform
	ApplicationTransform keyschedule.Transform

	resumptionMasterSecret []byte
}

// NewContext starts a fresh handshake context for cfg, optionally
// attempting resumption against prior. prior may be nil.
func NewContext(cfg *config.Client, prior *session.Session) (*Context, error) {
	sid := make([]byte, 32)
	if _, err := rand.Read(sid); err != nil {
		return nil, alert.Newf(alert.Internal, "generate legacy_session_id: %v", err)
	}

	c := &Context{
		Config:            cfg,
		State:             StateHelloRequest,
		MinVersion:        extension.VersionTLS13,
		MaxVersion:        extension.VersionTLS13,
		CompatibilityMode: true,
		LegacySessionID:   sid,
		Session:           prior,
		Resume:            prior != nil,
	}
	return c, nil
}

// Destroy releases every owned resource along every exit path (spec.md
// §5 "Cancellation"): the ephemeral private key, the cookie buffer, and
// the negotiated secrets. Safe to call more than once.
func (c *Context) Destroy() {
	if c.ecdhPriv != nil {
		c.ecdhPriv.Destroy()
		c.ecdhPriv = nil
	}
	zero(c.Cookie)
	c.Cookie = nil
	zero(c.HandshakeTransform.ClientSecret)
	zero(c.HandshakeTransform.ServerSecret)
	zero(c.ApplicationTransform.ClientSecret)
	zero(c.ApplicationTransform.ServerSecret)
	zero(c.resumptionMasterSecret)
	c.resumptionMasterSecret = nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// resetKeyShare implements spec.md §9's documented open question
// (mbedtls's ssl_tls13_reset_key_share): destroy the current ephemeral
// key so a fresh one can be generated for the group dictated by an HRR.
// A DHE-only group is recognized but not generatable by groupset (the
// open question is kept, not fixed: this core never offers a DHE group
// in the first place), so that case surfaces as alert.Internal.
func (c *Context) resetKeyShare(newGroup groupset.ID) error {
	if groupset.IsDHE(newGroup) {
		return alert.Newf(alert.Internal, "reset_key_share: finite-field DHE group 0x%04x has no key-share generator", uint16(newGroup))
	}
	if c.ecdhPriv != nil {
		c.ecdhPriv.Destroy()
		c.ecdhPriv = nil
	}
	c.OfferedGroup = 0
	return nil
}
