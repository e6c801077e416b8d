package handshake

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/caddyserver/tls13/alert"
	"github.com/caddyserver/tls13/config"
	"github.com/caddyserver/tls13/extension"
	"github.com/caddyserver/tls13/internal/transcript"
	"github.com/caddyserver/tls13/keyschedule"
	"github.com/caddyserver/tls13/session"
	"github.com/caddyserver/tls13/wire"
)

// RecordLayer is the external collaborator spec.md §1, §6 describe: the
// handshake core never touches a socket or does any AEAD work itself,
// only this narrow framing/transform interface. Fragmentation,
// encryption, and sequence numbers belong to the implementation behind
// it (see internal/recordlayer for a reference).
type RecordLayer interface {
	WriteHandshakeMessage(msgType uint8, body []byte) error
	ReadHandshakeMessage() (msgType uint8, body []byte, err error)
	SetInboundTransform(t keyschedule.Transform) error
	SetOutboundTransform(t keyschedule.Transform) error
	WriteChangeCipherSpec() error
}

// CertificateProvider supplies the client's own certificate chain and
// signs CertificateVerify when the server requests client
// authentication (spec.md §4.8). A nil CertificateProvider, or one
// whose HasCertificate returns false, means the client has none to
// offer; per RFC 8446 §4.4.2 that is answered with an empty Certificate
// message rather than an error.
type CertificateProvider interface {
	HasCertificate() bool
	Chain() []CertificateEntry
	SupportedSchemes() []uint16
	// Sign signs the already context-wrapped content (see
	// certverify.SignatureContext) with the given signature scheme.
	Sign(scheme uint16, signed []byte) (signature []byte, err error)
}

// ServerCertVerifier is the external collaborator for server
// certificate-chain validation and CertificateVerify signature checking
// (spec.md §1: both are explicitly out of scope for this core).
// internal/certverify is this module's reference implementation.
type ServerCertVerifier interface {
	VerifyChain(certs [][]byte) (crypto.PublicKey, error)
	VerifySignature(pub crypto.PublicKey, scheme uint16, signed []byte, sig []byte) error
}

// Event is a positive, non-error signal Step surfaces to the caller
// (spec.md §9): a hand-off to a TLS 1.2 stack, or that the handshake has
// finished.
type Event int

const (
	EventNone Event = iota
	// EventServerHelloTLS12 means the server does not speak TLS 1.3; the
	// caller must hand the connection to a TLS 1.2 implementation
	// (spec.md §9 open question — no such fallback lives in this module).
	EventServerHelloTLS12
	EventHandshakeOver
)

// Driver runs one Context through the spec.md §4.10 state table, one
// Step call per transition. Grounded in shape on ekr/mint's per-state
// handler methods, adapted to spec.md's externally-clocked single-
// threaded Step() model rather than mint's message-driven Next(hm).
type Driver struct {
	ctx      *Context
	rl       RecordLayer
	verifier ServerCertVerifier
	cert     CertificateProvider
	store    *session.Store
	log      *zap.Logger

	// connID correlates every log line this Driver emits with one
	// handshake attempt, the way a request ID threads through a single
	// HTTP request's log lines.
	connID uuid.UUID

	clientRandom [32]byte

	// havePendingCertMsg/pendingCertMsg implement spec.md §4.7's peek:
	// the message read while looking for an optional CertificateRequest
	// turned out to already be the Certificate message.
	havePendingCertMsg bool
	pendingCertMsg      []byte

	serverCertPublicKey crypto.PublicKey
}

// NewDriver builds a Driver. verifier and cert may be nil only if the
// connection is known never to need them (verifier is always required
// in practice; cert is only needed when the server requests client
// authentication).
func NewDriver(ctx *Context, rl RecordLayer, verifier ServerCertVerifier, cert CertificateProvider, store *session.Store, log *zap.Logger) *Driver {
	if log == nil {
		log = zap.NewNop()
	}
	connID := uuid.New()
	d := &Driver{
		ctx:      ctx,
		rl:       rl,
		verifier: verifier,
		cert:     cert,
		store:    store,
		connID:   connID,
		log:      log.Named("handshake").With(zap.String("conn_id", connID.String())),
	}
	d.log.Debug("handshake started", zap.String("endpoint", ctx.Config.Endpoint))
	return d
}

// Context returns the handshake state this driver is advancing.
func (d *Driver) Context() *Context { return d.ctx }

// ConnectionID returns the correlation ID attached to every log line
// this Driver emits, for a caller to thread through its own logging or
// metrics for the same connection.
func (d *Driver) ConnectionID() uuid.UUID { return d.connID }

// handshakeHeader builds the 4-byte handshake message header (type +
// 24-bit length) RFC 8446 §4 prepends to every handshake body.
func handshakeHeader(msgType uint8, bodyLen int) []byte {
	return []byte{msgType, byte(bodyLen >> 16), byte(bodyLen >> 8), byte(bodyLen)}
}

// Step performs exactly one spec.md §4.10 state transition, blocking on
// the record layer as needed for that transition's message exchange.
func (d *Driver) Step() (Event, error) {
	switch d.ctx.State {
	case StateHelloRequest, StateClientHello:
		return EventNone, d.sendClientHello()
	case StateServerHello:
		return d.receiveServerHello()
	case StateEncryptedExtensions:
		return EventNone, d.receiveEncryptedExtensions()
	case StateCertificateRequest:
		return EventNone, d.receiveCertificateRequestOrSkip()
	case StateServerCertificate:
		return EventNone, d.receiveServerCertificate()
	case StateCertificateVerify:
		return EventNone, d.receiveServerCertificateVerify()
	case StateServerFinished:
		return EventNone, d.receiveServerFinished()
	case StateEndOfEarlyData:
		return EventNone, d.sendEndOfEarlyData()
	case StateClientCertificate:
		return EventNone, d.sendClientCertificate()
	case StateClientCertificateVerify:
		return EventNone, d.sendClientCertificateVerify()
	case StateClientFinished:
		return EventNone, d.sendClientFinished()
	case StateFlushBuffers:
		d.ctx.State = StateHandshakeWrapup
		return EventNone, nil
	case StateHandshakeWrapup:
		d.ctx.State = StateHandshakeOver
		d.log.Debug("handshake completed", zap.Int("mode", int(d.ctx.Mode)))
		return EventHandshakeOver, nil
	case StateHandshakeOver:
		return EventHandshakeOver, nil
	default:
		return EventNone, alert.Newf(alert.Internal, "driver: unhandled state %v", d.ctx.State)
	}
}

// ProcessNewSessionTicket implements spec.md §4.9: decode one post-
// handshake NewSessionTicket message body (message arrival here is
// driven by the caller's own I/O loop, not Step, since NewSessionTicket
// can arrive any number of times after HANDSHAKE_OVER) and persist the
// derived PSK, replacing any prior ticket for this endpoint.
func (d *Driver) ProcessNewSessionTicket(body []byte) (*session.Session, error) {
	nst, err := extension.ParseNewSessionTicket(wire.NewReader(body))
	if err != nil {
		return nil, err
	}

	var flags session.TicketFlags
	if d.ctx.Config.KEXModes.Has(config.PSKKE) {
		flags |= session.TicketAllowPSKKE
	}
	if d.ctx.Config.KEXModes.Has(config.PSKDHEKE) {
		flags |= session.TicketAllowPSKDHEKE
	}
	if nst.AllowEarlyData {
		flags |= session.TicketAllowEarlyData
	}

	psk := d.ctx.Schedule.DerivePSKForResumption(d.ctx.resumptionMasterSecret, nst.Nonce)

	sess := &session.Session{
		ID:             append([]byte(nil), d.ctx.LegacySessionID...),
		Suite:          d.ctx.Suite.ID,
		Version:        extension.VersionTLS13,
		Endpoint:       d.ctx.Config.Endpoint,
		Ticket:         nst.Ticket,
		TicketLifetime: nst.Lifetime,
		TicketAgeAdd:   nst.AgeAdd,
		TicketReceived: time.Now(),
		TicketFlags:    flags,
		ResumptionKey:  psk,
		AppSecrets:     session.AppSecrets{ResumptionMasterSecret: d.ctx.resumptionMasterSecret},
	}
	if d.store != nil {
		d.store.Put(d.ctx.Config.Endpoint, sess)
	}
	d.log.Debug("received new_session_ticket", zap.String("endpoint", sess.Endpoint), zap.Uint32("lifetime", sess.TicketLifetime))
	return sess, nil
}

func (d *Driver) sendClientHello() error {
	if d.ctx.Transcript == nil {
		d.ctx.Transcript = transcript.New(crypto.SHA256)
	}
	if d.ctx.Schedule == nil {
		d.ctx.Schedule = keyschedule.New(d.ctx.Transcript.HashAlg())
	}
	if d.ctx.HRRCount == 0 {
		if _, err := rand.Read(d.clientRandom[:]); err != nil {
			return alert.Newf(alert.Internal, "generate client random: %v", err)
		}
	}

	chb, err := d.ctx.buildClientHelloBody(d.clientRandom)
	if err != nil {
		return err
	}
	header := handshakeHeader(handshakeTypeClientHello, chb.writer.Len())

	if chb.patch != nil {
		psk := chb.psk
		if err := d.ctx.Schedule.StageEarly(psk.secret, psk.pskType); err != nil {
			return alert.Newf(alert.Internal, "stage early secret: %v", err)
		}

		binderStart := chb.writer.Len() - chb.patch.BinderRegionLen()
		d.ctx.Transcript.Write(header)
		d.ctx.Transcript.Write(chb.writer.Bytes()[:binderStart])
		truncatedHash := d.ctx.Transcript.Sum()

		binder, err := d.ctx.Schedule.CreatePSKBinder(truncatedHash)
		if err != nil {
			return alert.Newf(alert.Internal, "create psk binder: %v", err)
		}
		if err := chb.patch.WriteBinders(chb.writer, [][]byte{binder}); err != nil {
			return err
		}
		d.ctx.Transcript.Write(chb.writer.Bytes()[binderStart:])
	} else {
		if err := d.ctx.Schedule.StageEarly(nil, keyschedule.PSKExternal); err != nil {
			return alert.Newf(alert.Internal, "stage early secret: %v", err)
		}
		d.ctx.Transcript.Write(header)
		d.ctx.Transcript.Write(chb.writer.Bytes())
	}

	if err := d.rl.WriteHandshakeMessage(handshakeTypeClientHello, chb.writer.Bytes()); err != nil {
		return err
	}

	if len(d.ctx.Cookie) > 0 {
		zero(d.ctx.Cookie)
		d.ctx.Cookie = nil
	}
	d.ctx.State = StateServerHello
	return nil
}

func (d *Driver) receiveServerHello() (Event, error) {
	msgType, body, err := d.rl.ReadHandshakeMessage()
	if err != nil {
		return EventNone, err
	}
	if msgType != handshakeTypeServerHello {
		return EventNone, alert.Newf(alert.UnexpectedMessage, "expected server_hello, got handshake type %d", msgType)
	}

	kind, prefix, err := d.ctx.ClassifyServerHello(body)
	if err != nil {
		return EventNone, err
	}

	switch kind {
	case KindServerHelloTLS12:
		return EventServerHelloTLS12, nil

	case KindHelloRetryRequest:
		// RFC 8446 §4.4.1: ClientHello1 is replaced in the transcript by
		// a synthetic message_hash record before the HRR itself is
		// hashed in, rather than simply appending onto ClientHello1's
		// raw bytes.
		ch1Hash := d.ctx.Transcript.Sum()
		d.ctx.Transcript.Reset()
		d.ctx.Transcript.Write(handshakeHeader(handshakeTypeMessageHash, len(ch1Hash)))
		d.ctx.Transcript.Write(ch1Hash)
		d.ctx.Transcript.Write(handshakeHeader(handshakeTypeServerHello, len(body)))
		d.ctx.Transcript.Write(body)
		if err := d.ctx.ApplyHelloRetryRequest(prefix); err != nil {
			return EventNone, err
		}
		if d.ctx.CompatibilityMode {
			if err := d.rl.WriteChangeCipherSpec(); err != nil {
				return EventNone, err
			}
		}
		return EventNone, nil

	case KindServerHello:
		d.ctx.Transcript.Write(handshakeHeader(handshakeTypeServerHello, len(body)))
		d.ctx.Transcript.Write(body)

		dhSecret, err := d.ctx.ApplyServerHello(prefix)
		if err != nil {
			return EventNone, err
		}

		transcriptHash := d.ctx.Transcript.Sum()
		hsTransform, err := d.ctx.Schedule.ComputeHandshakeTransform(dhSecret, transcriptHash)
		if err != nil {
			return EventNone, alert.Newf(alert.Internal, "compute handshake transform: %v", err)
		}
		d.ctx.HandshakeTransform = hsTransform
		if err := d.rl.SetInboundTransform(hsTransform); err != nil {
			return EventNone, err
		}

		d.ctx.State = StateEncryptedExtensions
		return EventNone, nil

	default:
		return EventNone, alert.Newf(alert.Internal, "unreachable server_hello classification")
	}
}

func (d *Driver) receiveEncryptedExtensions() error {
	msgType, body, err := d.rl.ReadHandshakeMessage()
	if err != nil {
		return err
	}
	if msgType != handshakeTypeEncryptedExtensions {
		return alert.Newf(alert.UnexpectedMessage, "expected encrypted_extensions, got %d", msgType)
	}
	d.ctx.Transcript.Write(handshakeHeader(msgType, len(body)))
	d.ctx.Transcript.Write(body)

	r := wire.NewReader(body)
	extLen, err := r.Uint16()
	if err != nil {
		return err
	}
	sub, err := r.Sub(int(extLen))
	if err != nil {
		return err
	}
	if !r.Done() {
		return alert.Newf(alert.DecodeError, "encrypted_extensions: trailing bytes")
	}

	ee, err := extension.ParseEncryptedExtensions(sub)
	if err != nil {
		return err
	}
	d.ctx.ReceivedExtensions = d.ctx.ReceivedExtensions | ee.Mask

	if ee.Mask.Has(extension.ALPN) {
		if !d.ctx.Config.HasALPNOffer(ee.ALPNProtocol) {
			return alert.Newf(alert.BadInput, "server selected alpn protocol %q we did not offer", ee.ALPNProtocol)
		}
		d.ctx.ALPNSelected = ee.ALPNProtocol
	}
	if ee.Mask.Has(extension.EarlyData) && d.ctx.EarlyDataStatus == EarlyDataRejected {
		d.ctx.EarlyDataStatus = EarlyDataAccepted
	}

	if d.ctx.Mode == ModePSK {
		d.ctx.State = StateServerFinished
	} else {
		d.ctx.State = StateCertificateRequest
	}
	return nil
}

// receiveCertificateRequestOrSkip implements spec.md §4.7: the next
// message is either an optional CertificateRequest, or directly the
// server's Certificate. Since the record layer offers no type-peeking
// primitive, the message is read and, if it turns out to be Certificate
// already, stashed for receiveServerCertificate.
func (d *Driver) receiveCertificateRequestOrSkip() error {
	msgType, body, err := d.rl.ReadHandshakeMessage()
	if err != nil {
		return err
	}

	if msgType == handshakeTypeCertificateRequest {
		d.ctx.Transcript.Write(handshakeHeader(msgType, len(body)))
		d.ctx.Transcript.Write(body)
		if err := d.ctx.ApplyCertificateRequest(body); err != nil {
			return err
		}
		d.ctx.State = StateServerCertificate
		return nil
	}

	if msgType != handshakeTypeCertificate {
		return alert.Newf(alert.UnexpectedMessage, "expected certificate_request or certificate, got %d", msgType)
	}
	d.havePendingCertMsg = true
	d.pendingCertMsg = body
	d.ctx.State = StateServerCertificate
	return nil
}

func (d *Driver) receiveServerCertificate() error {
	var body []byte
	if d.havePendingCertMsg {
		body = d.pendingCertMsg
		d.havePendingCertMsg = false
		d.pendingCertMsg = nil
	} else {
		msgType, b, err := d.rl.ReadHandshakeMessage()
		if err != nil {
			return err
		}
		if msgType != handshakeTypeCertificate {
			return alert.Newf(alert.UnexpectedMessage, "expected certificate, got %d", msgType)
		}
		body = b
	}
	d.ctx.Transcript.Write(handshakeHeader(handshakeTypeCertificate, len(body)))
	d.ctx.Transcript.Write(body)

	msg, err := ParseCertificateMessage(body)
	if err != nil {
		return err
	}

	certs := make([][]byte, len(msg.Entries))
	for i, e := range msg.Entries {
		certs[i] = e.Data
	}
	pub, err := d.verifier.VerifyChain(certs)
	if err != nil {
		return alert.Newf(alert.BadCertificate, "%v", err)
	}
	d.serverCertPublicKey = pub

	d.ctx.State = StateCertificateVerify
	return nil
}

func (d *Driver) receiveServerCertificateVerify() error {
	msgType, body, err := d.rl.ReadHandshakeMessage()
	if err != nil {
		return err
	}
	if msgType != handshakeTypeCertificateVerify {
		return alert.Newf(alert.UnexpectedMessage, "expected certificate_verify, got %d", msgType)
	}

	// The signature covers the transcript through Certificate, i.e.
	// before this message is added to it.
	transcriptHash := d.ctx.Transcript.Sum()

	d.ctx.Transcript.Write(handshakeHeader(msgType, len(body)))
	d.ctx.Transcript.Write(body)

	cv, err := ParseCertificateVerifyMessage(body)
	if err != nil {
		return err
	}

	signed := signatureContext(transcriptHash, false)
	if err := d.verifier.VerifySignature(d.serverCertPublicKey, cv.Scheme, signed, cv.Signature); err != nil {
		return alert.Newf(alert.BadCertificate, "%v", err)
	}

	d.ctx.State = StateServerFinished
	return nil
}

func (d *Driver) receiveServerFinished() error {
	msgType, body, err := d.rl.ReadHandshakeMessage()
	if err != nil {
		return err
	}
	if msgType != handshakeTypeFinished {
		return alert.Newf(alert.UnexpectedMessage, "expected finished, got %d", msgType)
	}

	transcriptHash := d.ctx.Transcript.Sum()
	want := d.ctx.Schedule.VerifyDataFor(d.ctx.HandshakeTransform.ServerSecret, transcriptHash)
	if !hmac.Equal(want, body) {
		return alert.Newf(alert.DecodeError, "server finished: verify_data mismatch")
	}

	d.ctx.Transcript.Write(handshakeHeader(msgType, len(body)))
	d.ctx.Transcript.Write(body)

	appTranscriptHash := d.ctx.Transcript.Sum()
	appTransform, err := d.ctx.Schedule.ComputeApplicationTransform(appTranscriptHash)
	if err != nil {
		return alert.Newf(alert.Internal, "compute application transform: %v", err)
	}
	d.ctx.ApplicationTransform = appTransform
	if err := d.rl.SetInboundTransform(appTransform); err != nil {
		return err
	}

	if d.ctx.EarlyDataStatus == EarlyDataAccepted {
		d.ctx.State = StateEndOfEarlyData
		return nil
	}

	if d.ctx.CompatibilityMode && d.ctx.HRRCount == 0 {
		if err := d.rl.WriteChangeCipherSpec(); err != nil {
			return err
		}
	}
	d.ctx.State = StateClientCertificate
	return nil
}

func (d *Driver) sendEndOfEarlyData() error {
	header := handshakeHeader(handshakeTypeEndOfEarlyData, 0)
	d.ctx.Transcript.Write(header)
	if err := d.rl.WriteHandshakeMessage(handshakeTypeEndOfEarlyData, nil); err != nil {
		return err
	}
	if err := d.rl.SetOutboundTransform(d.ctx.HandshakeTransform); err != nil {
		return err
	}
	d.ctx.State = StateClientCertificate
	return nil
}

func (d *Driver) sendClientCertificate() error {
	if !d.ctx.ClientAuth {
		d.ctx.State = StateClientFinished
		return nil
	}

	var entries []CertificateEntry
	if d.cert != nil && d.cert.HasCertificate() {
		entries = d.cert.Chain()
	}
	body, err := BuildCertificateMessage(d.ctx.CertificateRequestContext, entries)
	if err != nil {
		return err
	}

	d.ctx.Transcript.Write(handshakeHeader(handshakeTypeCertificate, len(body)))
	d.ctx.Transcript.Write(body)
	if err := d.rl.WriteHandshakeMessage(handshakeTypeCertificate, body); err != nil {
		return err
	}

	if len(entries) == 0 {
		d.ctx.State = StateClientFinished
		return nil
	}
	d.ctx.State = StateClientCertificateVerify
	return nil
}

func (d *Driver) sendClientCertificateVerify() error {
	schemes := d.cert.SupportedSchemes()
	if len(schemes) == 0 {
		return alert.Newf(alert.Internal, "client certificate configured but no signature schemes supported")
	}
	scheme := schemes[0]

	transcriptHash := d.ctx.Transcript.Sum()
	signed := signatureContext(transcriptHash, true)
	sig, err := d.cert.Sign(scheme, signed)
	if err != nil {
		return alert.Newf(alert.Internal, "sign certificate_verify: %v", err)
	}

	body, err := BuildCertificateVerifyMessage(scheme, sig)
	if err != nil {
		return err
	}
	d.ctx.Transcript.Write(handshakeHeader(handshakeTypeCertificateVerify, len(body)))
	d.ctx.Transcript.Write(body)
	if err := d.rl.WriteHandshakeMessage(handshakeTypeCertificateVerify, body); err != nil {
		return err
	}

	d.ctx.State = StateClientFinished
	return nil
}

func (d *Driver) sendClientFinished() error {
	transcriptHash := d.ctx.Transcript.Sum()
	verifyData := d.ctx.Schedule.VerifyDataFor(d.ctx.HandshakeTransform.ClientSecret, transcriptHash)

	d.ctx.Transcript.Write(handshakeHeader(handshakeTypeFinished, len(verifyData)))
	d.ctx.Transcript.Write(verifyData)
	if err := d.rl.WriteHandshakeMessage(handshakeTypeFinished, verifyData); err != nil {
		return err
	}

	resumptionHash := d.ctx.Transcript.Sum()
	rms, err := d.ctx.Schedule.ComputeResumptionMasterSecret(resumptionHash)
	if err != nil {
		return alert.Newf(alert.Internal, "compute resumption master secret: %v", err)
	}
	d.ctx.resumptionMasterSecret = rms

	if err := d.rl.SetOutboundTransform(d.ctx.ApplicationTransform); err != nil {
		return err
	}

	d.ctx.State = StateFlushBuffers
	return nil
}

// signatureContext mirrors certverify.SignatureContext without this
// package importing internal/certverify, so a caller is free to supply
// a ServerCertVerifier/CertificateProvider pair that isn't backed by it.
func signatureContext(transcriptHash []byte, isClient bool) []byte {
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
