// Package keyschedule implements the narrow key-schedule hooks the
// handshake core invokes at the defined transitions (spec.md §6): early/
// handshake/application secret derivation, PSK binder computation, and
// resumption-secret derivation. HKDF and HMAC themselves are the
// "primitive crypto" spec.md §1 declares out of scope for the core; this
// package is the reference implementation of the narrow interface the
// core actually calls through, grounded in mint's crypto.go
// (hkdfExtract/deriveSecret/computeFinishedData) and built on
// golang.org/x/crypto/hkdf.
package keyschedule

import (
	"crypto"
	"crypto/hmac"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Transform is the set of secrets needed to move a traffic direction to
// a new cryptographic epoch. Sealing/opening AEAD records from it is the
// record layer's job (spec.md §1 Out of scope); this core only computes
// and hands off the secret.
type Transform struct {
	ClientSecret []byte
	ServerSecret []byte
	Hash         crypto.Hash
}

// Schedule holds the running key-schedule state for one handshake. Zero
// value is not usable; construct with New.
type Schedule struct {
	hash crypto.Hash

	earlySecret     []byte
	handshakeSecret []byte
	masterSecret    []byte
	binderKey       []byte
}

// New creates a Schedule for the given transcript hash algorithm
// (selected by the negotiated ciphersuite, spec.md §3 ciphersuite_info).
func New(hash crypto.Hash) *Schedule {
	return &Schedule{hash: hash}
}

func (s *Schedule) zeroIKM() []byte {
	return make([]byte, s.hash.Size())
}

// StageEarly derives the early secret from psk (or an all-zero IKM if
// psk is nil, i.e. no PSK mode negotiated — RFC 8446 §7.1's "Derive-Secret"
// chain still runs through early_secret even without a PSK) and the
// binder key for pskType. This corresponds to spec.md §6's
// key_schedule_stage_early().
func (s *Schedule) StageEarly(psk []byte, pskType PSKType) error {
	ikm := psk
	if ikm == nil {
		ikm = s.zeroIKM()
	}
	s.earlySecret = s.hkdfExtract(s.zeroIKM(), ikm)

	h0 := s.emptyTranscriptHash()
	key := s.deriveSecret(s.earlySecret, pskType.binderLabel(), h0)
	s.binderKey = key
	return nil
}

// CreatePSKBinder computes the binder HMAC over transcriptHash (the hash
// of the ClientHello truncated just before the binders list, per spec.md
// §4.3) keyed by the binder key derived in StageEarly. Corresponds to
// spec.md §6's create_psk_binder().
func (s *Schedule) CreatePSKBinder(transcriptHash []byte) ([]byte, error) {
	if s.binderKey == nil {
		return nil, fmt.Errorf("keyschedule: StageEarly must run before CreatePSKBinder")
	}
	return s.finishedMAC(s.binderKey, transcriptHash), nil
}

// ComputeHandshakeTransform derives the handshake traffic secrets from
// the (EC)DHE shared secret (or an all-zero value in PSK-only mode) and
// the transcript hash through ServerHello. Corresponds to spec.md §6's
// compute_handshake_transform().
func (s *Schedule) ComputeHandshakeTransform(dhSecret []byte, transcriptHash []byte) (Transform, error) {
	if s.earlySecret == nil {
		// No PSK was offered; StageEarly still must have run to seed
		// early_secret with an all-zero IKM (RFC 8446 §7.1).
		return Transform{}, fmt.Errorf("keyschedule: StageEarly must run before ComputeHandshakeTransform")
	}
	if dhSecret == nil {
		dhSecret = s.zeroIKM()
	}

	h0 := s.emptyTranscriptHash()
	preHandshakeSecret := s.deriveSecret(s.earlySecret, labelDerived, h0)
	s.handshakeSecret = s.hkdfExtract(preHandshakeSecret, dhSecret)

	client := s.deriveSecret(s.handshakeSecret, labelClientHandshakeTrafficSecret, transcriptHash)
	server := s.deriveSecret(s.handshakeSecret, labelServerHandshakeTrafficSecret, transcriptHash)

	return Transform{ClientSecret: client, ServerSecret: server, Hash: s.hash}, nil
}

// ComputeApplicationTransform derives the application traffic secrets
// from the transcript hash through ServerFinished. Corresponds to
// spec.md §6's compute_application_transform().
func (s *Schedule) ComputeApplicationTransform(transcriptHash []byte) (Transform, error) {
	if s.handshakeSecret == nil {
		return Transform{}, fmt.Errorf("keyschedule: ComputeHandshakeTransform must run first")
	}

	h0 := s.emptyTranscriptHash()
	preMasterSecret := s.deriveSecret(s.handshakeSecret, labelDerived, h0)
	s.masterSecret = s.hkdfExtract(preMasterSecret, s.zeroIKM())

	client := s.deriveSecret(s.masterSecret, labelClientApplicationTrafficSecret, transcriptHash)
	server := s.deriveSecret(s.masterSecret, labelServerApplicationTrafficSecret, transcriptHash)

	return Transform{ClientSecret: client, ServerSecret: server, Hash: s.hash}, nil
}

// ComputeResumptionMasterSecret derives the resumption master secret
// from the transcript hash through the client's Finished message.
// Corresponds to spec.md §6's compute_resumption_master_secret().
func (s *Schedule) ComputeResumptionMasterSecret(transcriptHash []byte) ([]byte, error) {
	if s.masterSecret == nil {
		return nil, fmt.Errorf("keyschedule: ComputeApplicationTransform must run first")
	}
	return s.deriveSecret(s.masterSecret, labelResumptionSecret, transcriptHash), nil
}

// VerifyDataFor computes the Finished verify-data for a given traffic
// secret and transcript hash (RFC 8446 §4.4.4), used both to check the
// server's Finished and to produce the client's.
func (s *Schedule) VerifyDataFor(trafficSecret []byte, transcriptHash []byte) []byte {
	finishedKey := s.hkdfExpandLabel(trafficSecret, "finished", nil, s.hash.Size())
	return s.finishedMAC(finishedKey, transcriptHash)
}

// DerivePSKForResumption implements spec.md §4.9's ticket-PSK derivation:
// HKDF-Expand-Label(resumption_master_secret, "resumption", ticket_nonce, Hash.length).
func (s *Schedule) DerivePSKForResumption(resumptionMasterSecret, ticketNonce []byte) []byte {
	return s.hkdfExpandLabel(resumptionMasterSecret, labelResumptionPSK, ticketNonce, s.hash.Size())
}

func (s *Schedule) emptyTranscriptHash() []byte {
	h := s.hash.New()
	return h.Sum(nil)
}

func (s *Schedule) hkdfExtract(salt, ikm []byte) []byte {
	return hkdf.Extract(s.hash.New, ikm, salt)
}

// hkdfExpandLabel implements RFC 8446 §7.1's HKDF-Expand-Label, building
// the HkdfLabel structure (length, "tls13 "+label as a one-byte vector,
// context as a one-byte vector) and running HKDF-Expand over it.
func (s *Schedule) hkdfExpandLabel(secret []byte, label string, context []byte, length int) []byte {
	full := "tls13 " + label
	info := make([]byte, 0, 2+1+len(full)+1+len(context))
	info = append(info, byte(length>>8), byte(length))
	info = append(info, byte(len(full)))
	info = append(info, full...)
	info = append(info, byte(len(context)))
	info = append(info, context...)

	out := make([]byte, length)
	r := hkdf.Expand(s.hash.New, secret, info)
	if _, err := io.ReadFull(r, out); err != nil {
		// HKDF-Expand can only fail if the requested length exceeds
		// 255*HashLen, which never happens for the fixed-size labels
		// this module requests; treat it as an invariant violation.
		panic(fmt.Sprintf("keyschedule: hkdf expand: %v", err))
	}
	return out
}

func (s *Schedule) deriveSecret(secret []byte, label string, transcriptHash []byte) []byte {
	return s.hkdfExpandLabel(secret, label, transcriptHash, s.hash.Size())
}

func (s *Schedule) finishedMAC(key, transcriptHash []byte) []byte {
	mac := hmac.New(s.hash.New, key)
	mac.Write(transcriptHash)
	return mac.Sum(nil)
}
