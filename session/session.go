// Package session implements the Session (negotiating) data model of
// spec.md §3 — state that may outlive a single handshake for resumption —
// together with an in-memory ticket store. Grounded in caddytls's
// Config/user.go idiom of keeping negotiated state separate from
// read-only configuration.
package session

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TicketFlags are bits describing what a resumption ticket permits.
type TicketFlags uint8

const (
	// TicketAllowEarlyData is set when the ticket's early_data extension
	// (spec.md §4.9) was present, permitting 0-RTT on the next handshake.
	TicketAllowEarlyData TicketFlags = 1 << iota
	// TicketAllowPSKKE is set when conf.tls13_kex_modes permits psk_ke.
	TicketAllowPSKKE
	// TicketAllowPSKDHEKE is set when conf.tls13_kex_modes permits psk_dhe_ke.
	TicketAllowPSKDHEKE
)

// AppSecrets holds the application-layer secrets retained after a
// handshake completes, for use by a later resumption.
type AppSecrets struct {
	ResumptionMasterSecret []byte
}

// Session is the longer-lived negotiation record described in spec.md
// §3: it may outlive the handshake that created it, carrying a ticket
// and derived resumption material for a future connection to the same
// endpoint.
type Session struct {
	ID       []byte
	Suite    uint16
	Version  uint16
	Endpoint string

	Ticket         []byte
	TicketLifetime uint32
	TicketAgeAdd   uint32
	TicketReceived time.Time
	TicketFlags    TicketFlags

	ResumptionKey []byte

	AppSecrets AppSecrets

	// Exported is cleared whenever the session is refreshed by a new
	// NewSessionTicket (spec.md §3). The handshake core offers a session's
	// ticket for resumption only while Exported == false.
	Exported bool
}

// AllowsPSKKE reports whether the ticket permits the psk_ke key-exchange
// mode (RFC 8446 §4.2.9).
func (f TicketFlags) AllowsPSKKE() bool { return f&TicketAllowPSKKE != 0 }

// AllowsPSKDHEKE reports whether the ticket permits psk_dhe_ke.
func (f TicketFlags) AllowsPSKDHEKE() bool { return f&TicketAllowPSKDHEKE != 0 }

// AllowsEarlyData reports whether this session's ticket permits 0-RTT.
func (s *Session) AllowsEarlyData() bool {
	return s.TicketFlags&TicketAllowEarlyData != 0
}

// TicketAge returns how long ago the ticket was received, floored at
// zero (a session with no ticket yet has a zero TicketReceived).
func (s *Session) TicketAge(now time.Time) time.Duration {
	if s.TicketReceived.IsZero() {
		return 0
	}
	d := now.Sub(s.TicketReceived)
	if d < 0 {
		d = 0
	}
	return d
}

// ObfuscatedTicketAge implements spec.md §4.3's obfuscation formula:
//
//	age_seconds = now - ticket_received
//	if age_seconds > 0: age_seconds -= 1   # clock-truncation guard
//	age_ms      = age_seconds * 1000
//	obfuscated  = (age_ms + ticket_age_add) mod 2^32
//
// The "subtract one second" guard avoids the server computing a smaller
// lifetime than the client and rejecting the ticket.
func (s *Session) ObfuscatedTicketAge(now time.Time) uint32 {
	ageSeconds := int64(s.TicketAge(now) / time.Second)
	if ageSeconds > 0 {
		ageSeconds--
	}
	ageMS := uint64(ageSeconds) * 1000
	return uint32((ageMS + uint64(s.TicketAgeAdd)) & 0xFFFFFFFF)
}

// Store is a concurrency-safe in-memory cache of Sessions keyed by
// server endpoint, used for resumption across connections to the same
// host. Concurrent lookups for the same key while nothing is cached yet
// are coalesced with singleflight so a burst of simultaneous dials to one
// host doesn't stampede the cache (grounded in the teacher's direct
// dependency on golang.org/x/sync).
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	loads    singleflight.Group
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Get returns the cached Session for endpoint, if any.
func (s *Store) Get(endpoint string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[endpoint]
	return sess, ok
}

// GetOrLoad returns the cached Session for endpoint, or calls load to
// produce one (e.g. from an on-disk ticket cache) and stores the result.
// Concurrent GetOrLoad calls for the same endpoint share a single in-
// flight load instead of each invoking load independently.
func (s *Store) GetOrLoad(endpoint string, load func() (*Session, error)) (*Session, error) {
	if sess, ok := s.Get(endpoint); ok {
		return sess, nil
	}
	v, err, _ := s.loads.Do(endpoint, func() (any, error) {
		if sess, ok := s.Get(endpoint); ok {
			return sess, nil
		}
		sess, err := load()
		if err != nil {
			return nil, err
		}
		s.Put(endpoint, sess)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Put replaces any prior ticket/session for endpoint (spec.md §4.9:
// "Replace any prior ticket").
func (s *Store) Put(endpoint string, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[endpoint] = sess
}

// Delete removes a cached session, e.g. after a failed resumption attempt.
func (s *Store) Delete(endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, endpoint)
}
