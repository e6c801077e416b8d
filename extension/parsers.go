package extension

import (
	"github.com/caddyserver/tls13/alert"
	"github.com/caddyserver/tls13/groupset"
	"github.com/caddyserver/tls13/wire"
)

// Entry is one parsed (type, payload) pair from an extensions block,
// with Data bounded to exactly the extension's declared length.
type Entry struct {
	Type Type
	Data *wire.Reader
}

// ParseAll reads a sequence of (type(2), length(2), data) extension
// frames until r is exhausted, rejecting anything not set in allow with
// unsupported_extension and rejecting a duplicate type with decode_error
// (RFC 8446 §4.2 allows at most one extension of each type per block).
// r must already be bounded to
// exactly the declared extensions<..> block — callers get that bound via
// Reader.Sub. It does not interpret payloads.
func ParseAll(r *wire.Reader, allow Mask) ([]Entry, Mask, error) {
	var entries []Entry
	var seen Mask
	for !r.Done() {
		rawType, err := r.Uint16()
		if err != nil {
			return nil, 0, err
		}
		t := Type(rawType)
		length, err := r.Uint16()
		if err != nil {
			return nil, 0, err
		}
		data, err := r.Sub(int(length))
		if err != nil {
			return nil, 0, err
		}
		if !allow.Has(t) {
			return nil, 0, alert.Newf(alert.UnsupportedExtension, "extension type %d not allowed in this message", rawType)
		}
		if seen.Has(t) {
			return nil, 0, alert.Newf(alert.DecodeError, "duplicate extension type %d", rawType)
		}
		seen = seen.Set(t)
		entries = append(entries, Entry{Type: t, Data: data})
	}
	return entries, seen, nil
}

func requireExhausted(r *wire.Reader, what string) error {
	if !r.Done() {
		return alert.Newf(alert.DecodeError, "%s: trailing bytes", what)
	}
	return nil
}

// ServerHello holds the extensions this module recognizes from a
// ServerHello or HelloRetryRequest body (spec.md §4.5); the two messages
// share a wire shape but differ in which extensions are legal and how
// key_share is interpreted.
type ServerHello struct {
	Mask Mask

	HasSupportedVersions bool
	SelectedVersion      uint16

	HasKeyShare bool
	// KeyShareGroup is the server's chosen group, valid for both
	// ServerHello (must equal the client's offered_group_id) and HRR
	// (selected_group, must differ from it).
	KeyShareGroup groupset.ID
	// KeyShareData is the server's public share; only set for ServerHello
	// — HRR's key_share carries no key_exchange field.
	KeyShareData []byte

	// Cookie is only populated when parsing an HRR.
	Cookie []byte

	HasPSK           bool
	SelectedIdentity uint16
}

// ParseServerHello decodes the extension block of a ServerHello or HRR.
// r must be bounded to the extensions<6..2^16-1> region already (the
// caller parses legacy_version/random/session_id/cipher_suite/
// compression first, per spec.md §4.5). isHRR selects AllowedHRR vs
// AllowedServerHello and the key_share/cookie interpretation.
func ParseServerHello(r *wire.Reader, isHRR bool) (*ServerHello, error) {
	allow := AllowedServerHello
	if isHRR {
		allow = AllowedHRR
	}
	entries, mask, err := ParseAll(r, allow)
	if err != nil {
		return nil, err
	}

	out := &ServerHello{Mask: mask}
	for _, e := range entries {
		switch e.Type {
		case SupportedVersions:
			v, err := e.Data.Uint16()
			if err != nil {
				return nil, err
			}
			if err := requireExhausted(e.Data, "supported_versions"); err != nil {
				return nil, err
			}
			out.HasSupportedVersions = true
			out.SelectedVersion = v

		case KeyShare:
			g, err := e.Data.Uint16()
			if err != nil {
				return nil, err
			}
			out.HasKeyShare = true
			out.KeyShareGroup = groupset.ID(g)
			if isHRR {
				if err := requireExhausted(e.Data, "hrr key_share"); err != nil {
					return nil, err
				}
			} else {
				ks, err := e.Data.Vector16()
				if err != nil {
					return nil, err
				}
				if err := requireExhausted(e.Data, "server_hello key_share"); err != nil {
					return nil, err
				}
				out.KeyShareData = ks
			}

		case Cookie:
			c, err := e.Data.Vector16()
			if err != nil {
				return nil, err
			}
			if err := requireExhausted(e.Data, "cookie"); err != nil {
				return nil, err
			}
			out.Cookie = c

		case PreSharedKey:
			id, err := e.Data.Uint16()
			if err != nil {
				return nil, err
			}
			if err := requireExhausted(e.Data, "pre_shared_key selected_identity"); err != nil {
				return nil, err
			}
			out.HasPSK = true
			out.SelectedIdentity = id
		}
	}
	return out, nil
}

// EncryptedExtensions holds the extensions this module recognizes from
// an EncryptedExtensions message (spec.md §4.6).
type EncryptedExtensions struct {
	Mask         Mask
	ALPNProtocol string
	EarlyData    bool
}

// ParseEncryptedExtensions decodes an EncryptedExtensions body. r must be
// bounded to the extensions<0..2^16-1> region.
func ParseEncryptedExtensions(r *wire.Reader) (*EncryptedExtensions, error) {
	entries, mask, err := ParseAll(r, AllowedEncryptedExtensions)
	if err != nil {
		return nil, err
	}
	out := &EncryptedExtensions{Mask: mask}
	for _, e := range entries {
		switch e.Type {
		case ALPN:
			list, err := e.Data.Vector16()
			if err != nil {
				return nil, err
			}
			if err := requireExhausted(e.Data, "alpn"); err != nil {
				return nil, err
			}
			lr := wire.NewReader(list)
			proto, err := lr.Vector8()
			if err != nil {
				return nil, err
			}
			if err := requireExhausted(lr, "alpn: server must select exactly one protocol"); err != nil {
				return nil, err
			}
			out.ALPNProtocol = string(proto)

		case EarlyData:
			if err := requireExhausted(e.Data, "early_data in encrypted_extensions must be empty"); err != nil {
				return nil, err
			}
			out.EarlyData = true

		case ServerName:
			if err := requireExhausted(e.Data, "server_name ack must be empty"); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// CertificateRequest holds the parsed body of an optional
// CertificateRequest message (spec.md §4.7).
type CertificateRequest struct {
	Context                []byte
	SignatureAlgorithms    []uint16
	CertificateAuthorities []byte
}

// ParseCertificateRequest decodes a full CertificateRequest body
// (certificate_request_context<0..2^8-1> | extensions<2..2^16-1>).
// signature_algorithms is mandatory; its absence is a decode_error per
// spec.md §4.7.
func ParseCertificateRequest(r *wire.Reader) (*CertificateRequest, error) {
	ctx, err := r.Vector8()
	if err != nil {
		return nil, err
	}
	extLen, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	sub, err := r.Sub(int(extLen))
	if err != nil {
		return nil, err
	}
	entries, mask, err := ParseAll(sub, AllowedCertificateRequest)
	if err != nil {
		return nil, err
	}
	if !mask.Has(SignatureAlgorithms) {
		return nil, alert.Newf(alert.DecodeError, "certificate_request: signature_algorithms is required")
	}

	out := &CertificateRequest{Context: ctx}
	for _, e := range entries {
		switch e.Type {
		case SignatureAlgorithms:
			list, err := e.Data.Vector16()
			if err != nil {
				return nil, err
			}
			if err := requireExhausted(e.Data, "signature_algorithms"); err != nil {
				return nil, err
			}
			lr := wire.NewReader(list)
			for !lr.Done() {
				v, err := lr.Uint16()
				if err != nil {
					return nil, err
				}
				out.SignatureAlgorithms = append(out.SignatureAlgorithms, v)
			}
		case CertificateAuthorities:
			cas, err := e.Data.Vector16()
			if err != nil {
				return nil, err
			}
			if err := requireExhausted(e.Data, "certificate_authorities"); err != nil {
				return nil, err
			}
			out.CertificateAuthorities = cas
		}
	}
	return out, nil
}

// NewSessionTicket holds the parsed body of a post-handshake
// NewSessionTicket message (spec.md §4.9).
type NewSessionTicket struct {
	Lifetime       uint32
	AgeAdd         uint32
	Nonce          []byte
	Ticket         []byte
	AllowEarlyData bool
}

// ParseNewSessionTicket decodes a full NewSessionTicket body:
// ticket_lifetime(4) | ticket_age_add(4) | ticket_nonce<0..255> |
// ticket<1..2^16-1> | extensions<0..2^16-2>. The message must be
// exhausted exactly afterward.
func ParseNewSessionTicket(r *wire.Reader) (*NewSessionTicket, error) {
	lifetime, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	ageAdd, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	nonce, err := r.Vector8()
	if err != nil {
		return nil, err
	}
	ticket, err := r.Vector16()
	if err != nil {
		return nil, err
	}
	extLen, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	sub, err := r.Sub(int(extLen))
	if err != nil {
		return nil, err
	}
	entries, _, err := ParseAll(sub, AllowedNewSessionTicket)
	if err != nil {
		return nil, err
	}

	out := &NewSessionTicket{Lifetime: lifetime, AgeAdd: ageAdd, Nonce: nonce, Ticket: ticket}
	for _, e := range entries {
		if e.Type == EarlyData {
			if e.Data.Len() != 4 {
				return nil, alert.Newf(alert.DecodeError, "early_data in new_session_ticket must be exactly 4 bytes, got %d", e.Data.Len())
			}
			out.AllowEarlyData = true
		}
	}
	if err := requireExhausted(r, "new_session_ticket"); err != nil {
		return nil, err
	}
	return out, nil
}
