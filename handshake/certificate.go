package handshake

import (
	"github.com/caddyserver/tls13/alert"
	"github.com/caddyserver/tls13/wire"
)

// CertificateEntry is one entry of a Certificate message's
// certificate_list (RFC 8446 §4.4.2): the DER-encoded certificate plus
// its per-certificate extensions (e.g. OCSP stapling), which this core
// passes through without interpreting.
type CertificateEntry struct {
	Data       []byte
	Extensions []byte
}

// CertificateMessage is the parsed body of a Certificate message.
type CertificateMessage struct {
	Context []byte
	Entries []CertificateEntry
}

// ParseCertificateMessage decodes a full Certificate message body:
// certificate_request_context<0..2^8-1> | CertificateEntry
// certificate_list<0..2^24-1>.
func ParseCertificateMessage(body []byte) (*CertificateMessage, error) {
	r := wire.NewReader(body)
	ctx, err := r.Vector8()
	if err != nil {
		return nil, err
	}
	listLen, err := r.Uint24()
	if err != nil {
		return nil, err
	}
	list, err := r.Sub(int(listLen))
	if err != nil {
		return nil, err
	}

	out := &CertificateMessage{Context: append([]byte(nil), ctx...)}
	for !list.Done() {
		certLen, err := list.Uint24()
		if err != nil {
			return nil, err
		}
		certData, err := list.Bytes(int(certLen))
		if err != nil {
			return nil, err
		}
		extLen, err := list.Uint16()
		if err != nil {
			return nil, err
		}
		extData, err := list.Bytes(int(extLen))
		if err != nil {
			return nil, err
		}
		out.Entries = append(out.Entries, CertificateEntry{
			Data:       append([]byte(nil), certData...),
			Extensions: append([]byte(nil), extData...),
		})
	}
	if !r.Done() {
		return nil, alert.Newf(alert.DecodeError, "certificate: trailing bytes")
	}
	if len(out.Entries) == 0 {
		return nil, alert.Newf(alert.DecodeError, "certificate: empty certificate_list")
	}
	return out, nil
}

// BuildCertificateMessage writes a Certificate message body, echoing ctx
// (spec.md §4.8). entries may be empty when the client has no
// certificate to offer.
func BuildCertificateMessage(ctx []byte, entries []CertificateEntry) ([]byte, error) {
	w := wire.NewWriter()
	if err := w.PutVector8(ctx); err != nil {
		return nil, err
	}

	list := wire.NewWriter()
	for _, e := range entries {
		list.PutUint24(uint32(len(e.Data)))
		list.PutBytes(e.Data)
		if err := list.PutVector16(e.Extensions); err != nil {
			return nil, err
		}
	}
	w.PutUint24(uint32(list.Len()))
	w.PutBytes(list.Bytes())
	return w.Bytes(), nil
}

// CertificateVerifyMessage is the parsed body of a CertificateVerify
// message (RFC 8446 §4.4.3): a signature algorithm codepoint and the
// signature itself.
type CertificateVerifyMessage struct {
	Scheme    uint16
	Signature []byte
}

// ParseCertificateVerifyMessage decodes a CertificateVerify body.
func ParseCertificateVerifyMessage(body []byte) (*CertificateVerifyMessage, error) {
	r := wire.NewReader(body)
	scheme, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	sig, err := r.Vector16()
	if err != nil {
		return nil, err
	}
	if !r.Done() {
		return nil, alert.Newf(alert.DecodeError, "certificate_verify: trailing bytes")
	}
	return &CertificateVerifyMessage{Scheme: scheme, Signature: append([]byte(nil), sig...)}, nil
}

// BuildCertificateVerifyMessage writes a CertificateVerify message body.
func BuildCertificateVerifyMessage(scheme uint16, signature []byte) ([]byte, error) {
	w := wire.NewWriter()
	w.PutUint16(scheme)
	if err := w.PutVector16(signature); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
