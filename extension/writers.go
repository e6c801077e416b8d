package extension

import (
	"github.com/caddyserver/tls13/groupset"
	"github.com/caddyserver/tls13/wire"
)

// TLS version codepoints referenced by supported_versions (spec.md §4.2).
const (
	VersionTLS13 uint16 = 0x0304
	VersionTLS12 uint16 = 0x0303
)

// WriteSupportedVersions writes {0x0304} and, if includeTLS12 is set (the
// driver's min_version allows falling back), also {0x0303}. Mandatory on
// every ClientHello.
func WriteSupportedVersions(w *wire.Writer, includeTLS12 bool) {
	versions := []uint16{VersionTLS13}
	if includeTLS12 {
		versions = append(versions, VersionTLS12)
	}
	w.PutUint16(uint16(SupportedVersions))
	w.PutUint16(uint16(1 + 2*len(versions)))
	w.PutUint8(uint8(2 * len(versions)))
	for _, v := range versions {
		w.PutUint16(v)
	}
}

// WriteCookie echoes a cookie received from an HRR verbatim. Per spec.md
// §4.2, once written the cookie must not be sent again on a later
// ClientHello of the same connection.
func WriteCookie(w *wire.Writer, cookie []byte) error {
	w.PutUint16(uint16(Cookie))
	w.PutUint16(uint16(2 + len(cookie)))
	return w.PutVector16(cookie)
}

// KeyShareEntry is one (group, key_exchange) pair as carried in the
// ClientHello's key_share extension.
type KeyShareEntry struct {
	Group       groupset.ID
	KeyExchange []byte
}

// WriteKeyShare writes the key_share extension: a 2-byte outer list
// length followed by one or more (group, key_exchange<1..2^16-1>)
// entries. spec.md §4.2 only ever offers a single entry (the one group
// picked from group_list, or the one dictated by HRR), but the wire
// format itself is a list.
func WriteKeyShare(w *wire.Writer, entries []KeyShareEntry) error {
	w.PutUint16(uint16(KeyShare))
	extLenOff := w.Uint16Placeholder()
	listLenOff := w.Uint16Placeholder()
	listStart := w.Len()
	for _, e := range entries {
		w.PutUint16(uint16(e.Group))
		if err := w.PutVector16(e.KeyExchange); err != nil {
			return err
		}
	}
	w.PatchUint16(listLenOff, uint16(w.Len()-listStart))
	w.PatchUint16(extLenOff, uint16(w.Len()-listLenOff))
	return nil
}

// WriteEarlyData writes the zero-length early_data indication carried on
// a ClientHello offering 0-RTT (spec.md §4.2). The driver is responsible
// for only calling this when all of the gating conditions hold, and for
// setting early_data_status := Rejected immediately afterward.
func WriteEarlyData(w *wire.Writer) {
	w.PutUint16(uint16(EarlyData))
	w.PutUint16(0)
}

// PSK key-exchange mode codepoints (RFC 8446 §4.2.9).
const (
	PSKModeKE    uint8 = 0
	PSKModeDHEKE uint8 = 1
)

// WritePSKKeyExchangeModes writes the psk_key_exchange_modes extension
// listing the client's acceptable modes, in the order given.
func WritePSKKeyExchangeModes(w *wire.Writer, modes []uint8) error {
	w.PutUint16(uint16(PSKKeyExchangeModes))
	w.PutUint16(uint16(1 + len(modes)))
	return w.PutVector8(modes)
}
