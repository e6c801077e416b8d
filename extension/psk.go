package extension

import (
	"github.com/caddyserver/tls13/alert"
	"github.com/caddyserver/tls13/wire"
)

// Identity is one PSK identity as carried in phase A of the
// pre_shared_key extension (spec.md §4.3): the opaque identity bytes
// (a ticket or a configured external identity) plus its obfuscated
// ticket age, which is zero for an external PSK.
type Identity struct {
	Identity      []byte
	ObfuscatedAge uint32
}

// BinderPatch records where WriteIdentitiesAndReserveBinders left the
// placeholder binder values, so WriteBinders can fill them in once the
// transcript hash covering everything up to the binder list is known.
// No extension may be written to w between the two calls: pre_shared_key
// must be the last extension in the ClientHello (spec.md §4.3, §9).
type BinderPatch struct {
	binderOffsets []int
	hashLens      []int
}

// WriteIdentitiesAndReserveBinders implements spec.md §4.3 phase A. It
// writes the pre_shared_key extension header and identity list, then
// reserves (zero-filled) space for one binder per identity, each
// hashLens[i] bytes long. The extension's declared lengths already
// account for the reserved binder region, even though its contents are
// not yet known.
func WriteIdentitiesAndReserveBinders(w *wire.Writer, identities []Identity, hashLens []int) (*BinderPatch, error) {
	if len(identities) != len(hashLens) {
		return nil, alert.Newf(alert.Internal, "psk: %d identities but %d binder lengths", len(identities), len(hashLens))
	}

	w.PutUint16(uint16(PreSharedKey))
	extLenOff := w.Uint16Placeholder()

	idListLenOff := w.Uint16Placeholder()
	idsStart := w.Len()
	for _, id := range identities {
		if err := w.PutVector16(id.Identity); err != nil {
			return nil, err
		}
		w.PutUint32(id.ObfuscatedAge)
	}
	w.PatchUint16(idListLenOff, uint16(w.Len()-idsStart))

	bindersLenOff := w.Uint16Placeholder()
	bindersStart := w.Len()
	binderOffsets := make([]int, len(hashLens))
	for i, hl := range hashLens {
		w.PutUint8(uint8(hl))
		binderOffsets[i] = w.Len()
		for j := 0; j < hl; j++ {
			w.PutUint8(0)
		}
	}
	w.PatchUint16(bindersLenOff, uint16(w.Len()-bindersStart))
	w.PatchUint16(extLenOff, uint16(w.Len()-idListLenOff))

	return &BinderPatch{binderOffsets: binderOffsets, hashLens: hashLens}, nil
}

// WriteBinders implements spec.md §4.3 phase B: it patches each reserved
// binder slot with the HMAC value the caller computed (via
// keyschedule.Schedule.CreatePSKBinder) over the transcript truncated to
// everything written before phase A's binder region began. Binders must
// appear in the same order as the identities passed to
// WriteIdentitiesAndReserveBinders.
func (p *BinderPatch) WriteBinders(w *wire.Writer, binders [][]byte) error {
	if len(binders) != len(p.binderOffsets) {
		return alert.Newf(alert.Internal, "psk: %d binders supplied, expected %d", len(binders), len(p.binderOffsets))
	}
	for i, binder := range binders {
		if len(binder) != p.hashLens[i] {
			return alert.Newf(alert.Internal, "psk: binder %d is %d bytes, expected %d", i, len(binder), p.hashLens[i])
		}
		w.PatchBytes(p.binderOffsets[i], binder)
	}
	return nil
}

// BinderRegionLen returns the byte length covered by the reserved binder
// list, including its own 2-byte length prefix — spec.md §8 invariant 8:
// Σ(1 + hash_len_i) + 2.
func (p *BinderPatch) BinderRegionLen() int {
	total := 2
	for _, hl := range p.hashLens {
		total += 1 + hl
	}
	return total
}
