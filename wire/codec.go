// Package wire implements the bounded, allocation-free big-endian codec
// described in spec.md §4.1: every read checks the bytes remaining and
// fails with alert.BufferTooSmall before touching memory out of range,
// instead of panicking on a bad slice index. Vector writes fail with
// alert.Internal when the data would overflow the length prefix.
package wire

import (
	"github.com/caddyserver/tls13/alert"
)

// Reader walks a byte slice with an explicit cursor, never reading past
// the slice's length. It never allocates.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for bounded reading starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Done reports whether the buffer has been fully consumed. Several
// message parsers (§4.6, §4.9) require the message to be exhausted
// exactly, and use this to detect trailing bytes.
func (r *Reader) Done() bool { return r.pos == len(r.buf) }

func (r *Reader) need(n int) error {
	if n < 0 || r.Len() < n {
		return alert.Newf(alert.BufferTooSmall, "need %d bytes, have %d", n, r.Len())
	}
	return nil
}

// Uint8 reads one byte.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// Uint16 reads a 16-bit big-endian integer.
func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := uint16(r.buf[r.pos])<<8 | uint16(r.buf[r.pos+1])
	r.pos += 2
	return v, nil
}

// Uint24 reads a 24-bit big-endian integer (used for handshake message
// lengths and certificate-list lengths).
func (r *Reader) Uint24() (uint32, error) {
	if err := r.need(3); err != nil {
		return 0, err
	}
	v := uint32(r.buf[r.pos])<<16 | uint32(r.buf[r.pos+1])<<8 | uint32(r.buf[r.pos+2])
	r.pos += 3
	return v, nil
}

// Uint32 reads a 32-bit big-endian integer.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := uint32(r.buf[r.pos])<<24 | uint32(r.buf[r.pos+1])<<16 | uint32(r.buf[r.pos+2])<<8 | uint32(r.buf[r.pos+3])
	r.pos += 4
	return v, nil
}

// Bytes reads n raw bytes and returns a sub-slice of the underlying
// buffer (no copy — callers that retain it across further reads must
// clone it themselves).
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// Skip advances the cursor by n bytes without returning them.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// Vector8 reads a <0..255> length-prefixed opaque vector (one-byte
// length prefix).
func (r *Reader) Vector8() ([]byte, error) {
	n, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// Vector16 reads a <0..2^16-1> length-prefixed opaque vector (two-byte
// length prefix).
func (r *Reader) Vector16() ([]byte, error) {
	n, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return r.Bytes(int(n))
}

// Sub returns a new Reader bounded to exactly the next n bytes, and
// advances this reader past them. Used to recurse into a length-prefixed
// extensions block without letting a parser read beyond its own frame.
func (r *Reader) Sub(n int) (*Reader, error) {
	b, err := r.Bytes(n)
	if err != nil {
		return nil, err
	}
	return NewReader(b), nil
}

// Writer appends to a byte slice. Unlike Reader it does grow the
// underlying slice (via append) — the "no hidden allocation" rule in
// spec.md §4.1 is about not allocating mid-parse on the read side; the
// write side still needs to produce bytes somewhere. Grow is available to
// pre-size the buffer; the writers in this module do not call it.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Grow pre-reserves capacity for n more bytes.
func (w *Writer) Grow(n int) { w.buf = append(w.buf, make([]byte, 0, n)...) }

// PutUint8 appends one byte.
func (w *Writer) PutUint8(v uint8) { w.buf = append(w.buf, v) }

// PutUint16 appends a 16-bit big-endian integer.
func (w *Writer) PutUint16(v uint16) {
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

// PutUint24 appends a 24-bit big-endian integer.
func (w *Writer) PutUint24(v uint32) {
	w.buf = append(w.buf, byte(v>>16), byte(v>>8), byte(v))
}

// PutUint32 appends a 32-bit big-endian integer.
func (w *Writer) PutUint32(v uint32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// PutBytes appends raw bytes verbatim.
func (w *Writer) PutBytes(b []byte) { w.buf = append(w.buf, b...) }

// PutVector8 appends a <0..255> length-prefixed opaque vector, failing if
// b would overflow the one-byte length prefix.
func (w *Writer) PutVector8(b []byte) error {
	if len(b) > 0xFF {
		return alert.Newf(alert.Internal, "vector8 overflow: %d bytes", len(b))
	}
	w.PutUint8(uint8(len(b)))
	w.PutBytes(b)
	return nil
}

// PutVector16 appends a <0..2^16-1> length-prefixed opaque vector,
// failing if b would overflow the two-byte length prefix.
func (w *Writer) PutVector16(b []byte) error {
	if len(b) > 0xFFFF {
		return alert.Newf(alert.Internal, "vector16 overflow: %d bytes", len(b))
	}
	w.PutUint16(uint16(len(b)))
	w.PutBytes(b)
	return nil
}

// Uint16Placeholder reserves two bytes for a length that will be
// back-patched once the caller knows it (the pattern used by the
// pre_shared_key extension header in §4.3, which must declare its total
// length before the binders are known). It returns the offset to patch.
func (w *Writer) Uint16Placeholder() int {
	off := len(w.buf)
	w.PutUint16(0)
	return off
}

// PatchUint16 overwrites the two bytes at off with v.
func (w *Writer) PatchUint16(off int, v uint16) {
	w.buf[off] = byte(v >> 8)
	w.buf[off+1] = byte(v)
}

// PatchBytes overwrites len(b) bytes at off with b, used to fill in the
// binder values reserved by the two-phase pre_shared_key writer (spec.md
// §4.3) once the transcript-dependent MAC has been computed.
func (w *Writer) PatchBytes(off int, b []byte) {
	copy(w.buf[off:off+len(b)], b)
}
