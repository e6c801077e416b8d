package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderBasicTypes(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03, 0x00, 0x01, 0x02, 0xAA, 0xBB, 0xCC, 0xDD}
	r := NewReader(buf)

	u8, err := r.Uint8()
	require.NoError(t, err)
	require.Equal(t, uint8(0x01), u8)

	u16, err := r.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0203), u16)

	u24, err := r.Uint24()
	require.NoError(t, err)
	require.Equal(t, uint32(0x000102), u24)

	u32, err := r.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0xAABBCCDD), u32)

	require.True(t, r.Done())
}

func TestReaderBufferTooSmall(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.Uint16()
	require.Error(t, err)
}

func TestVectors(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.PutVector8([]byte("hi")))
	require.NoError(t, w.PutVector16([]byte("hello world")))

	r := NewReader(w.Bytes())
	v8, err := r.Vector8()
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), v8)

	v16, err := r.Vector16()
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), v16)
	require.True(t, r.Done())
}

func TestVector16Overflow(t *testing.T) {
	w := NewWriter()
	err := w.PutVector16(make([]byte, 1<<16))
	require.Error(t, err)
}

func TestSubBoundsParsing(t *testing.T) {
	outer := NewReader([]byte{0x00, 0x02, 0xAA, 0xBB, 0xFF})
	n, err := outer.Uint16()
	require.NoError(t, err)

	inner, err := outer.Sub(int(n))
	require.NoError(t, err)

	b, err := inner.Bytes(2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB}, b)
	require.True(t, inner.Done())

	// The outer reader must not have been able to see past its own frame.
	require.Equal(t, 1, outer.Len())
}

func TestPatchUint16(t *testing.T) {
	w := NewWriter()
	off := w.Uint16Placeholder()
	w.PutBytes([]byte{1, 2, 3})
	w.PatchUint16(off, 3)

	r := NewReader(w.Bytes())
	n, err := r.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(3), n)
}

func TestPatchBytes(t *testing.T) {
	w := NewWriter()
	w.PutUint8(4)
	off := w.Len()
	w.PutBytes([]byte{0, 0, 0, 0})
	w.PatchBytes(off, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	r := NewReader(w.Bytes())
	_, err := r.Uint8()
	require.NoError(t, err)
	b, err := r.Bytes(4)
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, b)
}
