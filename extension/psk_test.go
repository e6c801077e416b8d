package extension

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/caddyserver/tls13/wire"
)

func TestPSKTwoPhaseWriteIsLastExtensionAndBindersPatchable(t *testing.T) {
	w := wire.NewWriter()
	WriteSupportedVersions(w, false)
	prefixLen := w.Len()

	identities := []Identity{
		{Identity: []byte("ticket-one"), ObfuscatedAge: 0x11223344},
		{Identity: []byte("external-psk"), ObfuscatedAge: 0},
	}
	hashLens := []int{32, 32}

	patch, err := WriteIdentitiesAndReserveBinders(w, identities, hashLens)
	require.NoError(t, err)
	require.Equal(t, 2+1+32+1+32, patch.BinderRegionLen())

	binderRegionStart := w.Len() - patch.BinderRegionLen()
	require.Equal(t, prefixLen+extensionHeaderAndIdentityLen(identities), binderRegionStart)

	binder1 := make([]byte, 32)
	binder2 := make([]byte, 32)
	for i := range binder1 {
		binder1[i] = byte(i)
		binder2[i] = byte(255 - i)
	}
	require.NoError(t, patch.WriteBinders(w, [][]byte{binder1, binder2}))

	r := wire.NewReader(w.Bytes())
	r.Skip(prefixLen)

	typ, err := r.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(PreSharedKey), typ)

	extLen, err := r.Uint16()
	require.NoError(t, err)
	body, err := r.Sub(int(extLen))
	require.NoError(t, err)

	idListLen, err := body.Uint16()
	require.NoError(t, err)
	idList, err := body.Sub(int(idListLen))
	require.NoError(t, err)

	id1, err := idList.Vector16()
	require.NoError(t, err)
	require.Equal(t, []byte("ticket-one"), id1)
	age1, err := idList.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0x11223344), age1)

	id2, err := idList.Vector16()
	require.NoError(t, err)
	require.Equal(t, []byte("external-psk"), id2)
	age2, err := idList.Uint32()
	require.NoError(t, err)
	require.Equal(t, uint32(0), age2)
	require.True(t, idList.Done())

	bindersLen, err := body.Uint16()
	require.NoError(t, err)
	binders, err := body.Sub(int(bindersLen))
	require.NoError(t, err)

	gotB1, err := binders.Vector8()
	require.NoError(t, err)
	require.Equal(t, binder1, gotB1)
	gotB2, err := binders.Vector8()
	require.NoError(t, err)
	require.Equal(t, binder2, gotB2)
	require.True(t, binders.Done())
	require.True(t, body.Done())
	require.True(t, r.Done())
}

func TestWriteBindersRejectsWrongCount(t *testing.T) {
	w := wire.NewWriter()
	patch, err := WriteIdentitiesAndReserveBinders(w, []Identity{{Identity: []byte("x")}}, []int{32})
	require.NoError(t, err)
	require.Error(t, patch.WriteBinders(w, [][]byte{}))
}

func TestWriteBindersRejectsWrongLength(t *testing.T) {
	w := wire.NewWriter()
	patch, err := WriteIdentitiesAndReserveBinders(w, []Identity{{Identity: []byte("x")}}, []int{32})
	require.NoError(t, err)
	require.Error(t, patch.WriteBinders(w, [][]byte{make([]byte, 16)}))
}

// extensionHeaderAndIdentityLen is a test-only helper mirroring the bytes
// WriteIdentitiesAndReserveBinders writes before the binder region, used
// to sanity-check that the prefix written earlier is untouched.
func extensionHeaderAndIdentityLen(identities []Identity) int {
	n := 2 + 2 + 2 // type + ext_len + id_list_len
	for _, id := range identities {
		n += 2 + len(id.Identity) + 4
	}
	return n
}
