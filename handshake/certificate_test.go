package handshake

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCertificateMessageRoundTrip(t *testing.T) {
	entries := []CertificateEntry{
		{Data: []byte("leaf-der"), Extensions: nil},
		{Data: []byte("intermediate-der"), Extensions: []byte("ocsp")},
	}
	body, err := BuildCertificateMessage([]byte("ctx"), entries)
	require.NoError(t, err)

	msg, err := ParseCertificateMessage(body)
	require.NoError(t, err)
	require.Equal(t, []byte("ctx"), msg.Context)
	require.Equal(t, entries, msg.Entries)
}

func TestCertificateMessageRejectsEmptyList(t *testing.T) {
	body, err := BuildCertificateMessage(nil, nil)
	require.NoError(t, err)

	_, err = ParseCertificateMessage(body)
	require.Error(t, err)
}

func TestCertificateMessageRejectsTrailingBytes(t *testing.T) {
	body, err := BuildCertificateMessage(nil, []CertificateEntry{{Data: []byte("leaf")}})
	require.NoError(t, err)

	_, err = ParseCertificateMessage(append(body, 0x00))
	require.Error(t, err)
}

func TestCertificateVerifyMessageRoundTrip(t *testing.T) {
	body, err := BuildCertificateVerifyMessage(0x0403, []byte("a-signature"))
	require.NoError(t, err)

	cv, err := ParseCertificateVerifyMessage(body)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0403), cv.Scheme)
	require.Equal(t, []byte("a-signature"), cv.Signature)
}

func TestCertificateVerifyMessageRejectsTrailingBytes(t *testing.T) {
	body, err := BuildCertificateVerifyMessage(0x0403, []byte("sig"))
	require.NoError(t, err)

	_, err = ParseCertificateVerifyMessage(append(body, 0xff))
	require.Error(t, err)
}
