package keyschedule

import (
	"crypto"
	_ "crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFullScheduleProducesDistinctSecretsPerEpoch(t *testing.T) {
	sched := New(crypto.SHA256)

	require.NoError(t, sched.StageEarly(nil, PSKExternal))

	binder, err := sched.CreatePSKBinder([]byte("truncated-client-hello-hash-32b"))
	require.NoError(t, err)
	require.Len(t, binder, 32)

	dh := make([]byte, 32)
	for i := range dh {
		dh[i] = byte(i)
	}
	hsTransform, err := sched.ComputeHandshakeTransform(dh, []byte("server-hello-transcript-hash-32"))
	require.NoError(t, err)
	require.NotEmpty(t, hsTransform.ClientSecret)
	require.NotEqual(t, hsTransform.ClientSecret, hsTransform.ServerSecret)

	appTransform, err := sched.ComputeApplicationTransform([]byte("server-finished-transcript-hash"))
	require.NoError(t, err)
	require.NotEqual(t, hsTransform.ClientSecret, appTransform.ClientSecret)

	resumption, err := sched.ComputeResumptionMasterSecret([]byte("client-finished-transcript-hash"))
	require.NoError(t, err)
	require.Len(t, resumption, 32)
}

func TestComputeHandshakeTransformRequiresStageEarly(t *testing.T) {
	sched := New(crypto.SHA256)
	_, err := sched.ComputeHandshakeTransform(nil, make([]byte, 32))
	require.Error(t, err)
}

func TestVerifyDataIsDeterministic(t *testing.T) {
	sched := New(crypto.SHA256)
	secret := make([]byte, 32)
	hash := []byte("some-transcript-hash-value-here")

	a := sched.VerifyDataFor(secret, hash)
	b := sched.VerifyDataFor(secret, hash)
	require.Equal(t, a, b)
	require.Len(t, a, 32)
}

func TestDerivePSKForResumptionVariesByNonce(t *testing.T) {
	sched := New(crypto.SHA256)
	rms := make([]byte, 32)

	psk1 := sched.DerivePSKForResumption(rms, []byte{0x01})
	psk2 := sched.DerivePSKForResumption(rms, []byte{0x02})
	require.NotEqual(t, psk1, psk2)
}

func TestBinderRequiresStageEarlyFirst(t *testing.T) {
	sched := New(crypto.SHA256)
	_, err := sched.CreatePSKBinder(make([]byte, 32))
	require.Error(t, err)
}
