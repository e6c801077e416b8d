package alert

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPreservesExistingKind(t *testing.T) {
	inner := New(HandshakeFailure, errors.New("group mismatch"))
	wrapped := New(IllegalParameter, inner)

	require.Equal(t, HandshakeFailure, wrapped.Kind)
	require.Same(t, inner, wrapped)
}

func TestNewFillsNoneKind(t *testing.T) {
	inner := &Error{Kind: None, Err: errors.New("boom")}
	wrapped := New(DecodeError, inner)

	require.Equal(t, DecodeError, wrapped.Kind)
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Newf(IllegalParameter, "selected_identity %d out of range", 3)
	require.Equal(t, "illegal_parameter: selected_identity 3 out of range", err.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(DecodeError, cause)
	require.ErrorIs(t, err, cause)
}

func TestWireClassification(t *testing.T) {
	cases := []struct {
		kind Description
		wire bool
	}{
		{IllegalParameter, true},
		{UnexpectedMessage, true},
		{BadInput, false},
		{AllocFailed, false},
		{Internal, false},
	}
	for _, c := range cases {
		t.Run(fmt.Sprint(c.kind), func(t *testing.T) {
			require.Equal(t, c.wire, c.kind.Wire())
		})
	}
}
