// Package alert defines the RFC 8446 alert taxonomy used to report fatal
// handshake failures, and the Error type that carries one.
package alert

import (
	"errors"
	"fmt"
)

// Description is an RFC 8446 §6 alert description, restricted to the
// subset this core can raise (see spec.md §7).
type Description uint8

const (
	// None is the zero value; it is never attached to an emitted Error.
	None Description = iota
	IllegalParameter
	DecodeError
	HandshakeFailure
	UnsupportedExtension
	ProtocolVersion
	UnexpectedMessage
	BadCertificate
	// BufferTooSmall is not a wire alert; it maps to DecodeError on send
	// but is kept distinguishable so callers can tell "ran off the end
	// of a buffer" apart from "well-formed but structurally wrong".
	BufferTooSmall
	// BadInput and the two below never generate a wire alert (spec.md §7).
	BadInput
	AllocFailed
	Internal
)

func (d Description) String() string {
	switch d {
	case IllegalParameter:
		return "illegal_parameter"
	case DecodeError:
		return "decode_error"
	case HandshakeFailure:
		return "handshake_failure"
	case UnsupportedExtension:
		return "unsupported_extension"
	case ProtocolVersion:
		return "protocol_version"
	case UnexpectedMessage:
		return "unexpected_message"
	case BadCertificate:
		return "bad_certificate"
	case BufferTooSmall:
		return "decode_error" // wire alert; see Description.Wire
	case BadInput:
		return "bad_input"
	case AllocFailed:
		return "alloc_failed"
	case Internal:
		return "internal_error"
	default:
		return "none"
	}
}

// Wire reports whether this description is sent to the peer as a TLS
// alert at all. BadInput, AllocFailed and Internal are fatal locally but
// never produce a wire alert (spec.md §7).
func (d Description) Wire() bool {
	switch d {
	case BadInput, AllocFailed, Internal, None:
		return false
	default:
		return true
	}
}

// Error is the single fatal-error type threaded through the core. It
// mirrors caddyhttp.HandlerError: a typed "kind" field plus an optional
// wrapped cause, with a constructor that leaves an already-typed error
// alone instead of double-wrapping it.
type Error struct {
	Kind Description
	Err  error
}

// New builds an Error of the given kind wrapping err. If err is already
// an *Error, its Kind is preserved unless it is None, matching
// caddyhttp.Error's "don't clobber fields that are already set" rule.
func New(kind Description, err error) *Error {
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Kind == None {
			existing.Kind = kind
		}
		return existing
	}
	return &Error{Kind: kind, Err: err}
}

// Newf is a convenience wrapper combining New and fmt.Errorf.
func Newf(kind Description, format string, args ...any) *Error {
	return New(kind, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
