// Package errs defines the stable error kinds shared by the consensus core
// (crypto, merkle, reserved state, CSV, vetomint, bridge). Every kind maps
// to a distinct failure mode a caller can branch on without parsing the
// message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a stable, opaque error classification. Do not rely on its
// numeric value across versions; compare with errors.Is/errors.As against
// an *Error instead.
type Kind int

const (
	// KindInvalidArgument is a structural/contract violation detected at
	// call time: height off by one, hash mismatch, timestamp regression.
	KindInvalidArgument Kind = iota
	// KindInvalidProof is a finalization or agenda proof with insufficient
	// voting power, or containing invalid signatures.
	KindInvalidProof
	// KindCryptoError is a signature or key decode failure.
	KindCryptoError
	// KindPhaseMismatch is a commit type illegal in the current CSV phase.
	KindPhaseMismatch
	// KindIntegrityError is an on-storage artifact the core assumed
	// present that is missing or malformed. Raised at the storage
	// boundary and by pkg/bridge, never inside CSV/vetomint themselves.
	KindIntegrityError
	// KindNotFound is a git-like reference that was missing.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInvalidProof:
		return "InvalidProof"
	case KindCryptoError:
		return "CryptoError"
	case KindPhaseMismatch:
		return "PhaseMismatch"
	case KindIntegrityError:
		return "IntegrityError"
	case KindNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error is the structured error value returned across the core. Fields is
// an open bag of deterministic reason data (e.g. Voted/Total voting power,
// Expected/Actual values) so a caller can report the rejection reason
// without parsing Msg.
type Error struct {
	Kind   Kind
	Msg    string
	Fields map[string]any
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, errs.New(KindPhaseMismatch, "")) to match any
// *Error with the same Kind, ignoring Msg/Fields/Cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error with no extra fields.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new *Error of the given kind.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// WithFields returns a copy of e with Fields set, for errors that want to
// report deterministic values such as voted/total voting power.
func (e *Error) WithFields(fields map[string]any) *Error {
	cp := *e
	cp.Fields = fields
	return &cp
}

// Of reports whether err is an *Error of the given kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
