// Copyright 2025 Certen Protocol

// Package caperr implements the closed error taxonomy that every component in
// the proof lifecycle surfaces on its return path. None of these are used for
// control flow via panic/recover; callers inspect Kind and act accordingly.
package caperr

import "fmt"

// Kind tags an Error with one of the ten taxonomy variants.
type Kind string

const (
	KindInputFormat       Kind = "InputFormat"
	KindIntegrityMismatch Kind = "IntegrityMismatch"
	KindPolicyMismatch    Kind = "PolicyMismatch"
	KindSignatureInvalid  Kind = "SignatureInvalid"
	KindAnchorInconsistent Kind = "AnchorInconsistent"
	KindChainBroken       Kind = "ChainBroken"
	KindBundleStructure   Kind = "BundleStructure"
	KindResourceLimit     Kind = "ResourceLimit"
	KindBackendUnavailable Kind = "BackendUnavailable"
	KindKeyStatus         Kind = "KeyStatus"
)

// Error is the tagged variant returned by every component. It wraps an
// optional underlying cause without discarding it.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as Cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is a *Error of the given kind (direct match only,
// mirroring the teacher's avoidance of deep sentinel hierarchies).
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
