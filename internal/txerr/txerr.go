// Package txerr defines the error taxonomy from spec.md §7 as sentinel-
// wrapped kinds, so callers can errors.Is/As instead of matching strings.
package txerr

import "errors"

// Kind is one of the taxonomy buckets spec.md §7 names.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindLockBusy            Kind = "lock_busy"
	KindSimulationFail      Kind = "simulation_fail"
	KindRiskBlock           Kind = "risk_block"
	KindGuardrailFail       Kind = "guardrail_fail"
	KindUserRejected        Kind = "user_rejected"
	KindBroadcastError      Kind = "broadcast_error"
	KindRevertedOnChain     Kind = "reverted_on_chain"
	KindReceiptTimeout      Kind = "receipt_timeout"
	KindExternalUnavailable Kind = "external_unavailable"
)

// Error is a taxonomy-tagged error. Persisted kinds (UserRejected,
// BroadcastError, RevertedOnChain, ReceiptTimeout) each correspond to a
// TxStatus the Executor writes (UserRejected to rejected, the other three
// to failed); the rest never reach the store.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, and false when
// there is none; Kind isn't itself an error, so errors.Is cannot match it.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Persists reports whether a taxonomy kind corresponds to a status the
// Executor must write to the store (spec.md §7).
func (k Kind) Persists() bool {
	switch k {
	case KindUserRejected, KindBroadcastError, KindRevertedOnChain, KindReceiptTimeout:
		return true
	default:
		return false
	}
}
