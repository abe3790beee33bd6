// Package errs defines the typed error-kind vocabulary shared by every
// package in the notify engine, so callers can branch with errors.Is
// across package boundaries instead of matching on string messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a sentinel error value identifying a class of failure. Kinds are
// comparable with errors.Is even after being wrapped by Wrap.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	NotInitialized        Kind = "not_initialized"
	UnknownSubscription    Kind = "unknown_subscription"
	DidDocUnavailable      Kind = "did_doc_unavailable"
	DidDocMalformed        Kind = "did_doc_malformed"
	VerificationMethodMissing Kind = "verification_method_missing"
	ConfigUnavailable      Kind = "config_unavailable"
	JwtDecodeFailed        Kind = "jwt_decode_failed"
	JwtActMismatch         Kind = "jwt_act_mismatch"
	JwtExpired             Kind = "jwt_expired"
	CryptoFailure          Kind = "crypto_failure"
	RelayFailure           Kind = "relay_failure"
	StoreFailure           Kind = "store_failure"
	IdentityFailure        Kind = "identity_failure"
	InvalidMessagePayload  Kind = "invalid_message_payload"
)

// Error pairs a Kind with operation-specific context.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, SomeKind) match an *Error carrying that kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && e.Kind == k
}

// New builds an *Error for op/kind with no wrapped cause.
func New(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

// Wrap builds an *Error for op/kind wrapping cause. If cause is nil, Wrap
// returns nil so it is safe to use as `return errs.Wrap(op, kind, err)`.
func Wrap(op string, kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Of reports the Kind of err, or "" if err does not carry one.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
