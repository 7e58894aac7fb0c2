package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrRateLimited     = errors.New("rate limited")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrValidation      = errors.New("validation failed")
	ErrUserRejected    = errors.New("user rejected")
	ErrChainReverted   = errors.New("transaction reverted")
	ErrDataUnavailable = errors.New("data unavailable")
	ErrSequenceBusy    = errors.New("sequence already in flight")
	ErrStepLocked      = errors.New("previous step not confirmed")
	ErrLockHeld        = errors.New("lock already held")
	// ErrTxUnconfirmed means a transaction was broadcast but its receipt
	// could not be obtained. Running the step again resumes the wait.
	ErrTxUnconfirmed = errors.New("transaction awaiting confirmation")
)

// ValidationError reports a single failed field or cross-field rule.
type ValidationError struct {
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field Field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TxErrorKind separates wallet-level declines from on-chain reverts.
type TxErrorKind string

const (
	TxRejected TxErrorKind = "user_rejected"
	TxReverted TxErrorKind = "chain_revert"
)

// TxError wraps the raw provider message of a failed transaction.
type TxError struct {
	Kind    TxErrorKind
	Message string
}

func (e *TxError) Error() string { return e.Message }

// Unwrap maps the kind onto ErrUserRejected or ErrChainReverted.
func (e *TxError) Unwrap() error {
	if e.Kind == TxRejected {
		return ErrUserRejected
	}
	return ErrChainReverted
}
