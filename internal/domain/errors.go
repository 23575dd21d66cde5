package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrExternalSignal marks a failed or timed-out correlation provider call.
	ErrExternalSignal = errors.New("external signal unavailable")

	// ErrStoreInconsistency is returned when a fusion store write raced with
	// another writer. The write did not apply and should be retried.
	ErrStoreInconsistency = errors.New("fusion store concurrent modification")

	// ErrTerminal is returned when a terminal report is submitted for reprocessing.
	ErrTerminal = errors.New("report is terminal")
)

// InputError reports a malformed post, report, or source record rejected at
// the boundary. It is never retried.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func inputErr(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

// IsInputError reports whether err is or wraps an *InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}
