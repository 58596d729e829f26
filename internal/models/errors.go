package models

import (
	"errors"
	"fmt"
)

// Custom errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
	ErrInvalidID    = errors.New("invalid ID format")

	// ErrNoData marks an explicitly empty result: no rows, no bets, no
	// settled history. Callers surface it as "no data", never as zero.
	ErrNoData = errors.New("no data")
)

// ValidationError is a fatal structural failure: unordered or duplicate
// temporal data, or a missing required field. It aborts the run for the
// affected scope; nothing partially computed is trusted downstream.
type ValidationError struct {
	Entity string
	Row    int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("validation failed at row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("validation failed for %q at row %d: %s", e.Entity, e.Row, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
