package facts

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDate is returned when a settlement date is unset.
	ErrInvalidDate = errors.New("facts: invalid settlement date")
	// ErrInvalidPeriod is returned when a period is outside [1, 48].
	ErrInvalidPeriod = errors.New("facts: invalid settlement period")
	// ErrEmptyEntityID is returned when a fact has no entity id.
	ErrEmptyEntityID = errors.New("facts: empty entity id")
	// ErrPositivePayment is returned when a payment violates the cost sign convention.
	ErrPositivePayment = errors.New("facts: payment must be non-positive")
)

// ReplaceError wraps a storage failure during a period replace.
// The period is guaranteed unchanged when this error is returned,
// so the caller may safely retry the whole replace.
type ReplaceError struct {
	Date   SettlementDate
	Period Period
	Err    error
}

func (e *ReplaceError) Error() string {
	return fmt.Sprintf("facts: replace %s period %d: %v", e.Date, e.Period, e.Err)
}

// Unwrap returns the underlying storage error.
func (e *ReplaceError) Unwrap() error { return e.Err }
