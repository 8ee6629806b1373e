package derived

import (
	"errors"
	"fmt"

	facts "settlement-recon/internal/facts/domain"
)

var (
	// ErrEmptyParameter is returned when a model parameter is missing.
	ErrEmptyParameter = errors.New("derived: empty model parameter")
	// ErrContextUnavailable is returned when the external context value for a
	// date cannot be resolved. It is a hard failure for that (date, parameter):
	// no default is ever substituted.
	ErrContextUnavailable = errors.New("derived: context value unavailable")
)

// ContextUnavailableError carries the date whose context lookup failed.
type ContextUnavailableError struct {
	Date facts.SettlementDate
	Err  error
}

func (e *ContextUnavailableError) Error() string {
	return fmt.Sprintf("derived: context value for %s unavailable: %v", e.Date, e.Err)
}

// Unwrap makes the error match ErrContextUnavailable.
func (e *ContextUnavailableError) Unwrap() error { return ErrContextUnavailable }
