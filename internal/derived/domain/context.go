package derived

import (
	"context"

	"github.com/shopspring/decimal"

	facts "settlement-recon/internal/facts/domain"
)

// ContextProvider resolves the external scalar (e.g. a network difficulty or
// reference price) used by the transform for a given date. Implementations
// return ErrContextUnavailable (possibly wrapped) when no value exists;
// they never substitute a default.
type ContextProvider interface {
	ContextValue(ctx context.Context, date facts.SettlementDate) (decimal.Decimal, error)
}

// StaticContextProvider serves fixed per-date values, mainly for tests.
type StaticContextProvider struct {
	values map[string]decimal.Decimal
}

// NewStaticContextProvider copies the given date-keyed values.
func NewStaticContextProvider(values map[string]decimal.Decimal) *StaticContextProvider {
	copied := make(map[string]decimal.Decimal, len(values))
	for key, value := range values {
		copied[key] = value
	}
	return &StaticContextProvider{values: copied}
}

// ContextValue returns the fixed value for the date or ErrContextUnavailable.
func (p *StaticContextProvider) ContextValue(ctx context.Context, date facts.SettlementDate) (decimal.Decimal, error) {
	_ = ctx
	value, ok := p.values[date.Key()]
	if !ok {
		return decimal.Zero, &ContextUnavailableError{Date: date}
	}
	return value, nil
}
