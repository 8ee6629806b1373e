package derived

import (
	"github.com/shopspring/decimal"

	facts "settlement-recon/internal/facts/domain"
)

// ModelParameter names one of the fixed transform variants. Every variant is
// applied independently to every fact: the derived table is a Cartesian
// expansion of facts by parameters, not a choice between them.
type ModelParameter string

// Calculation is one derived value for (date, period, entity, parameter).
//
// ContextValue freezes the external scalar actually used when the value was
// produced, since the context lookup can go stale between recomputes.
type Calculation struct {
	Date         facts.SettlementDate
	Period       facts.Period
	EntityID     string
	Parameter    ModelParameter
	Value        decimal.Decimal
	ContextValue decimal.Decimal
}

// Validate checks the structural invariants of a calculation.
func (c Calculation) Validate() error {
	if c.Date.IsZero() {
		return facts.ErrInvalidDate
	}
	if !c.Period.Valid() {
		return facts.ErrInvalidPeriod
	}
	if c.EntityID == "" {
		return facts.ErrEmptyEntityID
	}
	if c.Parameter == "" {
		return ErrEmptyParameter
	}
	return nil
}

// Transform is the injected pure function producing a derived value from an
// absolute quantity, a model parameter and the external context value.
type Transform func(quantity decimal.Decimal, parameter ModelParameter, contextValue decimal.Decimal) decimal.Decimal
