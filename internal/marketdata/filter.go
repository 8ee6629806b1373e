package marketdata

import (
	"context"
	"errors"

	facts "settlement-recon/internal/facts/domain"
)

// Filter is the pure acceptance predicate and transform applied to raw
// records before they become fact candidates.
//
// Acceptance: quantity < 0 AND at least one qualifying flag AND the entity is
// in the valid reference set. The payment of an accepted record is
// |quantity| * unitPrice negated, so payments are always stored as a
// non-positive cost. That sign is the policy; tests pin it.
type Filter struct {
	valid map[string]bool
}

// NewFilter loads the valid entity set once and caches it for the process
// lifetime. Staleness until restart is accepted.
func NewFilter(ctx context.Context, provider EntityProvider) (*Filter, error) {
	if provider == nil {
		return nil, errors.New("marketdata: nil entity provider")
	}
	valid, err := provider.ValidEntities(ctx)
	if err != nil {
		return nil, err
	}
	if len(valid) == 0 {
		return nil, errors.New("marketdata: empty valid entity set")
	}
	return &Filter{valid: valid}, nil
}

// Accept applies the predicate to one raw record. The second return value is
// false for rejected records.
func (f *Filter) Accept(date facts.SettlementDate, period facts.Period, raw RawRecord) (facts.Fact, bool) {
	if !raw.Quantity.IsNegative() {
		return facts.Fact{}, false
	}
	if !raw.Flags().Any() {
		return facts.Fact{}, false
	}
	if !f.valid[raw.EntityID] {
		return facts.Fact{}, false
	}

	payment := raw.Quantity.Abs().Mul(raw.UnitPrice).Neg()
	return facts.Fact{
		Date:      date,
		Period:    period,
		EntityID:  raw.EntityID,
		Quantity:  raw.Quantity,
		UnitPrice: raw.UnitPrice,
		Payment:   payment,
		Flags:     raw.Flags(),
	}, true
}

// AcceptAll filters a whole fetch result, keeping source order.
func (f *Filter) AcceptAll(date facts.SettlementDate, period facts.Period, raws []RawRecord) []facts.Fact {
	var accepted []facts.Fact
	for _, raw := range raws {
		if fact, ok := f.Accept(date, period, raw); ok {
			accepted = append(accepted, fact)
		}
	}
	return accepted
}
