package derived

import (
	"context"

	"github.com/shopspring/decimal"

	facts "settlement-recon/internal/facts/domain"
)

// Repository persists derived calculations. Rows for a (date, parameter)
// slice are only ever replaced wholesale, mirroring the fact store contract.
type Repository interface {
	// ReplaceForDate atomically deletes all calculations for (date, parameter)
	// and inserts the given rows. Returns the inserted count.
	ReplaceForDate(ctx context.Context, date facts.SettlementDate, parameter ModelParameter, rows []Calculation) (int, error)

	// CountAndSum aggregates stored calculations for (date, parameter).
	CountAndSum(ctx context.Context, date facts.SettlementDate, parameter ModelParameter) (int, decimal.Decimal, error)

	// ListByDate returns every calculation for (date, parameter), ordered by
	// period then entity.
	ListByDate(ctx context.Context, date facts.SettlementDate, parameter ModelParameter) ([]Calculation, error)
}
