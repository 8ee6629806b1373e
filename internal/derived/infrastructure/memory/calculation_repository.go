package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	derived "settlement-recon/internal/derived/domain"
	facts "settlement-recon/internal/facts/domain"
)

// CalculationRepository is an in-memory derived store mirroring the
// replace-is-atomic contract of the Postgres implementation.
type CalculationRepository struct {
	mu   sync.RWMutex
	data map[string][]derived.Calculation // keyed by dateKey|parameter
}

// NewCalculationRepository constructs an empty repository.
func NewCalculationRepository() *CalculationRepository {
	return &CalculationRepository{data: make(map[string][]derived.Calculation)}
}

func sliceKey(date facts.SettlementDate, parameter derived.ModelParameter) string {
	return date.Key() + "|" + string(parameter)
}

// ReplaceForDate validates everything first and only then swaps the slice.
func (r *CalculationRepository) ReplaceForDate(ctx context.Context, date facts.SettlementDate, parameter derived.ModelParameter, rows []derived.Calculation) (int, error) {
	_ = ctx
	if date.IsZero() {
		return 0, facts.ErrInvalidDate
	}
	if parameter == "" {
		return 0, derived.ErrEmptyParameter
	}
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			return 0, err
		}
		if !row.Date.Equal(date) || row.Parameter != parameter {
			return 0, fmt.Errorf("derived: row belongs to %s/%s", row.Date, row.Parameter)
		}
	}

	stored := make([]derived.Calculation, len(rows))
	copy(stored, rows)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(stored) == 0 {
		delete(r.data, sliceKey(date, parameter))
	} else {
		r.data[sliceKey(date, parameter)] = stored
	}
	return len(stored), nil
}

// CountAndSum aggregates stored calculations for (date, parameter).
func (r *CalculationRepository) CountAndSum(ctx context.Context, date facts.SettlementDate, parameter derived.ModelParameter) (int, decimal.Decimal, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := decimal.Zero
	rows := r.data[sliceKey(date, parameter)]
	for _, row := range rows {
		sum = sum.Add(row.Value)
	}
	return len(rows), sum, nil
}

// ListByDate returns every calculation for (date, parameter).
func (r *CalculationRepository) ListByDate(ctx context.Context, date facts.SettlementDate, parameter derived.ModelParameter) ([]derived.Calculation, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows := r.data[sliceKey(date, parameter)]
	result := make([]derived.Calculation, len(rows))
	copy(result, rows)
	sort.Slice(result, func(i, j int) bool {
		if result[i].Period != result[j].Period {
			return result[i].Period < result[j].Period
		}
		return result[i].EntityID < result[j].EntityID
	})
	return result, nil
}
