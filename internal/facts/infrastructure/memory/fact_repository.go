package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	facts "settlement-recon/internal/facts/domain"
)

// FactRepository is an in-memory fact store honoring the same
// replace-is-atomic contract as the Postgres implementation.
type FactRepository struct {
	mu   sync.RWMutex
	data map[string]map[facts.Period][]facts.Fact
}

// NewFactRepository constructs an empty repository.
func NewFactRepository() *FactRepository {
	return &FactRepository{data: make(map[string]map[facts.Period][]facts.Fact)}
}

// Replace validates everything first and only then swaps the period's facts,
// so a rejected batch leaves the period exactly as it was.
func (r *FactRepository) Replace(ctx context.Context, date facts.SettlementDate, period facts.Period, items []facts.Fact) (int, error) {
	_ = ctx
	if date.IsZero() {
		return 0, facts.ErrInvalidDate
	}
	if !period.Valid() {
		return 0, facts.ErrInvalidPeriod
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return 0, &facts.ReplaceError{Date: date, Period: period, Err: err}
		}
		if !item.Date.Equal(date) || item.Period != period {
			return 0, &facts.ReplaceError{Date: date, Period: period,
				Err: fmt.Errorf("fact belongs to %s/%d", item.Date, item.Period)}
		}
	}

	stored := make([]facts.Fact, len(items))
	copy(stored, items)

	r.mu.Lock()
	defer r.mu.Unlock()
	byPeriod, ok := r.data[date.Key()]
	if !ok {
		byPeriod = make(map[facts.Period][]facts.Fact)
		r.data[date.Key()] = byPeriod
	}
	if len(stored) == 0 {
		delete(byPeriod, period)
	} else {
		byPeriod[period] = stored
	}
	return len(stored), nil
}

// CountAndSums aggregates stored facts for one period of a date.
func (r *FactRepository) CountAndSums(ctx context.Context, date facts.SettlementDate, period facts.Period) (facts.CountAndSums, error) {
	_ = ctx
	if !period.Valid() {
		return facts.CountAndSums{}, facts.ErrInvalidPeriod
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sumFacts(r.data[date.Key()][period]), nil
}

// CountAndSumsForDate aggregates stored facts across all periods of a date.
func (r *FactRepository) CountAndSumsForDate(ctx context.Context, date facts.SettlementDate) (facts.CountAndSums, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := facts.CountAndSums{TotalQuantity: decimal.Zero, TotalPayment: decimal.Zero}
	for _, items := range r.data[date.Key()] {
		sum := sumFacts(items)
		total.Count += sum.Count
		total.TotalQuantity = total.TotalQuantity.Add(sum.TotalQuantity)
		total.TotalPayment = total.TotalPayment.Add(sum.TotalPayment)
	}
	return total, nil
}

// PeriodsPresent reports which periods of the date hold at least one fact.
func (r *FactRepository) PeriodsPresent(ctx context.Context, date facts.SettlementDate) (map[facts.Period]bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	present := make(map[facts.Period]bool)
	for period, items := range r.data[date.Key()] {
		if len(items) > 0 {
			present[period] = true
		}
	}
	return present, nil
}

// ListByDate returns every fact stored for the date, ordered by period.
func (r *FactRepository) ListByDate(ctx context.Context, date facts.SettlementDate) ([]facts.Fact, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []facts.Fact
	for _, items := range r.data[date.Key()] {
		result = append(result, items...)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Period != result[j].Period {
			return result[i].Period < result[j].Period
		}
		return result[i].EntityID < result[j].EntityID
	})
	return result, nil
}

func sumFacts(items []facts.Fact) facts.CountAndSums {
	sum := facts.CountAndSums{TotalQuantity: decimal.Zero, TotalPayment: decimal.Zero}
	for _, item := range items {
		sum.Count++
		sum.TotalQuantity = sum.TotalQuantity.Add(item.Quantity)
		sum.TotalPayment = sum.TotalPayment.Add(item.Payment)
	}
	return sum
}
