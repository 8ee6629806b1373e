package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	aggregates "settlement-recon/internal/aggregates/domain"
	derived "settlement-recon/internal/derived/domain"
)

// AggregateRepository is an in-memory aggregate store for tests and tools.
type AggregateRepository struct {
	mu          sync.RWMutex
	factRows    map[string]aggregates.FactAggregate    // granularity|periodKey
	derivedRows map[string]aggregates.DerivedAggregate // granularity|periodKey|parameter
}

// NewAggregateRepository constructs an empty repository.
func NewAggregateRepository() *AggregateRepository {
	return &AggregateRepository{
		factRows:    make(map[string]aggregates.FactAggregate),
		derivedRows: make(map[string]aggregates.DerivedAggregate),
	}
}

func factKey(granularity aggregates.Granularity, periodKey string) string {
	return string(granularity) + "|" + periodKey
}

func derivedKey(granularity aggregates.Granularity, periodKey string, parameter derived.ModelParameter) string {
	return string(granularity) + "|" + periodKey + "|" + string(parameter)
}

// UpsertFact inserts or overwrites a fact aggregate row.
func (r *AggregateRepository) UpsertFact(ctx context.Context, aggregate aggregates.FactAggregate) error {
	_ = ctx
	if !aggregate.Granularity.IsValid() {
		return aggregates.ErrInvalidGranularity
	}
	if aggregate.PeriodKey == "" {
		return aggregates.ErrEmptyPeriodKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factRows[factKey(aggregate.Granularity, aggregate.PeriodKey)] = aggregate
	return nil
}

// UpsertDerived inserts or overwrites a derived aggregate row.
func (r *AggregateRepository) UpsertDerived(ctx context.Context, aggregate aggregates.DerivedAggregate) error {
	_ = ctx
	if !aggregate.Granularity.IsValid() {
		return aggregates.ErrInvalidGranularity
	}
	if aggregate.PeriodKey == "" {
		return aggregates.ErrEmptyPeriodKey
	}
	if aggregate.Parameter == "" {
		return derived.ErrEmptyParameter
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.derivedRows[derivedKey(aggregate.Granularity, aggregate.PeriodKey, aggregate.Parameter)] = aggregate
	return nil
}

// GetFact returns the fact row for (granularity, periodKey), nil when absent.
func (r *AggregateRepository) GetFact(ctx context.Context, granularity aggregates.Granularity, periodKey string) (*aggregates.FactAggregate, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.factRows[factKey(granularity, periodKey)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// GetDerived returns the derived row for the key, nil when absent.
func (r *AggregateRepository) GetDerived(ctx context.Context, granularity aggregates.Granularity, periodKey string, parameter derived.ModelParameter) (*aggregates.DerivedAggregate, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.derivedRows[derivedKey(granularity, periodKey, parameter)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// ListFacts returns fact rows whose period key starts with prefix.
func (r *AggregateRepository) ListFacts(ctx context.Context, granularity aggregates.Granularity, keyPrefix string) ([]aggregates.FactAggregate, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []aggregates.FactAggregate
	for _, row := range r.factRows {
		if row.Granularity == granularity && strings.HasPrefix(row.PeriodKey, keyPrefix) {
			result = append(result, row)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PeriodKey < result[j].PeriodKey })
	return result, nil
}

// ListDerived returns derived rows whose period key starts with prefix.
func (r *AggregateRepository) ListDerived(ctx context.Context, granularity aggregates.Granularity, keyPrefix string) ([]aggregates.DerivedAggregate, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []aggregates.DerivedAggregate
	for _, row := range r.derivedRows {
		if row.Granularity == granularity && strings.HasPrefix(row.PeriodKey, keyPrefix) {
			result = append(result, row)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].PeriodKey != result[j].PeriodKey {
			return result[i].PeriodKey < result[j].PeriodKey
		}
		return result[i].Parameter < result[j].Parameter
	})
	return result, nil
}
