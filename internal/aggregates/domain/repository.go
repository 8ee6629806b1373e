package aggregates

import (
	"context"

	derived "settlement-recon/internal/derived/domain"
)

// Repository persists aggregate rows. Upserts are keyed by
// (granularity, periodKey) for the fact family and
// (granularity, periodKey, parameter) for the derived family; one refresh
// replaces the whole row.
type Repository interface {
	UpsertFact(ctx context.Context, aggregate FactAggregate) error
	UpsertDerived(ctx context.Context, aggregate DerivedAggregate) error

	// GetFact returns nil when no row exists.
	GetFact(ctx context.Context, granularity Granularity, periodKey string) (*FactAggregate, error)
	// GetDerived returns nil when no row exists.
	GetDerived(ctx context.Context, granularity Granularity, periodKey string, parameter derived.ModelParameter) (*DerivedAggregate, error)

	// ListFacts returns fact rows of a granularity whose period key starts
	// with prefix, ordered by period key.
	ListFacts(ctx context.Context, granularity Granularity, keyPrefix string) ([]FactAggregate, error)
	// ListDerived returns derived rows of a granularity whose period key
	// starts with prefix, ordered by period key then parameter.
	ListDerived(ctx context.Context, granularity Granularity, keyPrefix string) ([]DerivedAggregate, error)
}
