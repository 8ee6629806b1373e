package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	aggregates "settlement-recon/internal/aggregates/domain"
	derived "settlement-recon/internal/derived/domain"
)

const (
	defaultFactAggregateTable    = "fact_aggregates"
	defaultDerivedAggregateTable = "derived_aggregates"
)

// AggregateRepository is the Postgres implementation of the aggregate store.
type AggregateRepository struct {
	db           *sql.DB
	factTable    string
	derivedTable string
}

// NewAggregateRepository creates a repository using the default table names.
func NewAggregateRepository(db *sql.DB, opts ...AggregateRepositoryOption) *AggregateRepository {
	repo := &AggregateRepository{
		db:           db,
		factTable:    defaultFactAggregateTable,
		derivedTable: defaultDerivedAggregateTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// AggregateRepositoryOption configures the repository.
type AggregateRepositoryOption func(*AggregateRepository)

// WithAggregateTables overrides the default table names.
func WithAggregateTables(factTable, derivedTable string) AggregateRepositoryOption {
	return func(repo *AggregateRepository) {
		if factTable != "" {
			repo.factTable = factTable
		}
		if derivedTable != "" {
			repo.derivedTable = derivedTable
		}
	}
}

// UpsertFact inserts or overwrites a fact aggregate row.
func (r *AggregateRepository) UpsertFact(ctx context.Context, aggregate aggregates.FactAggregate) error {
	if !aggregate.Granularity.IsValid() {
		return aggregates.ErrInvalidGranularity
	}
	if aggregate.PeriodKey == "" {
		return aggregates.ErrEmptyPeriodKey
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	granularity,
	period_key,
	record_count,
	total_quantity,
	total_payment,
	last_updated
) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (granularity, period_key)
DO UPDATE SET
	record_count = EXCLUDED.record_count,
	total_quantity = EXCLUDED.total_quantity,
	total_payment = EXCLUDED.total_payment,
	last_updated = EXCLUDED.last_updated`, r.factTable)

	_, err := r.db.ExecContext(
		ctx,
		query,
		string(aggregate.Granularity),
		aggregate.PeriodKey,
		aggregate.RecordCount,
		aggregate.TotalQuantity,
		aggregate.TotalPayment,
		aggregate.LastUpdated,
	)
	return err
}

// UpsertDerived inserts or overwrites a derived aggregate row.
func (r *AggregateRepository) UpsertDerived(ctx context.Context, aggregate aggregates.DerivedAggregate) error {
	if !aggregate.Granularity.IsValid() {
		return aggregates.ErrInvalidGranularity
	}
	if aggregate.PeriodKey == "" {
		return aggregates.ErrEmptyPeriodKey
	}
	if aggregate.Parameter == "" {
		return derived.ErrEmptyParameter
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	granularity,
	period_key,
	parameter,
	record_count,
	total_value,
	last_updated
) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (granularity, period_key, parameter)
DO UPDATE SET
	record_count = EXCLUDED.record_count,
	total_value = EXCLUDED.total_value,
	last_updated = EXCLUDED.last_updated`, r.derivedTable)

	_, err := r.db.ExecContext(
		ctx,
		query,
		string(aggregate.Granularity),
		aggregate.PeriodKey,
		string(aggregate.Parameter),
		aggregate.RecordCount,
		aggregate.TotalValue,
		aggregate.LastUpdated,
	)
	return err
}

// GetFact returns the fact row for (granularity, periodKey), nil when absent.
func (r *AggregateRepository) GetFact(ctx context.Context, granularity aggregates.Granularity, periodKey string) (*aggregates.FactAggregate, error) {
	query := fmt.Sprintf(`
SELECT granularity, period_key, record_count, total_quantity, total_payment, last_updated
FROM %s
WHERE granularity = $1 AND period_key = $2
LIMIT 1`, r.factTable)

	row := r.db.QueryRowContext(ctx, query, string(granularity), periodKey)
	aggregate, err := scanFactAggregate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &aggregate, nil
}

// GetDerived returns the derived row for the key, nil when absent.
func (r *AggregateRepository) GetDerived(ctx context.Context, granularity aggregates.Granularity, periodKey string, parameter derived.ModelParameter) (*aggregates.DerivedAggregate, error) {
	query := fmt.Sprintf(`
SELECT granularity, period_key, parameter, record_count, total_value, last_updated
FROM %s
WHERE granularity = $1 AND period_key = $2 AND parameter = $3
LIMIT 1`, r.derivedTable)

	row := r.db.QueryRowContext(ctx, query, string(granularity), periodKey, string(parameter))
	aggregate, err := scanDerivedAggregate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &aggregate, nil
}

// ListFacts returns fact rows whose period key starts with prefix.
func (r *AggregateRepository) ListFacts(ctx context.Context, granularity aggregates.Granularity, keyPrefix string) ([]aggregates.FactAggregate, error) {
	query := fmt.Sprintf(`
SELECT granularity, period_key, record_count, total_quantity, total_payment, last_updated
FROM %s
WHERE granularity = $1 AND period_key LIKE $2 || '%%'
ORDER BY period_key`, r.factTable)

	rows, err := r.db.QueryContext(ctx, query, string(granularity), keyPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []aggregates.FactAggregate
	for rows.Next() {
		aggregate, err := scanFactAggregate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, aggregate)
	}
	return result, rows.Err()
}

// ListDerived returns derived rows whose period key starts with prefix.
func (r *AggregateRepository) ListDerived(ctx context.Context, granularity aggregates.Granularity, keyPrefix string) ([]aggregates.DerivedAggregate, error) {
	query := fmt.Sprintf(`
SELECT granularity, period_key, parameter, record_count, total_value, last_updated
FROM %s
WHERE granularity = $1 AND period_key LIKE $2 || '%%'
ORDER BY period_key, parameter`, r.derivedTable)

	rows, err := r.db.QueryContext(ctx, query, string(granularity), keyPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []aggregates.DerivedAggregate
	for rows.Next() {
		aggregate, err := scanDerivedAggregate(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, aggregate)
	}
	return result, rows.Err()
}

func scanFactAggregate(scanner interface{ Scan(dest ...any) error }) (aggregates.FactAggregate, error) {
	var (
		granularity string
		periodKey   string
		recordCount int
		quantity    decimal.Decimal
		payment     decimal.Decimal
		lastUpdated time.Time
	)
	if err := scanner.Scan(&granularity, &periodKey, &recordCount, &quantity, &payment, &lastUpdated); err != nil {
		return aggregates.FactAggregate{}, err
	}
	return aggregates.FactAggregate{
		Granularity:   aggregates.Granularity(granularity),
		PeriodKey:     periodKey,
		RecordCount:   recordCount,
		TotalQuantity: quantity,
		TotalPayment:  payment,
		LastUpdated:   lastUpdated,
	}, nil
}

func scanDerivedAggregate(scanner interface{ Scan(dest ...any) error }) (aggregates.DerivedAggregate, error) {
	var (
		granularity string
		periodKey   string
		parameter   string
		recordCount int
		total       decimal.Decimal
		lastUpdated time.Time
	)
	if err := scanner.Scan(&granularity, &periodKey, &parameter, &recordCount, &total, &lastUpdated); err != nil {
		return aggregates.DerivedAggregate{}, err
	}
	return aggregates.DerivedAggregate{
		Granularity: aggregates.Granularity(granularity),
		PeriodKey:   periodKey,
		Parameter:   derived.ModelParameter(parameter),
		RecordCount: recordCount,
		TotalValue:  total,
		LastUpdated: lastUpdated,
	}, nil
}
