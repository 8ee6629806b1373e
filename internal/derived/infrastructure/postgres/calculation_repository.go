package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	derived "settlement-recon/internal/derived/domain"
	facts "settlement-recon/internal/facts/domain"
)

const defaultCalculationTable = "derived_calculations"

// CalculationRepository is the Postgres implementation of the derived store.
type CalculationRepository struct {
	db    *sql.DB
	table string
}

// NewCalculationRepository creates a repository using the default table name.
func NewCalculationRepository(db *sql.DB, opts ...CalculationRepositoryOption) *CalculationRepository {
	repo := &CalculationRepository{db: db, table: defaultCalculationTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// CalculationRepositoryOption configures the repository.
type CalculationRepositoryOption func(*CalculationRepository)

// WithCalculationTable overrides the default table name.
func WithCalculationTable(table string) CalculationRepositoryOption {
	return func(repo *CalculationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// ReplaceForDate deletes all calculations for (date, parameter) and inserts
// the given rows inside one transaction.
func (r *CalculationRepository) ReplaceForDate(ctx context.Context, date facts.SettlementDate, parameter derived.ModelParameter, rows []derived.Calculation) (int, error) {
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
			return 0, fmt.Errorf("derived: row for %s/%s does not belong to replace of %s/%s",
				row.Date, row.Parameter, date, parameter)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE settlement_date = $1 AND parameter = $2`, r.table)
	if _, err := tx.ExecContext(ctx, deleteQuery, date.Time(), string(parameter)); err != nil {
		return 0, err
	}

	insertQuery := fmt.Sprintf(`
INSERT INTO %s (
	settlement_date,
	period,
	entity_id,
	parameter,
	derived_value,
	context_value
) VALUES ($1, $2, $3, $4, $5, $6)`, r.table)

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(
			ctx,
			row.Date.Time(),
			int(row.Period),
			row.EntityID,
			string(row.Parameter),
			row.Value,
			row.ContextValue,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// CountAndSum aggregates stored calculations for (date, parameter).
func (r *CalculationRepository) CountAndSum(ctx context.Context, date facts.SettlementDate, parameter derived.ModelParameter) (int, decimal.Decimal, error) {
	query := fmt.Sprintf(`
SELECT
	COUNT(*),
	COALESCE(SUM(derived_value), 0)
FROM %s
WHERE settlement_date = $1
	AND parameter = $2`, r.table)

	var (
		count int
		sum   decimal.Decimal
	)
	row := r.db.QueryRowContext(ctx, query, date.Time(), string(parameter))
	if err := row.Scan(&count, &sum); err != nil {
		return 0, decimal.Zero, err
	}
	return count, sum, nil
}

// ListByDate returns every calculation for (date, parameter).
func (r *CalculationRepository) ListByDate(ctx context.Context, date facts.SettlementDate, parameter derived.ModelParameter) ([]derived.Calculation, error) {
	query := fmt.Sprintf(`
SELECT
	settlement_date,
	period,
	entity_id,
	parameter,
	derived_value,
	context_value
FROM %s
WHERE settlement_date = $1
	AND parameter = $2
ORDER BY period, entity_id`, r.table)

	rows, err := r.db.QueryContext(ctx, query, date.Time(), string(parameter))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []derived.Calculation
	for rows.Next() {
		var (
			storedDate   sql.NullTime
			period       int
			entityID     string
			param        string
			value        decimal.Decimal
			contextValue decimal.Decimal
		)
		if err := rows.Scan(&storedDate, &period, &entityID, &param, &value, &contextValue); err != nil {
			return nil, err
		}
		result = append(result, derived.Calculation{
			Date:         facts.DateOf(storedDate.Time),
			Period:       facts.Period(period),
			EntityID:     entityID,
			Parameter:    derived.ModelParameter(param),
			Value:        value,
			ContextValue: contextValue,
		})
	}
	return result, rows.Err()
}
