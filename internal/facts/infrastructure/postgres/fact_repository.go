package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	facts "settlement-recon/internal/facts/domain"
)

const defaultFactTable = "settlement_facts"

// FactRepository is the Postgres implementation of the fact store.
type FactRepository struct {
	db    *sql.DB
	table string
}

// NewFactRepository creates a repository using the default table name.
func NewFactRepository(db *sql.DB, opts ...FactRepositoryOption) *FactRepository {
	repo := &FactRepository{db: db, table: defaultFactTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// FactRepositoryOption configures the repository.
type FactRepositoryOption func(*FactRepository)

// WithFactTable overrides the default table name.
func WithFactTable(table string) FactRepositoryOption {
	return func(repo *FactRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Replace deletes all facts for (date, period) and inserts the given facts
// inside one transaction. The delete and insert commit or roll back together.
func (r *FactRepository) Replace(ctx context.Context, date facts.SettlementDate, period facts.Period, items []facts.Fact) (int, error) {
	if date.IsZero() {
		return 0, facts.ErrInvalidDate
	}
	if !period.Valid() {
		return 0, facts.ErrInvalidPeriod
	}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return 0, err
		}
		if !item.Date.Equal(date) || item.Period != period {
			return 0, fmt.Errorf("facts: fact for %s/%d does not belong to replace of %s/%d",
				item.Date, item.Period, date, period)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &facts.ReplaceError{Date: date, Period: period, Err: err}
	}
	defer tx.Rollback()

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE settlement_date = $1 AND period = $2`, r.table)
	if _, err := tx.ExecContext(ctx, deleteQuery, date.Time(), int(period)); err != nil {
		return 0, &facts.ReplaceError{Date: date, Period: period, Err: err}
	}

	insertQuery := fmt.Sprintf(`
INSERT INTO %s (
	settlement_date,
	period,
	entity_id,
	quantity,
	unit_price,
	payment,
	so_flag,
	cadl_flag
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, r.table)

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return 0, &facts.ReplaceError{Date: date, Period: period, Err: err}
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(
			ctx,
			item.Date.Time(),
			int(item.Period),
			item.EntityID,
			item.Quantity,
			item.UnitPrice,
			item.Payment,
			item.Flags.SoFlag,
			item.Flags.CadlFlag,
		); err != nil {
			return 0, &facts.ReplaceError{Date: date, Period: period, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &facts.ReplaceError{Date: date, Period: period, Err: err}
	}
	return len(items), nil
}

// CountAndSums aggregates stored facts for one period of a date.
func (r *FactRepository) CountAndSums(ctx context.Context, date facts.SettlementDate, period facts.Period) (facts.CountAndSums, error) {
	if !period.Valid() {
		return facts.CountAndSums{}, facts.ErrInvalidPeriod
	}
	query := fmt.Sprintf(`
SELECT
	COUNT(*),
	COALESCE(SUM(quantity), 0),
	COALESCE(SUM(payment), 0)
FROM %s
WHERE settlement_date = $1
	AND period = $2`, r.table)

	return scanCountAndSums(r.db.QueryRowContext(ctx, query, date.Time(), int(period)))
}

// CountAndSumsForDate aggregates stored facts across all periods of a date.
func (r *FactRepository) CountAndSumsForDate(ctx context.Context, date facts.SettlementDate) (facts.CountAndSums, error) {
	query := fmt.Sprintf(`
SELECT
	COUNT(*),
	COALESCE(SUM(quantity), 0),
	COALESCE(SUM(payment), 0)
FROM %s
WHERE settlement_date = $1`, r.table)

	return scanCountAndSums(r.db.QueryRowContext(ctx, query, date.Time()))
}

// PeriodsPresent reports which periods of the date hold at least one fact.
func (r *FactRepository) PeriodsPresent(ctx context.Context, date facts.SettlementDate) (map[facts.Period]bool, error) {
	query := fmt.Sprintf(`SELECT DISTINCT period FROM %s WHERE settlement_date = $1`, r.table)
	rows, err := r.db.QueryContext(ctx, query, date.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	present := make(map[facts.Period]bool)
	for rows.Next() {
		var period int
		if err := rows.Scan(&period); err != nil {
			return nil, err
		}
		present[facts.Period(period)] = true
	}
	return present, rows.Err()
}

// ListByDate returns every fact stored for the date, ordered by period.
func (r *FactRepository) ListByDate(ctx context.Context, date facts.SettlementDate) ([]facts.Fact, error) {
	query := fmt.Sprintf(`
SELECT
	settlement_date,
	period,
	entity_id,
	quantity,
	unit_price,
	payment,
	so_flag,
	cadl_flag
FROM %s
WHERE settlement_date = $1
ORDER BY period, entity_id`, r.table)

	rows, err := r.db.QueryContext(ctx, query, date.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []facts.Fact
	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, fact)
	}
	return result, rows.Err()
}

func scanCountAndSums(row *sql.Row) (facts.CountAndSums, error) {
	var (
		count    int
		quantity decimal.Decimal
		payment  decimal.Decimal
	)
	if err := row.Scan(&count, &quantity, &payment); err != nil {
		return facts.CountAndSums{}, err
	}
	return facts.CountAndSums{Count: count, TotalQuantity: quantity, TotalPayment: payment}, nil
}

func scanFact(scanner interface{ Scan(dest ...any) error }) (facts.Fact, error) {
	var (
		date      sql.NullTime
		period    int
		entityID  string
		quantity  decimal.Decimal
		unitPrice decimal.Decimal
		payment   decimal.Decimal
		soFlag    bool
		cadlFlag  bool
	)
	if err := scanner.Scan(&date, &period, &entityID, &quantity, &unitPrice, &payment, &soFlag, &cadlFlag); err != nil {
		return facts.Fact{}, err
	}
	return facts.Fact{
		Date:      facts.DateOf(date.Time),
		Period:    facts.Period(period),
		EntityID:  entityID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Payment:   payment,
		Flags:     facts.RecordFlags{SoFlag: soFlag, CadlFlag: cadlFlag},
	}, nil
}
