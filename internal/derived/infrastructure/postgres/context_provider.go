package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	derived "settlement-recon/internal/derived/domain"
	facts "settlement-recon/internal/facts/domain"
)

// ContextProvider reads per-date model context values from Postgres. A date
// with no row is unavailable, which callers must treat as a hard failure;
// there is no default value to fall back to.
type ContextProvider struct {
	db    *sql.DB
	table string
}

// NewContextProvider creates a provider over the model_context table.
func NewContextProvider(db *sql.DB) *ContextProvider {
	return &ContextProvider{db: db, table: "model_context"}
}

// ContextValue returns the context value frozen for the date.
func (p *ContextProvider) ContextValue(ctx context.Context, date facts.SettlementDate) (decimal.Decimal, error) {
	query := fmt.Sprintf(`SELECT context_value FROM %s WHERE date_key = $1`, p.table)
	var raw string
	err := p.db.QueryRowContext(ctx, query, date.Key()).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Decimal{}, &derived.ContextUnavailableError{Date: date, Err: derived.ErrContextUnavailable}
	}
	if err != nil {
		return decimal.Decimal{}, &derived.ContextUnavailableError{Date: date, Err: err}
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, &derived.ContextUnavailableError{Date: date, Err: err}
	}
	return value, nil
}
