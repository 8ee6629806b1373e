package facts

import "context"

// Repository defines the persistence contract for facts.
//
// Replace is the only mutation entrypoint: the source data has no natural
// unique key per (date, period, entity), so delete-before-insert inside one
// transaction is the discipline that keeps the at-most-one-fact invariant.
type Repository interface {
	// Replace atomically deletes all facts for (date, period) and inserts
	// the given facts. Returns the inserted count. On error the period is
	// left exactly as it was.
	Replace(ctx context.Context, date SettlementDate, period Period, items []Fact) (int, error)

	// CountAndSums aggregates stored facts for one period of a date.
	CountAndSums(ctx context.Context, date SettlementDate, period Period) (CountAndSums, error)

	// CountAndSumsForDate aggregates stored facts across all periods of a date.
	CountAndSumsForDate(ctx context.Context, date SettlementDate) (CountAndSums, error)

	// PeriodsPresent reports which periods of the date hold at least one fact.
	PeriodsPresent(ctx context.Context, date SettlementDate) (map[Period]bool, error)

	// ListByDate returns every fact stored for the date, ordered by period.
	ListByDate(ctx context.Context, date SettlementDate) ([]Fact, error)
}
