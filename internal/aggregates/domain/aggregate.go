package aggregates

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	derived "settlement-recon/internal/derived/domain"
	facts "settlement-recon/internal/facts/domain"
)

// Granularity is the rollup level of an aggregate row.
type Granularity string

const (
	// GranularityDay aggregates one settlement date.
	GranularityDay Granularity = "day"
	// GranularityMonth aggregates the daily rows of one month.
	GranularityMonth Granularity = "month"
	// GranularityYear aggregates the monthly rows of one year.
	GranularityYear Granularity = "year"
)

// IsValid reports whether the granularity is supported.
func (g Granularity) IsValid() bool {
	switch g {
	case GranularityDay, GranularityMonth, GranularityYear:
		return true
	}
	return false
}

var (
	// ErrInvalidGranularity is returned for an unsupported granularity.
	ErrInvalidGranularity = errors.New("aggregates: invalid granularity")
	// ErrEmptyPeriodKey is returned when a period key is missing.
	ErrEmptyPeriodKey = errors.New("aggregates: empty period key")
)

// FactAggregate is one rollup row over stored facts.
//
// Invariant: a day row equals the sums over that date's facts, a month row
// equals the sums over its day rows, a year row equals the sums over its
// month rows. Each level is computed only from the level directly below.
type FactAggregate struct {
	Granularity   Granularity
	PeriodKey     string
	RecordCount   int
	TotalQuantity decimal.Decimal
	TotalPayment  decimal.Decimal
	LastUpdated   time.Time
}

// DerivedAggregate is one rollup row over derived calculations, per parameter.
type DerivedAggregate struct {
	Granularity Granularity
	PeriodKey   string
	Parameter   derived.ModelParameter
	RecordCount int
	TotalValue  decimal.Decimal
	LastUpdated time.Time
}

// DayKey returns the day period key for a date.
func DayKey(date facts.SettlementDate) string { return date.Key() }

// MonthChildPrefix returns the prefix matching the day keys of a month key.
func MonthChildPrefix(monthKey string) string { return monthKey + "-" }

// YearChildPrefix returns the prefix matching the month keys of a year key.
func YearChildPrefix(yearKey string) string { return yearKey + "-" }
