package facts

import (
	"github.com/shopspring/decimal"
)

// PeriodsPerDay is the fixed number of settlement periods in a day.
const PeriodsPerDay = 48

// Period is a settlement period number in [1, PeriodsPerDay].
type Period int

// Valid reports whether the period is in range.
func (p Period) Valid() bool { return p >= 1 && p <= PeriodsPerDay }

// RecordFlags are the qualifying flags carried by a source record.
// A record is only eligible for storage when at least one is set.
type RecordFlags struct {
	SoFlag   bool
	CadlFlag bool
}

// Any reports whether at least one qualifying flag is set.
func (f RecordFlags) Any() bool { return f.SoFlag || f.CadlFlag }

// Fact is one accepted settlement record for (date, period, entity).
// Facts are immutable: they are only ever created or replaced wholesale
// for a period, never patched in place.
type Fact struct {
	Date      SettlementDate
	Period    Period
	EntityID  string
	Quantity  decimal.Decimal // negative quantity encodes curtailed output
	UnitPrice decimal.Decimal
	Payment   decimal.Decimal // |Quantity| * UnitPrice stored as a non-positive cost
	Flags     RecordFlags
}

// Validate checks the structural invariants of a fact.
func (f Fact) Validate() error {
	if f.Date.IsZero() {
		return ErrInvalidDate
	}
	if !f.Period.Valid() {
		return ErrInvalidPeriod
	}
	if f.EntityID == "" {
		return ErrEmptyEntityID
	}
	if f.Payment.IsPositive() {
		return ErrPositivePayment
	}
	return nil
}

// CountAndSums is a read-only aggregation over stored facts.
type CountAndSums struct {
	Count         int
	TotalQuantity decimal.Decimal
	TotalPayment  decimal.Decimal
}

// IsZero reports whether nothing was counted.
func (c CountAndSums) IsZero() bool { return c.Count == 0 }
