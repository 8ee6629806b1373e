package facts

import (
	"fmt"
	"time"
)

const (
	dayKeyLayout   = "2006-01-02"
	monthKeyLayout = "2006-01"
	yearKeyLayout  = "2006"
)

// SettlementDate is a calendar date with no time component, always UTC.
type SettlementDate struct {
	t time.Time
}

// NewSettlementDate builds a date from year/month/day.
func NewSettlementDate(year int, month time.Month, day int) SettlementDate {
	return SettlementDate{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time to its settlement date in UTC.
func DateOf(t time.Time) SettlementDate {
	u := t.UTC()
	return NewSettlementDate(u.Year(), u.Month(), u.Day())
}

// ParseSettlementDate parses a YYYY-MM-DD key.
func ParseSettlementDate(value string) (SettlementDate, error) {
	t, err := time.Parse(dayKeyLayout, value)
	if err != nil {
		return SettlementDate{}, fmt.Errorf("facts: invalid settlement date %q: %w", value, err)
	}
	return DateOf(t), nil
}

// Key returns the canonical YYYY-MM-DD key.
func (d SettlementDate) Key() string { return d.t.Format(dayKeyLayout) }

// MonthKey returns the YYYY-MM key containing this date.
func (d SettlementDate) MonthKey() string { return d.t.Format(monthKeyLayout) }

// YearKey returns the YYYY key containing this date.
func (d SettlementDate) YearKey() string { return d.t.Format(yearKeyLayout) }

// Time returns midnight UTC of the date.
func (d SettlementDate) Time() time.Time { return d.t }

// IsZero reports whether the date is unset.
func (d SettlementDate) IsZero() bool { return d.t.IsZero() }

// Next returns the following calendar date.
func (d SettlementDate) Next() SettlementDate { return SettlementDate{t: d.t.AddDate(0, 0, 1)} }

// Before reports whether d is earlier than other.
func (d SettlementDate) Before(other SettlementDate) bool { return d.t.Before(other.t) }

// After reports whether d is later than other.
func (d SettlementDate) After(other SettlementDate) bool { return d.t.After(other.t) }

// Equal reports whether two dates are the same day.
func (d SettlementDate) Equal(other SettlementDate) bool { return d.t.Equal(other.t) }

func (d SettlementDate) String() string { return d.Key() }
