package facts

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSettlementDateKeys(t *testing.T) {
	d := NewSettlementDate(2025, time.March, 7)

	require.Equal(t, "2025-03-07", d.Key())
	require.Equal(t, "2025-03", d.MonthKey())
	require.Equal(t, "2025", d.YearKey())
	require.Equal(t, "2025-03-07", d.String())
}

func TestParseSettlementDateRoundTrip(t *testing.T) {
	d, err := ParseSettlementDate("2025-12-31")
	require.NoError(t, err)
	require.True(t, d.Equal(NewSettlementDate(2025, time.December, 31)))

	_, err = ParseSettlementDate("2025-13-01")
	require.Error(t, err)
	_, err = ParseSettlementDate("31/12/2025")
	require.Error(t, err)
}

func TestDateOfTruncatesToUTCDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 23:30 local on the 6th is already the 7th in UTC.
	d := DateOf(time.Date(2025, time.March, 6, 23, 30, 0, 0, loc))
	require.Equal(t, "2025-03-07", d.Key())
}

func TestSettlementDateNextCrossesBoundaries(t *testing.T) {
	require.Equal(t, "2025-03-01", NewSettlementDate(2025, time.February, 28).Next().Key())
	require.Equal(t, "2024-02-29", NewSettlementDate(2024, time.February, 28).Next().Key())
	require.Equal(t, "2026-01-01", NewSettlementDate(2025, time.December, 31).Next().Key())
}

func TestSettlementDateOrdering(t *testing.T) {
	a := NewSettlementDate(2025, time.March, 1)
	b := NewSettlementDate(2025, time.March, 2)

	require.True(t, a.Before(b))
	require.True(t, b.After(a))
	require.False(t, a.Equal(b))
	require.True(t, a.Equal(NewSettlementDate(2025, time.March, 1)))
	require.True(t, SettlementDate{}.IsZero())
	require.False(t, a.IsZero())
}

func TestPeriodValid(t *testing.T) {
	require.False(t, Period(0).Valid())
	require.True(t, Period(1).Valid())
	require.True(t, Period(48).Valid())
	require.False(t, Period(49).Valid())
	require.False(t, Period(-3).Valid())
}

func TestFactValidate(t *testing.T) {
	valid := Fact{
		Date:      NewSettlementDate(2025, time.March, 1),
		Period:    17,
		EntityID:  "E-001",
		Quantity:  decimal.RequireFromString("-12.5"),
		UnitPrice: decimal.RequireFromString("40"),
		Payment:   decimal.RequireFromString("-500"),
		Flags:     RecordFlags{SoFlag: true},
	}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*Fact)
		want   error
	}{
		{"zero date", func(f *Fact) { f.Date = SettlementDate{} }, ErrInvalidDate},
		{"period too large", func(f *Fact) { f.Period = 49 }, ErrInvalidPeriod},
		{"empty entity", func(f *Fact) { f.EntityID = "" }, ErrEmptyEntityID},
		{"positive payment", func(f *Fact) { f.Payment = decimal.RequireFromString("500") }, ErrPositivePayment},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := valid
			tc.mutate(&f)
			require.ErrorIs(t, f.Validate(), tc.want)
		})
	}

	// A zero payment satisfies the sign convention.
	zero := valid
	zero.Payment = decimal.Zero
	require.NoError(t, zero.Validate())
}

func TestRecordFlagsAny(t *testing.T) {
	require.False(t, RecordFlags{}.Any())
	require.True(t, RecordFlags{SoFlag: true}.Any())
	require.True(t, RecordFlags{CadlFlag: true}.Any())
	require.True(t, RecordFlags{SoFlag: true, CadlFlag: true}.Any())
}
