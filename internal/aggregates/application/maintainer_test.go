package application

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	aggregates "settlement-recon/internal/aggregates/domain"
	aggmemory "settlement-recon/internal/aggregates/infrastructure/memory"
	derived "settlement-recon/internal/derived/domain"
	derivedmemory "settlement-recon/internal/derived/infrastructure/memory"
	facts "settlement-recon/internal/facts/domain"
	factsmemory "settlement-recon/internal/facts/infrastructure/memory"
)

const parameterLinear = derived.ModelParameter("linear")

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type fixture struct {
	facts      *factsmemory.FactRepository
	derived    *derivedmemory.CalculationRepository
	aggregates *aggmemory.AggregateRepository
	maintainer *Maintainer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		facts:      factsmemory.NewFactRepository(),
		derived:    derivedmemory.NewCalculationRepository(),
		aggregates: aggmemory.NewAggregateRepository(),
	}
	maintainer, err := NewMaintainer(f.facts, f.derived, f.aggregates,
		[]derived.ModelParameter{parameterLinear},
		fixedClock{at: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	f.maintainer = maintainer
	return f
}

func (f *fixture) seedDay(t *testing.T, date facts.SettlementDate, quantity, payment string) {
	t.Helper()
	q := decimal.RequireFromString(quantity)
	p := decimal.RequireFromString(payment)
	_, err := f.facts.Replace(context.Background(), date, 1, []facts.Fact{{
		Date: date, Period: 1, EntityID: "A",
		Quantity: q, UnitPrice: decimal.RequireFromString("1"), Payment: p,
		Flags: facts.RecordFlags{SoFlag: true},
	}})
	require.NoError(t, err)
	_, err = f.derived.ReplaceForDate(context.Background(), date, parameterLinear, []derived.Calculation{{
		Date: date, Period: 1, EntityID: "A", Parameter: parameterLinear,
		Value: q.Abs(), ContextValue: decimal.RequireFromString("1"),
	}})
	require.NoError(t, err)
}

func date(t *testing.T, y int, m time.Month, d int) facts.SettlementDate {
	t.Helper()
	return facts.NewSettlementDate(y, m, d)
}

func TestRefreshDailyMatchesFacts(t *testing.T) {
	f := newFixture(t)
	day := date(t, 2025, 3, 1)
	f.seedDay(t, day, "-10", "-400")

	require.NoError(t, f.maintainer.Refresh(context.Background(), day))

	row, err := f.aggregates.GetFact(context.Background(), aggregates.GranularityDay, day.Key())
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, 1, row.RecordCount)
	require.True(t, row.TotalQuantity.Equal(decimal.RequireFromString("-10")))
	require.True(t, row.TotalPayment.Equal(decimal.RequireFromString("-400")))

	derivedRow, err := f.aggregates.GetDerived(context.Background(), aggregates.GranularityDay, day.Key(), parameterLinear)
	require.NoError(t, err)
	require.NotNil(t, derivedRow)
	require.True(t, derivedRow.TotalValue.Equal(decimal.RequireFromString("10")))
}

func TestRefreshDailyWritesZeroedRowForEmptyDate(t *testing.T) {
	f := newFixture(t)
	day := date(t, 2025, 3, 2)

	require.NoError(t, f.maintainer.RefreshDaily(context.Background(), day))

	row, err := f.aggregates.GetFact(context.Background(), aggregates.GranularityDay, day.Key())
	require.NoError(t, err)
	require.NotNil(t, row, "an empty date still gets a row, distinguishing it from a never-checked date")
	require.Zero(t, row.RecordCount)
	require.True(t, row.TotalQuantity.IsZero())
	require.True(t, row.TotalPayment.IsZero())
}

func TestMonthEqualsSumOfDays(t *testing.T) {
	f := newFixture(t)
	first := date(t, 2025, 3, 1)
	second := date(t, 2025, 3, 2)
	f.seedDay(t, first, "-10", "-100")
	f.seedDay(t, second, "-5", "-50")

	require.NoError(t, f.maintainer.Refresh(context.Background(), first))
	require.NoError(t, f.maintainer.Refresh(context.Background(), second))

	month, err := f.aggregates.GetFact(context.Background(), aggregates.GranularityMonth, "2025-03")
	require.NoError(t, err)
	require.NotNil(t, month)
	require.Equal(t, 2, month.RecordCount)
	require.True(t, month.TotalQuantity.Equal(decimal.RequireFromString("-15")))
	require.True(t, month.TotalPayment.Equal(decimal.RequireFromString("-150")))
}

func TestYearEqualsSumOfMonths(t *testing.T) {
	f := newFixture(t)
	march := date(t, 2025, 3, 1)
	april := date(t, 2025, 4, 1)
	f.seedDay(t, march, "-10", "-100")
	f.seedDay(t, april, "-20", "-200")

	require.NoError(t, f.maintainer.Refresh(context.Background(), march))
	require.NoError(t, f.maintainer.Refresh(context.Background(), april))

	year, err := f.aggregates.GetFact(context.Background(), aggregates.GranularityYear, "2025")
	require.NoError(t, err)
	require.NotNil(t, year)
	require.Equal(t, 2, year.RecordCount)
	require.True(t, year.TotalQuantity.Equal(decimal.RequireFromString("-30")))
	require.True(t, year.TotalPayment.Equal(decimal.RequireFromString("-300")))

	derivedYear, err := f.aggregates.GetDerived(context.Background(), aggregates.GranularityYear, "2025", parameterLinear)
	require.NoError(t, err)
	require.NotNil(t, derivedYear)
	require.True(t, derivedYear.TotalValue.Equal(decimal.RequireFromString("30")))
}

func TestRefreshIsIdempotent(t *testing.T) {
	f := newFixture(t)
	day := date(t, 2025, 3, 1)
	f.seedDay(t, day, "-10", "-100")

	for i := 0; i < 3; i++ {
		require.NoError(t, f.maintainer.Refresh(context.Background(), day))
	}

	month, err := f.aggregates.GetFact(context.Background(), aggregates.GranularityMonth, "2025-03")
	require.NoError(t, err)
	require.Equal(t, 1, month.RecordCount, "re-running a refresh must not double-count")
}

func TestRefreshAfterDataChangeReplacesTotals(t *testing.T) {
	f := newFixture(t)
	day := date(t, 2025, 3, 1)
	f.seedDay(t, day, "-10", "-100")
	require.NoError(t, f.maintainer.Refresh(context.Background(), day))

	// A repair rewrote the period; the next refresh must reflect the new facts.
	f.seedDay(t, day, "-4", "-40")
	require.NoError(t, f.maintainer.Refresh(context.Background(), day))

	month, err := f.aggregates.GetFact(context.Background(), aggregates.GranularityMonth, "2025-03")
	require.NoError(t, err)
	require.True(t, month.TotalQuantity.Equal(decimal.RequireFromString("-4")))
}
