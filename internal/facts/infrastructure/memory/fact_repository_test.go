package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	facts "settlement-recon/internal/facts/domain"
)

func mustDate(t *testing.T, year int, month time.Month, day int) facts.SettlementDate {
	t.Helper()
	return facts.NewSettlementDate(year, month, day)
}

func fact(date facts.SettlementDate, period facts.Period, entity, quantity, price string) facts.Fact {
	q := decimal.RequireFromString(quantity)
	p := decimal.RequireFromString(price)
	return facts.Fact{
		Date:      date,
		Period:    period,
		EntityID:  entity,
		Quantity:  q,
		UnitPrice: p,
		Payment:   q.Abs().Mul(p).Neg(),
		Flags:     facts.RecordFlags{SoFlag: true},
	}
}

func TestReplaceIsIdempotent(t *testing.T) {
	repo := NewFactRepository()
	date := mustDate(t, 2025, 3, 1)
	items := []facts.Fact{
		fact(date, 5, "A", "-10", "40"),
		fact(date, 5, "B", "-2.5", "38"),
	}

	for i := 0; i < 3; i++ {
		n, err := repo.Replace(context.Background(), date, 5, items)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	}

	sums, err := repo.CountAndSums(context.Background(), date, 5)
	require.NoError(t, err)
	require.Equal(t, 2, sums.Count)
	require.True(t, sums.TotalQuantity.Equal(decimal.RequireFromString("-12.5")))
	require.True(t, sums.TotalPayment.Equal(decimal.RequireFromString("-495")))
}

func TestReplaceRejectedBatchLeavesPeriodUntouched(t *testing.T) {
	repo := NewFactRepository()
	date := mustDate(t, 2025, 3, 1)
	good := []facts.Fact{fact(date, 7, "A", "-1", "10")}
	_, err := repo.Replace(context.Background(), date, 7, good)
	require.NoError(t, err)

	bad := fact(date, 7, "B", "-1", "10")
	bad.Payment = decimal.RequireFromString("3") // positive payment is invalid
	_, err = repo.Replace(context.Background(), date, 7, []facts.Fact{fact(date, 7, "C", "-2", "10"), bad})
	require.Error(t, err)

	var replaceErr *facts.ReplaceError
	require.ErrorAs(t, err, &replaceErr)
	require.Equal(t, facts.Period(7), replaceErr.Period)

	sums, err := repo.CountAndSums(context.Background(), date, 7)
	require.NoError(t, err)
	require.Equal(t, 1, sums.Count, "failed replace must not change the period")
	require.True(t, sums.TotalQuantity.Equal(decimal.RequireFromString("-1")))
}

func TestReplaceWithEmptyBatchClearsPeriod(t *testing.T) {
	repo := NewFactRepository()
	date := mustDate(t, 2025, 3, 1)
	_, err := repo.Replace(context.Background(), date, 9, []facts.Fact{fact(date, 9, "A", "-1", "10")})
	require.NoError(t, err)

	n, err := repo.Replace(context.Background(), date, 9, nil)
	require.NoError(t, err)
	require.Zero(t, n)

	present, err := repo.PeriodsPresent(context.Background(), date)
	require.NoError(t, err)
	require.False(t, present[9])
}

func TestReplaceRejectsMismatchedPeriod(t *testing.T) {
	repo := NewFactRepository()
	date := mustDate(t, 2025, 3, 1)
	_, err := repo.Replace(context.Background(), date, 3, []facts.Fact{fact(date, 4, "A", "-1", "10")})
	require.Error(t, err)
}

func TestCountAndSumsForDateSpansPeriods(t *testing.T) {
	repo := NewFactRepository()
	date := mustDate(t, 2025, 3, 1)
	other := mustDate(t, 2025, 3, 2)

	_, err := repo.Replace(context.Background(), date, 1, []facts.Fact{fact(date, 1, "A", "-1", "10")})
	require.NoError(t, err)
	_, err = repo.Replace(context.Background(), date, 2, []facts.Fact{fact(date, 2, "A", "-2", "10")})
	require.NoError(t, err)
	_, err = repo.Replace(context.Background(), other, 1, []facts.Fact{fact(other, 1, "A", "-50", "10")})
	require.NoError(t, err)

	sums, err := repo.CountAndSumsForDate(context.Background(), date)
	require.NoError(t, err)
	require.Equal(t, 2, sums.Count)
	require.True(t, sums.TotalQuantity.Equal(decimal.RequireFromString("-3")))
}

func TestListByDateOrdersByPeriodThenEntity(t *testing.T) {
	repo := NewFactRepository()
	date := mustDate(t, 2025, 3, 1)
	_, err := repo.Replace(context.Background(), date, 2, []facts.Fact{
		fact(date, 2, "B", "-1", "10"),
		fact(date, 2, "A", "-1", "10"),
	})
	require.NoError(t, err)
	_, err = repo.Replace(context.Background(), date, 1, []facts.Fact{fact(date, 1, "C", "-1", "10")})
	require.NoError(t, err)

	listed, err := repo.ListByDate(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	require.Equal(t, "C", listed[0].EntityID)
	require.Equal(t, "A", listed[1].EntityID)
	require.Equal(t, "B", listed[2].EntityID)
}
