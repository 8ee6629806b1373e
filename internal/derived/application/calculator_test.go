package application

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	derived "settlement-recon/internal/derived/domain"
	derivedmemory "settlement-recon/internal/derived/infrastructure/memory"
	facts "settlement-recon/internal/facts/domain"
	factsmemory "settlement-recon/internal/facts/infrastructure/memory"
)

const parameterLinear = derived.ModelParameter("linear")

func multiplyTransform(quantity decimal.Decimal, _ derived.ModelParameter, contextValue decimal.Decimal) decimal.Decimal {
	return quantity.Mul(contextValue)
}

func seedFact(t *testing.T, repo *factsmemory.FactRepository, date facts.SettlementDate, period facts.Period, entity, quantity string) {
	t.Helper()
	q := decimal.RequireFromString(quantity)
	_, err := repo.Replace(context.Background(), date, period, []facts.Fact{{
		Date:      date,
		Period:    period,
		EntityID:  entity,
		Quantity:  q,
		UnitPrice: decimal.RequireFromString("10"),
		Payment:   q.Abs().Mul(decimal.RequireFromString("10")).Neg(),
		Flags:     facts.RecordFlags{SoFlag: true},
	}})
	require.NoError(t, err)
}

func TestRecomputeProducesRowsWithFrozenContext(t *testing.T) {
	date := facts.NewSettlementDate(2025, 3, 1)

	factRepo := factsmemory.NewFactRepository()
	seedFact(t, factRepo, date, 1, "A", "-4")
	seedFact(t, factRepo, date, 2, "B", "-2.5")

	calcRepo := derivedmemory.NewCalculationRepository()
	contexts := derived.NewStaticContextProvider(map[string]decimal.Decimal{
		date.Key(): decimal.RequireFromString("3"),
	})
	calculator, err := NewCalculator(factRepo, calcRepo, contexts, multiplyTransform, []derived.ModelParameter{parameterLinear}, nil)
	require.NoError(t, err)

	count, err := calculator.Recompute(context.Background(), date, parameterLinear)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	rows, err := calcRepo.ListByDate(context.Background(), date, parameterLinear)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.True(t, row.ContextValue.Equal(decimal.RequireFromString("3")),
			"context value must be frozen into every row")
	}
	// The transform receives |quantity|.
	require.True(t, rows[0].Value.Equal(decimal.RequireFromString("12")))
	require.True(t, rows[1].Value.Equal(decimal.RequireFromString("7.5")))
}

func TestRecomputeFailsHardWhenContextUnavailable(t *testing.T) {
	date := facts.NewSettlementDate(2025, 3, 1)

	factRepo := factsmemory.NewFactRepository()
	seedFact(t, factRepo, date, 1, "A", "-4")

	calcRepo := derivedmemory.NewCalculationRepository()
	contexts := derived.NewStaticContextProvider(nil)
	calculator, err := NewCalculator(factRepo, calcRepo, contexts, multiplyTransform, []derived.ModelParameter{parameterLinear}, nil)
	require.NoError(t, err)

	_, err = calculator.Recompute(context.Background(), date, parameterLinear)
	require.ErrorIs(t, err, derived.ErrContextUnavailable)

	rows, err := calcRepo.ListByDate(context.Background(), date, parameterLinear)
	require.NoError(t, err)
	require.Empty(t, rows, "no rows may be written without a context value")
}

func TestRecomputeSkipsZeroQuantityFacts(t *testing.T) {
	date := facts.NewSettlementDate(2025, 3, 1)

	factRepo := factsmemory.NewFactRepository()
	seedFact(t, factRepo, date, 1, "A", "-4")
	// Zero quantity can enter through a manual backfill; it must be skipped
	// without failing the batch.
	zero := facts.Fact{
		Date: date, Period: 2, EntityID: "Z",
		Quantity: decimal.Zero, UnitPrice: decimal.RequireFromString("10"),
		Payment: decimal.Zero, Flags: facts.RecordFlags{CadlFlag: true},
	}
	_, err := factRepo.Replace(context.Background(), date, 2, []facts.Fact{zero})
	require.NoError(t, err)

	calcRepo := derivedmemory.NewCalculationRepository()
	contexts := derived.NewStaticContextProvider(map[string]decimal.Decimal{
		date.Key(): decimal.RequireFromString("2"),
	})
	calculator, err := NewCalculator(factRepo, calcRepo, contexts, multiplyTransform, []derived.ModelParameter{parameterLinear}, nil)
	require.NoError(t, err)

	count, err := calculator.Recompute(context.Background(), date, parameterLinear)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestRecomputeAllContainsPerParameterFailures(t *testing.T) {
	date := facts.NewSettlementDate(2025, 3, 1)

	factRepo := factsmemory.NewFactRepository()
	seedFact(t, factRepo, date, 1, "A", "-4")

	calcRepo := derivedmemory.NewCalculationRepository()
	contexts := derived.NewStaticContextProvider(map[string]decimal.Decimal{
		date.Key(): decimal.RequireFromString("2"),
	})
	failing := derived.ModelParameter("")
	calculator, err := NewCalculator(factRepo, calcRepo, contexts, multiplyTransform,
		[]derived.ModelParameter{parameterLinear, failing}, nil)
	require.NoError(t, err)

	total, failures := calculator.RecomputeAll(context.Background(), date)
	require.Equal(t, 1, total)
	require.Len(t, failures, 1)
	require.Contains(t, failures, failing)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	date := facts.NewSettlementDate(2025, 3, 1)

	factRepo := factsmemory.NewFactRepository()
	seedFact(t, factRepo, date, 1, "A", "-4")

	calcRepo := derivedmemory.NewCalculationRepository()
	contexts := derived.NewStaticContextProvider(map[string]decimal.Decimal{
		date.Key(): decimal.RequireFromString("3"),
	})
	calculator, err := NewCalculator(factRepo, calcRepo, contexts, multiplyTransform, []derived.ModelParameter{parameterLinear}, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		count, err := calculator.Recompute(context.Background(), date, parameterLinear)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	}
	rows, err := calcRepo.ListByDate(context.Background(), date, parameterLinear)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
