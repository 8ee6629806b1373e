package marketdata

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	facts "settlement-recon/internal/facts/domain"
)

func testFilter(t *testing.T, entities ...string) *Filter {
	t.Helper()
	filter, err := NewFilter(context.Background(), NewStaticEntityProvider(entities...))
	require.NoError(t, err)
	return filter
}

func TestFilterAcceptsQualifyingRecord(t *testing.T) {
	filter := testFilter(t, "T_UNIT-1")
	date := facts.NewSettlementDate(2025, 3, 1)

	fact, ok := filter.Accept(date, 7, RawRecord{
		EntityID:  "T_UNIT-1",
		Quantity:  decimal.RequireFromString("-12.5"),
		UnitPrice: decimal.RequireFromString("40"),
		SoFlag:    true,
	})
	require.True(t, ok)
	require.Equal(t, "T_UNIT-1", fact.EntityID)
	require.Equal(t, facts.Period(7), fact.Period)
	// Payment is |quantity| * unitPrice stored as a non-positive cost.
	require.True(t, fact.Payment.Equal(decimal.RequireFromString("-500")),
		"payment = %s, want -500", fact.Payment)
	require.NoError(t, fact.Validate())
}

func TestFilterRejects(t *testing.T) {
	filter := testFilter(t, "T_UNIT-1")
	date := facts.NewSettlementDate(2025, 3, 1)

	cases := map[string]RawRecord{
		"positive quantity": {
			EntityID: "T_UNIT-1", Quantity: decimal.RequireFromString("5"),
			UnitPrice: decimal.RequireFromString("40"), SoFlag: true,
		},
		"zero quantity": {
			EntityID: "T_UNIT-1", Quantity: decimal.Zero,
			UnitPrice: decimal.RequireFromString("40"), SoFlag: true,
		},
		"no qualifying flag": {
			EntityID: "T_UNIT-1", Quantity: decimal.RequireFromString("-5"),
			UnitPrice: decimal.RequireFromString("40"),
		},
		"unknown entity": {
			EntityID: "T_UNKNOWN", Quantity: decimal.RequireFromString("-5"),
			UnitPrice: decimal.RequireFromString("40"), CadlFlag: true,
		},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := filter.Accept(date, 1, raw)
			require.False(t, ok)
		})
	}
}

func TestFilterCadlFlagAloneQualifies(t *testing.T) {
	filter := testFilter(t, "T_UNIT-2")
	date := facts.NewSettlementDate(2025, 3, 1)

	fact, ok := filter.Accept(date, 48, RawRecord{
		EntityID:  "T_UNIT-2",
		Quantity:  decimal.RequireFromString("-0.001"),
		UnitPrice: decimal.RequireFromString("100"),
		CadlFlag:  true,
	})
	require.True(t, ok)
	require.True(t, fact.Payment.Equal(decimal.RequireFromString("-0.1")))
}

func TestFilterAcceptAllKeepsOrder(t *testing.T) {
	filter := testFilter(t, "A", "B")
	date := facts.NewSettlementDate(2025, 3, 2)

	raws := []RawRecord{
		{EntityID: "A", Quantity: decimal.RequireFromString("-1"), UnitPrice: decimal.RequireFromString("10"), SoFlag: true},
		{EntityID: "X", Quantity: decimal.RequireFromString("-1"), UnitPrice: decimal.RequireFromString("10"), SoFlag: true},
		{EntityID: "B", Quantity: decimal.RequireFromString("-2"), UnitPrice: decimal.RequireFromString("10"), CadlFlag: true},
	}
	accepted := filter.AcceptAll(date, 3, raws)
	require.Len(t, accepted, 2)
	require.Equal(t, "A", accepted[0].EntityID)
	require.Equal(t, "B", accepted[1].EntityID)
}

func TestFilterRequiresNonEmptyEntitySet(t *testing.T) {
	_, err := NewFilter(context.Background(), NewStaticEntityProvider())
	require.Error(t, err)
}
