package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	aggregates "settlement-recon/internal/aggregates/domain"
	derived "settlement-recon/internal/derived/domain"
	facts "settlement-recon/internal/facts/domain"
	"settlement-recon/internal/observability/metrics"
)

// Clock provides time for aggregate stamps.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

// Now returns current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Maintainer recomputes Daily, Monthly and Yearly aggregates, for both the
// fact family and the derived family, strictly from the layer directly below.
//
// Reading two levels down is deliberately impossible here: the monthly
// refresh only sees daily rows and the yearly refresh only sees monthly rows,
// so a partial refresh can never make a month quietly disagree with its days.
type Maintainer struct {
	facts      facts.Repository
	derived    derived.Repository
	repo       aggregates.Repository
	parameters []derived.ModelParameter
	clock      Clock
}

// NewMaintainer constructs a maintainer over the fixed parameter set.
func NewMaintainer(
	factRepo facts.Repository,
	derivedRepo derived.Repository,
	repo aggregates.Repository,
	parameters []derived.ModelParameter,
	clock Clock,
) (*Maintainer, error) {
	if factRepo == nil || derivedRepo == nil || repo == nil {
		return nil, errors.New("aggregates: nil repository")
	}
	if len(parameters) == 0 {
		return nil, derived.ErrEmptyParameter
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Maintainer{
		facts:      factRepo,
		derived:    derivedRepo,
		repo:       repo,
		parameters: parameters,
		clock:      clock,
	}, nil
}

// Refresh recomputes the date's daily rows, then that day's month, then that
// month's year, in dependency order, for both families.
func (m *Maintainer) Refresh(ctx context.Context, date facts.SettlementDate) error {
	if err := m.RefreshDaily(ctx, date); err != nil {
		return err
	}
	if err := m.RefreshMonthly(ctx, date.MonthKey()); err != nil {
		return err
	}
	return m.RefreshYearly(ctx, date.YearKey())
}

// RefreshDaily recomputes the day rows for a date directly from facts and
// derived calculations. A date with no facts still gets a zeroed row, so
// "checked and empty" stays distinguishable from "never checked".
func (m *Maintainer) RefreshDaily(ctx context.Context, date facts.SettlementDate) error {
	if date.IsZero() {
		return facts.ErrInvalidDate
	}
	started := time.Now()

	sums, err := m.facts.CountAndSumsForDate(ctx, date)
	if err != nil {
		metrics.ObserveAggregateRefresh(string(aggregates.GranularityDay), metrics.ResultError, time.Since(started))
		return err
	}
	now := m.clock.Now()
	if err := m.repo.UpsertFact(ctx, aggregates.FactAggregate{
		Granularity:   aggregates.GranularityDay,
		PeriodKey:     aggregates.DayKey(date),
		RecordCount:   sums.Count,
		TotalQuantity: sums.TotalQuantity,
		TotalPayment:  sums.TotalPayment,
		LastUpdated:   now,
	}); err != nil {
		metrics.ObserveAggregateRefresh(string(aggregates.GranularityDay), metrics.ResultError, time.Since(started))
		return err
	}

	for _, parameter := range m.parameters {
		count, sum, err := m.derived.CountAndSum(ctx, date, parameter)
		if err != nil {
			metrics.ObserveAggregateRefresh(string(aggregates.GranularityDay), metrics.ResultError, time.Since(started))
			return err
		}
		if err := m.repo.UpsertDerived(ctx, aggregates.DerivedAggregate{
			Granularity: aggregates.GranularityDay,
			PeriodKey:   aggregates.DayKey(date),
			Parameter:   parameter,
			RecordCount: count,
			TotalValue:  sum,
			LastUpdated: now,
		}); err != nil {
			metrics.ObserveAggregateRefresh(string(aggregates.GranularityDay), metrics.ResultError, time.Since(started))
			return err
		}
	}

	metrics.ObserveAggregateRefresh(string(aggregates.GranularityDay), metrics.ResultSuccess, time.Since(started))
	return nil
}

// RefreshMonthly recomputes a month row as the sum of its day rows.
func (m *Maintainer) RefreshMonthly(ctx context.Context, monthKey string) error {
	return m.refreshRollup(ctx, aggregates.GranularityMonth, monthKey,
		aggregates.GranularityDay, aggregates.MonthChildPrefix(monthKey))
}

// RefreshYearly recomputes a year row as the sum of its month rows.
func (m *Maintainer) RefreshYearly(ctx context.Context, yearKey string) error {
	return m.refreshRollup(ctx, aggregates.GranularityYear, yearKey,
		aggregates.GranularityMonth, aggregates.YearChildPrefix(yearKey))
}

func (m *Maintainer) refreshRollup(ctx context.Context, granularity aggregates.Granularity, periodKey string, childGranularity aggregates.Granularity, childPrefix string) error {
	if periodKey == "" {
		return aggregates.ErrEmptyPeriodKey
	}
	started := time.Now()

	children, err := m.repo.ListFacts(ctx, childGranularity, childPrefix)
	if err != nil {
		metrics.ObserveAggregateRefresh(string(granularity), metrics.ResultError, time.Since(started))
		return err
	}
	now := m.clock.Now()

	factRow := aggregates.FactAggregate{
		Granularity:   granularity,
		PeriodKey:     periodKey,
		TotalQuantity: decimal.Zero,
		TotalPayment:  decimal.Zero,
		LastUpdated:   now,
	}
	for _, child := range children {
		factRow.RecordCount += child.RecordCount
		factRow.TotalQuantity = factRow.TotalQuantity.Add(child.TotalQuantity)
		factRow.TotalPayment = factRow.TotalPayment.Add(child.TotalPayment)
	}
	if err := m.repo.UpsertFact(ctx, factRow); err != nil {
		metrics.ObserveAggregateRefresh(string(granularity), metrics.ResultError, time.Since(started))
		return err
	}

	derivedChildren, err := m.repo.ListDerived(ctx, childGranularity, childPrefix)
	if err != nil {
		metrics.ObserveAggregateRefresh(string(granularity), metrics.ResultError, time.Since(started))
		return err
	}
	byParameter := make(map[derived.ModelParameter]*aggregates.DerivedAggregate, len(m.parameters))
	for _, parameter := range m.parameters {
		byParameter[parameter] = &aggregates.DerivedAggregate{
			Granularity: granularity,
			PeriodKey:   periodKey,
			Parameter:   parameter,
			TotalValue:  decimal.Zero,
			LastUpdated: now,
		}
	}
	for _, child := range derivedChildren {
		row, ok := byParameter[child.Parameter]
		if !ok {
			return fmt.Errorf("aggregates: unknown parameter %q in %s rows", child.Parameter, childGranularity)
		}
		row.RecordCount += child.RecordCount
		row.TotalValue = row.TotalValue.Add(child.TotalValue)
	}
	for _, parameter := range m.parameters {
		if err := m.repo.UpsertDerived(ctx, *byParameter[parameter]); err != nil {
			metrics.ObserveAggregateRefresh(string(granularity), metrics.ResultError, time.Since(started))
			return err
		}
	}

	metrics.ObserveAggregateRefresh(string(granularity), metrics.ResultSuccess, time.Since(started))
	return nil
}
