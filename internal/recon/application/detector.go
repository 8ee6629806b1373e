package application

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	facts "settlement-recon/internal/facts/domain"
	"settlement-recon/internal/marketdata"
	"settlement-recon/internal/observability/metrics"
	recon "settlement-recon/internal/recon/domain"
)

// DefaultSumTolerance is the absolute tolerance for comparing decimal sums.
// Non-zero by policy: summation across many rows accumulates rounding noise
// even with exact decimals at the row level, because the remote side reports
// rounded figures.
var DefaultSumTolerance = decimal.RequireFromString("0.01")

// Detector compares the remote source of truth against the local fact store
// period by period.
//
// Remote records pass through the same acceptance filter as ingest, so the
// comparison is apples-to-apples. A full scan performs 48 remote fetches;
// all of them go through the one shared rate-limited client.
type Detector struct {
	client    *marketdata.Client
	filter    *marketdata.Filter
	facts     facts.Repository
	tolerance decimal.Decimal
	logger    *zap.Logger
}

// NewDetector constructs a detector with the default tolerance.
func NewDetector(client *marketdata.Client, filter *marketdata.Filter, factRepo facts.Repository, logger *zap.Logger, opts ...DetectorOption) (*Detector, error) {
	if client == nil {
		return nil, errors.New("recon: nil client")
	}
	if filter == nil {
		return nil, errors.New("recon: nil filter")
	}
	if factRepo == nil {
		return nil, errors.New("recon: nil fact repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	detector := &Detector{
		client:    client,
		filter:    filter,
		facts:     factRepo,
		tolerance: DefaultSumTolerance,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(detector)
	}
	return detector, nil
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithTolerance overrides the absolute sum comparison tolerance.
func WithTolerance(tolerance decimal.Decimal) DetectorOption {
	return func(d *Detector) {
		if tolerance.IsPositive() {
			d.tolerance = tolerance
		}
	}
}

// Classify scans every period of the date. Remote fetch failures do not abort
// the scan: the affected period is classified StatusUnknown with its error
// attached. The returned error covers local store failures only.
func (d *Detector) Classify(ctx context.Context, date facts.SettlementDate) (recon.Classification, error) {
	periods := make([]facts.Period, 0, facts.PeriodsPerDay)
	for number := 1; number <= facts.PeriodsPerDay; number++ {
		periods = append(periods, facts.Period(number))
	}
	return d.ClassifyPeriods(ctx, date, periods)
}

// ClassifyPeriods scans only the given periods. The controller uses this to
// avoid re-fetching periods a resumed run has already confirmed repaired.
func (d *Detector) ClassifyPeriods(ctx context.Context, date facts.SettlementDate, periods []facts.Period) (recon.Classification, error) {
	if date.IsZero() {
		return nil, facts.ErrInvalidDate
	}

	classification := make(recon.Classification, len(periods))
	for _, period := range periods {
		if !period.Valid() {
			return nil, facts.ErrInvalidPeriod
		}

		local, err := d.facts.CountAndSums(ctx, date, period)
		if err != nil {
			return nil, err
		}
		localSnapshot := recon.SnapshotOf(local)

		records, err := d.client.Fetch(ctx, date, period)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			d.logger.Warn("period fetch failed during scan",
				zap.String("date", date.Key()),
				zap.Int("period", int(period)),
				zap.Error(err))
			classification[period] = recon.PeriodClassification{
				Status: recon.StatusUnknown,
				Local:  localSnapshot,
				Err:    err,
			}
			metrics.IncPeriodClassification(string(recon.StatusUnknown))
			continue
		}

		remoteSnapshot := snapshotRecords(d.filter, date, period, records)
		verdict := recon.PeriodClassification{
			Status: d.classifyPeriod(remoteSnapshot, localSnapshot),
			Remote: remoteSnapshot,
			Local:  localSnapshot,
		}
		classification[period] = verdict
		metrics.IncPeriodClassification(string(verdict.Status))
	}
	return classification, nil
}

// classifyPeriod applies the comparison table from the reconciliation policy.
func (d *Detector) classifyPeriod(remote, local recon.Snapshot) recon.PeriodStatus {
	switch {
	case remote.IsZero() && local.IsZero():
		return recon.StatusMatching
	case !remote.IsZero() && local.IsZero():
		return recon.StatusMissingLocally
	case remote.IsZero() && !local.IsZero():
		return recon.StatusMissingRemotely
	}

	if remote.Count != local.Count {
		return recon.StatusDiverged
	}
	if remote.TotalQuantity.Sub(local.TotalQuantity).Abs().GreaterThan(d.tolerance) {
		return recon.StatusDiverged
	}
	if remote.TotalPayment.Sub(local.TotalPayment).Abs().GreaterThan(d.tolerance) {
		return recon.StatusDiverged
	}
	return recon.StatusMatching
}

// snapshotRecords filters raw records exactly like ingest and sums the result.
func snapshotRecords(filter *marketdata.Filter, date facts.SettlementDate, period facts.Period, records []marketdata.RawRecord) recon.Snapshot {
	snapshot := recon.Snapshot{TotalQuantity: decimal.Zero, TotalPayment: decimal.Zero}
	for _, fact := range filter.AcceptAll(date, period, records) {
		snapshot.Count++
		snapshot.TotalQuantity = snapshot.TotalQuantity.Add(fact.Quantity)
		snapshot.TotalPayment = snapshot.TotalPayment.Add(fact.Payment)
	}
	return snapshot
}
