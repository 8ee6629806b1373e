package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	aggapp "settlement-recon/internal/aggregates/application"
	derivedapp "settlement-recon/internal/derived/application"
	derived "settlement-recon/internal/derived/domain"
	facts "settlement-recon/internal/facts/domain"
	"settlement-recon/internal/marketdata"
	"settlement-recon/internal/observability/metrics"
	recon "settlement-recon/internal/recon/domain"
	"settlement-recon/internal/retry"
)

const (
	defaultDateWorkers   = 2
	defaultPeriodWorkers = 4
)

// Controller drives the per-date reconciliation state machine
// Scanning -> Repairing -> Recomputing -> Verifying -> Done|Failed
// and the batch run over a date range.
//
// Failure containment is strict: a period failure never aborts its date and a
// date failure never aborts its range; both are recorded in the report.
type Controller struct {
	detector    *Detector
	client      *marketdata.Client
	filter      *marketdata.Filter
	facts       facts.Repository
	calculator  *derivedapp.Calculator
	maintainer  *aggapp.Maintainer
	checkpoints recon.CheckpointStore
	policy      retry.Policy
	logger      *zap.Logger

	dateWorkers   int
	periodWorkers int
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRetryPolicy overrides the period-repair retry policy.
func WithRetryPolicy(policy retry.Policy) ControllerOption {
	return func(c *Controller) { c.policy = policy }
}

// WithDateWorkers bounds how many dates a batch run keeps in flight.
func WithDateWorkers(workers int) ControllerOption {
	return func(c *Controller) {
		if workers > 0 {
			c.dateWorkers = workers
		}
	}
}

// WithPeriodWorkers bounds concurrent period repairs within one date.
func WithPeriodWorkers(workers int) ControllerOption {
	return func(c *Controller) {
		if workers > 0 {
			c.periodWorkers = workers
		}
	}
}

// NewController wires the reconciliation engine together.
func NewController(
	detector *Detector,
	client *marketdata.Client,
	filter *marketdata.Filter,
	factRepo facts.Repository,
	calculator *derivedapp.Calculator,
	maintainer *aggapp.Maintainer,
	checkpoints recon.CheckpointStore,
	logger *zap.Logger,
	opts ...ControllerOption,
) (*Controller, error) {
	if detector == nil || client == nil || filter == nil {
		return nil, errors.New("recon: nil detector, client or filter")
	}
	if factRepo == nil || calculator == nil || maintainer == nil {
		return nil, errors.New("recon: nil store, calculator or maintainer")
	}
	if checkpoints == nil {
		return nil, errors.New("recon: nil checkpoint store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	controller := &Controller{
		detector:      detector,
		client:        client,
		filter:        filter,
		facts:         factRepo,
		calculator:    calculator,
		maintainer:    maintainer,
		checkpoints:   checkpoints,
		policy:        retry.DefaultPolicy(),
		logger:        logger,
		dateWorkers:   defaultDateWorkers,
		periodWorkers: defaultPeriodWorkers,
	}
	for _, opt := range opts {
		opt(controller)
	}
	return controller, nil
}

// ReconcileDate runs the full state machine for one date. The returned error
// reports date-level failures (storage, checkpointing); period-level failures
// live inside the report only.
func (c *Controller) ReconcileDate(ctx context.Context, date facts.SettlementDate) (recon.DateReport, error) {
	report := recon.DateReport{Date: date, DerivedFailures: make(map[derived.ModelParameter]string)}
	if date.IsZero() {
		report.Status = recon.StatusFailed
		report.Err = facts.ErrInvalidDate.Error()
		return report, facts.ErrInvalidDate
	}

	repaired := make(map[facts.Period]bool)

	checkpoint, err := c.checkpoints.Get(ctx, date)
	if err != nil {
		return c.failDate(ctx, report, repaired, err)
	}
	if checkpoint != nil && checkpoint.Status == recon.StatusDone {
		report.Status = recon.StatusDone
		report.Skipped = true
		report.PeriodsRepaired = checkpoint.PeriodsRepaired
		return report, nil
	}

	if checkpoint != nil && !checkpoint.Status.Terminal() {
		// Resume: periods confirmed repaired by the interrupted run stay done.
		repaired = checkpoint.RepairedSet()
	}

	// Scanning. A resumed run only scans the periods the interrupted run had
	// not yet confirmed repaired, so those are never re-fetched.
	toScan := make([]facts.Period, 0, facts.PeriodsPerDay)
	for number := 1; number <= facts.PeriodsPerDay; number++ {
		if !repaired[facts.Period(number)] {
			toScan = append(toScan, facts.Period(number))
		}
	}
	classification, err := c.detector.ClassifyPeriods(ctx, date, toScan)
	if err != nil {
		return c.failDate(ctx, report, repaired, err)
	}
	report.Classification = classification

	candidates := make([]facts.Period, 0, facts.PeriodsPerDay)
	for _, period := range classification.RepairCandidates() {
		if !repaired[period] {
			candidates = append(candidates, period)
		}
	}
	if len(candidates) == 0 && len(repaired) == 0 && classification.AllMatching() {
		report.Status = recon.StatusDone
		if err := c.writeCheckpoint(ctx, date, recon.StatusDone, repaired); err != nil {
			return c.failDate(ctx, report, repaired, err)
		}
		metrics.IncDate(string(recon.StatusDone))
		return report, nil
	}

	// Repairing.
	if err := c.writeCheckpoint(ctx, date, recon.StatusRepairing, repaired); err != nil {
		return c.failDate(ctx, report, repaired, err)
	}
	sessionRepaired, failed := c.repairPeriods(ctx, date, candidates, repaired)
	report.PeriodsFailed = recon.SortPeriods(failed)
	for period := range repaired {
		report.PeriodsRepaired = append(report.PeriodsRepaired, period)
	}
	report.PeriodsRepaired = recon.SortPeriods(report.PeriodsRepaired)
	if err := ctx.Err(); err != nil {
		// Interrupted mid-repair; the last per-period checkpoint stands and a
		// later run resumes from it.
		return c.failDate(ctx, report, repaired, err)
	}

	// Recomputing: runs when this pass replaced something, or when a resumed
	// date had repairs in flight whose recompute never happened.
	needRecompute := sessionRepaired > 0 ||
		(checkpoint != nil && !checkpoint.Status.Terminal() && len(repaired) > 0)
	if needRecompute {
		if err := c.writeCheckpoint(ctx, date, recon.StatusRecomputing, repaired); err != nil {
			return c.failDate(ctx, report, repaired, err)
		}
		_, failures := c.calculator.RecomputeAll(ctx, date)
		for parameter, recomputeErr := range failures {
			report.DerivedFailures[parameter] = recomputeErr.Error()
		}
		if err := c.maintainer.Refresh(ctx, date); err != nil {
			return c.failDate(ctx, report, repaired, err)
		}
	}

	// Verifying. Only this run's repair candidates are re-checked; everything
	// else was confirmed matching moments ago during the scan.
	if err := c.writeCheckpoint(ctx, date, recon.StatusVerifying, repaired); err != nil {
		return c.failDate(ctx, report, repaired, err)
	}
	verification, err := c.detector.ClassifyPeriods(ctx, date, candidates)
	if err != nil {
		return c.failDate(ctx, report, repaired, err)
	}
	stillBad := verification.RepairCandidates()
	if len(stillBad) > 0 {
		report.Status = recon.StatusFailed
		report.StillDiverged = stillBad
		divergedErr := &recon.StillDivergedError{Date: date, Periods: stillBad}
		report.Err = divergedErr.Error()
		if err := c.writeCheckpoint(ctx, date, recon.StatusFailed, repaired); err != nil {
			return report, err
		}
		metrics.IncDate(string(recon.StatusFailed))
		c.logger.Warn("date still diverged after repair",
			zap.String("date", date.Key()),
			zap.Ints("periods", periodsToInts(stillBad)))
		return report, nil
	}

	report.Status = recon.StatusDone
	if err := c.writeCheckpoint(ctx, date, recon.StatusDone, repaired); err != nil {
		return c.failDate(ctx, report, repaired, err)
	}
	metrics.IncDate(string(recon.StatusDone))
	return report, nil
}

// repairPeriods fan-outs period repairs with bounded concurrency and a
// checkpoint write after every successful repair. Returns how many periods
// this call repaired plus the periods whose retries were exhausted.
func (c *Controller) repairPeriods(ctx context.Context, date facts.SettlementDate, candidates []facts.Period, repaired map[facts.Period]bool) (int, []facts.Period) {
	var (
		mu       sync.Mutex
		failed   []facts.Period
		newCount int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.periodWorkers)
	for _, candidate := range candidates {
		period := candidate
		group.Go(func() error {
			err := retry.Do(groupCtx, c.policy, func(attemptCtx context.Context) error {
				return c.repairPeriod(attemptCtx, date, period)
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, period)
				metrics.IncPeriodRepaired(metrics.ResultError)
				c.logger.Error("period repair failed",
					zap.String("date", date.Key()),
					zap.Int("period", int(period)),
					zap.Error(err))
				return nil
			}
			repaired[period] = true
			newCount++
			metrics.IncPeriodRepaired(metrics.ResultSuccess)
			if cpErr := c.writeCheckpoint(ctx, date, recon.StatusRepairing, repaired); cpErr != nil {
				c.logger.Error("checkpoint write failed after period repair",
					zap.String("date", date.Key()),
					zap.Int("period", int(period)),
					zap.Error(cpErr))
			}
			return nil
		})
	}
	_ = group.Wait()
	return newCount, failed
}

// repairPeriod performs one fetch-filter-replace cycle for a period.
func (c *Controller) repairPeriod(ctx context.Context, date facts.SettlementDate, period facts.Period) error {
	records, err := c.client.Fetch(ctx, date, period)
	if err != nil {
		return err
	}
	accepted := c.filter.AcceptAll(date, period, records)

	started := time.Now()
	if _, err := c.facts.Replace(ctx, date, period, accepted); err != nil {
		metrics.ObserveReplace(metrics.ResultError, time.Since(started))
		return err
	}
	metrics.ObserveReplace(metrics.ResultSuccess, time.Since(started))
	return nil
}

// ReconcileRange runs the state machine over [from, to] with bounded date
// concurrency. A stop request (context cancellation) is honored between
// dates: in-flight dates finish their current step and checkpoint, no new
// dates start.
func (c *Controller) ReconcileRange(ctx context.Context, from, to facts.SettlementDate) (recon.BatchReport, error) {
	batch := recon.BatchReport{From: from, To: to}
	if from.IsZero() || to.IsZero() || from.After(to) {
		return batch, facts.ErrInvalidDate
	}

	var (
		mu      sync.Mutex
		reports []recon.DateReport
	)
	group := &errgroup.Group{}
	group.SetLimit(c.dateWorkers)

	for date := from; !date.After(to); date = date.Next() {
		if ctx.Err() != nil {
			break
		}
		current := date
		group.Go(func() error {
			report, err := c.ReconcileDate(ctx, current)
			if err != nil && report.Err == "" {
				report.Err = err.Error()
			}
			if err != nil && !report.Status.Terminal() {
				report.Status = recon.StatusFailed
			}
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	sortReportsByDate(reports)
	for _, report := range reports {
		batch.Add(report)
	}
	c.logger.Info("batch reconciliation finished",
		zap.String("from", from.Key()),
		zap.String("to", to.Key()),
		zap.Int("processed", batch.DatesProcessed),
		zap.Int("repaired", batch.DatesRepaired),
		zap.Int("failed", batch.DatesFailed))
	return batch, nil
}

// failDate records a date-level failure, checkpoints the Failed state with
// the repaired set as known so far (including periods repaired by a previous
// interrupted run) and returns the report together with the error.
func (c *Controller) failDate(ctx context.Context, report recon.DateReport, repaired map[facts.Period]bool, cause error) (recon.DateReport, error) {
	report.Status = recon.StatusFailed
	if report.Err == "" {
		report.Err = cause.Error()
	}
	metrics.IncDate(string(recon.StatusFailed))
	if !report.Date.IsZero() {
		if cpErr := c.writeCheckpoint(context.WithoutCancel(ctx), report.Date, recon.StatusFailed, repaired); cpErr != nil {
			c.logger.Error("terminal checkpoint write failed",
				zap.String("date", report.Date.Key()),
				zap.Error(cpErr))
		}
	}
	return report, cause
}

func (c *Controller) writeCheckpoint(ctx context.Context, date facts.SettlementDate, status recon.DateStatus, repaired map[facts.Period]bool) error {
	periods := make([]facts.Period, 0, len(repaired))
	for period := range repaired {
		periods = append(periods, period)
	}
	return c.checkpoints.Put(ctx, recon.Checkpoint{
		Date:            date,
		Status:          status,
		PeriodsRepaired: recon.SortPeriods(periods),
		UpdatedAt:       time.Now().UTC(),
	})
}

func sortReportsByDate(reports []recon.DateReport) {
	sort.Slice(reports, func(i, j int) bool { return reports[i].Date.Before(reports[j].Date) })
}

func periodsToInts(periods []facts.Period) []int {
	out := make([]int, len(periods))
	for i, period := range periods {
		out[i] = int(period)
	}
	return out
}
