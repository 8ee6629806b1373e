package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	derived "settlement-recon/internal/derived/domain"
	facts "settlement-recon/internal/facts/domain"
	"settlement-recon/internal/observability/metrics"
)

// Calculator regenerates derived calculations from stored facts.
//
// It owns orchestration only: the transform is an injected pure function and
// the all-or-nothing delete/insert lives in the repository. A missing context
// value fails the whole (date, parameter) recompute; zero-quantity facts are
// skipped without failing the batch.
type Calculator struct {
	facts      facts.Repository
	repo       derived.Repository
	contexts   derived.ContextProvider
	transform  derived.Transform
	parameters []derived.ModelParameter
	logger     *zap.Logger
}

// NewCalculator constructs a calculator over the fixed parameter set.
func NewCalculator(
	factRepo facts.Repository,
	repo derived.Repository,
	contexts derived.ContextProvider,
	transform derived.Transform,
	parameters []derived.ModelParameter,
	logger *zap.Logger,
) (*Calculator, error) {
	if factRepo == nil || repo == nil {
		return nil, errors.New("derived: nil repository")
	}
	if contexts == nil {
		return nil, errors.New("derived: nil context provider")
	}
	if transform == nil {
		return nil, errors.New("derived: nil transform")
	}
	if len(parameters) == 0 {
		return nil, derived.ErrEmptyParameter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		facts:      factRepo,
		repo:       repo,
		contexts:   contexts,
		transform:  transform,
		parameters: parameters,
		logger:     logger,
	}, nil
}

// Parameters returns the fixed model parameter set.
func (c *Calculator) Parameters() []derived.ModelParameter {
	out := make([]derived.ModelParameter, len(c.parameters))
	copy(out, c.parameters)
	return out
}

// Recompute deletes and regenerates every calculation for (date, parameter).
// Returns the number of rows produced.
func (c *Calculator) Recompute(ctx context.Context, date facts.SettlementDate, parameter derived.ModelParameter) (int, error) {
	if date.IsZero() {
		return 0, facts.ErrInvalidDate
	}
	if parameter == "" {
		return 0, derived.ErrEmptyParameter
	}

	started := time.Now()
	count, err := c.recompute(ctx, date, parameter)
	if err != nil {
		metrics.ObserveRecompute(metrics.ResultError, time.Since(started))
		return 0, err
	}
	metrics.ObserveRecompute(metrics.ResultSuccess, time.Since(started))
	return count, nil
}

func (c *Calculator) recompute(ctx context.Context, date facts.SettlementDate, parameter derived.ModelParameter) (int, error) {
	contextValue, err := c.contexts.ContextValue(ctx, date)
	if err != nil {
		if errors.Is(err, derived.ErrContextUnavailable) {
			return 0, err
		}
		return 0, &derived.ContextUnavailableError{Date: date, Err: err}
	}

	stored, err := c.facts.ListByDate(ctx, date)
	if err != nil {
		return 0, err
	}

	rows := make([]derived.Calculation, 0, len(stored))
	skipped := 0
	for _, fact := range stored {
		quantity := fact.Quantity.Abs()
		if quantity.IsZero() {
			skipped++
			continue
		}
		rows = append(rows, derived.Calculation{
			Date:         date,
			Period:       fact.Period,
			EntityID:     fact.EntityID,
			Parameter:    parameter,
			Value:        c.transform(quantity, parameter, contextValue),
			ContextValue: contextValue,
		})
	}

	count, err := c.repo.ReplaceForDate(ctx, date, parameter, rows)
	if err != nil {
		return 0, err
	}
	if skipped > 0 {
		c.logger.Debug("skipped zero-quantity facts during recompute",
			zap.String("date", date.Key()),
			zap.String("parameter", string(parameter)),
			zap.Int("skipped", skipped))
	}
	return count, nil
}

// RecomputeAll recomputes every configured parameter for the date. Failures
// are per-parameter: one unavailable context value or storage error never
// blocks the remaining parameters. The returned map holds each parameter's
// error, empty when everything succeeded.
func (c *Calculator) RecomputeAll(ctx context.Context, date facts.SettlementDate) (int, map[derived.ModelParameter]error) {
	total := 0
	failures := make(map[derived.ModelParameter]error)
	for _, parameter := range c.parameters {
		count, err := c.Recompute(ctx, date, parameter)
		if err != nil {
			failures[parameter] = err
			c.logger.Error("derived recompute failed",
				zap.String("date", date.Key()),
				zap.String("parameter", string(parameter)),
				zap.Error(err))
			continue
		}
		total += count
	}
	return total, failures
}
