package recon

import (
	"context"
	"sort"
	"time"

	facts "settlement-recon/internal/facts/domain"
)

// DateStatus is the reconciliation state machine position for a date.
type DateStatus string

const (
	// StatusScanning means the date is being classified.
	StatusScanning DateStatus = "scanning"
	// StatusRepairing means period repairs are in flight.
	StatusRepairing DateStatus = "repairing"
	// StatusRecomputing means derived values and aggregates are refreshing.
	StatusRecomputing DateStatus = "recomputing"
	// StatusVerifying means the post-repair scan is running.
	StatusVerifying DateStatus = "verifying"
	// StatusDone is the successful terminal state.
	StatusDone DateStatus = "done"
	// StatusFailed is the unsuccessful terminal state.
	StatusFailed DateStatus = "failed"
)

// Terminal reports whether the status ends the date's state machine.
func (s DateStatus) Terminal() bool { return s == StatusDone || s == StatusFailed }

// Checkpoint is the durable progress record for one date. It lives apart
// from the fact tables so a corrupt checkpoint can only restart work, never
// damage data.
type Checkpoint struct {
	Date            facts.SettlementDate
	Status          DateStatus
	PeriodsRepaired []facts.Period
	UpdatedAt       time.Time
}

// RepairedSet returns the repaired periods as a set.
func (c Checkpoint) RepairedSet() map[facts.Period]bool {
	set := make(map[facts.Period]bool, len(c.PeriodsRepaired))
	for _, period := range c.PeriodsRepaired {
		set[period] = true
	}
	return set
}

// SortPeriods sorts a period slice in place and returns it.
func SortPeriods(periods []facts.Period) []facts.Period {
	sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })
	return periods
}

// CheckpointStore persists checkpoints with atomic per-date upserts, so two
// retries of the same period can never both partially apply.
type CheckpointStore interface {
	// Get returns nil when no checkpoint exists for the date.
	Get(ctx context.Context, date facts.SettlementDate) (*Checkpoint, error)
	// Put atomically inserts or overwrites the date's checkpoint.
	Put(ctx context.Context, checkpoint Checkpoint) error
	// List returns checkpoints for dates in [from, to], ordered by date.
	List(ctx context.Context, from, to facts.SettlementDate) ([]Checkpoint, error)
}
