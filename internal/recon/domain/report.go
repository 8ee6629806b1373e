package recon

import (
	"fmt"
	"strings"

	derived "settlement-recon/internal/derived/domain"
	facts "settlement-recon/internal/facts/domain"
)

// DateReport is the outcome of reconciling one date.
type DateReport struct {
	Date   facts.SettlementDate
	Status DateStatus
	// Skipped is true when a prior run already finished the date and the
	// batch driver did not touch it.
	Skipped bool
	// Classification holds the initial scan's verdicts, keyed by period.
	Classification Classification
	// PeriodsRepaired lists periods replaced during this run or a resumed one.
	PeriodsRepaired []facts.Period
	// PeriodsFailed lists periods whose repair exhausted its retry attempts.
	PeriodsFailed []facts.Period
	// StillDiverged lists periods the verification scan still flags.
	StillDiverged []facts.Period
	// DerivedFailures records per-parameter recompute errors, e.g. an
	// unavailable context value. They do not fail the date by themselves.
	DerivedFailures map[derived.ModelParameter]string
	// Err records a date-level failure outside period repairs.
	Err string
}

// Repaired reports whether any period was actually replaced.
func (r DateReport) Repaired() bool { return len(r.PeriodsRepaired) > 0 }

// BatchReport aggregates the outcome of a date-range run.
type BatchReport struct {
	From, To       facts.SettlementDate
	DatesProcessed int
	DatesRepaired  int
	DatesFailed    int
	Reports        []DateReport
}

// Add folds one date report into the totals.
func (b *BatchReport) Add(report DateReport) {
	b.DatesProcessed++
	if report.Repaired() {
		b.DatesRepaired++
	}
	if report.Status == StatusFailed {
		b.DatesFailed++
	}
	b.Reports = append(b.Reports, report)
}

// StillDivergedError is the terminal failure of a date whose verification
// scan still finds divergence. It is not retried automatically.
type StillDivergedError struct {
	Date    facts.SettlementDate
	Periods []facts.Period
}

func (e *StillDivergedError) Error() string {
	parts := make([]string, len(e.Periods))
	for i, period := range e.Periods {
		parts[i] = fmt.Sprintf("%d", period)
	}
	return fmt.Sprintf("recon: %s still diverged in periods [%s]", e.Date, strings.Join(parts, " "))
}
