package recon

import (
	"github.com/shopspring/decimal"

	facts "settlement-recon/internal/facts/domain"
)

// PeriodStatus classifies one settlement period against the remote source.
type PeriodStatus string

const (
	// StatusMatching means local and remote agree within tolerance.
	StatusMatching PeriodStatus = "matching"
	// StatusMissingLocally means the remote holds records the local store lacks.
	StatusMissingLocally PeriodStatus = "missing_locally"
	// StatusMissingRemotely means local rows exist with no remote counterpart.
	// Surfaced for a human; never auto-deleted.
	StatusMissingRemotely PeriodStatus = "missing_remotely"
	// StatusDiverged means counts or sums disagree beyond tolerance.
	StatusDiverged PeriodStatus = "diverged"
	// StatusUnknown means the remote snapshot could not be fetched, so the
	// period cannot be confirmed matching. Unknown periods are treated as
	// repair candidates.
	StatusUnknown PeriodStatus = "unknown"
)

// NeedsRepair reports whether a period with this status should be re-fetched
// and replaced. MissingRemotely is deliberately excluded.
func (s PeriodStatus) NeedsRepair() bool {
	switch s {
	case StatusMissingLocally, StatusDiverged, StatusUnknown:
		return true
	}
	return false
}

// Snapshot is a count-and-sums view of one side of a period comparison.
type Snapshot struct {
	Count         int
	TotalQuantity decimal.Decimal
	TotalPayment  decimal.Decimal
}

// SnapshotOf converts a stored aggregation into a comparison snapshot.
func SnapshotOf(sums facts.CountAndSums) Snapshot {
	return Snapshot{
		Count:         sums.Count,
		TotalQuantity: sums.TotalQuantity,
		TotalPayment:  sums.TotalPayment,
	}
}

// IsZero reports whether the snapshot holds no records.
func (s Snapshot) IsZero() bool { return s.Count == 0 }

// PeriodClassification is the detector's verdict for one period.
type PeriodClassification struct {
	Status PeriodStatus
	Remote Snapshot
	Local  Snapshot
	// Err is set (with StatusUnknown) when the remote fetch failed.
	Err error
}

// Classification maps every period of a date to its verdict.
type Classification map[facts.Period]PeriodClassification

// AllMatching reports whether every period is StatusMatching or
// StatusMissingRemotely; only those two need no repair.
func (c Classification) AllMatching() bool {
	for _, verdict := range c {
		if verdict.Status.NeedsRepair() {
			return false
		}
	}
	return true
}

// RepairCandidates returns the sorted periods needing repair.
func (c Classification) RepairCandidates() []facts.Period {
	var periods []facts.Period
	for period := 1; period <= facts.PeriodsPerDay; period++ {
		if verdict, ok := c[facts.Period(period)]; ok && verdict.Status.NeedsRepair() {
			periods = append(periods, facts.Period(period))
		}
	}
	return periods
}
