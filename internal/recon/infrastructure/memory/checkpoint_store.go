package memory

import (
	"context"
	"sort"
	"sync"

	facts "settlement-recon/internal/facts/domain"
	recon "settlement-recon/internal/recon/domain"
)

// CheckpointStore is an in-memory CheckpointStore for tests.
type CheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]recon.Checkpoint
}

// NewCheckpointStore creates an empty in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{checkpoints: make(map[string]recon.Checkpoint)}
}

// Get returns the checkpoint for date, or nil when none exists.
func (s *CheckpointStore) Get(_ context.Context, date facts.SettlementDate) (*recon.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checkpoint, ok := s.checkpoints[date.Key()]
	if !ok {
		return nil, nil
	}
	copied := checkpoint
	copied.PeriodsRepaired = append([]facts.Period(nil), checkpoint.PeriodsRepaired...)
	return &copied, nil
}

// Put inserts or overwrites the date's checkpoint.
func (s *CheckpointStore) Put(_ context.Context, checkpoint recon.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	checkpoint.PeriodsRepaired = append([]facts.Period(nil), checkpoint.PeriodsRepaired...)
	s.checkpoints[checkpoint.Date.Key()] = checkpoint
	return nil
}

// List returns the checkpoints for dates in [from, to], oldest first.
func (s *CheckpointStore) List(_ context.Context, from, to facts.SettlementDate) ([]recon.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var checkpoints []recon.Checkpoint
	for key, checkpoint := range s.checkpoints {
		if key >= from.Key() && key <= to.Key() {
			copied := checkpoint
			copied.PeriodsRepaired = append([]facts.Period(nil), checkpoint.PeriodsRepaired...)
			checkpoints = append(checkpoints, copied)
		}
	}
	sort.Slice(checkpoints, func(i, j int) bool {
		return checkpoints[i].Date.Before(checkpoints[j].Date)
	})
	return checkpoints, nil
}
