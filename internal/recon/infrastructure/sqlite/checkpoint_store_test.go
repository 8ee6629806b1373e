package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	facts "settlement-recon/internal/facts/domain"
	recon "settlement-recon/internal/recon/domain"
)

func openStore(t *testing.T) *CheckpointStore {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func mustDate(t *testing.T, key string) facts.SettlementDate {
	t.Helper()
	date, err := facts.ParseSettlementDate(key)
	require.NoError(t, err)
	return date
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := openStore(t)
	checkpoint, err := store.Get(context.Background(), mustDate(t, "2025-03-01"))
	require.NoError(t, err)
	require.Nil(t, checkpoint)
}

func TestPutGetRoundtrip(t *testing.T) {
	store := openStore(t)
	date := mustDate(t, "2025-03-01")
	updated := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	require.NoError(t, store.Put(context.Background(), recon.Checkpoint{
		Date:            date,
		Status:          recon.StatusRepairing,
		PeriodsRepaired: []facts.Period{1, 2, 3, 17},
		UpdatedAt:       updated,
	}))

	checkpoint, err := store.Get(context.Background(), date)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	require.Equal(t, recon.StatusRepairing, checkpoint.Status)
	require.Equal(t, []facts.Period{1, 2, 3, 17}, checkpoint.PeriodsRepaired)
	require.True(t, checkpoint.UpdatedAt.Equal(updated))
}

func TestPutOverwritesExistingCheckpoint(t *testing.T) {
	store := openStore(t)
	date := mustDate(t, "2025-03-01")

	require.NoError(t, store.Put(context.Background(), recon.Checkpoint{
		Date: date, Status: recon.StatusRepairing,
		PeriodsRepaired: []facts.Period{1}, UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.Put(context.Background(), recon.Checkpoint{
		Date: date, Status: recon.StatusDone,
		PeriodsRepaired: []facts.Period{1, 2}, UpdatedAt: time.Now().UTC(),
	}))

	checkpoint, err := store.Get(context.Background(), date)
	require.NoError(t, err)
	require.Equal(t, recon.StatusDone, checkpoint.Status)
	require.Equal(t, []facts.Period{1, 2}, checkpoint.PeriodsRepaired)
}

func TestPutEmptyPeriodsRoundtrips(t *testing.T) {
	store := openStore(t)
	date := mustDate(t, "2025-03-01")

	require.NoError(t, store.Put(context.Background(), recon.Checkpoint{
		Date: date, Status: recon.StatusScanning, UpdatedAt: time.Now().UTC(),
	}))
	checkpoint, err := store.Get(context.Background(), date)
	require.NoError(t, err)
	require.Empty(t, checkpoint.PeriodsRepaired)
}

func TestListReturnsRangeInOrder(t *testing.T) {
	store := openStore(t)
	for _, key := range []string{"2025-03-03", "2025-03-01", "2025-03-02", "2025-04-01"} {
		require.NoError(t, store.Put(context.Background(), recon.Checkpoint{
			Date: mustDate(t, key), Status: recon.StatusDone, UpdatedAt: time.Now().UTC(),
		}))
	}

	listed, err := store.List(context.Background(), mustDate(t, "2025-03-01"), mustDate(t, "2025-03-31"))
	require.NoError(t, err)
	require.Len(t, listed, 3)
	require.Equal(t, "2025-03-01", listed[0].Date.Key())
	require.Equal(t, "2025-03-02", listed[1].Date.Key())
	require.Equal(t, "2025-03-03", listed[2].Date.Key())
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoints.db")

	store, err := Open(path)
	require.NoError(t, err)
	date := mustDate(t, "2025-03-01")
	require.NoError(t, store.Put(context.Background(), recon.Checkpoint{
		Date: date, Status: recon.StatusRepairing,
		PeriodsRepaired: []facts.Period{1, 2}, UpdatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	checkpoint, err := reopened.Get(context.Background(), date)
	require.NoError(t, err)
	require.NotNil(t, checkpoint)
	require.Equal(t, recon.StatusRepairing, checkpoint.Status)
	require.Equal(t, []facts.Period{1, 2}, checkpoint.PeriodsRepaired)
}
