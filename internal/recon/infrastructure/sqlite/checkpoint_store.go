package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	facts "settlement-recon/internal/facts/domain"
	recon "settlement-recon/internal/recon/domain"
)

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	date_key         TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	periods_repaired TEXT NOT NULL,
	updated_at       TIMESTAMP NOT NULL
)`

// CheckpointStore keeps reconciliation progress in a local SQLite file,
// deliberately outside the fact database: losing or corrupting this file only
// restarts work, never touches settlement data.
type CheckpointStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the checkpoint database at path.
func Open(path string) (*CheckpointStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("checkpoint sqlite: create dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint sqlite: open %s: %w", path, err)
	}
	// go-sqlite3 serializes writers itself; a single connection avoids
	// SQLITE_BUSY under the period-repair fan-out.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(checkpointSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint sqlite: create schema: %w", err)
	}
	return &CheckpointStore{db: db}, nil
}

// NewCheckpointStore wraps an already opened database, creating the schema.
func NewCheckpointStore(db *sql.DB) (*CheckpointStore, error) {
	if _, err := db.Exec(checkpointSchema); err != nil {
		return nil, fmt.Errorf("checkpoint sqlite: create schema: %w", err)
	}
	return &CheckpointStore{db: db}, nil
}

// Close closes the underlying database.
func (s *CheckpointStore) Close() error { return s.db.Close() }

// Get returns the checkpoint for date, or nil when none exists.
func (s *CheckpointStore) Get(ctx context.Context, date facts.SettlementDate) (*recon.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT date_key, status, periods_repaired, updated_at FROM checkpoints WHERE date_key = ?`,
		date.Key())
	checkpoint, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint sqlite: get %s: %w", date.Key(), err)
	}
	return checkpoint, nil
}

// Put inserts or overwrites the date's checkpoint in one statement.
func (s *CheckpointStore) Put(ctx context.Context, checkpoint recon.Checkpoint) error {
	periods, err := json.Marshal(periodsToInts(checkpoint.PeriodsRepaired))
	if err != nil {
		return fmt.Errorf("checkpoint sqlite: encode periods: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (date_key, status, periods_repaired, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (date_key) DO UPDATE SET
			status = excluded.status,
			periods_repaired = excluded.periods_repaired,
			updated_at = excluded.updated_at`,
		checkpoint.Date.Key(), string(checkpoint.Status), string(periods), checkpoint.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("checkpoint sqlite: put %s: %w", checkpoint.Date.Key(), err)
	}
	return nil
}

// List returns the checkpoints for dates in [from, to], oldest first.
func (s *CheckpointStore) List(ctx context.Context, from, to facts.SettlementDate) ([]recon.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date_key, status, periods_repaired, updated_at
		 FROM checkpoints WHERE date_key >= ? AND date_key <= ? ORDER BY date_key`,
		from.Key(), to.Key())
	if err != nil {
		return nil, fmt.Errorf("checkpoint sqlite: list: %w", err)
	}
	defer rows.Close()

	var checkpoints []recon.Checkpoint
	for rows.Next() {
		checkpoint, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("checkpoint sqlite: list: %w", err)
		}
		checkpoints = append(checkpoints, *checkpoint)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint sqlite: list: %w", err)
	}
	return checkpoints, nil
}

func scanCheckpoint(row interface{ Scan(dest ...any) error }) (*recon.Checkpoint, error) {
	var (
		checkpoint recon.Checkpoint
		dateKey    string
		status     string
		periods    string
	)
	if err := row.Scan(&dateKey, &status, &periods, &checkpoint.UpdatedAt); err != nil {
		return nil, err
	}
	date, err := facts.ParseSettlementDate(dateKey)
	if err != nil {
		return nil, err
	}
	checkpoint.Date = date
	checkpoint.Status = recon.DateStatus(status)

	var numbers []int
	if err := json.Unmarshal([]byte(periods), &numbers); err != nil {
		return nil, err
	}
	checkpoint.PeriodsRepaired = make([]facts.Period, len(numbers))
	for i, number := range numbers {
		checkpoint.PeriodsRepaired[i] = facts.Period(number)
	}
	return &checkpoint, nil
}

func periodsToInts(periods []facts.Period) []int {
	out := make([]int, len(periods))
	for i, period := range periods {
		out[i] = int(period)
	}
	return out
}
