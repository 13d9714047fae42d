// Package jobstore keeps the weekly batch job's local bookkeeping in SQLite:
// a history of runs and the advisory leases that stop overlapping runs from
// repeating work. It is process-local state; the warehouse stays the system
// of record for reports.
package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"spendlens/internal/logger"
)

// Store wraps the SQLite database behind the batch job.
type Store struct {
	sql *sql.DB
}

// Open opens (or creates) the job database at path and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create jobstore dir: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open jobstore: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping jobstore: %w", err)
	}
	s := &Store{sql: sqlDB}
	if err := s.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate jobstore: %w", err)
	}
	logger.Success("JOBS", fmt.Sprintf("Opened %s", path))
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.sql.Close()
}

func (s *Store) migrate() error {
	version := 0
	s.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := s.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS job_runs (
				job_id             TEXT PRIMARY KEY,
				job_at             TEXT NOT NULL,
				week_start         TEXT NOT NULL,
				dry_run            INTEGER NOT NULL DEFAULT 0,
				total_users        INTEGER NOT NULL DEFAULT 0,
				successful         INTEGER NOT NULL DEFAULT 0,
				failed             INTEGER NOT NULL DEFAULT 0,
				skipped            INTEGER NOT NULL DEFAULT 0,
				failed_users_json  TEXT NOT NULL DEFAULT '[]',
				items_analyzed     INTEGER NOT NULL DEFAULT 0,
				alternatives_found INTEGER NOT NULL DEFAULT 0,
				total_savings      TEXT NOT NULL DEFAULT '0',
				mcp_calls_made     INTEGER NOT NULL DEFAULT 0,
				processing_time_ms INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_job_runs_week ON job_runs(week_start);
			CREATE INDEX IF NOT EXISTS idx_job_runs_at ON job_runs(job_at);

			CREATE TABLE IF NOT EXISTS leases (
				key        TEXT PRIMARY KEY,
				holder     TEXT NOT NULL,
				expires_at TEXT NOT NULL
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("JOBS", "Applied migration v1")
	}

	return nil
}

// Acquire takes the advisory lease for key until ttl elapses or it is
// released. It returns false when a different live holder has it; stale
// leases are stolen, and re-acquiring one's own lease just extends it.
func (s *Store) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.sql.ExecContext(ctx, `
		INSERT INTO leases (key, holder, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			holder     = excluded.holder,
			expires_at = excluded.expires_at
		WHERE leases.holder = excluded.holder OR leases.expires_at <= ?
	`,
		key, holder, now.Add(ttl).Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	return n > 0, nil
}

// Release drops the lease if holder still owns it. Releasing a lease someone
// else took over is a no-op.
func (s *Store) Release(ctx context.Context, key, holder string) error {
	_, err := s.sql.ExecContext(ctx, `DELETE FROM leases WHERE key = ? AND holder = ?`, key, holder)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	return nil
}

// ReapExpiredLeases removes leases whose TTL has passed. Callers run it
// opportunistically before a batch; correctness does not depend on it since
// Acquire steals stale leases anyway.
func (s *Store) ReapExpiredLeases(ctx context.Context) (int64, error) {
	res, err := s.sql.ExecContext(ctx, `DELETE FROM leases WHERE expires_at <= ?`,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("reap leases: %w", err)
	}
	return res.RowsAffected()
}
