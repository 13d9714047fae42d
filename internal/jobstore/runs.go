package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"spendlens/internal/suggest"
	"spendlens/internal/warehouse"
)

// RunRecord is one stored batch run: the job log plus its identifier.
type RunRecord struct {
	JobID string         `json:"job_id"`
	Log   suggest.JobLog `json:"log"`
}

// RecordRun stores the outcome of one batch run under jobID.
func (s *Store) RecordRun(ctx context.Context, jobID string, jl *suggest.JobLog) error {
	failedUsers, err := json.Marshal(jl.FailedUsers)
	if err != nil {
		return fmt.Errorf("encode failed users: %w", err)
	}
	dryRun := 0
	if jl.DryRun {
		dryRun = 1
	}
	_, err = s.sql.ExecContext(ctx, `
		INSERT INTO job_runs (
			job_id, job_at, week_start, dry_run,
			total_users, successful, failed, skipped, failed_users_json,
			items_analyzed, alternatives_found, total_savings,
			mcp_calls_made, processing_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		jobID, jl.JobAt.UTC().Format(time.RFC3339), jl.WeekStart.String(), dryRun,
		jl.TotalUsers, jl.Successful, jl.Failed, jl.Skipped, string(failedUsers),
		jl.ItemsAnalyzed, jl.AlternativesFound, jl.TotalSavings.String(),
		jl.MCPCallsMade, jl.ProcessingTimeMS,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", jobID, err)
	}
	return nil
}

// ListRuns returns the most recent batch runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.sql.QueryContext(ctx, `
		SELECT job_id, job_at, week_start, dry_run,
		       total_users, successful, failed, skipped, failed_users_json,
		       items_analyzed, alternatives_found, total_savings,
		       mcp_calls_made, processing_time_ms
		  FROM job_runs
		 ORDER BY job_at DESC
		 LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec             RunRecord
			jobAt, week     string
			dryRun          int
			failedUsersJSON string
			totalSavings    string
		)
		if err := rows.Scan(
			&rec.JobID, &jobAt, &week, &dryRun,
			&rec.Log.TotalUsers, &rec.Log.Successful, &rec.Log.Failed, &rec.Log.Skipped, &failedUsersJSON,
			&rec.Log.ItemsAnalyzed, &rec.Log.AlternativesFound, &totalSavings,
			&rec.Log.MCPCallsMade, &rec.Log.ProcessingTimeMS,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if rec.Log.JobAt, err = time.Parse(time.RFC3339, jobAt); err != nil {
			return nil, fmt.Errorf("parse job_at %q: %w", jobAt, err)
		}
		weekDay, err := time.ParseInLocation("2006-01-02", week, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse week_start %q: %w", week, err)
		}
		rec.Log.WeekStart = warehouse.DateOf(weekDay)
		rec.Log.DryRun = dryRun != 0
		if rec.Log.TotalSavings, err = decimal.NewFromString(totalSavings); err != nil {
			return nil, fmt.Errorf("parse total_savings %q: %w", totalSavings, err)
		}
		rec.Log.FailedUsers = []suggest.FailedUser{}
		if failedUsersJSON != "" {
			if err := json.Unmarshal([]byte(failedUsersJSON), &rec.Log.FailedUsers); err != nil {
				return nil, fmt.Errorf("decode failed users: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
