package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"spendlens/internal/fault"
)

const reportSchema = `
CREATE TABLE IF NOT EXISTS weekly_reports (
	user_id                 TEXT        NOT NULL,
	week_start              DATE        NOT NULL,
	report_id               TEXT        NOT NULL,
	week_end                DATE        NOT NULL,
	loc_city                TEXT        NOT NULL DEFAULT '',
	loc_state               TEXT        NOT NULL DEFAULT '',
	loc_country             TEXT        NOT NULL DEFAULT '',
	items_analyzed          INTEGER     NOT NULL DEFAULT 0,
	items_with_alternatives INTEGER     NOT NULL DEFAULT 0,
	total_savings           NUMERIC(12,2) NOT NULL DEFAULT 0,
	findings                JSONB       NOT NULL DEFAULT '[]',
	mcp_calls_made          INTEGER     NOT NULL DEFAULT 0,
	processing_time_ms      BIGINT      NOT NULL DEFAULT 0,
	notes                   TEXT        NOT NULL DEFAULT '',
	created_at              TIMESTAMPTZ NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, week_start)
)`

func (w *Warehouse) ensureReportSchema(ctx context.Context) error {
	ctx, cancel := w.opCtx(ctx)
	defer cancel()
	if _, err := w.pool.Exec(ctx, reportSchema); err != nil {
		return fault.Wrap(fault.StoreUnavailable, err, "ensure weekly_reports schema")
	}
	return nil
}

const reportColumns = `report_id, user_id, week_start, week_end,
	loc_city, loc_state, loc_country,
	items_analyzed, items_with_alternatives, total_savings, findings,
	mcp_calls_made, processing_time_ms, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(rs rowScanner) (*WeeklyReport, error) {
	var r WeeklyReport
	var weekStart, weekEnd time.Time
	var findingsRaw []byte
	err := rs.Scan(
		&r.ReportID, &r.UserID, &weekStart, &weekEnd,
		&r.Location.City, &r.Location.State, &r.Location.Country,
		&r.ItemsAnalyzed, &r.ItemsWithAlternatives, &r.TotalSavings, &findingsRaw,
		&r.MCPCallsMade, &r.ProcessingTimeMS, &r.Notes, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.WeekStart = DateOf(weekStart)
	r.WeekEnd = DateOf(weekEnd)
	r.Findings = []Finding{}
	if len(findingsRaw) > 0 {
		if err := json.Unmarshal(findingsRaw, &r.Findings); err != nil {
			return nil, fmt.Errorf("decode findings: %w", err)
		}
	}
	return &r, nil
}

// UpsertReport writes the report, replacing any existing row for the same
// (user_id, week_start). The first writer's created_at survives; updated_at
// always refreshes. On success r carries the stored created_at/updated_at.
func (w *Warehouse) UpsertReport(ctx context.Context, r *WeeklyReport) error {
	if r.UserID == "" || r.WeekStart.IsZero() {
		return fault.New(fault.BadRequest, "report requires user_id and week_start")
	}
	findings := r.Findings
	if findings == nil {
		findings = []Finding{}
	}
	findingsJSON, err := json.Marshal(findings)
	if err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}

	ctx, cancel := w.opCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	err = w.pool.QueryRow(ctx, `
		INSERT INTO weekly_reports (
			report_id, user_id, week_start, week_end,
			loc_city, loc_state, loc_country,
			items_analyzed, items_with_alternatives, total_savings, findings,
			mcp_calls_made, processing_time_ms, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13, $14, $15, $15)
		ON CONFLICT (user_id, week_start) DO UPDATE SET
			report_id               = EXCLUDED.report_id,
			week_end                = EXCLUDED.week_end,
			loc_city                = EXCLUDED.loc_city,
			loc_state               = EXCLUDED.loc_state,
			loc_country             = EXCLUDED.loc_country,
			items_analyzed          = EXCLUDED.items_analyzed,
			items_with_alternatives = EXCLUDED.items_with_alternatives,
			total_savings           = EXCLUDED.total_savings,
			findings                = EXCLUDED.findings,
			mcp_calls_made          = EXCLUDED.mcp_calls_made,
			processing_time_ms      = EXCLUDED.processing_time_ms,
			notes                   = EXCLUDED.notes,
			updated_at              = EXCLUDED.updated_at
		RETURNING created_at, updated_at`,
		r.ReportID, r.UserID, r.WeekStart.Time(), r.WeekEnd.Time(),
		r.Location.City, r.Location.State, r.Location.Country,
		r.ItemsAnalyzed, r.ItemsWithAlternatives, r.TotalSavings, string(findingsJSON),
		r.MCPCallsMade, r.ProcessingTimeMS, r.Notes, now,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return reportWriteErr(err)
	}
	return nil
}

// reportWriteErr separates losing a write race from the store being down.
func reportWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fault.Wrap(fault.PersistConflict, err, "upsert weekly report")
		}
	}
	return storeErr(err, "upsert weekly report")
}

// GetReport returns the report for the exact week, or the most recent one
// when week is zero. Absence is fault.NotFound.
func (w *Warehouse) GetReport(ctx context.Context, userID string, week Date) (*WeeklyReport, error) {
	ctx, cancel := w.opCtx(ctx)
	defer cancel()

	var row pgx.Row
	if week.IsZero() {
		row = w.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM weekly_reports
			WHERE user_id = $1 ORDER BY week_start DESC LIMIT 1`, userID)
	} else {
		row = w.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM weekly_reports
			WHERE user_id = $1 AND week_start = $2`, userID, week.Time())
	}

	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fault.New(fault.NotFound, "no weekly report for user %s", userID)
		}
		return nil, storeErr(err, "get weekly report")
	}
	return r, nil
}

// ListReportHistory returns the user's reports, most recent week first.
func (w *Warehouse) ListReportHistory(ctx context.Context, userID string, limit int) ([]WeeklyReport, error) {
	ctx, cancel := w.opCtx(ctx)
	defer cancel()

	rows, err := w.pool.Query(ctx, `SELECT `+reportColumns+` FROM weekly_reports
		WHERE user_id = $1 ORDER BY week_start DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, storeErr(err, "list report history")
	}
	defer rows.Close()

	var out []WeeklyReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, storeErr(err, "list report history")
		}
		out = append(out, *r)
	}
	return out, storeErr(rows.Err(), "list report history")
}
