// Package warehouse is the typed query surface over the purchase warehouse.
// It owns no DDL for the purchase table (ingestion does); it does ensure the
// weekly_reports table it writes exists. All monetary columns are NUMERIC
// and scan into decimals; every query runs under the configured deadline and
// filters status = 'active' where purchase rows are read.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"spendlens/internal/fault"
)

type Warehouse struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// Open connects the pool, verifies connectivity, and ensures the report
// table exists.
func Open(ctx context.Context, dsn string, queryTimeout time.Duration) (*Warehouse, error) {
	if queryTimeout <= 0 {
		queryTimeout = 15 * time.Second
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse warehouse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open warehouse pool: %w", err)
	}

	w := &Warehouse{pool: pool, queryTimeout: queryTimeout}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fault.Wrap(fault.StoreUnavailable, err, "ping warehouse")
	}
	if err := w.ensureReportSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Printf("[WAREHOUSE] pool ready (query timeout %s)", queryTimeout)
	return w, nil
}

func (w *Warehouse) Close() { w.pool.Close() }

// Ping reports warehouse reachability; the health endpoint calls it with a
// short deadline.
func (w *Warehouse) Ping(ctx context.Context) error {
	return storeErr(w.pool.Ping(ctx), "ping warehouse")
}

// opCtx applies the per-query deadline.
func (w *Warehouse) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.queryTimeout)
}

// storeErr classifies a query error: deadline and cancellation keep their
// own kinds, everything else is the store being unavailable.
func storeErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Wrap(fault.Timeout, err, "%s", op)
	}
	if errors.Is(err, context.Canceled) {
		return fault.Wrap(fault.Cancelled, err, "%s", op)
	}
	return fault.Wrap(fault.StoreUnavailable, err, "%s", op)
}

// escapeLike makes user text safe inside a LIKE/ILIKE pattern.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
