package suggest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spendlens/internal/fault"
	"spendlens/internal/warehouse"
)

// Leaser hands out advisory leases so overlapping batch runs do not repeat
// work. Acquire returns false when another holder has the key.
type Leaser interface {
	Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, holder string) error
}

const (
	weekLeaseTTL = 30 * time.Minute
	userLeaseTTL = 10 * time.Minute
)

func weekLeaseKey(week warehouse.Date) string { return "week:" + week.String() }

func userLeaseKey(userID string, week warehouse.Date) string {
	return fmt.Sprintf("user:%s:%s", userID, week)
}

// JobLog is the machine-readable outcome of one batch run. Counters
// aggregate the per-user reports, including the persisted empty report of a
// parse failure.
type JobLog struct {
	JobAt             time.Time       `json:"job_at"`
	WeekStart         warehouse.Date  `json:"week_start"`
	TotalUsers        int             `json:"total_users"`
	Successful        int             `json:"successful"`
	Failed            int             `json:"failed"`
	Skipped           int             `json:"skipped,omitempty"`
	FailedUsers       []FailedUser    `json:"failed_users"`
	ItemsAnalyzed     int             `json:"items_analyzed"`
	AlternativesFound int             `json:"alternatives_found"`
	TotalSavings      decimal.Decimal `json:"total_savings"`
	MCPCallsMade      int             `json:"mcp_calls_made"`
	ProcessingTimeMS  int64           `json:"processing_time_ms"`
	DryRun            bool            `json:"dry_run,omitempty"`
}

type FailedUser struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
}

// Batch fans the pipeline out over the week's active users with bounded
// concurrency. One user's failure never stops the others.
type Batch struct {
	Pipeline    *Pipeline
	Leases      Leaser
	Holder      string
	Concurrency int
}

// Run processes the given week, or the most recent completed ISO week when
// week is zero. A non-empty userID restricts the run to that user. The week
// lease guards against double-scheduling; holding it already is an error,
// while a held per-user lease just skips that user.
func (b *Batch) Run(ctx context.Context, week warehouse.Date, userID string, dryRun bool) (*JobLog, error) {
	if week.IsZero() {
		week = warehouse.MostRecentCompletedWeek(time.Now())
	}

	if b.Leases != nil {
		ok, err := b.Leases.Acquire(ctx, weekLeaseKey(week), b.Holder, weekLeaseTTL)
		if err != nil {
			return nil, fault.Wrap(fault.StoreUnavailable, err, "acquire week lease")
		}
		if !ok {
			return nil, fault.New(fault.PersistConflict, "another job holds the lease for week %s", week)
		}
		defer b.Leases.Release(context.WithoutCancel(ctx), weekLeaseKey(week), b.Holder)
	}

	var users []string
	if userID != "" {
		users = []string{userID}
	} else {
		var err error
		users, err = b.Pipeline.Items.ActiveUsersForWeek(ctx, week)
		if err != nil {
			return nil, err
		}
	}

	log := &JobLog{
		JobAt:        time.Now().UTC(),
		WeekStart:    week,
		TotalUsers:   len(users),
		FailedUsers:  []FailedUser{},
		TotalSavings: decimal.Zero,
		DryRun:       dryRun,
	}
	started := time.Now()

	conc := b.Concurrency
	if conc <= 0 {
		conc = DefaultConcurrency
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, conc)
	)
	for _, uid := range users {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			mu.Lock()
			log.Failed++
			log.FailedUsers = append(log.FailedUsers, FailedUser{UserID: uid, Kind: string(fault.Cancelled)})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(uid string) {
			defer wg.Done()
			defer func() { <-sem }()

			if b.Leases != nil {
				ok, err := b.Leases.Acquire(ctx, userLeaseKey(uid, week), b.Holder, userLeaseTTL)
				if err == nil && !ok {
					mu.Lock()
					log.Skipped++
					mu.Unlock()
					return
				}
				if err == nil {
					defer b.Leases.Release(context.WithoutCancel(ctx), userLeaseKey(uid, week), b.Holder)
				}
				// Lease-store trouble is not worth failing the user over.
			}

			report, err := b.Pipeline.Run(ctx, uid, week, dryRun)

			mu.Lock()
			defer mu.Unlock()
			if report != nil {
				log.ItemsAnalyzed += report.ItemsAnalyzed
				log.AlternativesFound += report.ItemsWithAlternatives
				log.TotalSavings = log.TotalSavings.Add(report.TotalSavings)
				log.MCPCallsMade += report.MCPCallsMade
			}
			if err != nil {
				log.Failed++
				log.FailedUsers = append(log.FailedUsers, FailedUser{UserID: uid, Kind: string(fault.KindOf(err))})
				return
			}
			log.Successful++
		}(uid)
	}
	wg.Wait()

	log.ProcessingTimeMS = time.Since(started).Milliseconds()
	return log, nil
}
