// Package suggest runs the weekly cheaper-alternatives pipeline: select the
// week's priciest purchases, ask the web-search capability for exact-product
// substitutes, validate what comes back and persist the result as a
// WeeklyReport. The same pipeline serves the batch job and the live event
// stream.
package suggest

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spendlens/internal/fault"
	"spendlens/internal/money"
	"spendlens/internal/warehouse"
	"spendlens/internal/websearch"
)

// ItemSource is the slice of the warehouse the pipeline reads.
type ItemSource interface {
	TopItemsByPrice(ctx context.Context, userID string, weekStart warehouse.Date, n int) ([]warehouse.PurchaseItem, error)
	ActiveUsersForWeek(ctx context.Context, weekStart warehouse.Date) ([]string, error)
}

// ReportSink is where assembled reports land.
type ReportSink interface {
	UpsertReport(ctx context.Context, r *warehouse.WeeklyReport) error
	GetReport(ctx context.Context, userID string, week warehouse.Date) (*warehouse.WeeklyReport, error)
}

// Searcher is the web-search capability: one prompt in, JSON-bearing text
// out, optionally chunk by chunk.
type Searcher interface {
	Search(ctx context.Context, prompt string) (websearch.Result, error)
	SearchStream(ctx context.Context, prompt string, onChunk func(string)) (websearch.Result, error)
}

const (
	DefaultTopN        = 5
	DefaultMaxFindings = 20
	DefaultConcurrency = 10
)

var defaultMinSavings = decimal.NewFromInt(10)

// Params bound one pipeline run. Zero values fall back to defaults.
type Params struct {
	TopN        int
	MinSavings  decimal.Decimal
	MaxFindings int
}

func (p *Params) normalize() {
	if p.TopN <= 0 {
		p.TopN = DefaultTopN
	}
	if p.MaxFindings <= 0 {
		p.MaxFindings = DefaultMaxFindings
	}
	if p.MinSavings.LessThanOrEqual(decimal.Zero) {
		p.MinSavings = defaultMinSavings
	}
}

// Pipeline is the weekly suggester core, shared by batch and streaming.
type Pipeline struct {
	Items   ItemSource
	Reports ReportSink
	Search  Searcher
	Params  Params
}

func NewPipeline(items ItemSource, reports ReportSink, search Searcher, params Params) *Pipeline {
	params.normalize()
	return &Pipeline{Items: items, Reports: reports, Search: search, Params: params}
}

// Run executes the pipeline for one user-week and returns the assembled
// report. A parse failure still persists the report (zero findings, notes
// carry the cause) and returns it alongside the error, so batch aggregation
// keeps the user's counters while recording the failure.
func (p *Pipeline) Run(ctx context.Context, userID string, week warehouse.Date, dryRun bool) (*warehouse.WeeklyReport, error) {
	return p.run(ctx, userID, week, dryRun, nil)
}

func (p *Pipeline) run(ctx context.Context, userID string, week warehouse.Date, dryRun bool, emit eventFunc) (*warehouse.WeeklyReport, error) {
	started := time.Now()
	if err := send(emit, startEvent(userID, week)); err != nil {
		return nil, err
	}

	var items []warehouse.PurchaseItem
	err := p.retryStore(ctx, func() error {
		var lerr error
		items, lerr = p.Items.TopItemsByPrice(ctx, userID, week, p.Params.TopN)
		return lerr
	})
	if err != nil {
		return nil, err
	}
	if err := send(emit, itemsLoadedEvent(items)); err != nil {
		return nil, err
	}

	report := &warehouse.WeeklyReport{
		ReportID:      uuid.NewString(),
		UserID:        userID,
		WeekStart:     week,
		WeekEnd:       week.AddDays(6),
		ItemsAnalyzed: len(items),
		TotalSavings:  decimal.Zero,
		Findings:      []warehouse.Finding{},
	}

	// An empty week still yields a stored report so readers see "nothing to
	// analyze" rather than absence.
	if len(items) == 0 {
		report.ProcessingTimeMS = time.Since(started).Milliseconds()
		if !dryRun {
			if err := p.persist(ctx, report); err != nil {
				return nil, err
			}
		}
		log.Printf("[WEEKLY] user=%s week=%s: no purchases", userID, week)
		return report, send(emit, completeEvent(report))
	}

	report.Location = weekLocation(items)

	if err := send(emit, analyzingEvent(len(items))); err != nil {
		return nil, err
	}

	prompt := BuildPrompt(items, report.Location, week, p.Params.MinSavings)
	res, err := p.searchWithRetry(ctx, prompt, emit)
	if err != nil {
		return nil, err
	}
	report.MCPCallsMade = res.Calls

	findings, perr := ParseFindings(res.Text, p.Params.MinSavings, p.Params.MaxFindings)
	if perr != nil {
		log.Printf("[WEEKLY] user=%s week=%s: parse failed after %d calls: %v", userID, week, res.Calls, perr)
		report.Notes = perr.Error()
		report.ProcessingTimeMS = time.Since(started).Milliseconds()
		if !dryRun {
			if err := p.persist(ctx, report); err != nil {
				return nil, err
			}
		}
		return report, perr
	}

	report.Findings = findings
	report.ItemsWithAlternatives = len(findings)
	total := decimal.Zero
	for _, f := range findings {
		total = total.Add(f.TotalSavings)
	}
	report.TotalSavings = money.Round(total)

	for _, f := range findings {
		if err := send(emit, foundEvent(f)); err != nil {
			return nil, err
		}
	}

	report.ProcessingTimeMS = time.Since(started).Milliseconds()
	if !dryRun {
		if err := p.persist(ctx, report); err != nil {
			return nil, err
		}
	}
	log.Printf("[WEEKLY] user=%s week=%s: %d items, %d alternatives, $%s in %dms",
		userID, week, report.ItemsAnalyzed, report.ItemsWithAlternatives,
		report.TotalSavings.StringFixed(2), report.ProcessingTimeMS)
	return report, send(emit, completeEvent(report))
}

// searchWithRetry drives the capability with a budget of one extra attempt
// on transport failure. Quota errors are terminal. Calls in the result
// counts attempts, which is what mcp_calls_made reports.
func (p *Pipeline) searchWithRetry(ctx context.Context, prompt string, emit eventFunc) (websearch.Result, error) {
	for attempt := 1; ; attempt++ {
		res, err := p.searchOnce(ctx, prompt, emit)
		if err == nil {
			res.Calls = attempt
			return res, nil
		}
		if attempt == 1 && fault.IsKind(err, fault.CapabilityUnavailable) && ctx.Err() == nil {
			continue
		}
		return websearch.Result{}, err
	}
}

// searchOnce runs one capability call. In streaming mode chunks are
// forwarded as progress events; an emit failure cancels the in-flight call
// and wins over the capability error it provokes.
func (p *Pipeline) searchOnce(ctx context.Context, prompt string, emit eventFunc) (websearch.Result, error) {
	if emit == nil {
		return p.Search.Search(ctx, prompt)
	}
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var emitErr error
	res, err := p.Search.SearchStream(sctx, prompt, func(chunk string) {
		if emitErr != nil {
			return
		}
		if e := emit(progressEvent(chunk)); e != nil {
			emitErr = e
			cancel()
		}
	})
	if emitErr != nil {
		return websearch.Result{}, emitErr
	}
	return res, err
}

// persist upserts the report. Losing the write race refreshes created_at
// from the winner and retries once.
func (p *Pipeline) persist(ctx context.Context, report *warehouse.WeeklyReport) error {
	err := p.retryStore(ctx, func() error { return p.Reports.UpsertReport(ctx, report) })
	if !fault.IsKind(err, fault.PersistConflict) {
		return err
	}
	if cur, gerr := p.Reports.GetReport(ctx, report.UserID, report.WeekStart); gerr == nil {
		report.CreatedAt = cur.CreatedAt
	}
	return p.retryStore(ctx, func() error { return p.Reports.UpsertReport(ctx, report) })
}

const (
	storeAttempts    = 3
	storeBackoffBase = 200 * time.Millisecond
	storeBackoffCap  = 2 * time.Second
)

// retryStore runs fn up to storeAttempts times while it keeps failing with
// store_unavailable, backing off exponentially in between. Other kinds
// return immediately.
func (p *Pipeline) retryStore(ctx context.Context, fn func() error) error {
	backoff := storeBackoffBase
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !fault.IsKind(err, fault.StoreUnavailable) || attempt == storeAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > storeBackoffCap {
			backoff = storeBackoffCap
		}
	}
}

// weekLocation is the modal (city, state, country) across the week's items;
// ties go to the most recent purchase. The full location of the newest item
// in the winning group is carried, not a synthesized one.
func weekLocation(items []warehouse.PurchaseItem) warehouse.Location {
	type group struct {
		n      int
		latest time.Time
		loc    warehouse.Location
	}
	groups := make(map[string]*group)
	for _, it := range items {
		key := it.BuyerLocation.City + "\x00" + it.BuyerLocation.State + "\x00" + it.BuyerLocation.Country
		g := groups[key]
		if g == nil {
			g = &group{}
			groups[key] = g
		}
		g.n++
		if g.n == 1 || it.TS.After(g.latest) {
			g.latest = it.TS
			g.loc = it.BuyerLocation
		}
	}
	var best *group
	for _, g := range groups {
		if best == nil || g.n > best.n || (g.n == best.n && g.latest.After(best.latest)) {
			best = g
		}
	}
	if best == nil {
		return warehouse.Location{}
	}
	return best.loc
}
