package suggest

import (
	"context"
	"sync"
	"testing"
	"time"

	"spendlens/internal/fault"
	"spendlens/internal/warehouse"
)

// fakeLeaser hands out in-memory leases; keys in denied are never granted.
type fakeLeaser struct {
	mu       sync.Mutex
	denied   map[string]bool
	held     map[string]string
	acquires []string
	releases []string
}

func (l *fakeLeaser) Acquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied[key] {
		return false, nil
	}
	if h, ok := l.held[key]; ok && h != holder {
		return false, nil
	}
	if l.held == nil {
		l.held = make(map[string]string)
	}
	l.held[key] = holder
	l.acquires = append(l.acquires, key)
	return true, nil
}

func (l *fakeLeaser) Release(ctx context.Context, key, holder string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == holder {
		delete(l.held, key)
	}
	l.releases = append(l.releases, key)
	return nil
}

func (l *fakeLeaser) holding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

func threeUserStore(week warehouse.Date) *fakeStore {
	ts := week.Time().Add(12 * time.Hour)
	return &fakeStore{
		users: []string{"u-1", "u-2", "u-3"},
		items: map[string][]warehouse.PurchaseItem{
			"u-1": {weekItem("u-1", "i-1", "4K Monitor", "Best Buy", 549.99, ts)},
			"u-2": {weekItem("u-2", "i-2", "Espresso Machine", "Williams Sonoma", 329.00, ts)},
			"u-3": {weekItem("u-3", "i-3", "Desk Chair", "Staples", 189.50, ts)},
		},
	}
}

func TestBatchRun_AggregatesAcrossUsers(t *testing.T) {
	week := testWeek()
	store := threeUserStore(week)
	search := &fakeSearcher{byMarker: map[string]string{
		"4K Monitor":       "[" + findingJSON("4K Monitor", 11.80) + "]",
		"Espresso Machine": "[" + findingJSON("Espresso Machine", 45.00) + "]",
		"Desk Chair":       "[]",
	}}
	b := &Batch{Pipeline: newTestPipeline(store, search), Concurrency: 2}

	log, err := b.Run(context.Background(), week, "", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if log.TotalUsers != 3 || log.Successful != 3 || log.Failed != 0 || log.Skipped != 0 {
		t.Errorf("counters = %+v", log)
	}
	if len(log.FailedUsers) != 0 {
		t.Errorf("failed_users = %v, want empty", log.FailedUsers)
	}
	if log.ItemsAnalyzed != 3 {
		t.Errorf("items_analyzed = %d, want 3", log.ItemsAnalyzed)
	}
	if log.AlternativesFound != 2 {
		t.Errorf("alternatives_found = %d, want 2", log.AlternativesFound)
	}
	if got := log.TotalSavings.StringFixed(2); got != "56.80" {
		t.Errorf("total_savings = %s, want 56.80", got)
	}
	if log.MCPCallsMade != 3 {
		t.Errorf("mcp_calls_made = %d, want 3", log.MCPCallsMade)
	}
	if !log.WeekStart.Equal(week) {
		t.Errorf("week_start = %s, want %s", log.WeekStart, week)
	}
	if store.upsertCount() != 3 {
		t.Errorf("upserts = %d, want 3", store.upsertCount())
	}
}

func TestBatchRun_OneFailureDoesNotStopOthers(t *testing.T) {
	week := testWeek()
	store := threeUserStore(week)
	search := &fakeSearcher{byMarker: map[string]string{
		"4K Monitor":       "[" + findingJSON("4K Monitor", 11.80) + "]",
		"Espresso Machine": "no structured data today, sorry",
		"Desk Chair":       "[" + findingJSON("Desk Chair", 22.00) + "]",
	}}
	b := &Batch{Pipeline: newTestPipeline(store, search), Concurrency: 3}

	log, err := b.Run(context.Background(), week, "", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if log.Successful != 2 || log.Failed != 1 {
		t.Fatalf("successful/failed = %d/%d, want 2/1", log.Successful, log.Failed)
	}
	if len(log.FailedUsers) != 1 || log.FailedUsers[0].UserID != "u-2" || log.FailedUsers[0].Kind != "parse_error" {
		t.Errorf("failed_users = %v, want u-2 with parse_error", log.FailedUsers)
	}
	// The parse failure still persisted an empty report, so its counters count.
	if log.ItemsAnalyzed != 3 {
		t.Errorf("items_analyzed = %d, want 3", log.ItemsAnalyzed)
	}
	if log.AlternativesFound != 2 {
		t.Errorf("alternatives_found = %d, want 2", log.AlternativesFound)
	}
	if store.upsertCount() != 3 {
		t.Errorf("upserts = %d, want 3 (failed user persists an empty report)", store.upsertCount())
	}
}

func TestBatchRun_HeldUserLeaseSkips(t *testing.T) {
	week := testWeek()
	store := threeUserStore(week)
	search := &fakeSearcher{text: "[]"}
	leases := &fakeLeaser{
		denied: map[string]bool{userLeaseKey("u-2", week): true},
	}
	b := &Batch{Pipeline: newTestPipeline(store, search), Leases: leases, Holder: "job-a", Concurrency: 1}

	log, err := b.Run(context.Background(), week, "", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if log.Successful != 2 || log.Skipped != 1 || log.Failed != 0 {
		t.Errorf("counters = successful=%d skipped=%d failed=%d, want 2/1/0",
			log.Successful, log.Skipped, log.Failed)
	}
	if store.upsertCount() != 2 {
		t.Errorf("upserts = %d, want 2 (skipped user untouched)", store.upsertCount())
	}
	if leases.holding() != 0 {
		t.Errorf("%d leases still held after the run, want 0", leases.holding())
	}
}

func TestBatchRun_WeekLeaseConflict(t *testing.T) {
	week := testWeek()
	leases := &fakeLeaser{denied: map[string]bool{weekLeaseKey(week): true}}
	b := &Batch{
		Pipeline: newTestPipeline(threeUserStore(week), &fakeSearcher{text: "[]"}),
		Leases:   leases,
		Holder:   "job-b",
	}

	log, err := b.Run(context.Background(), week, "", false)
	if !fault.IsKind(err, fault.PersistConflict) {
		t.Fatalf("err kind = %v, want persist_conflict", fault.KindOf(err))
	}
	if log != nil {
		t.Errorf("log = %+v, want nil on a week lease conflict", log)
	}
}

func TestBatchRun_DryRunMatchesRealCounters(t *testing.T) {
	week := testWeek()
	search := func() *fakeSearcher {
		return &fakeSearcher{byMarker: map[string]string{
			"4K Monitor":       "[" + findingJSON("4K Monitor", 11.80) + "]",
			"Espresso Machine": "[" + findingJSON("Espresso Machine", 45.00) + "]",
			"Desk Chair":       "[]",
		}}
	}

	dryStore := threeUserStore(week)
	dry, err := (&Batch{Pipeline: newTestPipeline(dryStore, search())}).Run(context.Background(), week, "", true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	realStore := threeUserStore(week)
	wet, err := (&Batch{Pipeline: newTestPipeline(realStore, search())}).Run(context.Background(), week, "", false)
	if err != nil {
		t.Fatalf("real run: %v", err)
	}

	if dryStore.upsertCount() != 0 {
		t.Errorf("dry run upserts = %d, want 0", dryStore.upsertCount())
	}
	if realStore.upsertCount() != 3 {
		t.Errorf("real run upserts = %d, want 3", realStore.upsertCount())
	}
	if !dry.DryRun || wet.DryRun {
		t.Errorf("dry_run flags = %v/%v", dry.DryRun, wet.DryRun)
	}

	if dry.TotalUsers != wet.TotalUsers || dry.Successful != wet.Successful ||
		dry.Failed != wet.Failed || dry.ItemsAnalyzed != wet.ItemsAnalyzed ||
		dry.AlternativesFound != wet.AlternativesFound ||
		!dry.TotalSavings.Equal(wet.TotalSavings) || dry.MCPCallsMade != wet.MCPCallsMade {
		t.Errorf("dry counters %+v differ from real %+v", dry, wet)
	}
}

func TestBatchRun_SingleUserRestriction(t *testing.T) {
	week := testWeek()
	store := threeUserStore(week)
	search := &fakeSearcher{text: "[]"}
	b := &Batch{Pipeline: newTestPipeline(store, search)}

	log, err := b.Run(context.Background(), week, "u-2", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if log.TotalUsers != 1 || log.Successful != 1 {
		t.Errorf("counters = %+v, want exactly one user", log)
	}
	if search.callCount() != 1 {
		t.Errorf("capability calls = %d, want 1", search.callCount())
	}
}

func TestBatchRun_ZeroWeekDefaultsToLastCompleted(t *testing.T) {
	store := &fakeStore{users: []string{"u-1"}}
	b := &Batch{Pipeline: newTestPipeline(store, &fakeSearcher{text: "[]"})}

	log, err := b.Run(context.Background(), warehouse.Date{}, "", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := warehouse.MostRecentCompletedWeek(time.Now())
	if !log.WeekStart.Equal(want) {
		t.Errorf("week_start = %s, want %s", log.WeekStart, want)
	}
	if !store.weekSeen().Equal(want) {
		t.Errorf("warehouse queried for week %s, want %s", store.weekSeen(), want)
	}
}

func TestBatchRun_CancelledContextFailsUsers(t *testing.T) {
	week := testWeek()
	store := threeUserStore(week)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &Batch{Pipeline: newTestPipeline(store, &fakeSearcher{text: "[]"})}
	log, err := b.Run(ctx, week, "", false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if log.Successful != 0 || log.Failed != 3 {
		t.Fatalf("successful/failed = %d/%d, want 0/3", log.Successful, log.Failed)
	}
	for _, fu := range log.FailedUsers {
		if fu.Kind != "cancelled" {
			t.Errorf("failed user %s kind = %q, want cancelled", fu.UserID, fu.Kind)
		}
	}
	if store.upsertCount() != 0 {
		t.Errorf("upserts = %d, want 0", store.upsertCount())
	}
}
