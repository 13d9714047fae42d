package warehouse

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func rollupFixture() []PurchaseItem {
	return []PurchaseItem{
		{
			ItemID: "i-2", PurchaseID: "p-1", UserID: "u1", Merchant: "Trader Joe's",
			ItemName: "Oat Milk", Category: "Groceries", ItemText: "Trader Joe's · Groceries · Dairy · Oat Milk",
			Price: d("4.50"), Qty: d("2"), TS: ts("2025-11-04T10:00:00Z"),
			DetectedNeedWant: "need", Confidence: 0.9, Status: StatusActive,
		},
		{
			ItemID: "i-1", PurchaseID: "p-1", UserID: "u1", Merchant: "Trader Joe's",
			ItemName: "Bananas", Category: "Groceries", ItemText: "Trader Joe's · Groceries · Produce · Bananas",
			Price: d("1.99"), Qty: d("1"), TS: ts("2025-11-04T10:00:00Z"),
			DetectedNeedWant: "need", Confidence: 0.7, Status: StatusActive,
		},
		{
			ItemID: "i-3", PurchaseID: "p-2", UserID: "u1", Merchant: "Starbucks",
			ItemName: "Latte", Category: "Coffee", ItemText: "Starbucks · Coffee · · Latte",
			Price: d("7.25"), Qty: d("1"), TS: ts("2025-11-05T08:30:00Z"),
			DetectedNeedWant: "want", UserNeedWant: "need", Confidence: 0.8, Status: StatusActive,
		},
		{
			ItemID: "i-4", PurchaseID: "p-3", UserID: "u1", Merchant: "Target",
			ItemName: "Socks", Category: "Shopping", ItemText: "Target · Shopping · · Socks",
			Price: d("9.99"), Qty: d("1"), TS: ts("2025-11-01T12:00:00Z"),
			Status: StatusRefunded,
		},
	}
}

func TestRollupTransactions_GroupsByPurchase(t *testing.T) {
	rollups := RollupTransactions(rollupFixture())

	if len(rollups) != 2 {
		t.Fatalf("got %d rollups, want 2 (refunded purchase excluded)", len(rollups))
	}

	// Newest first.
	if rollups[0].ID != "p-2" || rollups[1].ID != "p-1" {
		t.Fatalf("order = %s, %s; want p-2, p-1", rollups[0].ID, rollups[1].ID)
	}

	groceries := rollups[1]
	if got := groceries.Amount.String(); got != "10.99" {
		t.Errorf("amount = %s, want 10.99 (4.50×2 + 1.99)", got)
	}
	if groceries.ItemText != "Bananas · Oat Milk" {
		t.Errorf("item_text = %q, want item_id order join", groceries.ItemText)
	}
	if groceries.Category != "Groceries" {
		t.Errorf("category = %q", groceries.Category)
	}
	if groceries.NeedOrWant != "need" {
		t.Errorf("need_or_want = %q, want need", groceries.NeedOrWant)
	}
	if want := (0.9 + 0.7) / 2; math.Abs(groceries.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", groceries.Confidence, want)
	}

	coffee := rollups[0]
	if coffee.NeedOrWant != "need" {
		t.Errorf("user label should win: need_or_want = %q", coffee.NeedOrWant)
	}
}

func TestRollupTransactions_Idempotent(t *testing.T) {
	items := rollupFixture()
	first := RollupTransactions(items)
	second := RollupTransactions(items)
	if !reflect.DeepEqual(first, second) {
		t.Error("re-evaluating the view over the same rows changed the output")
	}
}

func TestSummarizeCategoryWeeks_SplitsAndBuckets(t *testing.T) {
	items := []PurchaseItem{
		{ItemID: "a", PurchaseID: "p-1", UserID: "u1", Category: "Groceries", Price: d("20.00"), Qty: d("1"),
			TS: ts("2025-11-04T10:00:00Z"), DetectedNeedWant: "need", Confidence: 0.8, Status: StatusActive},
		{ItemID: "b", PurchaseID: "p-1", UserID: "u1", Category: "Groceries", Price: d("5.00"), Qty: d("2"),
			TS: ts("2025-11-04T10:00:00Z"), DetectedNeedWant: "want", UserNeedWant: "want", Confidence: 0.6, Status: StatusActive},
		{ItemID: "c", PurchaseID: "p-2", UserID: "u1", Category: "Groceries", Price: d("12.50"), Qty: d("1"),
			TS: ts("2025-11-06T18:00:00Z"), Confidence: 0.4, Status: StatusActive},
		// Previous ISO week.
		{ItemID: "e", PurchaseID: "p-3", UserID: "u1", Category: "Coffee", Price: d("7.25"), Qty: d("1"),
			TS: ts("2025-10-29T08:00:00Z"), DetectedNeedWant: "want", Confidence: 0.9, Status: StatusActive},
		// Inactive rows never count.
		{ItemID: "f", PurchaseID: "p-4", UserID: "u1", Category: "Groceries", Price: d("99.99"), Qty: d("1"),
			TS: ts("2025-11-04T11:00:00Z"), Status: StatusReversed},
	}

	sums := SummarizeCategoryWeeks(items, time.UTC)
	if len(sums) != 2 {
		t.Fatalf("got %d summaries, want 2", len(sums))
	}

	grocery := sums[0]
	if grocery.WeekStart.String() != "2025-11-03" || grocery.Category != "Groceries" {
		t.Fatalf("expected newest week first, got %s %s", grocery.WeekStart, grocery.Category)
	}
	if grocery.Items != 3 || grocery.Purchases != 2 {
		t.Errorf("items/purchases = %d/%d, want 3/2", grocery.Items, grocery.Purchases)
	}
	if got := grocery.TotalSpend.String(); got != "42.5" {
		t.Errorf("total = %s, want 42.5", got)
	}
	if got := grocery.NeedSpend.String(); got != "20" {
		t.Errorf("need spend = %s, want 20", got)
	}
	if got := grocery.WantSpend.String(); got != "10" {
		t.Errorf("want spend = %s, want 10", got)
	}
	if grocery.UserLabeled != 1 {
		t.Errorf("user labeled = %d, want 1", grocery.UserLabeled)
	}

	if sums[1].WeekStart.String() != "2025-10-27" || sums[1].Category != "Coffee" {
		t.Errorf("second summary = %s %s", sums[1].WeekStart, sums[1].Category)
	}
}

func TestEffectiveNeedWant_Precedence(t *testing.T) {
	cases := []struct {
		user, detected, want string
	}{
		{"need", "want", "need"},
		{"", "want", "want"},
		{"unset", "need", "need"},
		{"", "", "unset"},
		{"bogus", "want", "want"},
	}
	for _, c := range cases {
		p := PurchaseItem{UserNeedWant: c.user, DetectedNeedWant: c.detected}
		if got := p.EffectiveNeedWant(); got != c.want {
			t.Errorf("EffectiveNeedWant(user=%q detected=%q) = %q, want %q", c.user, c.detected, got, c.want)
		}
	}
}
