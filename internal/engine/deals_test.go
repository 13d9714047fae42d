package engine

import (
	"context"
	"testing"
	"time"

	"spendlens/internal/warehouse"
)

func TestSuggestDeals_AllowListAndPurchaseFloor(t *testing.T) {
	asOf := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	items := []warehouse.PurchaseItem{
		purchase("p-1", "Produce", "Trader Joe's", "Groceries", 40, asOf.AddDate(0, 0, -3)),
		purchase("p-2", "Pantry", "Trader Joe's", "Groceries", 50, asOf.AddDate(0, 0, -10)),
		purchase("p-3", "Snacks", "Trader Joe's", "Groceries", 30, asOf.AddDate(0, 0, -17)),
		// coffee is off the allow-list
		purchase("p-4", "Latte", "Starbucks", "Coffee", 6.50, asOf.AddDate(0, 0, -2)),
		purchase("p-5", "Latte", "Starbucks", "Coffee", 6.50, asOf.AddDate(0, 0, -4)),
		// one purchase stays under the floor
		purchase("p-6", "Organics", "Whole Foods", "Groceries", 80, asOf.AddDate(0, 0, -6)),
	}
	a := testAnalyzer(items...)

	deals, err := a.SuggestDeals(context.Background(), "u-1", 10, asOf)
	if err != nil {
		t.Fatalf("SuggestDeals: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("got %d deals, want 1: %+v", len(deals), deals)
	}
	d := deals[0]
	if d.CurrentStore != "Trader Joe's" {
		t.Errorf("current_store = %q", d.CurrentStore)
	}
	if d.AlternativeStore != "Aldi" || d.SavingsPercent != 30 {
		t.Errorf("best alternative = %q at %v%%, want Aldi at 30%%", d.AlternativeStore, d.SavingsPercent)
	}
	if got := d.CurrentSpendingMonth.StringFixed(2); got != "120.00" {
		t.Errorf("current_spending_month = %s, want 120.00", got)
	}
	if got := d.MonthlySavings.StringFixed(2); got != "36.00" {
		t.Errorf("monthly_savings = %s, want 36.00", got)
	}
	if d.PurchaseCount != 3 {
		t.Errorf("purchase_count = %d, want 3", d.PurchaseCount)
	}
	if len(d.AllAlternatives) != 3 {
		t.Errorf("all_alternatives = %d entries, want the full catalog row", len(d.AllAlternatives))
	}
}

func TestSuggestDeals_PicksHighestPercent(t *testing.T) {
	asOf := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	a := testAnalyzer(
		purchase("p-1", "Organics", "Whole Foods", "Groceries", 60, asOf.AddDate(0, 0, -5)),
		purchase("p-2", "Organics", "Whole Foods", "Groceries", 60, asOf.AddDate(0, 0, -12)),
	)

	deals, err := a.SuggestDeals(context.Background(), "u-1", 10, asOf)
	if err != nil {
		t.Fatalf("SuggestDeals: %v", err)
	}
	if len(deals) != 1 {
		t.Fatalf("got %d deals, want 1", len(deals))
	}
	// Regular Grocery at 40% beats Trader Joe's at 35%
	if deals[0].AlternativeStore != "Regular Grocery" || deals[0].SavingsPercent != 40 {
		t.Errorf("best = %q at %v%%, want Regular Grocery at 40%%", deals[0].AlternativeStore, deals[0].SavingsPercent)
	}
}

func TestSuggestDeals_CountsDistinctPurchases(t *testing.T) {
	asOf := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	// two line items from one checkout are one purchase
	milk := purchase("p-1", "Milk", "Trader Joe's", "Groceries", 4, asOf.AddDate(0, 0, -3))
	eggs := purchase("p-1", "Eggs", "Trader Joe's", "Groceries", 6, asOf.AddDate(0, 0, -3))
	eggs.ItemID = "p-1-2"

	a := testAnalyzer(milk, eggs)
	deals, err := a.SuggestDeals(context.Background(), "u-1", 10, asOf)
	if err != nil {
		t.Fatalf("SuggestDeals: %v", err)
	}
	if len(deals) != 0 {
		t.Fatalf("got %d deals, want 0 for a single checkout", len(deals))
	}

	second := purchase("p-2", "Bread", "Trader Joe's", "Groceries", 5, asOf.AddDate(0, 0, -9))
	a = testAnalyzer(milk, eggs, second)
	deals, err = a.SuggestDeals(context.Background(), "u-1", 10, asOf)
	if err != nil {
		t.Fatalf("SuggestDeals: %v", err)
	}
	if len(deals) != 1 || deals[0].PurchaseCount != 2 {
		t.Fatalf("got %+v, want one deal counting 2 purchases", deals)
	}
	if got := deals[0].CurrentSpendingMonth.StringFixed(2); got != "15.00" {
		t.Errorf("current_spending_month = %s, want 15.00", got)
	}
}

func TestSuggestDeals_OrderAndLimit(t *testing.T) {
	asOf := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	items := []warehouse.PurchaseItem{
		purchase("p-1", "Produce", "Trader Joe's", "Groceries", 50, asOf.AddDate(0, 0, -3)),
		purchase("p-2", "Pantry", "Trader Joe's", "Groceries", 50, asOf.AddDate(0, 0, -10)),
		purchase("p-3", "Organics", "Whole Foods", "Groceries", 100, asOf.AddDate(0, 0, -5)),
		purchase("p-4", "Organics", "Whole Foods", "Groceries", 100, asOf.AddDate(0, 0, -12)),
	}
	a := testAnalyzer(items...)

	deals, err := a.SuggestDeals(context.Background(), "u-1", 10, asOf)
	if err != nil {
		t.Fatalf("SuggestDeals: %v", err)
	}
	if len(deals) != 2 {
		t.Fatalf("got %d deals, want 2", len(deals))
	}
	// Whole Foods saves 80.00/mo, Trader Joe's 30.00/mo
	if deals[0].CurrentStore != "Whole Foods" || deals[1].CurrentStore != "Trader Joe's" {
		t.Errorf("order = [%s, %s], want largest savings first", deals[0].CurrentStore, deals[1].CurrentStore)
	}

	one, err := a.SuggestDeals(context.Background(), "u-1", 1, asOf)
	if err != nil {
		t.Fatalf("SuggestDeals limit=1: %v", err)
	}
	if len(one) != 1 || one[0].CurrentStore != "Whole Foods" {
		t.Fatalf("limit=1 kept %+v", one)
	}
}

func TestSuggestDeals_UnknownMerchantSkipped(t *testing.T) {
	asOf := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	a := testAnalyzer(
		purchase("p-1", "Produce", "Corner Market", "Groceries", 30, asOf.AddDate(0, 0, -3)),
		purchase("p-2", "Pantry", "Corner Market", "Groceries", 30, asOf.AddDate(0, 0, -9)),
	)

	deals, err := a.SuggestDeals(context.Background(), "u-1", 10, asOf)
	if err != nil {
		t.Fatalf("SuggestDeals: %v", err)
	}
	if len(deals) != 0 {
		t.Fatalf("got %d deals, want 0 for a merchant outside the catalog", len(deals))
	}
}

func TestSuggestDeals_WindowExcludesOldSpend(t *testing.T) {
	asOf := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	a := testAnalyzer(
		purchase("p-1", "Produce", "Trader Joe's", "Groceries", 40, asOf.AddDate(0, 0, -3)),
		purchase("p-2", "Pantry", "Trader Joe's", "Groceries", 40, asOf.AddDate(0, 0, -45)),
	)

	deals, err := a.SuggestDeals(context.Background(), "u-1", 10, asOf)
	if err != nil {
		t.Fatalf("SuggestDeals: %v", err)
	}
	if len(deals) != 0 {
		t.Fatalf("got %d deals, want 0 once stale purchases age out", len(deals))
	}
}
