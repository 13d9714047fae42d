package suggest

import (
	"testing"

	"github.com/shopspring/decimal"

	"spendlens/internal/fault"
	"spendlens/internal/warehouse"
)

func parseDefaults(t *testing.T, text string) []warehouse.Finding {
	t.Helper()
	findings, err := ParseFindings(text, decimal.NewFromInt(10), DefaultMaxFindings)
	if err != nil {
		t.Fatalf("ParseFindings: %v", err)
	}
	return findings
}

func TestParseFindings_FencedPayload(t *testing.T) {
	text := "```json\n[" + findingJSON("4K Monitor", 11.80) + "]\n```"
	findings := parseDefaults(t, text)
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	if findings[0].ItemName != "4K Monitor" {
		t.Errorf("item_name = %q", findings[0].ItemName)
	}
	if got := findings[0].TotalSavings.StringFixed(2); got != "11.80" {
		t.Errorf("total_savings = %s, want 11.80", got)
	}
}

func TestParseFindings_SkipsCitationBrackets(t *testing.T) {
	text := "Based on current listings [1][2], here is what I found:\n\n" +
		"[" + findingJSON("USB Hub", 12.50) + "]\n\nSources: [3] retailer sites."
	findings := parseDefaults(t, text)
	if len(findings) != 1 || findings[0].ItemName != "USB Hub" {
		t.Fatalf("findings = %+v, want the one real entry", findings)
	}
}

func TestParseFindings_BracketsInsideStringsStayBalanced(t *testing.T) {
	text := `[{
	  "item_name": "Desk Lamp",
	  "original_price": 45.00,
	  "original_merchant": "Target",
	  "alternative_merchant": "IKEA",
	  "alternative_price": 25.00,
	  "total_landed_cost": 27.00,
	  "total_savings": 18.00,
	  "url": "https://shop.example/list[1]/item.html"
	}]`
	findings := parseDefaults(t, text)
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	if findings[0].URL != "https://shop.example/list[1]/item.html" {
		t.Errorf("url = %q", findings[0].URL)
	}
}

func TestParseFindings_DropsEntriesMissingRequiredFields(t *testing.T) {
	text := `[
	  {"item_name": "No URL", "original_price": 50, "original_merchant": "A",
	   "alternative_merchant": "B", "alternative_price": 30,
	   "total_landed_cost": 32, "total_savings": 18},
	  {"item_name": "Blank Merchant", "original_price": 50, "original_merchant": "A",
	   "alternative_merchant": "  ", "alternative_price": 30,
	   "total_landed_cost": 32, "total_savings": 18, "url": "https://x.example/1"},
	  ` + findingJSON("Kept", 15.00) + `
	]`
	findings := parseDefaults(t, text)
	if len(findings) != 1 || findings[0].ItemName != "Kept" {
		t.Fatalf("findings = %+v, want only the complete entry", findings)
	}
}

func TestParseFindings_MinSavingsFloor(t *testing.T) {
	text := "[" + findingJSON("Too Small", 9.99) + "," + findingJSON("Just Enough", 10.00) + "]"
	findings := parseDefaults(t, text)
	if len(findings) != 1 || findings[0].ItemName != "Just Enough" {
		t.Fatalf("findings = %+v, want only the $10.00 entry", findings)
	}
}

func TestParseFindings_CoercionAndDefaults(t *testing.T) {
	text := `[{
	  "item_name": "  Monitor  ",
	  "original_price": 549.99,
	  "original_merchant": "Best Buy",
	  "alternative_merchant": "Walmart",
	  "alternative_price": 499.99,
	  "shipping_cost": -5,
	  "total_landed_cost": 499.99,
	  "total_savings": 50.004,
	  "url": "  https://w.example/x  ",
	  "channel": "LOCAL",
	  "confidence": 1.7
	}]`
	findings := parseDefaults(t, text)
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	f := findings[0]
	if f.ItemName != "Monitor" {
		t.Errorf("item_name = %q, want trimmed", f.ItemName)
	}
	if !f.ShippingCost.IsZero() {
		t.Errorf("shipping_cost = %s, want 0 for a negative input", f.ShippingCost)
	}
	if !f.TaxEstimate.IsZero() {
		t.Errorf("tax_estimate = %s, want 0 when absent", f.TaxEstimate)
	}
	if got := f.TotalSavings.StringFixed(2); got != "50.00" {
		t.Errorf("total_savings = %s, want 50.00", got)
	}
	if f.URL != "https://w.example/x" {
		t.Errorf("url = %q, want trimmed", f.URL)
	}
	if f.Channel != warehouse.ChannelLocal {
		t.Errorf("channel = %q, want local (case-insensitive)", f.Channel)
	}
	if f.Confidence != 1 {
		t.Errorf("confidence = %v, want clamped to 1", f.Confidence)
	}
}

func TestParseFindings_DefaultConfidenceAndChannel(t *testing.T) {
	text := `[{
	  "item_name": "Kettle",
	  "original_price": 80,
	  "original_merchant": "Williams Sonoma",
	  "alternative_merchant": "Amazon",
	  "alternative_price": 55,
	  "total_landed_cost": 59,
	  "total_savings": 21,
	  "url": "https://a.example/kettle"
	}]`
	findings := parseDefaults(t, text)
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
	if findings[0].Confidence != 0.5 {
		t.Errorf("confidence = %v, want default 0.5", findings[0].Confidence)
	}
	if findings[0].Channel != warehouse.ChannelOnline {
		t.Errorf("channel = %q, want default online", findings[0].Channel)
	}
}

func TestParseFindings_MaxFindingsCap(t *testing.T) {
	text := "[" + findingJSON("One", 15) + "," + findingJSON("Two", 16) + "," + findingJSON("Three", 17) + "]"
	findings, err := ParseFindings(text, decimal.NewFromInt(10), 2)
	if err != nil {
		t.Fatalf("ParseFindings: %v", err)
	}
	if len(findings) != 2 || findings[0].ItemName != "One" || findings[1].ItemName != "Two" {
		t.Fatalf("findings = %+v, want the first two in order", findings)
	}
}

func TestParseFindings_EmptyArrayIsValid(t *testing.T) {
	findings := parseDefaults(t, "Nothing beats the prices you already paid. []")
	if findings == nil || len(findings) != 0 {
		t.Fatalf("findings = %v, want an empty slice", findings)
	}
}

func TestParseFindings_NoArrayIsParseError(t *testing.T) {
	_, err := ParseFindings("I searched several retailers but found no comparable offers.",
		decimal.NewFromInt(10), DefaultMaxFindings)
	if !fault.IsKind(err, fault.ParseError) {
		t.Fatalf("err kind = %v, want parse_error", fault.KindOf(err))
	}
}

func TestParseFindings_MalformedArrayIsParseError(t *testing.T) {
	_, err := ParseFindings(`[{"item_name": }]`, decimal.NewFromInt(10), DefaultMaxFindings)
	if !fault.IsKind(err, fault.ParseError) {
		t.Fatalf("err kind = %v, want parse_error", fault.KindOf(err))
	}
}
