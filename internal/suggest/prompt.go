package suggest

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"spendlens/internal/warehouse"
)

// BuildPrompt renders the web-search instruction for one user-week: the
// items to beat, where the buyer is, and the JSON contract the parser on
// the other side expects.
func BuildPrompt(items []warehouse.PurchaseItem, loc warehouse.Location, week warehouse.Date, minSavings decimal.Decimal) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a price-comparison research assistant. A shopper bought these items during the week of %s:\n\n", week)
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %q - $%s at %s\n", i+1, it.ItemName, it.Price.StringFixed(2), it.Merchant)
	}
	fmt.Fprintf(&b, "\nShopper location: %s\n\n", locationText(loc))

	b.WriteString("For each item, search the web for a cheaper way to buy the exact same product today. Rules:\n")
	b.WriteString("- Check major retailers (Amazon, Walmart, Target, Best Buy, Newegg) and stores local to the shopper.\n")
	b.WriteString("- The alternative must be the same product: same brand, model and size, not a lookalike or a smaller pack.\n")
	b.WriteString("- Compare the total landed cost: item price plus shipping plus estimated sales tax.\n")
	fmt.Fprintf(&b, "- Only report alternatives whose total savings are at least $%s.\n", minSavings.StringFixed(2))
	b.WriteString("- Every alternative needs a direct, purchasable URL.\n")
	b.WriteString("- Skip items with no qualifying alternative.\n\n")

	b.WriteString("Respond with ONLY a JSON array, no prose before or after. One object per alternative found:\n")
	b.WriteString(`[
  {
    "item_name": "exact name from the list above",
    "original_price": 54.99,
    "original_merchant": "Best Buy",
    "alternative_merchant": "Walmart",
    "alternative_price": 39.99,
    "shipping_cost": 0,
    "tax_estimate": 3.20,
    "total_landed_cost": 43.19,
    "total_savings": 11.80,
    "url": "https://www.walmart.com/ip/...",
    "notes": "same model number, free store pickup",
    "channel": "online",
    "confidence": 0.9
  }
]
`)
	b.WriteString("\nIf nothing qualifies, respond with [].")
	return b.String()
}

// locationText flattens a Location for outbound text. Postal codes never
// leave the process.
func locationText(loc warehouse.Location) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{loc.City, loc.State, loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "not specified"
	}
	return strings.Join(parts, ", ")
}
