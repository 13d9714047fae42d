package engine

import "github.com/shopspring/decimal"

// Alternative is one cheaper merchant for a known store.
type Alternative struct {
	Store          string  `json:"store"`
	SavingsPercent float64 `json:"savings_percent"`
	Icon           string  `json:"icon"`
}

// Bundle groups subscription services behind a single cheaper plan.
type Bundle struct {
	Name     string
	Services []string
	Price    decimal.Decimal
}

// Catalog is the static merchant-alternatives table. Entries are curated,
// not learned; Version changes whenever the table does.
type Catalog struct {
	Version      string
	alternatives map[string][]Alternative
	bundles      []Bundle
}

// DefaultCatalog returns the built-in alternatives table.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Version: "2025.1",
		alternatives: map[string][]Alternative{
			"Starbucks": {
				{Store: "Dunkin' Donuts", SavingsPercent: 40, Icon: "☕"},
				{Store: "Home Brew", SavingsPercent: 80, Icon: "🏠"},
				{Store: "McDonald's Coffee", SavingsPercent: 50, Icon: "🍟"},
			},
			"Trader Joe's": {
				{Store: "Aldi", SavingsPercent: 30, Icon: "🛒"},
				{Store: "Costco", SavingsPercent: 25, Icon: "📦"},
				{Store: "Walmart", SavingsPercent: 20, Icon: "🏪"},
			},
			"Target": {
				{Store: "Walmart", SavingsPercent: 15, Icon: "🏪"},
				{Store: "Costco", SavingsPercent: 25, Icon: "📦"},
				{Store: "Amazon", SavingsPercent: 10, Icon: "📦"},
			},
			"Amazon": {
				{Store: "Walmart", SavingsPercent: 12, Icon: "🏪"},
				{Store: "Target", SavingsPercent: 8, Icon: "🎯"},
				{Store: "AliExpress", SavingsPercent: 50, Icon: "🌍"},
			},
			"Whole Foods": {
				{Store: "Trader Joe's", SavingsPercent: 35, Icon: "🛒"},
				{Store: "Sprouts", SavingsPercent: 25, Icon: "🥬"},
				{Store: "Regular Grocery", SavingsPercent: 40, Icon: "🏪"},
			},
			"DoorDash": {
				{Store: "Pickup Direct", SavingsPercent: 60, Icon: "🚗"},
				{Store: "Cook at Home", SavingsPercent: 70, Icon: "👨‍🍳"},
				{Store: "Uber Eats (with promo)", SavingsPercent: 20, Icon: "🍔"},
			},
			"Disney+": {
				{Store: "Disney Bundle", SavingsPercent: 35, Icon: "🎬"},
				{Store: "Family Split", SavingsPercent: 50, Icon: "👨‍👩‍👧"},
			},
			"Hulu": {
				{Store: "Disney Bundle", SavingsPercent: 35, Icon: "🎬"},
				{Store: "Hulu with ads", SavingsPercent: 45, Icon: "📺"},
			},
			"Netflix": {
				{Store: "Share Account", SavingsPercent: 60, Icon: "👨‍👩‍👧"},
				{Store: "Cancel & Rotate", SavingsPercent: 100, Icon: "🔄"},
				{Store: "Basic Plan", SavingsPercent: 40, Icon: "📺"},
			},
			"Planet Fitness": {
				{Store: "Home Workouts", SavingsPercent: 90, Icon: "🏠"},
				{Store: "YouTube Fitness", SavingsPercent: 100, Icon: "📱"},
				{Store: "Community Rec Center", SavingsPercent: 70, Icon: "🏊"},
			},
		},
		bundles: []Bundle{
			{
				Name:     "Disney Bundle",
				Services: []string{"Disney+", "Hulu"},
				Price:    decimal.NewFromFloat(19.99),
			},
		},
	}
}

// Alternatives returns the catalog row for a merchant, nil when unknown.
// Matching is exact on the normalized merchant name.
func (c *Catalog) Alternatives(merchant string) []Alternative {
	return c.alternatives[merchant]
}

// Bundles returns all bundle offers.
func (c *Catalog) Bundles() []Bundle {
	return c.bundles
}

// BestAlternative picks the entry with the highest savings percent. Ties keep
// the earlier entry so the table order stays authoritative.
func (c *Catalog) BestAlternative(merchant string) (Alternative, bool) {
	alts := c.alternatives[merchant]
	if len(alts) == 0 {
		return Alternative{}, false
	}
	best := alts[0]
	for _, a := range alts[1:] {
		if a.SavingsPercent > best.SavingsPercent {
			best = a
		}
	}
	return best, true
}
