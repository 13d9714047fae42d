package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendlens/internal/money"
	"spendlens/internal/warehouse"
)

const (
	tipWindowDays = 60

	frequentItemMin    = 4
	overspendTopN      = 3
	subMinRecurrences  = 2
	subGapMinDays      = 28.0
	subGapMaxDays      = 32.0
	subUsageMaxTxns    = 4
	entertainmentLabel = "Entertainment"
)

var (
	frequentItemRate = decimal.NewFromFloat(0.60)
	overspendRate    = decimal.NewFromFloat(0.30)

	// Only habitual consumable categories get the frequent-item tip.
	frequentItemCategories = map[string]bool{"Coffee": true, "Food": true}
)

// SmartTips runs the savings detectors over a 60-day window and merges their
// output. asOf is the analysis instant; zero means now.
func (a *Analyzer) SmartTips(ctx context.Context, userID string, limit int, asOf time.Time) ([]Tip, error) {
	if limit <= 0 {
		return []Tip{}, nil
	}
	asOf = effectiveNow(asOf)
	items, err := a.Items.ListItems(ctx, warehouse.ListItemsParams{
		UserID: userID,
		Since:  asOf.AddDate(0, 0, -tipWindowDays),
		Until:  asOf,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []Tip{}, nil
	}

	subs := detectSubscriptions(items)

	var tips []Tip
	tips = append(tips, a.frequentItemTips(items)...)
	tips = append(tips, a.categoryOverspendTips(items)...)
	tips = append(tips, a.idleSubscriptionTips(items, subs, asOf)...)
	tips = append(tips, a.bundleTips(subs)...)

	return mergeTips(tips, limit), nil
}

// mergeTips deduplicates by title, keeping the larger figure, then orders by
// savings. Detector emission order breaks savings ties.
func mergeTips(tips []Tip, limit int) []Tip {
	byTitle := make(map[string]int, len(tips))
	merged := make([]Tip, 0, len(tips))
	for _, t := range tips {
		if i, ok := byTitle[t.Title]; ok {
			if t.MonthlySavings.GreaterThan(merged[i].MonthlySavings) {
				merged[i] = t
			}
			continue
		}
		byTitle[t.Title] = len(merged)
		merged = append(merged, t)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].MonthlySavings.GreaterThan(merged[j].MonthlySavings)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// frequentItemTips flags consumables bought at least four times in the window.
func (a *Analyzer) frequentItemTips(items []warehouse.PurchaseItem) []Tip {
	type itemStat struct {
		name     string
		count    int
		total    decimal.Decimal
		category categoryMode
	}
	stats := make(map[string]*itemStat)
	for _, it := range items {
		name := strings.TrimSpace(it.ItemName)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		s := stats[key]
		if s == nil {
			s = &itemStat{name: name, total: decimal.Zero}
			stats[key] = s
		}
		s.count++
		s.total = s.total.Add(it.Amount())
		s.category.observe(it.Category)
	}

	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tips []Tip
	for _, k := range keys {
		s := stats[k]
		cat := s.category.value()
		if s.count < frequentItemMin || !frequentItemCategories[cat] {
			continue
		}
		monthly := monthlyFromWindow(s.total, tipWindowDays)
		icon := "🍔"
		if cat == "Coffee" {
			icon = "☕"
		}
		tips = append(tips, Tip{
			Icon:           icon,
			Title:          fmt.Sprintf("Frequent %s Purchases", s.name),
			Subtitle:       fmt.Sprintf("%d purchases, $%s in 60 days", s.count, s.total.StringFixed(2)),
			Description:    fmt.Sprintf("You bought %s %d times in the last two months. Making it at home instead could cut that spend by about 60%%.", s.name, s.count),
			MonthlySavings: money.Round(monthly.Mul(frequentItemRate)),
			ActionTag:      "Cut Back",
			Category:       cat,
		})
	}
	return tips
}

// categoryOverspendTips flags the top categories sitting at least 50% above
// the median category spend.
func (a *Analyzer) categoryOverspendTips(items []warehouse.PurchaseItem) []Tip {
	totals := make(map[string]decimal.Decimal)
	for _, it := range items {
		if it.Category == "" {
			continue
		}
		totals[it.Category] = totals[it.Category].Add(it.Amount())
	}
	if len(totals) == 0 {
		return nil
	}

	type catSpend struct {
		category string
		total    decimal.Decimal
	}
	ranked := make([]catSpend, 0, len(totals))
	for c, t := range totals {
		ranked = append(ranked, catSpend{category: c, total: t})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if !ranked[i].total.Equal(ranked[j].total) {
			return ranked[i].total.GreaterThan(ranked[j].total)
		}
		return ranked[i].category < ranked[j].category
	})

	sorted := make([]decimal.Decimal, len(ranked))
	for i, cs := range ranked {
		sorted[i] = cs.total
	}
	threshold := medianOf(sorted).Mul(decimal.NewFromFloat(1.5))

	var tips []Tip
	for i, cs := range ranked {
		if i >= overspendTopN || cs.total.LessThan(threshold) {
			continue
		}
		monthly := monthlyFromWindow(cs.total, tipWindowDays)
		tips = append(tips, Tip{
			Icon:           "📊",
			Title:          fmt.Sprintf("High %s Spending", cs.category),
			Subtitle:       fmt.Sprintf("$%s in the last 60 days", cs.total.StringFixed(2)),
			Description:    fmt.Sprintf("%s spending is running well ahead of your other categories. A weekly budget could trim it by about 30%%.", cs.category),
			MonthlySavings: money.Round(monthly.Mul(overspendRate)),
			ActionTag:      "Set Budget",
			Category:       cs.category,
		})
	}
	return tips
}

// medianOf is the median of an already-sorted list; even counts average the
// two middle values.
func medianOf(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return sorted[mid-1].Add(sorted[mid]).Div(decimal.NewFromInt(2))
}

// idleSubscriptionTips flags monthly charges from merchants the user barely
// transacts with.
func (a *Analyzer) idleSubscriptionTips(items []warehouse.PurchaseItem, subs []subscription, asOf time.Time) []Tip {
	recentCutoff := asOf.AddDate(0, 0, -30)
	recentTxns := make(map[string]int)
	for _, it := range items {
		if !it.TS.Before(recentCutoff) {
			recentTxns[it.Merchant]++
		}
	}

	var tips []Tip
	for _, s := range subs {
		recent := recentTxns[s.merchant]
		if recent > subUsageMaxTxns {
			continue
		}
		tips = append(tips, Tip{
			Icon:           "📺",
			Title:          fmt.Sprintf("Barely Using %s?", s.merchant),
			Subtitle:       fmt.Sprintf("$%s charged about every month", s.price.StringFixed(2)),
			Description:    fmt.Sprintf("%s bills you $%s on a monthly cycle but only showed up %d times in the last 30 days. Pausing or cancelling saves the full charge.", s.merchant, s.price.StringFixed(2), recent),
			MonthlySavings: money.Round(s.price),
			ActionTag:      "Review",
			Category:       s.category,
		})
	}
	return tips
}

// bundleTips checks catalog bundles against the user's active subscriptions.
func (a *Analyzer) bundleTips(subs []subscription) []Tip {
	if a.Catalog == nil {
		return nil
	}
	var tips []Tip
	for _, b := range a.Catalog.Bundles() {
		inBundle := make(map[string]bool, len(b.Services))
		for _, svc := range b.Services {
			inBundle[svc] = true
		}

		var names []string
		combined := decimal.Zero
		for _, s := range subs {
			if s.category != entertainmentLabel || !inBundle[s.merchant] {
				continue
			}
			names = append(names, s.merchant)
			combined = combined.Add(s.price)
		}
		if len(names) < 2 || !combined.GreaterThan(b.Price) {
			continue
		}
		tips = append(tips, Tip{
			Icon:           "🎬",
			Title:          fmt.Sprintf("Switch to the %s", b.Name),
			Subtitle:       fmt.Sprintf("Paying $%s/mo separately", combined.StringFixed(2)),
			Description:    fmt.Sprintf("You pay for %s separately at $%s/mo. The %s covers them for $%s.", strings.Join(names, " and "), combined.StringFixed(2), b.Name, b.Price.StringFixed(2)),
			MonthlySavings: money.Round(combined.Sub(b.Price)),
			ActionTag:      "Bundle Now",
			Category:       entertainmentLabel,
		})
	}
	return tips
}

// subscription is a recurring (merchant, price) charge on a monthly cadence.
type subscription struct {
	merchant string
	price    decimal.Decimal
	category string
}

// detectSubscriptions finds (merchant, price) pairs recurring at least twice
// with every gap inside the 28–32 day band.
func detectSubscriptions(items []warehouse.PurchaseItem) []subscription {
	type series struct {
		merchant string
		price    decimal.Decimal
		category categoryMode
		times    []time.Time
	}
	groups := make(map[string]*series)
	for _, it := range items {
		if it.Merchant == "" {
			continue
		}
		key := it.Merchant + "\x00" + it.Price.StringFixed(2)
		g := groups[key]
		if g == nil {
			g = &series{merchant: it.Merchant, price: it.Price}
			groups[key] = g
		}
		g.times = append(g.times, it.TS)
		g.category.observe(it.Category)
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var subs []subscription
	for _, k := range keys {
		g := groups[k]
		if len(g.times) < subMinRecurrences {
			continue
		}
		sort.Slice(g.times, func(i, j int) bool { return g.times[i].Before(g.times[j]) })
		monthly := true
		for i := 1; i < len(g.times); i++ {
			gap := g.times[i].Sub(g.times[i-1]).Hours() / 24
			if gap < subGapMinDays || gap > subGapMaxDays {
				monthly = false
				break
			}
		}
		if !monthly {
			continue
		}
		subs = append(subs, subscription{merchant: g.merchant, price: g.price, category: g.category.value()})
	}
	return subs
}

// categoryMode tracks the most frequent category label; the earliest label to
// reach the max count wins ties.
type categoryMode struct {
	counts map[string]int
	order  []string
}

func (m *categoryMode) observe(category string) {
	if category == "" {
		return
	}
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	if _, seen := m.counts[category]; !seen {
		m.order = append(m.order, category)
	}
	m.counts[category]++
}

func (m *categoryMode) value() string {
	best, bestN := "", 0
	for _, c := range m.order {
		if m.counts[c] > bestN {
			best, bestN = c, m.counts[c]
		}
	}
	return best
}
