package warehouse

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RollupTransactions projects item rows onto one entry per purchase_id.
// Group members are ordered by item_id, which fixes every "any" in the
// projection: the view is idempotent over the same input set.
func RollupTransactions(items []PurchaseItem) []TransactionRollup {
	groups := make(map[string][]PurchaseItem)
	for _, it := range items {
		if it.Status != StatusActive {
			continue
		}
		groups[it.PurchaseID] = append(groups[it.PurchaseID], it)
	}

	out := make([]TransactionRollup, 0, len(groups))
	for purchaseID, members := range groups {
		sort.Slice(members, func(i, j int) bool { return members[i].ItemID < members[j].ItemID })

		amount := decimal.Zero
		var confSum float64
		categories := make([]string, 0, len(members))
		labels := make([]string, 0, len(members))
		names := make([]string, 0, len(members))
		var embed []float32
		for _, m := range members {
			amount = amount.Add(m.Amount())
			confSum += m.Confidence
			categories = append(categories, m.Category)
			labels = append(labels, m.EffectiveNeedWant())
			names = append(names, m.ItemName)
			if embed == nil && m.ItemEmbed != nil {
				embed = m.ItemEmbed
			}
		}

		out = append(out, TransactionRollup{
			ID:         purchaseID,
			UserID:     members[0].UserID,
			Merchant:   members[0].Merchant,
			Amount:     amount.RoundBank(2),
			Category:   modeString(categories),
			NeedOrWant: modeString(labels),
			Confidence: confSum / float64(len(members)),
			OccurredAt: members[0].TS,
			ItemText:   strings.Join(names, " · "),
			Embed:      embed,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SummarizeCategoryWeeks buckets item rows by (user, category, subcategory,
// ISO week in loc) and aggregates spend and label counts.
func SummarizeCategoryWeeks(items []PurchaseItem, loc *time.Location) []CategoryWeekSummary {
	type key struct {
		user, category, subcategory string
		week                        string
	}
	type agg struct {
		summary   CategoryWeekSummary
		purchases map[string]struct{}
		confSum   float64
	}

	buckets := make(map[key]*agg)
	for _, it := range items {
		if it.Status != StatusActive {
			continue
		}
		week := WeekStartOf(it.TS, loc)
		k := key{it.UserID, it.Category, it.Subcategory, week.String()}
		a, ok := buckets[k]
		if !ok {
			a = &agg{
				summary: CategoryWeekSummary{
					UserID:      it.UserID,
					Category:    it.Category,
					Subcategory: it.Subcategory,
					WeekStart:   week,
					TotalSpend:  decimal.Zero,
					NeedSpend:   decimal.Zero,
					WantSpend:   decimal.Zero,
				},
				purchases: make(map[string]struct{}),
			}
			buckets[k] = a
		}

		amount := it.Amount()
		a.summary.Items++
		a.summary.TotalSpend = a.summary.TotalSpend.Add(amount)
		switch it.EffectiveNeedWant() {
		case NeedWantNeed:
			a.summary.NeedSpend = a.summary.NeedSpend.Add(amount)
		case NeedWantWant:
			a.summary.WantSpend = a.summary.WantSpend.Add(amount)
		}
		if it.UserNeedWant == NeedWantNeed || it.UserNeedWant == NeedWantWant {
			a.summary.UserLabeled++
		}
		a.confSum += it.Confidence
		a.purchases[it.PurchaseID] = struct{}{}
	}

	out := make([]CategoryWeekSummary, 0, len(buckets))
	for _, a := range buckets {
		a.summary.Purchases = len(a.purchases)
		a.summary.MeanConfidence = a.confSum / float64(a.summary.Items)
		a.summary.TotalSpend = a.summary.TotalSpend.RoundBank(2)
		a.summary.NeedSpend = a.summary.NeedSpend.RoundBank(2)
		a.summary.WantSpend = a.summary.WantSpend.RoundBank(2)
		out = append(out, a.summary)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].WeekStart.Equal(out[j].WeekStart) {
			return out[j].WeekStart.Before(out[i].WeekStart)
		}
		if !out[i].TotalSpend.Equal(out[j].TotalSpend) {
			return out[i].TotalSpend.GreaterThan(out[j].TotalSpend)
		}
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Subcategory < out[j].Subcategory
	})
	return out
}

// modeString returns the most frequent value; ties go to the value that
// reached the maximum first (input order is deterministic).
func modeString(values []string) string {
	counts := make(map[string]int, len(values))
	best, bestCount := "", 0
	for _, v := range values {
		counts[v]++
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// TransactionRollups fetches the user's items and returns the newest
// purchase-level rollups, truncated to limit.
func (w *Warehouse) TransactionRollups(ctx context.Context, userID string, limit int) ([]TransactionRollup, error) {
	items, err := w.ListItems(ctx, ListItemsParams{UserID: userID})
	if err != nil {
		return nil, err
	}
	rollups := RollupTransactions(items)
	if limit > 0 && len(rollups) > limit {
		rollups = rollups[:limit]
	}
	return rollups, nil
}

// CategoryWeekSummaries fetches the user's items since the given instant and
// summarises them per category and ISO week (UTC bucketing).
func (w *Warehouse) CategoryWeekSummaries(ctx context.Context, userID string, since time.Time) ([]CategoryWeekSummary, error) {
	items, err := w.ListItems(ctx, ListItemsParams{UserID: userID, Since: since})
	if err != nil {
		return nil, err
	}
	return SummarizeCategoryWeeks(items, time.UTC), nil
}
