package engine

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"spendlens/internal/money"
	"spendlens/internal/warehouse"
)

const (
	dealWindowDays   = 30
	dealMinPurchases = 2
)

var hundred = decimal.NewFromInt(100)

// SuggestDeals maps the user's recent merchants onto the static alternatives
// catalog. Only merchants in the configured category allow-list with at least
// two purchases in the window qualify.
func (a *Analyzer) SuggestDeals(ctx context.Context, userID string, limit int, asOf time.Time) ([]DealSuggestion, error) {
	if limit <= 0 {
		return []DealSuggestion{}, nil
	}
	asOf = effectiveNow(asOf)
	items, err := a.Items.ListItems(ctx, warehouse.ListItemsParams{
		UserID: userID,
		Since:  asOf.AddDate(0, 0, -dealWindowDays),
		Until:  asOf,
	})
	if err != nil {
		return nil, err
	}

	type merchantSpend struct {
		merchant  string
		total     decimal.Decimal
		purchases map[string]bool
		category  categoryMode
	}
	spend := make(map[string]*merchantSpend)
	for _, it := range items {
		if it.Merchant == "" {
			continue
		}
		s := spend[it.Merchant]
		if s == nil {
			s = &merchantSpend{merchant: it.Merchant, total: decimal.Zero, purchases: make(map[string]bool)}
			spend[it.Merchant] = s
		}
		s.total = s.total.Add(it.Amount())
		s.purchases[it.PurchaseID] = true
		s.category.observe(it.Category)
	}

	merchants := make([]string, 0, len(spend))
	for m := range spend {
		merchants = append(merchants, m)
	}
	sort.Strings(merchants)

	deals := make([]DealSuggestion, 0, len(merchants))
	for _, m := range merchants {
		s := spend[m]
		if len(s.purchases) < dealMinPurchases {
			continue
		}
		category := s.category.value()
		if !a.AllowedCategories[category] {
			continue
		}
		best, ok := a.Catalog.BestAlternative(m)
		if !ok {
			continue
		}

		monthly := money.Round(s.total)
		pct := decimal.NewFromFloat(best.SavingsPercent).Div(hundred)
		deals = append(deals, DealSuggestion{
			CurrentStore:         m,
			CurrentSpendingMonth: monthly,
			AlternativeStore:     best.Store,
			SavingsPercent:       best.SavingsPercent,
			MonthlySavings:       money.Round(s.total.Mul(pct)),
			PurchaseCount:        len(s.purchases),
			Category:             category,
			AllAlternatives:      a.Catalog.Alternatives(m),
		})
	}

	sort.SliceStable(deals, func(i, j int) bool {
		return deals[i].MonthlySavings.GreaterThan(deals[j].MonthlySavings)
	})
	if len(deals) > limit {
		deals = deals[:limit]
	}
	return deals, nil
}
