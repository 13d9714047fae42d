// Package engine derives behavioural signals from purchase history: next
// purchase predictions, savings tips, and cheaper-merchant suggestions. The
// engines fail fast on store errors; retry policy belongs to callers.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"spendlens/internal/warehouse"
)

// ItemSource is the slice of the warehouse the engines read.
type ItemSource interface {
	ListItems(ctx context.Context, p warehouse.ListItemsParams) ([]warehouse.PurchaseItem, error)
}

// Analyzer bundles the three read-only engines behind one dependency set.
type Analyzer struct {
	Items             ItemSource
	Catalog           *Catalog
	AllowedCategories map[string]bool
}

// NewAnalyzer wires the engines. allowedCategories scopes deal suggestions.
func NewAnalyzer(items ItemSource, catalog *Catalog, allowedCategories []string) *Analyzer {
	allowed := make(map[string]bool, len(allowedCategories))
	for _, c := range allowedCategories {
		allowed[c] = true
	}
	return &Analyzer{Items: items, Catalog: catalog, AllowedCategories: allowed}
}

// Prediction forecasts the next occurrence of a recurring item.
type Prediction struct {
	Item            string    `json:"item"`
	Category        string    `json:"category"`
	NextTime        time.Time `json:"next_time"`
	LastTime        time.Time `json:"last_time"`
	AvgIntervalDays float64   `json:"avg_interval_days"`
	Samples         int       `json:"samples"`
	Confidence      float64   `json:"confidence"`
}

// Tip is one actionable savings recommendation.
type Tip struct {
	Icon           string          `json:"icon"`
	Title          string          `json:"title"`
	Subtitle       string          `json:"subtitle"`
	Description    string          `json:"description"`
	MonthlySavings decimal.Decimal `json:"monthly_savings"`
	ActionTag      string          `json:"action_tag"`
	Category       string          `json:"category"`
}

// DealSuggestion proposes a cheaper merchant for an existing habit.
type DealSuggestion struct {
	CurrentStore         string          `json:"current_store"`
	CurrentSpendingMonth decimal.Decimal `json:"current_spending_month"`
	AlternativeStore     string          `json:"alternative_store"`
	SavingsPercent       float64         `json:"savings_percent"`
	MonthlySavings       decimal.Decimal `json:"monthly_savings"`
	PurchaseCount        int             `json:"purchase_count"`
	Category             string          `json:"category"`
	AllAlternatives      []Alternative   `json:"all_alternatives"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// monthlyFromWindow projects a windowed total onto a 30-day figure.
func monthlyFromWindow(total decimal.Decimal, windowDays int) decimal.Decimal {
	if windowDays <= 0 {
		return decimal.Zero
	}
	return total.Mul(decimal.NewFromInt(30)).Div(decimal.NewFromInt(int64(windowDays)))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// effectiveNow defaults a zero as-of instant to the current UTC time.
func effectiveNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
