package warehouse

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive   = "active"
	StatusRefunded = "refunded"
	StatusReversed = "reversed"
)

const (
	NeedWantNeed  = "need"
	NeedWantWant  = "want"
	NeedWantUnset = "unset"
)

const (
	ChannelOnline = "online"
	ChannelLocal  = "local"
)

// Location is the buyer's coarse location. Latitude/longitude are never
// stored; ingestion strips them before rows reach the warehouse and nothing
// here reintroduces them.
type Location struct {
	City       string `json:"city"`
	State      string `json:"state"`
	Country    string `json:"country"`
	PostalCode string `json:"postal_code,omitempty"`
}

// PurchaseItem is one line of a receipt or order. Rows are append-only;
// after insert only status and user_needwant change.
type PurchaseItem struct {
	ItemID           string          `json:"item_id"`
	PurchaseID       string          `json:"purchase_id"`
	UserID           string          `json:"user_id"`
	Merchant         string          `json:"merchant"`
	ItemName         string          `json:"item_name"`
	Category         string          `json:"category"`
	Subcategory      string          `json:"subcategory,omitempty"`
	ItemText         string          `json:"item_text"`
	Price            decimal.Decimal `json:"price"`
	Qty              decimal.Decimal `json:"qty"`
	TS               time.Time       `json:"ts"`
	DetectedNeedWant string          `json:"detected_needwant"`
	UserNeedWant     string          `json:"user_needwant"`
	Confidence       float64         `json:"confidence"`
	BuyerLocation    Location        `json:"buyer_location"`
	ItemEmbed        []float32       `json:"item_embed,omitempty"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// EffectiveNeedWant is the user's label when set, else the classifier's.
func (p PurchaseItem) EffectiveNeedWant() string {
	if p.UserNeedWant == NeedWantNeed || p.UserNeedWant == NeedWantWant {
		return p.UserNeedWant
	}
	if p.DetectedNeedWant == NeedWantNeed || p.DetectedNeedWant == NeedWantWant {
		return p.DetectedNeedWant
	}
	return NeedWantUnset
}

// Amount is price × qty.
func (p PurchaseItem) Amount() decimal.Decimal {
	return p.Price.Mul(p.Qty)
}

// TransactionRollup is the purchase-level projection of item rows: one entry
// per purchase_id.
type TransactionRollup struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Merchant   string          `json:"merchant"`
	Amount     decimal.Decimal `json:"amount"`
	Category   string          `json:"category"`
	NeedOrWant string          `json:"need_or_want"`
	Confidence float64         `json:"confidence"`
	OccurredAt time.Time       `json:"occurred_at"`
	ItemText   string          `json:"item_text"`
	Embed      []float32       `json:"embed,omitempty"`
}

// CategoryWeekSummary aggregates one (user, category, subcategory, week).
type CategoryWeekSummary struct {
	UserID         string          `json:"user_id"`
	Category       string          `json:"category"`
	Subcategory    string          `json:"subcategory,omitempty"`
	WeekStart      Date            `json:"week_start"`
	Purchases      int             `json:"purchases"`
	Items          int             `json:"items"`
	TotalSpend     decimal.Decimal `json:"total_spend"`
	NeedSpend      decimal.Decimal `json:"need_spend"`
	WantSpend      decimal.Decimal `json:"want_spend"`
	MeanConfidence float64         `json:"mean_confidence"`
	UserLabeled    int             `json:"user_labeled"`
}

// Finding is one validated cheaper-substitute record inside a WeeklyReport.
type Finding struct {
	ItemName            string          `json:"item_name"`
	OriginalPrice       decimal.Decimal `json:"original_price"`
	OriginalMerchant    string          `json:"original_merchant"`
	AlternativeMerchant string          `json:"alternative_merchant"`
	AlternativePrice    decimal.Decimal `json:"alternative_price"`
	ShippingCost        decimal.Decimal `json:"shipping_cost"`
	TaxEstimate         decimal.Decimal `json:"tax_estimate"`
	TotalLandedCost     decimal.Decimal `json:"total_landed_cost"`
	TotalSavings        decimal.Decimal `json:"total_savings"`
	URL                 string          `json:"url"`
	Notes               string          `json:"notes"`
	Channel             string          `json:"channel"`
	Confidence          float64         `json:"confidence"`
}

// WeeklyReport is the stored output of one weekly-suggester run, unique per
// (user_id, week_start).
type WeeklyReport struct {
	ReportID              string          `json:"report_id"`
	UserID                string          `json:"user_id"`
	WeekStart             Date            `json:"week_start"`
	WeekEnd               Date            `json:"week_end"`
	Location              Location        `json:"location"`
	ItemsAnalyzed         int             `json:"items_analyzed"`
	ItemsWithAlternatives int             `json:"items_with_alternatives"`
	TotalSavings          decimal.Decimal `json:"total_savings"`
	Findings              []Finding       `json:"findings"`
	MCPCallsMade          int             `json:"mcp_calls_made"`
	ProcessingTimeMS      int64           `json:"processing_time_ms"`
	Notes                 string          `json:"notes,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}
