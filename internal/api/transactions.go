package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"spendlens/internal/fault"
	"spendlens/internal/warehouse"
)

const maxTransactionLimit = 100

// transactionView is the wire shape of one purchase-level rollup.
type transactionView struct {
	ID       string          `json:"id"`
	Item     string          `json:"item"`
	Amount   decimal.Decimal `json:"amount"`
	Date     time.Time       `json:"date"`
	Category string          `json:"category"`
	Merchant string          `json:"merchant,omitempty"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	limit, err := limitParam(r, 20, maxTransactionLimit)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	// The cache holds the full window; slicing per request keeps one entry
	// per user regardless of the limit asked for.
	rollups, err := s.rollups.get(r.Context(), userID, func(ctx context.Context) ([]warehouse.TransactionRollup, error) {
		return s.store.TransactionRollups(ctx, userID, maxTransactionLimit)
	})
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if len(rollups) > limit {
		rollups = rollups[:limit]
	}

	views := make([]transactionView, 0, len(rollups))
	for _, t := range rollups {
		views = append(views, transactionView{
			ID:       t.ID,
			Item:     t.ItemText,
			Amount:   t.Amount,
			Date:     t.OccurredAt,
			Category: t.Category,
		})
	}
	writeJSON(w, views)
}

func (s *Server) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	weeks := 4
	if raw := r.URL.Query().Get("weeks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeFault(w, r, fault.New(fault.BadRequest, "weeks %q is not an integer", raw))
			return
		}
		if n < 1 || n > 12 {
			writeFault(w, r, fault.New(fault.BadRequest, "weeks must be in [1, 12], got %d", n))
			return
		}
		weeks = n
	}

	since := warehouse.WeekStartOf(time.Now().UTC(), time.UTC).AddDays(-7 * (weeks - 1))
	summaries, err := s.store.CategoryWeekSummaries(r.Context(), userID, since.Time())
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, emptyIfNil(summaries))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	query := r.URL.Query().Get("q")
	if query == "" {
		writeFault(w, r, fault.New(fault.BadRequest, "q is required"))
		return
	}
	if len(query) > 200 {
		writeFault(w, r, fault.New(fault.BadRequest, "q exceeds 200 characters"))
		return
	}
	limit, err := limitParam(r, 10, 50)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	items, err := s.store.SearchItems(r.Context(), userID, query, limit)
	if err != nil {
		writeFault(w, r, err)
		return
	}

	views := make([]transactionView, 0, len(items))
	for _, it := range items {
		views = append(views, transactionView{
			ID:       it.ItemID,
			Item:     it.ItemName,
			Amount:   it.Amount().RoundBank(2),
			Date:     it.TS,
			Category: it.Category,
			Merchant: it.Merchant,
		})
	}
	writeJSON(w, views)
}

func (s *Server) handleNeedWant(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	itemID := r.PathValue("item_id")

	var body struct {
		Label string `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFault(w, r, fault.Wrap(fault.BadRequest, err, "invalid json body"))
		return
	}

	if err := s.store.SetUserNeedWant(r.Context(), userID, itemID, body.Label); err != nil {
		writeFault(w, r, err)
		return
	}
	s.rollups.invalidate(userID)
	writeJSON(w, map[string]bool{"ok": true})
}
