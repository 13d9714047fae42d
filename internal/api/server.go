// Package api is the HTTP/SSE facade over the analytics engines. It owns
// parameter validation and the mapping from error kinds to HTTP statuses;
// engines and stores never see raw request input.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/cors"

	"spendlens/internal/config"
	"spendlens/internal/engine"
	"spendlens/internal/fault"
	"spendlens/internal/suggest"
	"spendlens/internal/warehouse"
)

// Store is the warehouse surface the facade reads and writes.
type Store interface {
	Ping(ctx context.Context) error
	TransactionRollups(ctx context.Context, userID string, limit int) ([]warehouse.TransactionRollup, error)
	CategoryWeekSummaries(ctx context.Context, userID string, since time.Time) ([]warehouse.CategoryWeekSummary, error)
	SearchItems(ctx context.Context, userID, query string, limit int) ([]warehouse.PurchaseItem, error)
	SetUserNeedWant(ctx context.Context, userID, itemID, label string) error
	GetReport(ctx context.Context, userID string, week warehouse.Date) (*warehouse.WeeklyReport, error)
	ListReportHistory(ctx context.Context, userID string, limit int) ([]warehouse.WeeklyReport, error)
}

// Server connects the warehouse, the analytics engines, and the weekly
// suggester to the REST/SSE surface.
type Server struct {
	cfg      *config.Config
	store    Store
	analyzer *engine.Analyzer
	pipeline *suggest.Pipeline
	version  string
	started  time.Time

	rollups *rollupCache
}

// NewServer creates a Server over the given dependencies.
func NewServer(cfg *config.Config, store Store, analyzer *engine.Analyzer, pipeline *suggest.Pipeline, version string) *Server {
	return &Server{
		cfg:      cfg,
		store:    store,
		analyzer: analyzer,
		pipeline: pipeline,
		version:  version,
		started:  time.Now(),
		rollups:  newRollupCache(),
	}
}

// Handler returns the HTTP handler with all API routes and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/user/{user_id}/transactions", s.handleTransactions)
	mux.HandleFunc("GET /api/user/{user_id}/categories/summary", s.handleCategorySummary)
	mux.HandleFunc("GET /api/user/{user_id}/search", s.handleSearch)
	mux.HandleFunc("POST /api/user/{user_id}/items/{item_id}/needwant", s.handleNeedWant)
	mux.HandleFunc("GET /api/predict", s.handlePredict)
	mux.HandleFunc("GET /api/smart-tips", s.handleSmartTips)
	mux.HandleFunc("GET /api/better-deals", s.handleBetterDeals)
	mux.HandleFunc("GET /api/user/{user_id}/weekly_alternatives", s.handleWeeklyReport)
	mux.HandleFunc("GET /api/user/{user_id}/weekly_alternatives/history", s.handleWeeklyHistory)
	mux.HandleFunc("GET /api/user/{user_id}/weekly_alternatives/stream", s.handleWeeklyStream)

	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(mux)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind fault.Kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": string(kind), "message": msg})
}

// writeFault maps an engine/store error onto the response. Cancelled means
// the client is gone, so nothing is written.
func writeFault(w http.ResponseWriter, r *http.Request, err error) {
	kind := fault.KindOf(err)
	if kind == fault.Cancelled {
		return
	}
	status := statusOf(kind)
	if status >= 500 {
		log.Printf("[API] %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	msg := err.Error()
	if kind == fault.Internal {
		msg = "internal error"
	}
	writeError(w, status, kind, msg)
}

func statusOf(kind fault.Kind) int {
	switch kind {
	case fault.BadRequest:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.CapabilityQuota:
		return http.StatusTooManyRequests
	case fault.Timeout, fault.CapabilityUnavailable:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// limitParam reads ?limit= and enforces [1, max]; absent means def.
func limitParam(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fault.New(fault.BadRequest, "limit %q is not an integer", raw)
	}
	if n < 1 || n > max {
		return 0, fault.New(fault.BadRequest, "limit must be in [1, %d], got %d", max, n)
	}
	return n, nil
}

// weekParam reads ?week= as an ISO-week Monday; zero Date when absent.
func weekParam(r *http.Request) (warehouse.Date, error) {
	raw := r.URL.Query().Get("week")
	if raw == "" {
		return warehouse.Date{}, nil
	}
	week, err := warehouse.ParseWeek(raw)
	if err != nil {
		return warehouse.Date{}, fault.Wrap(fault.BadRequest, err, "invalid week")
	}
	return week, nil
}

func userIDQuery(r *http.Request) (string, error) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		return "", fault.New(fault.BadRequest, "user_id is required")
	}
	return userID, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	store := "connected"
	if err := s.store.Ping(ctx); err != nil {
		store = "degraded"
		log.Printf("[API] health ping failed: %v", err)
	}
	writeJSON(w, map[string]any{
		"ok":       true,
		"store":    store,
		"version":  s.version,
		"uptime_s": int64(time.Since(s.started).Seconds()),
	})
}

// emptyIfNil keeps list endpoints returning [] instead of null.
func emptyIfNil[T any](xs []T) []T {
	if xs == nil {
		return []T{}
	}
	return xs
}
