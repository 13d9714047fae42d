// Package config holds the runtime settings for both spendlens binaries.
// Defaults come from Default(); FromEnv applies environment overrides on top,
// reading a .env file from the working directory first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"spendlens/internal/money"
)

type Config struct {
	Addr string `json:"addr"`

	WarehouseDSN           string `json:"warehouse_dsn"`
	WarehouseQueryTimeoutS int    `json:"warehouse_query_timeout_s"`

	JobstorePath string `json:"jobstore_path"`

	SearchAPIKey      string `json:"-"`
	SearchBaseURL     string `json:"search_base_url,omitempty"`
	SearchModel       string `json:"search_model"`
	SearchMaxFindings int    `json:"search_max_findings"`
	SearchTimeoutS    int    `json:"search_timeout_s"`
	SearchRatePerMin  int    `json:"search_rate_per_min"`

	DealsAllowedCategories []string `json:"deals_allowed_categories"`

	WeeklyTopN          int             `json:"weekly_top_n"`
	WeeklyMinSavingsUSD decimal.Decimal `json:"weekly_min_savings_usd"`
	StreamTimeoutS      int             `json:"stream_timeout_s"`
	ConcurrencyUsers    int             `json:"concurrency_users"`

	CORSAllowOrigins []string `json:"cors_allow_origins"`
}

// Default returns a Config with the reference defaults.
func Default() *Config {
	return &Config{
		Addr:                   "127.0.0.1:8090",
		WarehouseDSN:           "postgres://localhost:5432/spendlens",
		WarehouseQueryTimeoutS: 15,
		JobstorePath:           "data/spendlens-jobs.db",
		SearchModel:            "gpt-4o-mini",
		SearchMaxFindings:      20,
		SearchTimeoutS:         30,
		SearchRatePerMin:       30,
		DealsAllowedCategories: []string{"Groceries"},
		WeeklyTopN:             5,
		WeeklyMinSavingsUSD:    decimal.RequireFromString("10.00"),
		StreamTimeoutS:         60,
		ConcurrencyUsers:       10,
		CORSAllowOrigins:       []string{"http://localhost:5173", "http://localhost:3000"},
	}
}

// FromEnv loads .env (if present) and applies environment overrides to the
// defaults. Malformed values fail the load rather than being silently
// defaulted; the CLI maps that to a configuration-error exit.
func FromEnv() (*Config, error) {
	godotenv.Load()

	cfg := Default()
	cfg.Addr = envOrDefault("SPENDLENS_ADDR", cfg.Addr)
	cfg.WarehouseDSN = envOrDefault("WAREHOUSE_DSN", cfg.WarehouseDSN)
	cfg.JobstorePath = envOrDefault("JOBSTORE_PATH", cfg.JobstorePath)
	cfg.SearchAPIKey = envOrDefault("SEARCH_API_KEY", cfg.SearchAPIKey)
	cfg.SearchBaseURL = envOrDefault("SEARCH_BASE_URL", cfg.SearchBaseURL)
	cfg.SearchModel = envOrDefault("SEARCH_MODEL", cfg.SearchModel)

	var err error
	if cfg.WarehouseQueryTimeoutS, err = envInt("WAREHOUSE_QUERY_TIMEOUT_S", cfg.WarehouseQueryTimeoutS); err != nil {
		return nil, err
	}
	if cfg.SearchMaxFindings, err = envInt("SEARCH_MAX_FINDINGS", cfg.SearchMaxFindings); err != nil {
		return nil, err
	}
	if cfg.SearchTimeoutS, err = envInt("SEARCH_TIMEOUT_S", cfg.SearchTimeoutS); err != nil {
		return nil, err
	}
	if cfg.SearchRatePerMin, err = envInt("SEARCH_RATE_PER_MIN", cfg.SearchRatePerMin); err != nil {
		return nil, err
	}
	if cfg.WeeklyTopN, err = envInt("WEEKLY_TOP_N", cfg.WeeklyTopN); err != nil {
		return nil, err
	}
	if cfg.StreamTimeoutS, err = envInt("STREAM_TIMEOUT_S", cfg.StreamTimeoutS); err != nil {
		return nil, err
	}
	if cfg.ConcurrencyUsers, err = envInt("CONCURRENCY_USERS", cfg.ConcurrencyUsers); err != nil {
		return nil, err
	}

	if v := os.Getenv("WEEKLY_MIN_SAVINGS_USD"); v != "" {
		if cfg.WeeklyMinSavingsUSD, err = money.Parse(v); err != nil {
			return nil, fmt.Errorf("WEEKLY_MIN_SAVINGS_USD: %w", err)
		}
	}
	if v := os.Getenv("DEALS_ALLOWED_CATEGORIES"); v != "" {
		cfg.DealsAllowedCategories = splitList(v)
	}
	if v := os.Getenv("CORS_ALLOW_ORIGINS"); v != "" {
		cfg.CORSAllowOrigins = splitList(v)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("SPENDLENS_ADDR must not be empty")
	}
	if c.WeeklyTopN < 1 {
		return fmt.Errorf("WEEKLY_TOP_N must be >= 1, got %d", c.WeeklyTopN)
	}
	if c.ConcurrencyUsers < 1 {
		return fmt.Errorf("CONCURRENCY_USERS must be >= 1, got %d", c.ConcurrencyUsers)
	}
	if c.SearchMaxFindings < 1 {
		return fmt.Errorf("SEARCH_MAX_FINDINGS must be >= 1, got %d", c.SearchMaxFindings)
	}
	if c.WeeklyMinSavingsUSD.IsNegative() {
		return fmt.Errorf("WEEKLY_MIN_SAVINGS_USD must be >= 0")
	}
	return nil
}

func (c *Config) WarehouseTimeout() time.Duration {
	return time.Duration(c.WarehouseQueryTimeoutS) * time.Second
}

func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutS) * time.Second
}

func (c *Config) StreamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutS) * time.Second
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
