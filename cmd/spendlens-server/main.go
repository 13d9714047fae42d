package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"spendlens/internal/api"
	"spendlens/internal/config"
	"spendlens/internal/engine"
	"spendlens/internal/logger"
	"spendlens/internal/suggest"
	"spendlens/internal/warehouse"
	"spendlens/internal/websearch"
)

var version = "dev"

func main() {
	addr := flag.String("addr", "", "listen address (overrides SPENDLENS_ADDR)")
	flag.Parse()

	logger.Banner(version)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	ctx := context.Background()

	logger.Section("Warehouse")
	logger.Stats("query timeout", cfg.WarehouseTimeout())
	wh, err := warehouse.Open(ctx, cfg.WarehouseDSN, cfg.WarehouseTimeout())
	if err != nil {
		logger.Error("WAREHOUSE", fmt.Sprintf("Open failed: %v", err))
		os.Exit(1)
	}
	defer wh.Close()

	logger.Section("Engines")
	catalog := engine.DefaultCatalog()
	analyzer := engine.NewAnalyzer(wh, catalog, cfg.DealsAllowedCategories)
	logger.Stats("catalog", catalog.Version)
	logger.Stats("deal categories", cfg.DealsAllowedCategories)

	logger.Section("Web search")
	if cfg.SearchAPIKey == "" {
		logger.Warn("SEARCH", "SEARCH_API_KEY is empty; weekly alternatives will fail")
	}
	search := websearch.NewClient(websearch.Options{
		APIKey:     cfg.SearchAPIKey,
		BaseURL:    cfg.SearchBaseURL,
		Model:      cfg.SearchModel,
		RatePerMin: cfg.SearchRatePerMin,
		Timeout:    cfg.SearchTimeout(),
	})
	logger.Stats("model", cfg.SearchModel)
	logger.Stats("rate", fmt.Sprintf("%d/min", cfg.SearchRatePerMin))

	pipeline := suggest.NewPipeline(wh, wh, search, suggest.Params{
		TopN:        cfg.WeeklyTopN,
		MinSavings:  cfg.WeeklyMinSavingsUSD,
		MaxFindings: cfg.SearchMaxFindings,
	})

	srv := api.NewServer(cfg, wh, analyzer, pipeline, version)

	logger.Server(cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, srv.Handler()); err != nil {
		logger.Error("Server", fmt.Sprintf("Failed: %v", err))
		os.Exit(1)
	}
}
