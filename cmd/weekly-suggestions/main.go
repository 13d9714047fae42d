package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"spendlens/internal/config"
	"spendlens/internal/jobstore"
	"spendlens/internal/logger"
	"spendlens/internal/suggest"
	"spendlens/internal/warehouse"
	"spendlens/internal/websearch"
)

var version = "dev"

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	weekFlag := flag.String("week", "", "ISO week start YYYY-MM-DD (Monday); default last completed week")
	userFlag := flag.String("user", "", "restrict the run to one user")
	dryRun := flag.Bool("dry-run", false, "analyze without persisting reports")
	concurrency := flag.Int("concurrency", 0, "parallel users (overrides CONCURRENCY_USERS)")
	logFile := flag.String("log-file", "", "also write the JSON job log to this path")
	flag.Parse()

	logger.Banner(version)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
		return exitConfig
	}
	if *concurrency > 0 {
		cfg.ConcurrencyUsers = *concurrency
	}

	var week warehouse.Date
	if *weekFlag != "" {
		if week, err = warehouse.ParseWeek(*weekFlag); err != nil {
			logger.Error("CONFIG", fmt.Sprintf("--week: %v", err))
			return exitConfig
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Section("Warehouse")
	wh, err := warehouse.Open(ctx, cfg.WarehouseDSN, cfg.WarehouseTimeout())
	if err != nil {
		logger.Error("WAREHOUSE", fmt.Sprintf("Open failed: %v", err))
		return exitFailed
	}
	defer wh.Close()

	logger.Section("Job store")
	jobs, err := jobstore.Open(cfg.JobstorePath)
	if err != nil {
		logger.Error("JOBS", fmt.Sprintf("Open failed: %v", err))
		return exitFailed
	}
	defer jobs.Close()
	if n, err := jobs.ReapExpiredLeases(ctx); err == nil && n > 0 {
		logger.Info("JOBS", fmt.Sprintf("Reaped %d expired leases", n))
	}

	search := websearch.NewClient(websearch.Options{
		APIKey:     cfg.SearchAPIKey,
		BaseURL:    cfg.SearchBaseURL,
		Model:      cfg.SearchModel,
		RatePerMin: cfg.SearchRatePerMin,
		Timeout:    cfg.SearchTimeout(),
	})
	pipeline := suggest.NewPipeline(wh, wh, search, suggest.Params{
		TopN:        cfg.WeeklyTopN,
		MinSavings:  cfg.WeeklyMinSavingsUSD,
		MaxFindings: cfg.SearchMaxFindings,
	})

	jobID := uuid.NewString()
	batch := &suggest.Batch{
		Pipeline:    pipeline,
		Leases:      jobs,
		Holder:      jobID,
		Concurrency: cfg.ConcurrencyUsers,
	}

	logger.Section("Run")
	logger.Stats("job", jobID)
	if *dryRun {
		logger.Stats("mode", "dry-run")
	}
	if *userFlag != "" {
		logger.Stats("user", *userFlag)
	}

	jl, err := batch.Run(ctx, week, *userFlag, *dryRun)
	if err != nil {
		logger.Error("JOB", fmt.Sprintf("Run failed: %v", err))
		return exitFailed
	}

	// Bookkeeping failures do not fail a finished run.
	if err := jobs.RecordRun(context.WithoutCancel(ctx), jobID, jl); err != nil {
		logger.Warn("JOBS", fmt.Sprintf("Record run: %v", err))
	}

	logger.Section("Results")
	logger.Stats("week", jl.WeekStart)
	logger.Stats("users", jl.TotalUsers)
	logger.Stats("successful", jl.Successful)
	logger.Stats("failed", jl.Failed)
	logger.Stats("skipped", jl.Skipped)
	logger.Stats("alternatives", jl.AlternativesFound)
	logger.Stats("savings", "$"+jl.TotalSavings.StringFixed(2))
	logger.Stats("duration", fmt.Sprintf("%dms", jl.ProcessingTimeMS))

	payload, err := json.MarshalIndent(jl, "", "  ")
	if err != nil {
		logger.Error("JOB", fmt.Sprintf("Encode job log: %v", err))
		return exitFailed
	}
	fmt.Println(string(payload))
	if *logFile != "" {
		if err := os.WriteFile(*logFile, append(payload, '\n'), 0o644); err != nil {
			logger.Warn("JOB", fmt.Sprintf("Write %s: %v", *logFile, err))
		}
	}

	if jl.Failed > 0 {
		return exitFailed
	}
	return exitOK
}
