package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetcost/rightsize/internal/api"
	"github.com/fleetcost/rightsize/internal/auth"
	"github.com/fleetcost/rightsize/internal/catalog"
	"github.com/fleetcost/rightsize/internal/config"
	"github.com/fleetcost/rightsize/internal/evaluation"
	"github.com/fleetcost/rightsize/internal/history"
	"github.com/fleetcost/rightsize/internal/metrics"
	"github.com/fleetcost/rightsize/internal/pipeline"
	"github.com/fleetcost/rightsize/internal/pricing"
	"github.com/fleetcost/rightsize/internal/ratelimit"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

const defaultJudgeURL = "https://generativelanguage.googleapis.com"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Rightsize API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns(), stat.AcquiredConns()
	})

	skuStore := catalog.NewStore(pool)
	skuService := catalog.NewService(skuStore)

	runStore := history.NewStore(pool)
	archiver := history.NewArchiver(runStore, cfg.History.BatchSize, cfg.History.FlushInterval)
	go archiver.Start(ctx)

	resolver := buildResolver(ctx, cfg, m, skuService)

	orch := pipeline.NewOrchestrator(
		pipeline.NewFilter(cfg.Pipeline.CPUThreshold, cfg.Pipeline.RAMThreshold),
		pipeline.NewSynthesizer(cfg.Pipeline.SafetyFloor),
		resolver,
		skuService,
		cfg.Pipeline.Workers,
		cfg.Pipeline.RunTimeout,
		cfg.Pricing.MaxCallsPerRun,
	)
	orch.SetMetrics(m)

	judgeURL := cfg.Evaluation.JudgeURL
	if judgeURL == "" {
		judgeURL = defaultJudgeURL
	}
	judge := evaluation.NewGeminiJudge(judgeURL, cfg.Evaluation.JudgeModel, cfg.Evaluation.APIKey, cfg.Evaluation.Timeout)
	evaluator := evaluation.New(judge, cfg.Evaluation.Threshold, cfg.Evaluation.ExpectedTools)

	limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)
	verifier := auth.NewVerifier(cfg.Auth.AdminKey)
	if !verifier.Enabled() {
		slog.Warn("no admin key configured, admin routes are open")
	}

	router := api.NewRouter(api.RouterDeps{
		SKUService: skuService,
		Runner:     orch,
		Recorder:   archiver,
		RunStore:   runStore,
		Evaluator:  evaluator,
		Limiter:    limiter,
		Verifier:   verifier,
		Metrics:    m,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	archiver.Stop()

	return srv.Shutdown(shutdownCtx)
}

// buildResolver picks live provider pricing when a search API key is
// configured, otherwise falls back to catalog list prices.
func buildResolver(ctx context.Context, cfg *config.Config, m *metrics.Metrics, skus *catalog.Service) pipeline.QuoteResolver {
	if cfg.Pricing.APIKey != "" {
		client := pricing.NewHTTPClient(cfg.Pricing.SearchURL, cfg.Pricing.APIKey, cfg.Pricing.RequestTimeout)
		r := pricing.NewResolver(client, cfg.Pricing.Region, cfg.Pricing.MaxRetries, cfg.Pricing.RetryBackoff, cfg.Pricing.CrawlTopResult)
		r.SetMetrics(m)
		return r
	}

	slog.Warn("no search api key configured, pricing from catalog list prices")
	prices := make(map[string]float64)
	index, err := skus.Index(ctx)
	if err != nil || len(index) == 0 {
		index = catalog.BuiltinIndex()
	}
	for name, spec := range index {
		prices[name] = spec.ListMonthly
	}
	return pricing.NewListResolver(prices)
}
