package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/gabellehq/gabelle/internal/alert"
	"github.com/gabellehq/gabelle/internal/api"
	"github.com/gabellehq/gabelle/internal/budget"
	"github.com/gabellehq/gabelle/internal/business"
	"github.com/gabellehq/gabelle/internal/cache"
	"github.com/gabellehq/gabelle/internal/config"
	"github.com/gabellehq/gabelle/internal/metering"
	"github.com/gabellehq/gabelle/internal/metrics"
	"github.com/gabellehq/gabelle/internal/ratelimit"
	"github.com/gabellehq/gabelle/internal/report"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Gabelle metering server",
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
	m.RegisterDBPool(func() (total, idle, acquired int32) {
		s := pool.Stat()
		return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
	})

	meterStore := metering.NewStore(pool)
	accumulator := metering.NewAccumulator(meterStore, cfg.Ingest.BatchSize, cfg.Ingest.FlushInterval)
	go accumulator.Start(ctx)

	businessStore := business.NewStore(pool)
	budgetStore := budget.NewStore(pool)
	evaluator := budget.NewEvaluator(budgetStore, meterStore)
	assembler := report.NewAssembler(meterStore, evaluator, businessStore, logger)

	var reportCache *cache.ReportCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable, report caching disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			reportCache = cache.New(rdb, cfg.Redis.ReportTTL)
			slog.Info("report cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.ReportTTL)
		}
		defer rdb.Close()
	}

	var sweeper *alert.Sweeper
	if cfg.Sweep.Enabled {
		sweeper = alert.NewSweeper(budgetStore, evaluator, m, cfg.Sweep.Schedule, logger)
		if err := sweeper.Start(); err != nil {
			return err
		}
		slog.Info("budget sweep scheduled", "schedule", cfg.Sweep.Schedule)
	}

	limiter := ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window)

	router := api.NewRouter(api.RouterDeps{
		Reports:          assembler,
		Recorder:         accumulator,
		Budgets:          budgetStore,
		Businesses:       businessStore,
		Cache:            reportCache,
		Metrics:          m,
		Limiter:          limiter,
		AdminKeyHash:     cfg.Auth.AdminKeyHash,
		ServiceKeyHashes: cfg.Auth.ServiceKeyHashes,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		Pinger:           pool,
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

	if sweeper != nil {
		sweeper.Stop()
	}
	// Final flush so buffered deltas reach the store before the pool closes.
	accumulator.Stop()

	return srv.Shutdown(shutdownCtx)
}
