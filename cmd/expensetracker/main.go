package main

import (
	"context"
	"errors"
	"os"
	"time"

	"expensetracker/internal/backend"
	"expensetracker/internal/cache"
	"expensetracker/internal/cli"
	"expensetracker/internal/core"
	apphttp "expensetracker/internal/http"
	"expensetracker/internal/log"
	"expensetracker/internal/metrics"
	"expensetracker/internal/middleware/auth"
	"expensetracker/internal/services"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = 10 * time.Minute
)

func main() {
	cli.LoadEnvFile()

	bootstrap := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(bootstrap)
	logger := cli.SetupLogger(cfg.LogLevel)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	m := metrics.New()
	opts := []services.Option{
		services.WithLogger(logger.WithComponent(log.ComponentExpense)),
		services.WithRecorder(m),
	}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}

	cacheManager := cache.NewManager()
	if cfg.StatsCacheEnabled() {
		stats := cache.NewLRUCache[[]core.MonthlyStat](cfg.StatsCacheSize, cfg.StatsCacheTTL)
		cacheManager.Register(stats)
		cacheManager.StartCleanup(cacheCleanupInterval)
		opts = append(opts, services.WithStatsCache(stats))
	}

	svc := services.NewExpenseService(res.Store, opts...)
	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		UploadMaxBytes:     cfg.UploadMaxBytes,
		BulkMaxRows:        cfg.BulkMaxRows,
		DefaultPageSize:    cfg.DefaultPageSize,
		MaxPageSize:        cfg.MaxPageSize,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	}, svc, auth.New(cfg.JWTSecret), m, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	logger.Info("Starting expense tracker",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", res.Publisher != nil,
		"stats_cache", cfg.StatsCacheEnabled())

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server error", "error", err, "port", cfg.Port)
		}
		stop()
	case <-ctx.Done():
	}

	err = cli.GracefulShutdown(ctx, logger, shutdownTimeout, func(shutdownCtx context.Context) error {
		errs := []error{srv.Shutdown(shutdownCtx)}
		cacheManager.Stop()
		errs = append(errs, res.Cleanup())
		return errors.Join(errs...)
	})
	if err != nil {
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
