package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"paycal/internal/backend"
	"paycal/internal/cache"
	"paycal/internal/cli"
	"paycal/internal/config"
	apphttp "paycal/internal/http"
	applog "paycal/internal/log"
	"paycal/internal/metrics"
	"paycal/internal/middleware/ratelimit"
	"paycal/internal/services"
	gsheet "paycal/internal/sheets/google"
	"paycal/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := config.Load()
	logger, err := cli.SetupLogger(cfg, applog.ComponentApp, os.Stdout)
	if err != nil {
		logger.Warn("Invalid logging configuration, using defaults", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	be, err := backend.NewFactory(logger.WithComponent(applog.ComponentStorage).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	ledgerOpts := []services.LedgerOption{services.WithMetrics(m)}
	if be.Publisher != nil {
		ledgerOpts = append(ledgerOpts, services.WithPublisher(be.Publisher))
	}
	ledgerSvc := services.NewLedgerService(be.Store, ledgerOpts...)

	projections := cache.NewLRUCache[services.Projection](cfg.ProjectionCacheSize, cfg.ProjectionCacheTTL)
	calendar := services.NewCalendarService(ledgerSvc, projections, m)
	ledgerSvc.OnChange(calendar.Invalidate)

	cacheManager := cache.NewManager()
	cacheManager.Register(projections)
	cacheManager.OnSweep(m.CacheSwept)
	cacheManager.Start(ctx, max(cfg.ProjectionCacheTTL, time.Minute))

	// Inline mode rolls templates into the new year here; async mode leaves
	// that to the expansion worker.
	var processor *services.ExpansionProcessor
	if be.Publisher == nil {
		processor = services.NewExpansionProcessor(ledgerSvc, services.ExpansionProcessorConfig{
			Interval:    cfg.ExpansionInterval,
			Concurrency: services.DefaultExpansionProcessorConfig().Concurrency,
		})
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start expansion processor", "error", err)
		}
	}

	var exporter *worker.ExportWorker
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = worker.NewExportWorker(calendar, client, cfg.DefaultUserID)
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:        ledgerSvc,
		Calendar:      calendar,
		Preferences:   services.NewPreferencesService(be.Store),
		Exporter:      exporter,
		Metrics:       m,
		Logger:        logger.WithComponent(applog.ComponentHTTP),
		DefaultUserID: cfg.DefaultUserID,
		Ready:         be.Ready,
		RateLimit:     ratelimit.DefaultConfig(),
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Expansion processor shutdown error", "error", err)
			}
		}
		cacheManager.Stop()
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting paycal server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"expansion_mode", cfg.ExpansionMode,
		"metrics", cfg.MetricsEnabled)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
