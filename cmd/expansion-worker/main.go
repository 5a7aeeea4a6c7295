package main

import (
	"context"
	"errors"
	"os"
	"time"

	"paycal/internal/amqp"
	"paycal/internal/backend"
	"paycal/internal/cli"
	"paycal/internal/config"
	applog "paycal/internal/log"
	"paycal/internal/services"
	gsheet "paycal/internal/sheets/google"
	"paycal/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	cfg := config.Load()
	logger, err := cli.SetupLogger(cfg, applog.ComponentWorker, os.Stdout)
	if err != nil {
		logger.Warn("Invalid logging configuration, using defaults", "error", err)
	}
	logger.Info("Starting expansion-worker")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the expansion worker")
		os.Exit(1)
	}
	if cfg.DataBackend != config.BackendSQLite {
		logger.Error("The expansion worker needs the shared sqlite backend", "backend", cfg.DataBackend)
		os.Exit(1)
	}

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	// The worker consumes template changes and never publishes them.
	backendCfg.Async = false
	be, err := backend.NewFactory(logger.WithComponent(applog.ComponentStorage).Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	defer be.Cleanup()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ledgerSvc := services.NewLedgerService(be.Store)
	processor := services.NewExpansionProcessor(ledgerSvc, services.ExpansionProcessorConfig{
		Interval:    cfg.ExpansionInterval,
		Concurrency: services.DefaultExpansionProcessorConfig().Concurrency,
	})

	var exporter *worker.ExportWorker
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		// The worker has no request traffic to amortize a projection cache.
		exporter = worker.NewExportWorker(services.NewCalendarService(ledgerSvc, nil, nil), client, cfg.DefaultUserID)
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Expansion processor shutdown error", "error", err)
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start expansion processor", "error", err)
		os.Exit(1)
	}

	if exporter != nil {
		// Catch up on changes made while the worker was down.
		if err := exporter.StartupExport(ctx); err != nil {
			logger.Error("Startup export failed", "error", err)
		}
	}

	handle := func(ctx context.Context, msg *amqp.TemplateChangedMessage) error {
		if err := processor.HandleTemplateChanged(ctx, msg); err != nil {
			return err
		}
		if exporter != nil {
			// Expansion already succeeded; a failed export is retried with
			// the next change rather than requeueing this one.
			if err := exporter.HandleTemplateChanged(ctx, msg); err != nil {
				logger.ErrorContext(ctx, "Calendar export failed",
					"error", err,
					applog.FieldUserID, msg.UserID)
			}
		}
		return nil
	}

	if err := amqpClient.ConsumeTemplateChanged(ctx, handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		_ = processor.Stop(context.Background())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("expansion-worker stopped")
}
