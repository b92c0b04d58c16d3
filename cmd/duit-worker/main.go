package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"duit/internal/amqp"
	"duit/internal/config"
	"duit/internal/export/google"
	applog "duit/internal/log"
	"duit/internal/storage"
	"duit/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	cfgLog := applog.DefaultConfig()
	cfgLog.Component = applog.ComponentWorker
	logger := applog.New(cfgLog)
	applog.SetDefault(logger)

	logger.Info("Starting duit-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.ExportSpreadsheetID == "" {
		logger.Error("EXPORT_SPREADSHEET_ID is required for the export worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := google.New(ctx, cfg.ExportSpreadsheetID, cfg.ExportSheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets sink", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets sink initialized",
		"spreadsheet_id", cfg.ExportSpreadsheetID,
		"sheet", cfg.ExportSheetName)

	exportWorker := worker.NewExportWorker(repo, sink, cfg.ExportBatchSize)

	// On startup, drain anything the event path missed while we were down.
	if err := exportWorker.StartupCheck(ctx); err != nil {
		logger.Error("Startup export check failed", "error", err)
		// Don't exit - the periodic pass retries
	}

	g, ctx := errgroup.WithContext(ctx)

	// Event consumer with reconnect
	g.Go(func() error {
		return amqp.ConsumeWithReconnect(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, func(event *amqp.LedgerEvent) error {
			return exportWorker.HandleLedgerEvent(ctx, event)
		})
	})

	// Periodic reconcile for missed events
	g.Go(func() error {
		ticker := time.NewTicker(cfg.ExportReconcileInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := exportWorker.ProcessPendingExports(ctx); err != nil {
					logger.Error("Periodic export pass failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
