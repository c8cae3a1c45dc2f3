package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"conti/internal/amqp"
	"conti/internal/config"
	"conti/internal/eventstore"
	"conti/internal/ledger"
	"conti/internal/log"
	"conti/internal/services"
	"conti/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentWorker})
	log.SetDefault(logger)

	logger.Info("Starting conti-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	store, err := eventstore.Open(cfg.EventBackend, cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize event store", log.FieldError, err, "backend", cfg.EventBackend)
		os.Exit(1)
	}

	svc := services.NewLedgerService(store, ledger.New(), nil)
	defer svc.Close()

	eventWorker := worker.NewEventWorker(svc, store, cfg.DriftSweepParallel)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Replay the durable history before consuming so sequence checks pick
	// up where the last run stopped.
	if cfg.ReconcileOnStart {
		logger.Info("Replaying stored event history...")
		if err := eventWorker.WarmStart(ctx); err != nil {
			logger.Error("Warm start failed", log.FieldError, err)
			os.Exit(1)
		}
	}

	go func() {
		if err := amqpClient.ConsumeEvents(ctx, eventWorker.HandleEvent); err != nil {
			if err != context.Canceled {
				logger.Error("Event consumption failed", log.FieldError, err)
			}
			cancel()
		}
	}()

	// Periodic drift sweep: rebuild every group from history, alert on
	// mismatches, snapshot the clean ones.
	ticker := time.NewTicker(cfg.DriftCheckInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := eventWorker.DriftSweep(ctx); err != nil {
					logger.Error("Drift sweep failed", log.FieldError, err)
				}
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout reached")
	case <-time.After(5 * time.Second):
		logger.Info("Worker shutdown complete")
	}
}
