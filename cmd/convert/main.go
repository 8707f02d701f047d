package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/icon-grid-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/icon-grid-etl/internal/adapter/kafka"
	"github.com/couchcryptid/icon-grid-etl/internal/config"
	"github.com/couchcryptid/icon-grid-etl/internal/convert"
	"github.com/couchcryptid/icon-grid-etl/internal/lock"
	"github.com/couchcryptid/icon-grid-etl/internal/observability"
	"github.com/couchcryptid/icon-grid-etl/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		logger.Error("failed to create working directory", "dir", cfg.WorkDir, "error", err)
		os.Exit(1)
	}

	// A second instance converting the same directory would race on file
	// deletion, so the working directory is exclusively locked.
	dirLock, err := lock.Acquire(cfg.WorkDir)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			logger.Info("another converter holds the working directory, exiting")
			return
		}
		logger.Error("failed to lock working directory", "error", err)
		os.Exit(1)
	}
	defer dirLock.Release() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	persistWorkers := runtime.NumCPU() / 3
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, persistWorkers, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Summary publishing is feature-flagged via KAFKA_BROKERS.
	var publisher convert.Publisher
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaSummaryTopic, logger)
		defer writer.Close() //nolint:errcheck
		publisher = writer
		logger.Info("kafka summary publishing enabled", "topic", cfg.KafkaSummaryTopic)
	} else {
		logger.Info("kafka summary publishing disabled")
	}

	converter := convert.NewConverter(convert.Config{
		Directory:          cfg.WorkDir,
		Timesteps:          cfg.Timesteps,
		FaultTolerance:     cfg.FaultTolerance,
		InterpolationRatio: cfg.InterpolationRatio,
		MissingValue:       cfg.MissingValue,
		DecoderPath:        cfg.DecoderPath,
		DeleteAfterConvert: cfg.DeleteAfterConvert,
		Bounds:             cfg.Bounds,
		From:               cfg.ConvertFrom,
		Until:              cfg.ConvertUntil,
	}, db, logger, metrics, clockwork.NewRealClock(), publisher)

	srv := httpadapter.NewServer(cfg.HTTPAddr, converter, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start conversion. A finished window stops the process; the next cron
	// or scheduler invocation picks up newly downloaded runs.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := converter.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("conversion error", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
	case <-done:
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
