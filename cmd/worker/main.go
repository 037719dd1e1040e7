// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flash-sale/internal/app"
	"flash-sale/internal/config"
	"flash-sale/internal/logging"
	"flash-sale/internal/scheduler"
	"flash-sale/internal/tracing"
)

// metricsAddr is where the worker exposes /metrics.
const metricsAddr = ":9091"

func main() {
	// 1. Init config, logger, tracer
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Queue.Backend != "redis" {
		log.Fatalf("worker needs queue.backend=redis, got %q", cfg.Queue.Backend)
	}

	logger, syncLogs, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = syncLogs() }()
	logger = logger.With("app", "flash-sale-worker", "consumer", cfg.Worker.Consumer)

	tracerShutdown, err := tracing.Init(cfg.Tracing)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// 2. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel)

	// 3. Connect stores
	infra, err := app.Open(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize infrastructure", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Error("failed to close infrastructure", "error", err)
		}
	}()

	processor := infra.Processor()
	logger.Info("starting order worker", "consumers", processor.Consumers(), "stream", cfg.Queue.Stream, "group", cfg.Queue.Group)

	// 4. Claim the consumer names so a second worker with the same config refuses to start
	registry := infra.Registry()
	regCtx, regCancel := context.WithTimeout(rootCtx, 5*time.Second)
	err = registry.Register(regCtx, cfg.Queue.Stream, processor.Consumers())
	regCancel()
	if err != nil {
		logger.Error("failed to register consumers", "error", err)
		os.Exit(1)
	}
	defer func() {
		deregCtx, deregCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer deregCancel()
		if err := registry.Deregister(deregCtx); err != nil {
			logger.Error("failed to deregister consumers", "error", err)
		}
	}()

	// 5. Periodic recovery sweep on top of the one every consumer runs at startup
	cronScheduler := scheduler.NewCronScheduler(logger)
	if err := cronScheduler.AddTask("pending-sweep", cfg.Worker.SweepSpec, processor.Sweep); err != nil {
		logger.Error("failed to schedule pending sweep", "error", err)
		os.Exit(1)
	}
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := cronScheduler.Start(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("cron scheduler stopped with error", "error", err)
		}
	}()

	// 6. Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	// 7. Consume until shutdown
	if err := processor.Run(rootCtx); err != nil {
		logger.Error("order processor stopped with error", "error", err)
		cancel()
	}
	<-rootCtx.Done()
	logger.Info("shutting down worker gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}
	<-schedulerDone

	logger.Info("worker shut down")
}

func setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v. Initiating graceful shutdown...", sig)
		cancel()
	}()
}
