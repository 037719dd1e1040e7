// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"flash-sale/internal/app"
	http_api "flash-sale/internal/api/http"
	"flash-sale/internal/config"
	"flash-sale/internal/domain"
	"flash-sale/internal/logging"
	"flash-sale/internal/scheduler"
	"flash-sale/internal/tracing"
	"flash-sale/internal/usecase"
)

// corsMiddleware wraps an http.Handler with CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // For local dev, allow all origins
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-User-ID, Authorization")

		// Handle pre-flight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Initialize logger and tracer
	logger, syncLogs, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = syncLogs() }()
	logger = logger.With("app", "flash-sale-api")

	tracerShutdown, err := tracing.Init(cfg.Tracing)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tracerShutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", "error", err)
		}
	}()

	logger.Info("starting flash-sale api", "listen_addr", cfg.HTTP.ListenAddr, "queue_backend", cfg.Queue.Backend)

	// 3. Create root context for lifecycle management
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel)

	// 4. Connect stores
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

	// 5. Instantiate services and handlers
	seckillService := infra.SeckillService()
	shopService, cacheClient, err := infra.ShopService()
	if err != nil {
		logger.Error("invalid cache configuration", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	http_api.NewSeckillHandler(seckillService, cfg.HTTP.AdmissionTimeout, logger).RegisterRoutes(mux)
	http_api.NewShopHandler(shopService, logger).RegisterRoutes(mux)
	http_api.RegisterOps(mux, map[string]http_api.Check{
		"redis":    infra.PingRedis,
		"database": infra.PingDB,
	})

	var background sync.WaitGroup

	// 6. Hot shops are kept warm for the logical expiry strategy
	cronScheduler := scheduler.NewCronScheduler(logger)
	if len(cfg.Cache.HotShops) > 0 {
		if err := shopService.WarmHot(rootCtx); err != nil {
			logger.Warn("initial warm-up incomplete", "error", err)
		}
		if err := cronScheduler.AddTask("warm-hot-shops", cfg.Cache.WarmSpec, shopService.WarmHot); err != nil {
			logger.Error("failed to schedule warm-up", "error", err)
			os.Exit(1)
		}
	}

	// 7. The in-memory queue only lives in this process, so its consumer does too.
	// Its sweep is per replica, never leader gated.
	if infra.Memory != nil {
		processor := infra.Processor()
		sweeper := scheduler.NewCronScheduler(logger)
		if err := sweeper.AddTask("pending-sweep", cfg.Worker.SweepSpec, processor.Sweep); err != nil {
			logger.Error("failed to schedule pending sweep", "error", err)
			os.Exit(1)
		}
		background.Add(2)
		go func() {
			defer background.Done()
			if err := sweeper.Start(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("pending sweep stopped with error", "error", err)
			}
		}()
		go func() {
			defer background.Done()
			if err := processor.Run(rootCtx); err != nil {
				logger.Error("embedded order processor stopped with error", "error", err)
				cancel()
			}
		}()
	}

	// Only the elected replica warms when etcd is available
	var tasks domain.Scheduler = cronScheduler
	nodeID := uuid.New().String()
	if election := infra.Election("api-tasks", nodeID); election != nil {
		tasks = usecase.NewLeaderService(election, cronScheduler, nodeID, logger)
	}
	background.Add(1)
	go func() {
		defer background.Done()
		if err := tasks.Start(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("background tasks stopped with error", "error", err)
		}
	}()

	// 8. Start HTTP API server
	server := &http.Server{
		Addr:    cfg.HTTP.ListenAddr,
		Handler: otelhttp.NewHandler(corsMiddleware(mux), "flash-sale-api"),
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	// 9. Block until shutdown
	<-rootCtx.Done()
	logger.Info("shutting down api gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	if infra.Memory != nil {
		if n := infra.Memory.Len(); n > 0 {
			logger.Warn("dropping unacknowledged in-memory order intents", "count", n)
		}
	}
	background.Wait()
	cacheClient.Wait()

	logger.Info("api shut down")
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
