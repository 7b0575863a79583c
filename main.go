package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/circuitbreaker"
	"github.com/Kocoro-lab/lina/internal/config"
	"github.com/Kocoro-lab/lina/internal/health"
	"github.com/Kocoro-lab/lina/internal/httpapi"
	"github.com/Kocoro-lab/lina/internal/server"
	"github.com/Kocoro-lab/lina/internal/tracing"
)

var version = "dev"

// The decision server exposes the credit tools over HTTP:
//
//	GET  /tools    tool catalogue
//	POST /execute  run one tool call
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.String("path", config.Path()), zap.Error(err))
	}

	shutdownTracing, err := tracing.Initialize(cfg.Tracing, version, logger)
	if err != nil {
		logger.Warn("Tracing unavailable", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	circuitbreaker.StartMetricsCollection(ctx)

	// The server never answers without models.
	svc, err := server.NewDecisionService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start decision service", zap.Error(err))
	}
	defer svc.Close()

	hm := health.NewManager(logger)
	if err := svc.RegisterHealth(hm); err != nil {
		logger.Fatal("Failed to register health checks", zap.Error(err))
	}

	watcher, err := config.NewWatcher(logger)
	if err != nil {
		logger.Warn("Policy hot reload disabled", zap.Error(err))
	} else {
		if err := svc.WatchPolicies(watcher); err != nil {
			logger.Warn("Failed to watch policies", zap.Error(err))
		}
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	mux := http.NewServeMux()
	httpapi.NewToolsHandler(svc.Dispatcher, logger).RegisterRoutes(mux)
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           tracingHandler(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		// tool calls may take up to the dispatcher timeout
		WriteTimeout: cfg.Tools.Timeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	admin := http.NewServeMux()
	admin.Handle("/metrics", promhttp.Handler())
	health.NewHTTPHandler(hm, logger).RegisterRoutes(admin)
	adminSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.AdminPort),
		Handler:           admin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", zap.String("address", adminSrv.Addr))
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Decision server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("version", version),
			zap.Int("tools", len(svc.Dispatcher.Registry().Definitions())),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start decision server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Decision server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Decision server forced to shutdown", zap.Error(err))
	}
	_ = adminSrv.Shutdown(shutdownCtx)

	logger.Info("Decision server stopped")
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("LINA_ENV") == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// tracingHandler continues the caller's trace so gateway and decision server spans
// join one trace.
func tracingHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartHTTPSpan(r)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
