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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/cmd/gateway/internal/middleware"
	"github.com/Kocoro-lab/lina/internal/agent"
	"github.com/Kocoro-lab/lina/internal/auth"
	"github.com/Kocoro-lab/lina/internal/circuitbreaker"
	"github.com/Kocoro-lab/lina/internal/config"
	"github.com/Kocoro-lab/lina/internal/health"
	"github.com/Kocoro-lab/lina/internal/httpapi"
	"github.com/Kocoro-lab/lina/internal/llm"
	"github.com/Kocoro-lab/lina/internal/server"
	"github.com/Kocoro-lab/lina/internal/tools"
	"github.com/Kocoro-lab/lina/internal/tracing"
)

var version = "dev"

// The gateway streams conversations with the credit assistant:
//
//	POST /chat        NDJSON events
//	GET  /chat/ws     WebSocket, one JSON frame per event
//	POST /auth/token  API key -> bearer token
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
	hm := health.NewManager(logger)

	watcher, err := config.NewWatcher(logger)
	if err != nil {
		logger.Fatal("Failed to create file watcher", zap.Error(err))
	}

	// Language model
	model := llm.NewOllamaClient(cfg.LLM, logger)
	_ = hm.RegisterChecker(health.NewLLMChecker(model))

	// Tools run on a decision server when tools.url is set, in-process otherwise.
	var executor tools.Executor
	if cfg.Tools.Remote() {
		remote := tools.NewRemoteExecutor(cfg.Tools.URL, cfg.Tools.Timeout, logger)
		_ = hm.RegisterChecker(health.NewToolServerChecker(remote))
		executor = remote
		logger.Info("Using remote tool server", zap.String("url", cfg.Tools.URL))
	} else {
		svc, err := server.NewDecisionService(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("Failed to start decision service", zap.Error(err))
		}
		defer svc.Close()
		if err := svc.RegisterHealth(hm); err != nil {
			logger.Fatal("Failed to register health checks", zap.Error(err))
		}
		if err := svc.WatchPolicies(watcher); err != nil {
			logger.Warn("Failed to watch policies", zap.Error(err))
		}
		executor = tools.NewLocalExecutor(svc.Dispatcher)
		logger.Info("Dispatching tools in-process")
	}

	// System prompt, reloaded when the file changes
	prompt := agent.NewFilePrompt(cfg.Agent.SystemPromptPath, logger)
	if cfg.Agent.SystemPromptPath != "" {
		if err := watcher.Watch(prompt.Path(), "", func(config.ChangeEvent) error {
			return prompt.Reload()
		}); err != nil {
			logger.Warn("System prompt hot reload disabled", zap.Error(err))
		}
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	agentCfg := cfg.Agent.Config
	if agentCfg.Model == "" {
		agentCfg.Model = cfg.LLM.Model
	}
	assistant := agent.New(model, executor, prompt, agentCfg, logger)

	authn, err := auth.NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		logger.Fatal("Failed to initialize authentication", zap.Error(err))
	}
	if !authn.Enabled() {
		logger.Warn("Authentication disabled, chat endpoints are open")
	}

	// Rate limiting: Redis when configured, per-process token buckets otherwise
	var redisClient *circuitbreaker.RedisWrapper
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		redisClient = circuitbreaker.NewRedisWrapper(redis.NewClient(opts), "gateway", logger)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("Redis unreachable, rate limiting fails open", zap.Error(err))
		}
		_ = hm.RegisterChecker(health.NewRedisChecker(redisClient))
	}

	chatHandler := httpapi.NewChatHandler(assistant, logger, httpapi.WithAllowedOrigins(cfg.Gateway.CORSOrigins))
	chatMux := http.NewServeMux()
	chatHandler.RegisterRoutes(chatMux)

	var chat http.Handler = chatMux
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(redisClient, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, logger)
		chat = limiter.Middleware(chat)
	}
	chat = authn.Require(auth.ScopeChat, chat)

	mux := http.NewServeMux()
	mux.Handle("/chat", chat)
	mux.Handle("/chat/", chat)
	httpapi.NewAuthHTTPHandler(authn, logger).RegisterRoutes(mux)
	health.NewHTTPHandler(hm, logger).RegisterRoutes(mux)

	tracingMiddleware := middleware.NewTracingMiddleware(logger)
	handler := tracingMiddleware.Middleware(httpapi.CORS(cfg.Gateway.CORSOrigins, mux))

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Gateway.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // conversations stream for up to max_turns model calls
		IdleTimeout:       300 * time.Second,
	}

	admin := http.NewServeMux()
	admin.Handle("/metrics", promhttp.Handler())
	adminSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Gateway.AdminPort),
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
		logger.Info("Gateway starting",
			zap.Int("port", cfg.Gateway.Port),
			zap.String("model", agentCfg.Model),
			zap.String("tool_gating", string(agentCfg.Gating)),
			zap.Bool("auth", authn.Enabled()),
			zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start gateway", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Gateway shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Gateway forced to shutdown", zap.Error(err))
	}
	_ = adminSrv.Shutdown(shutdownCtx)

	logger.Info("Gateway stopped")
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("LINA_ENV") == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
