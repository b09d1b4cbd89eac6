package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/lyzr/orchestrator/cmd/orchestrator/handlers"
	"github.com/lyzr/orchestrator/common/bootstrap"
	commonmiddleware "github.com/lyzr/orchestrator/common/middleware"
	"github.com/lyzr/orchestrator/common/ratelimit"
	commonredis "github.com/lyzr/orchestrator/common/redis"
	"github.com/lyzr/orchestrator/internal/collab/pgstore"
	"github.com/lyzr/orchestrator/internal/collab/pricing"
	"github.com/lyzr/orchestrator/internal/collab/stub"
	"github.com/lyzr/orchestrator/internal/dispatch"
	"github.com/lyzr/orchestrator/internal/dispatch/tools"
	"github.com/lyzr/orchestrator/internal/engine"
	"github.com/lyzr/orchestrator/internal/progress"
	"github.com/lyzr/orchestrator/internal/retention"
	"github.com/lyzr/orchestrator/internal/webhook"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, telemetry).
	components, err := bootstrap.Setup(ctx, "orchestrator", bootstrapOpts(os.Getenv("ENABLE_PG_STORE"))...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap orchestrator: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	limiter := buildRateLimiter(components)

	eng := buildEngine(components)
	hooks := webhook.New(eng, components.Config.Engine.WebhookBaseURL, webhookLimiter(limiter))
	webhookHandler := handlers.NewWebhookHandler(hooks, components.Logger)

	e := setupEcho()
	setupMiddleware(e, limiter)
	setupHealthCheck(e)
	registerRoutes(e, webhookHandler)

	startServer(e, components)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func bootstrapOpts(enablePGStore string) []bootstrap.Option {
	if enablePGStore == "true" {
		return nil
	}
	return []bootstrap.Option{bootstrap.WithoutDB()}
}

// buildEngine wires the full collaborator graph the execution engine needs:
// the node dispatcher (with its SSRF-guarded tool registry), the progress
// bus, the retention store, a pricing table, and a graph store — Postgres
// when enabled, an in-memory recorder otherwise.
func buildEngine(components *bootstrap.Components) *engine.Engine {
	guard := tools.NewURLGuard()
	transport := tools.NewHTTPTransport()
	toolRegistry := tools.NewRegistry(guard, transport, "https://backend.composio.dev/api/v1")
	registry := dispatch.NewRegistry(toolRegistry)

	bus := progress.NewBus()
	retentionStore := retention.New(bus)

	deps := engine.Deps{
		Registry:  registry,
		Bus:       bus,
		Retention: retentionStore,
		Invoker:   &stub.EchoInvoker{},
		Broker:    &stub.FixedBroker{Known: true},
		Pricing:   pricing.Default(),
		Log:       components.Logger,
	}
	if components.DB != nil {
		deps.Store = pgstore.New(components.DB)
	} else {
		deps.Store = &stub.RecordingStore{}
	}
	if components.Config.Features.EnableFanoutBus {
		raw := redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%s", envOr("REDIS_HOST", "localhost"), envOr("REDIS_PORT", "6379")),
		})
		deps.Relay = progress.NewRedisRelay(commonredis.NewClient(raw, components.Logger))
	}

	return engine.New(deps)
}

// buildRateLimiter wires the teacher's Redis+Lua rate limiter when enabled;
// returns nil (no limiting anywhere) otherwise.
func buildRateLimiter(components *bootstrap.Components) *ratelimit.RateLimiter {
	if !components.Config.Features.EnableRateLimit {
		return nil
	}
	raw := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", envOr("REDIS_HOST", "localhost"), envOr("REDIS_PORT", "6379")),
	})
	return ratelimit.NewRateLimiter(raw, components.Logger)
}

// webhookLimiter converts a possibly-nil *ratelimit.RateLimiter to the
// webhook.RateLimiter interface, preserving a true nil interface (not a
// non-nil interface wrapping a nil pointer) when limiting is disabled.
func webhookLimiter(l *ratelimit.RateLimiter) webhook.RateLimiter {
	if l == nil {
		return nil
	}
	return l
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

func setupMiddleware(e *echo.Echo, limiter *ratelimit.RateLimiter) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	if limiter != nil {
		e.Use(commonmiddleware.GlobalRateLimitMiddleware(limiter, ratelimit.DefaultGlobalConfig.Limit))
	}
}

func setupHealthCheck(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "orchestrator",
		})
	})
}

// registerRoutes exposes the webhook registry's two operations (spec §4.8):
// binding a graph and triggering it.
func registerRoutes(e *echo.Echo, h *handlers.WebhookHandler) {
	e.POST("/webhooks", h.Register)
	e.POST("/hooks/:webhook_id", h.Trigger)
}

func startServer(e *echo.Echo, components *bootstrap.Components) {
	port := components.Config.Service.Port
	components.Logger.Info("starting orchestrator", "port", port)

	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
