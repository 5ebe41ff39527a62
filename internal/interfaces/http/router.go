package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/monitoring"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/ratelimit"
	"github.com/turtacn/compliance-advisor/internal/interfaces/http/handlers"
	"github.com/turtacn/compliance-advisor/internal/interfaces/http/middleware"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// Router owns the gin engine and the HTTP server.
type Router struct {
	engine         *gin.Engine
	config         *config.Config
	logger         logger.Logger
	healthHandler  *handlers.HealthHandler
	advisorHandler *handlers.AdvisorHandler
	tracer         trace.Tracer
	metrics        *monitoring.Metrics
	queryLimiter   ratelimit.Limiter
	modelLimiter   ratelimit.Limiter
	server         *http.Server
}

// Option customizes the router.
type Option func(*Router)

// WithRateLimits enables per-session budgets on the advisor API.
func WithRateLimits(query, model ratelimit.Limiter) Option {
	return func(r *Router) {
		r.queryLimiter = query
		r.modelLimiter = model
	}
}

// NewRouter creates the router. Routes are registered by SetupRoutes.
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	healthHandler *handlers.HealthHandler,
	advisorHandler *handlers.AdvisorHandler,
	tracer trace.Tracer,
	metrics *monitoring.Metrics,
	opts ...Option,
) *Router {
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:         gin.New(),
		config:         cfg,
		logger:         log.WithComponent("http"),
		healthHandler:  healthHandler,
		advisorHandler: advisorHandler,
		tracer:         tracer,
		metrics:        metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Engine exposes the configured engine for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// SetupRoutes registers middleware and routes.
func (r *Router) SetupRoutes() {
	r.engine.Use(middleware.RecoveryMiddleware(r.logger))
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.ObservabilityMiddleware(r.tracer, r.metrics))
	r.engine.Use(middleware.LoggingMiddleware(r.logger))

	if origins := r.config.Server.CORSAllowedOrigins; len(origins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.engine.GET("/health", r.healthHandler.HealthCheck)
	r.engine.GET("/ready", r.healthHandler.ReadinessCheck)
	r.engine.GET("/live", r.healthHandler.LivenessCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if !r.config.Server.IsProduction() {
		pprof.Register(r.engine)
	}

	api := r.engine.Group("/api/advisor")
	api.Use(middleware.RequireSession(r.config.Auth, r.logger))
	if r.queryLimiter != nil || r.modelLimiter != nil {
		api.Use(middleware.RateLimit(r.queryLimiter, r.modelLimiter, r.metrics, r.logger))
	}
	{
		api.POST("/:action", r.advisorHandler.Dispatch)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		status, body := dto.NewErrorResponse(errors.NotFound("the requested resource was not found"), "")
		c.JSON(status, body)
	})
}

// Start serves until Stop is called.
func (r *Router) Start() error {
	r.SetupRoutes()

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	r.server = &http.Server{
		Addr:              addr,
		Handler:           r.engine,
		ReadTimeout:       time.Duration(r.config.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(r.config.Server.WriteTimeout) * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.logger.Info(ctx, "Stopping HTTP server")
	return r.server.Shutdown(ctx)
}
