// Package app wires configuration into the application services shared by the
// server, worker and admin binaries.
package app

import (
	"context"
	"time"

	"github.com/turtacn/compliance-advisor/internal/application/service"
	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/domain/repository"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/ai"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/audit"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/graph"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/monitoring"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/notify"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/persistence/redis"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/queue"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/ratelimit"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/search"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/secrets"
	"github.com/turtacn/compliance-advisor/internal/interfaces/http/handlers"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// Container holds the long-lived dependencies of one process.
type Container struct {
	Config  *config.Config
	Logger  logger.Logger
	Metrics *monitoring.Metrics
	Tracing *monitoring.TracingManager

	DB        *postgres.DBConnection
	Redis     *redis.RedisConnection
	Secrets   secrets.Store
	Queue     *queue.Client
	Publisher audit.Publisher

	QueryLimiter ratelimit.Limiter
	ModelLimiter ratelimit.Limiter

	Tenants repository.TenantRepository
	Posture repository.PostureRepository
	Audits  repository.AuditRepository

	Reports   service.ReportAppService
	Advisor   service.AdvisorAppService
	Lifecycle service.LifecycleAppService
	Sync      service.SyncAppService

	closers []func() error
}

// New connects to the database and optional backends and builds the services.
// Optional backends that are disabled fall back to no-op implementations.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: log, Metrics: monitoring.NewMetrics()}

	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, log)
	if err != nil {
		return nil, err
	}
	c.Tracing = tracing
	c.closers = append(c.closers, func() error { return tracing.Shutdown(context.Background()) })

	db, err := postgres.NewDBConnection(ctx, &cfg.Database, log)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.DB = db
	c.closers = append(c.closers, db.Close)

	var cache redis.ReportCache
	if cfg.Redis.Enabled {
		conn := redis.NewRedisConnection(&cfg.Redis, log)
		if err := conn.Connect(ctx); err != nil {
			// The cache is optional; reports are computed on every request.
			log.Warn(ctx, "Redis unavailable, report cache disabled", logger.String("error", err.Error()))
		} else {
			c.Redis = conn
			c.closers = append(c.closers, conn.Close)
			cache = redis.NewReportCache(conn, time.Duration(cfg.Redis.CacheTTL)*time.Second, log)
		}
	}

	if cfg.RateLimit.Enabled {
		query := ratelimit.Policy{Name: "query", Limit: int64(cfg.RateLimit.QueryPerMinute), Window: time.Minute}
		model := ratelimit.Policy{Name: "model", Limit: int64(cfg.RateLimit.ModelPerMinute), Window: time.Minute}
		if c.Redis != nil {
			c.QueryLimiter = ratelimit.NewRedisLimiter(c.Redis.GetClient(), query, log)
			c.ModelLimiter = ratelimit.NewRedisLimiter(c.Redis.GetClient(), model, log)
		} else {
			c.QueryLimiter = ratelimit.NewLocalLimiter(query)
			c.ModelLimiter = ratelimit.NewLocalLimiter(model)
		}
	}

	store, err := secrets.NewFromConfig(cfg, log)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Secrets = store

	c.Publisher = audit.NoopPublisher{}
	if cfg.Kafka.Enabled {
		c.Publisher = audit.NewKafkaProducer(cfg.Kafka, log)
		c.closers = append(c.closers, c.Publisher.Close)
	}

	var trigger service.SyncTrigger = queue.NoopTrigger{Log: log}
	if cfg.Queue.Enabled && cfg.Redis.Enabled {
		c.Queue = queue.NewClient(&cfg.Redis, log)
		c.closers = append(c.closers, c.Queue.Close)
		trigger = c.Queue
	}

	var index search.Index = search.NoopIndex{}
	if cfg.Search.Enabled {
		index = search.NewClient(&cfg.Search, store, log)
	}

	var model ai.ModelClient = ai.DisabledClient{}
	if cfg.AI.Enabled {
		client, err := ai.NewModelClient(&cfg.AI, log)
		if err != nil {
			c.Close()
			return nil, err
		}
		model = client
	}

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Notify.Enabled {
		notifier = notify.NewTeamsNotifier(store, log)
	}

	gdb := db.DB()
	c.Tenants = postgres.NewTenantRepository(gdb, log)
	c.Posture = postgres.NewPostureRepository(gdb, log)
	c.Audits = postgres.NewAuditRepository(gdb, log)

	collector := graph.NewCollector(
		graph.NewClient(&cfg.Graph, log),
		graph.NewClientSecretTokenProvider(cfg.Graph.Cloud),
		cfg.Graph.SecureScoreDays,
		log,
	)

	c.Reports = service.NewReportAppService(c.Tenants, c.Posture, cache, c.Metrics, log)
	c.Advisor = service.NewAdvisorAppService(c.Reports, index, model, notifier, log)
	c.Lifecycle = service.NewLifecycleAppService(c.Tenants, c.Audits, store, trigger, c.Publisher, c.Metrics, log)
	c.Sync = service.NewSyncAppService(c.Tenants, c.Posture, store, collector, index, cache, cfg.Sync, c.Metrics, log)
	return c, nil
}

// TaskRunner adapts the services to the background task handlers.
func (c *Container) TaskRunner() *service.TaskRunner {
	return &service.TaskRunner{Sync: c.Sync, Advisor: c.Advisor, Logger: c.Logger}
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn(context.Background(), "Error while closing dependency", logger.String("error", err.Error()))
		}
	}
	c.closers = nil
}

// Pingers lists the connected backends for the readiness probe.
func (c *Container) Pingers() map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{"database": c.DB}
	if c.Redis != nil {
		deps["redis"] = c.Redis
	}
	return deps
}
