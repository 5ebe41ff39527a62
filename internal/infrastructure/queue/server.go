package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// Runner executes the work behind each task type.
type Runner interface {
	SyncTenantByID(ctx context.Context, tenantID string) error
	SyncAll(ctx context.Context) error
	WeeklyDigest(ctx context.Context) error
}

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    logger.Logger
}

func NewServer(redisCfg *config.RedisConfig, queueCfg config.QueueConfig, runner Runner, log logger.Logger) *Server {
	log = log.WithComponent("queue_server")
	concurrency := queueCfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	srv := asynq.NewServer(RedisOpt(redisCfg), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			QueueSync:    6,
			QueueDefault: 3,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error(ctx, "Task failed", err, logger.String("type", task.Type()))
		}),
	})

	return &Server{server: srv, mux: NewMux(runner, log), log: log}
}

// NewMux registers one handler per task type.
func NewMux(runner Runner, log logger.Logger) *asynq.ServeMux {
	h := &handlers{runner: runner, log: log}
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSyncTenant, h.handleSyncTenant)
	mux.HandleFunc(TypeSyncAll, h.handleSyncAll)
	mux.HandleFunc(TypeWeeklyDigest, h.handleWeeklyDigest)
	return mux
}

// Run blocks until the process receives a termination signal.
func (s *Server) Run() error {
	s.log.Info(context.Background(), "Worker starting")
	return s.server.Run(s.mux)
}

func (s *Server) Shutdown() {
	s.log.Info(context.Background(), "Worker stopping")
	s.server.Shutdown()
}

type handlers struct {
	runner Runner
	log    logger.Logger
}

func (h *handlers) handleSyncTenant(ctx context.Context, task *asynq.Task) error {
	var p SyncTenantPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	if p.TenantID == "" {
		return fmt.Errorf("%s payload without tenant_id: %w", task.Type(), asynq.SkipRetry)
	}
	return retryPolicy(h.runner.SyncTenantByID(ctx, p.TenantID))
}

func (h *handlers) handleSyncAll(ctx context.Context, _ *asynq.Task) error {
	return retryPolicy(h.runner.SyncAll(ctx))
}

func (h *handlers) handleWeeklyDigest(ctx context.Context, _ *asynq.Task) error {
	return retryPolicy(h.runner.WeeklyDigest(ctx))
}

// retryPolicy lets asynq retry only transient failures.
func retryPolicy(err error) error {
	if err == nil || errors.IsRetryable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
}
