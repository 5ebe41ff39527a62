package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client enqueues background tasks.
type Client struct {
	client enqueuer
	log    logger.Logger
}

// RedisOpt converts the shared redis settings into asynq connection options.
func RedisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func NewClient(cfg *config.RedisConfig, log logger.Logger) *Client {
	return &Client{
		client: asynq.NewClient(RedisOpt(cfg)),
		log:    log.WithComponent("queue_client"),
	}
}

// TriggerTenantSync schedules an out-of-band sync of one tenant. Duplicate
// triggers within the dedupe window collapse into one task.
func (c *Client) TriggerTenantSync(ctx context.Context, tenantID, reason string) error {
	payload, err := json.Marshal(SyncTenantPayload{TenantID: tenantID, Reason: reason})
	if err != nil {
		return fmt.Errorf("marshal sync payload: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, asynq.NewTask(TypeSyncTenant, payload),
		asynq.MaxRetry(3),
		asynq.Timeout(constants.DefaultTenantSyncTimeout),
		asynq.Queue(QueueSync),
		asynq.Unique(time.Minute),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			c.log.Info(ctx, "Tenant sync already queued", logger.String("tenant_id", tenantID))
			return nil
		}
		return errors.TransientUpstream("enqueue tenant sync for %s", tenantID).WithCause(err)
	}
	c.log.Info(ctx, "Tenant sync queued",
		logger.String("tenant_id", tenantID),
		logger.String("task_id", info.ID),
		logger.String("reason", reason),
	)
	return nil
}

// EnqueueSyncAll schedules the all-tenant fan-out outside the normal schedule.
func (c *Client) EnqueueSyncAll(ctx context.Context) error {
	if _, err := c.client.EnqueueContext(ctx, asynq.NewTask(TypeSyncAll, nil),
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Hour),
		asynq.Queue(QueueSync),
	); err != nil {
		return errors.TransientUpstream("enqueue sync fan-out").WithCause(err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// NoopTrigger is used when the queue is disabled; the next scheduled sync picks
// the tenant up.
type NoopTrigger struct {
	Log logger.Logger
}

func (n NoopTrigger) TriggerTenantSync(ctx context.Context, tenantID, _ string) error {
	if n.Log != nil {
		n.Log.Warn(ctx, "Queue disabled, tenant will sync on the next scheduled run", logger.String("tenant_id", tenantID))
	}
	return nil
}
