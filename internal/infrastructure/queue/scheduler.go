package queue

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// NewScheduler registers the daily sync and weekly digest cron entries.
// An empty spec leaves that entry out.
func NewScheduler(redisCfg *config.RedisConfig, syncCfg config.SyncConfig, log logger.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(RedisOpt(redisCfg), &asynq.SchedulerOpts{})

	entries := []struct {
		spec string
		task *asynq.Task
		opts []asynq.Option
	}{
		{syncCfg.Schedule, asynq.NewTask(TypeSyncAll, nil), []asynq.Option{asynq.Queue(QueueSync), asynq.MaxRetry(1)}},
		{syncCfg.DigestSchedule, asynq.NewTask(TypeWeeklyDigest, nil), []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(2)}},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		id, err := scheduler.Register(e.spec, e.task, e.opts...)
		if err != nil {
			return nil, errors.Validation("invalid schedule %q for %s", e.spec, e.task.Type()).WithCause(err)
		}
		log.Info(context.Background(), "Scheduled task registered",
			logger.String("type", e.task.Type()),
			logger.String("spec", e.spec),
			logger.String("entry_id", id),
		)
	}
	return scheduler, nil
}
