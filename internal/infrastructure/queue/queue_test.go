package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeRunner struct {
	tenants []string
	err     error
	all     int
	digests int
}

func (f *fakeRunner) SyncTenantByID(_ context.Context, id string) error {
	f.tenants = append(f.tenants, id)
	return f.err
}

func (f *fakeRunner) SyncAll(context.Context) error {
	f.all++
	return f.err
}

func (f *fakeRunner) WeeklyDigest(context.Context) error {
	f.digests++
	return f.err
}

func TestTriggerTenantSync(t *testing.T) {
	fe := &fakeEnqueuer{}
	c := &Client{client: fe, log: logger.NewNoopLogger()}

	require.NoError(t, c.TriggerTenantSync(context.Background(), "t1", "onboard"))
	require.Len(t, fe.tasks, 1)
	assert.Equal(t, TypeSyncTenant, fe.tasks[0].Type())

	var p SyncTenantPayload
	require.NoError(t, json.Unmarshal(fe.tasks[0].Payload(), &p))
	assert.Equal(t, "t1", p.TenantID)
	assert.Equal(t, "onboard", p.Reason)
}

func TestTriggerTenantSyncErrors(t *testing.T) {
	c := &Client{client: &fakeEnqueuer{err: asynq.ErrDuplicateTask}, log: logger.NewNoopLogger()}
	assert.NoError(t, c.TriggerTenantSync(context.Background(), "t1", "onboard"), "duplicate trigger is not an error")

	c = &Client{client: &fakeEnqueuer{err: stderrors.New("dial tcp: refused")}, log: logger.NewNoopLogger()}
	err := c.TriggerTenantSync(context.Background(), "t1", "onboard")
	assert.True(t, errors.IsRetryable(err))
}

func TestHandlers(t *testing.T) {
	runner := &fakeRunner{}
	h := &handlers{runner: runner, log: logger.NewNoopLogger()}
	ctx := context.Background()

	payload, _ := json.Marshal(SyncTenantPayload{TenantID: "t1"})
	require.NoError(t, h.handleSyncTenant(ctx, asynq.NewTask(TypeSyncTenant, payload)))
	assert.Equal(t, []string{"t1"}, runner.tenants)

	err := h.handleSyncTenant(ctx, asynq.NewTask(TypeSyncTenant, []byte("not-json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.handleSyncTenant(ctx, asynq.NewTask(TypeSyncTenant, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	require.NoError(t, h.handleSyncAll(ctx, asynq.NewTask(TypeSyncAll, nil)))
	require.NoError(t, h.handleWeeklyDigest(ctx, asynq.NewTask(TypeWeeklyDigest, nil)))
	assert.Equal(t, 1, runner.all)
	assert.Equal(t, 1, runner.digests)
}

func TestRetryPolicy(t *testing.T) {
	assert.NoError(t, retryPolicy(nil))

	transient := errors.TransientUpstream("graph throttled")
	assert.Equal(t, error(transient), retryPolicy(transient))

	err := retryPolicy(errors.Referential("tenant t1 is not active"))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, errors.KindReferential, errors.KindOf(err))
}

func TestNewMuxRoutes(t *testing.T) {
	runner := &fakeRunner{}
	mux := NewMux(runner, logger.NewNoopLogger())

	require.NoError(t, mux.ProcessTask(context.Background(), asynq.NewTask(TypeSyncAll, nil)))
	assert.Equal(t, 1, runner.all)
	assert.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask("unknown", nil)))
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(&config.RedisConfig{Address: "127.0.0.1:0"}, config.SyncConfig{Schedule: "not a cron"}, logger.NewNoopLogger())
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestNoopTrigger(t *testing.T) {
	assert.NoError(t, NoopTrigger{Log: logger.NewNoopLogger()}.TriggerTenantSync(context.Background(), "t1", "onboard"))
	assert.NoError(t, NoopTrigger{}.TriggerTenantSync(context.Background(), "t1", "onboard"))
}
