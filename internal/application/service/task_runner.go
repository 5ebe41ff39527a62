package service

import (
	"context"

	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// TaskRunner adapts the application services to the background task handlers.
type TaskRunner struct {
	Sync    SyncAppService
	Advisor AdvisorAppService
	Logger  logger.Logger
}

func (r *TaskRunner) SyncTenantByID(ctx context.Context, tenantID string) error {
	return r.Sync.SyncTenantByID(ctx, tenantID)
}

// SyncAll runs the fan-out; per-tenant failures are already in the logs and metrics.
func (r *TaskRunner) SyncAll(ctx context.Context) error {
	report, err := r.Sync.SyncAll(ctx)
	if err != nil {
		return err
	}
	r.Logger.Info(ctx, "Scheduled sync complete",
		logger.Int("tenants", len(report.Results)),
		logger.Int(SyncFailed, report.Count(SyncFailed)),
	)
	return nil
}

func (r *TaskRunner) WeeklyDigest(ctx context.Context) error {
	_, err := r.Advisor.WeeklyDigest(ctx)
	return err
}
