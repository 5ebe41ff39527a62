package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/domain/repository"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/policy"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// TenantRepoImpl implements TenantRepository with gorm.
type TenantRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewTenantRepository creates a tenant repository.
func NewTenantRepository(db *gorm.DB, log logger.Logger) repository.TenantRepository {
	return &TenantRepoImpl{
		db:     db,
		logger: log.WithComponent("tenant_repository"),
	}
}

// Upsert inserts the tenant or updates its registry fields. Re-running with the
// same input leaves a single row.
func (r *TenantRepoImpl) Upsert(ctx context.Context, sess models.Session, tenant *models.Tenant) error {
	if err := policy.RequireAdmin(sess); err != nil {
		return err
	}
	if tenant.TenantID == "" {
		return errors.Validation("tenant id is required")
	}
	startTime := time.Now()

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "region", "department", "department_head", "risk_tier",
			"app_id", "kv_secret_name", "status", "is_active", "onboarded_at", "updated_at",
		}),
	}).Create(tenant).Error
	if err != nil {
		r.logger.Error(ctx, "Failed to upsert tenant", err, logger.String("tenant_id", tenant.TenantID))
		return translate(err, "upsert tenant")
	}

	r.logger.Info(ctx, "Tenant upserted",
		logger.String("tenant_id", tenant.TenantID),
		logger.String("status", string(tenant.Status)),
		logger.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)
	return nil
}

// FindByID returns a tenant visible to the session.
func (r *TenantRepoImpl) FindByID(ctx context.Context, sess models.Session, tenantID string) (*models.Tenant, error) {
	if tenantID == "" {
		return nil, errors.Validation("tenant id is required")
	}
	var tenant models.Tenant
	err := r.db.WithContext(ctx).
		Scopes(policy.TenantRows(sess)).
		Where("tenant_id = ?", tenantID).
		Take(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("tenant %s not found", tenantID)
		}
		r.logger.Error(ctx, "Failed to find tenant", err, logger.String("tenant_id", tenantID))
		return nil, translate(err, "find tenant")
	}
	return &tenant, nil
}

// List returns tenants visible to the session ordered by id.
func (r *TenantRepoImpl) List(ctx context.Context, sess models.Session, activeOnly bool) ([]models.Tenant, error) {
	var tenants []models.Tenant
	q := r.db.WithContext(ctx).Scopes(policy.TenantRows(sess))
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Order("tenant_id").Find(&tenants).Error; err != nil {
		r.logger.Error(ctx, "Failed to list tenants", err)
		return nil, translate(err, "list tenants")
	}
	return tenants, nil
}

// Deactivate flips is_active in a single conditional update so that concurrent
// offboards agree on which one made the change.
func (r *TenantRepoImpl) Deactivate(ctx context.Context, sess models.Session, tenantID string) (bool, error) {
	if err := policy.RequireAdmin(sess); err != nil {
		return false, err
	}
	result := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"status":     constants.TenantStatusInactive,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		r.logger.Error(ctx, "Failed to deactivate tenant", result.Error, logger.String("tenant_id", tenantID))
		return false, translate(result.Error, "deactivate tenant")
	}
	return result.RowsAffected == 1, nil
}

// MarkSynced stamps last_synced_at for an active tenant.
func (r *TenantRepoImpl) MarkSynced(ctx context.Context, sess models.Session, tenantID string, at time.Time) error {
	if err := policy.Authorize(sess, tenantID); err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Updates(map[string]interface{}{"last_synced_at": at.UTC(), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return translate(result.Error, "mark tenant synced")
	}
	if result.RowsAffected == 0 {
		return errors.Referential("tenant %s is not active", tenantID)
	}
	return nil
}
