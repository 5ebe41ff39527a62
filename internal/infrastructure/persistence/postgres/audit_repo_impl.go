package postgres

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/domain/repository"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/policy"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// AuditRepoImpl is the append-only audit ledger. The database rejects updates
// and deletes with a trigger; this type refuses them before they get there.
type AuditRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewAuditRepository creates an audit repository.
func NewAuditRepository(db *gorm.DB, log logger.Logger) repository.AuditRepository {
	return &AuditRepoImpl{
		db:     db,
		logger: log.WithComponent("audit_repository"),
	}
}

// Append inserts the entry unless one with the same operation key exists.
func (r *AuditRepoImpl) Append(ctx context.Context, entry *models.AuditLogEntry) (bool, error) {
	if entry == nil || entry.OperationKey == "" || entry.TenantID == "" {
		return false, errors.Validation("audit entry requires tenant id and operation key")
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "operation_key"}}, DoNothing: true}).
		Create(entry)
	if result.Error != nil {
		r.logger.Error(ctx, "Failed to append audit entry", result.Error,
			logger.String("tenant_id", entry.TenantID),
			logger.String("action", string(entry.Action)),
		)
		return false, translate(result.Error, "append audit entry")
	}
	inserted := result.RowsAffected == 1
	if !inserted {
		r.logger.Debug(ctx, "Audit entry already recorded", logger.String("operation_key", entry.OperationKey))
	}
	return inserted, nil
}

// ListByTenant returns the tenant's entries, oldest first.
func (r *AuditRepoImpl) ListByTenant(ctx context.Context, sess models.Session, tenantID string) ([]models.AuditLogEntry, error) {
	var rows []models.AuditLogEntry
	err := r.db.WithContext(ctx).
		Scopes(policy.TenantRows(sess)).
		Where("tenant_id = ?", tenantID).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, "list audit entries")
	}
	return rows, nil
}

// FindByOperationKey returns the entry recorded under key.
func (r *AuditRepoImpl) FindByOperationKey(ctx context.Context, key string) (*models.AuditLogEntry, error) {
	var entry models.AuditLogEntry
	if err := r.db.WithContext(ctx).Where("operation_key = ?", key).Take(&entry).Error; err != nil {
		return nil, translate(err, "find audit entry")
	}
	return &entry, nil
}

func (r *AuditRepoImpl) Update(ctx context.Context, entry *models.AuditLogEntry) error {
	r.logger.Warn(ctx, "Rejected audit log update")
	return errors.Invariant("audit log entries cannot be updated")
}

func (r *AuditRepoImpl) Delete(ctx context.Context, id string) error {
	r.logger.Warn(ctx, "Rejected audit log delete", logger.String("id", id))
	return errors.Invariant("audit log entries cannot be deleted")
}
