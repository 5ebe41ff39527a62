package repository

import (
	"context"
	"time"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
)

// TenantRepository defines the interface for interacting with the tenant registry.
// Reads are filtered through the caller's session; writes other than MarkSynced
// require an administrative session.
type TenantRepository interface {
	// Upsert inserts the tenant or updates its mutable fields in place.
	Upsert(ctx context.Context, sess models.Session, tenant *models.Tenant) error

	// FindByID returns the tenant visible to sess, or a not_found error.
	FindByID(ctx context.Context, sess models.Session, tenantID string) (*models.Tenant, error)

	// List returns the tenants visible to sess.
	List(ctx context.Context, sess models.Session, activeOnly bool) ([]models.Tenant, error)

	// Deactivate flips an active tenant to inactive. It reports false when the
	// tenant was already inactive.
	Deactivate(ctx context.Context, sess models.Session, tenantID string) (bool, error)

	// MarkSynced records a successful sync for an active tenant.
	MarkSynced(ctx context.Context, sess models.Session, tenantID string, at time.Time) error
}
