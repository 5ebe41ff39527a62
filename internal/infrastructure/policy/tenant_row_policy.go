// Package policy holds the row-filtering predicate applied by the data-access layer.
// Every query against a tenant-partitioned table goes through TenantRows; every write
// goes through Authorize.
package policy

import (
	"gorm.io/gorm"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/pkg/errors"
)

// activeTenantSubquery restricts non-admin reads to tenants that are still active.
const activeTenantSubquery = "tenant_id IN (SELECT t.tenant_id FROM tenants t WHERE t.is_active = ?)"

// TenantRows returns a gorm scope implementing the session predicate:
// admin sessions see every row; tenant sessions see only their own rows while the
// tenant is active; a session with neither attribute set sees nothing.
func TenantRows(sess models.Session) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch {
		case sess.IsAdmin:
			return db
		case sess.TenantID != "":
			return db.Where("tenant_id = ?", sess.TenantID).Where(activeTenantSubquery, true)
		default:
			return db.Where("1 = 0")
		}
	}
}

// Authorize checks that sess may write rows owned by tenantID.
func Authorize(sess models.Session, tenantID string) error {
	if tenantID == "" {
		return errors.Validation("tenant id is required")
	}
	if !sess.Allows(tenantID) {
		return errors.Forbidden("session %s may not write rows for tenant %s", sess.Scope(), tenantID)
	}
	return nil
}

// RequireAdmin rejects non-admin sessions for registry and lifecycle operations.
func RequireAdmin(sess models.Session) error {
	if !sess.IsAdmin {
		return errors.Forbidden("administrative context required")
	}
	return nil
}
