package repository

import (
	"context"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
)

// AuditRepository is the append-only audit ledger.
type AuditRepository interface {
	// Append writes the entry. It reports false without error when an entry with
	// the same operation key already exists.
	Append(ctx context.Context, entry *models.AuditLogEntry) (bool, error)

	// ListByTenant returns the entries visible to sess for a tenant, oldest first.
	ListByTenant(ctx context.Context, sess models.Session, tenantID string) ([]models.AuditLogEntry, error)

	// Update and Delete always fail with an invariant violation.
	Update(ctx context.Context, entry *models.AuditLogEntry) error
	Delete(ctx context.Context, id string) error
}
