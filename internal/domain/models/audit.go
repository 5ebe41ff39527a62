package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/turtacn/compliance-advisor/pkg/constants"
)

// AuditLogEntry records one privileged lifecycle operation. Entries are
// append-only: the repository rejects updates and deletes.
type AuditLogEntry struct {
	ID           string                `gorm:"column:id;primaryKey;type:varchar(36)" json:"id"`
	OperationKey string                `gorm:"column:operation_key;type:varchar(255);not null;uniqueIndex" json:"operation_key"`
	Action       constants.AuditAction `gorm:"column:action;type:varchar(64);not null;index" json:"action"`
	TenantID     string                `gorm:"column:tenant_id;type:varchar(64);not null;index" json:"tenant_id"`
	Operator     string                `gorm:"column:operator;type:varchar(255);not null" json:"operator"`
	Details      datatypes.JSON        `gorm:"column:details" json:"details,omitempty"`
	CreatedAt    time.Time             `gorm:"column:created_at;not null" json:"created_at"`
}

func (AuditLogEntry) TableName() string {
	return "audit_log"
}

// NewAuditLogEntry builds an entry. An empty operationKey gets a random one,
// which makes the write non-deduplicating.
func NewAuditLogEntry(action constants.AuditAction, tenantID, operator, operationKey string, details map[string]interface{}) *AuditLogEntry {
	id := uuid.NewString()
	if operationKey == "" {
		operationKey = string(action) + ":" + tenantID + ":" + id
	}
	entry := &AuditLogEntry{
		ID:           id,
		OperationKey: operationKey,
		Action:       action,
		TenantID:     tenantID,
		Operator:     operator,
		CreatedAt:    time.Now().UTC(),
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = datatypes.JSON(raw)
		}
	}
	return entry
}
