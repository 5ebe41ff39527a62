package models

import (
	"time"

	"github.com/turtacn/compliance-advisor/pkg/constants"
)

// Tenant is an onboarded organisation. Rows are never physically deleted;
// offboarding flips IsActive and keeps history for admin queries.
type Tenant struct {
	TenantID       string                 `gorm:"column:tenant_id;primaryKey;type:varchar(64)" json:"tenant_id"`
	DisplayName    string                 `gorm:"column:display_name;type:varchar(255);not null" json:"display_name"`
	Region         string                 `gorm:"column:region;type:varchar(64)" json:"region"`
	Department     string                 `gorm:"column:department;type:varchar(128);index" json:"department"`
	DepartmentHead string                 `gorm:"column:department_head;type:varchar(255)" json:"department_head"`
	RiskTier       string                 `gorm:"column:risk_tier;type:varchar(32)" json:"risk_tier"`
	AppID          string                 `gorm:"column:app_id;type:varchar(64);not null" json:"app_id"`
	KVSecretName   string                 `gorm:"column:kv_secret_name;type:varchar(128);not null" json:"kv_secret_name"`
	Status         constants.TenantStatus `gorm:"column:status;type:varchar(32);not null" json:"status"`
	IsActive       bool                   `gorm:"column:is_active;not null;index" json:"is_active"`
	OnboardedAt    time.Time              `gorm:"column:onboarded_at;not null" json:"onboarded_at"`
	LastSyncedAt   *time.Time             `gorm:"column:last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt      time.Time              `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time              `gorm:"column:updated_at" json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// SecretNameFor derives the credential name stored for a tenant.
func SecretNameFor(tenantID string) string {
	return constants.TenantSecretPrefix + tenantID
}

// TenantIDFromSecretName is the inverse of SecretNameFor.
func TenantIDFromSecretName(name string) (string, bool) {
	prefix := constants.TenantSecretPrefix
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return "", false
	}
	return name[len(prefix):], true
}
