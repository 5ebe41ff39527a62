package dto

import (
	"time"

	"github.com/turtacn/compliance-advisor/pkg/utils"
)

// OnboardRequest carries the immutable tenant metadata supplied by the operator.
// Secret is read from standard input by the CLI and never logged.
type OnboardRequest struct {
	TenantID       string `validate:"required,tenantid"`
	AppID          string `validate:"required,tenantid"`
	DisplayName    string `validate:"required,max=255"`
	Region         string `validate:"max=64"`
	Department     string `validate:"max=128"`
	DepartmentHead string `validate:"max=255"`
	RiskTier       string `validate:"omitempty,oneof=Critical High Medium Low"`
	Secret         string `validate:"required"`
	Operator       string `validate:"required"`
}

// Normalize puts the identifiers in their canonical form.
func (r *OnboardRequest) Normalize() {
	r.TenantID = utils.NormalizeIdentifier(r.TenantID)
	r.AppID = utils.NormalizeIdentifier(r.AppID)
}

type OnboardResult struct {
	TenantID    string    `json:"tenant_id"`
	SecretName  string    `json:"secret_name"`
	Reactivated bool      `json:"reactivated"`
	OnboardedAt time.Time `json:"onboarded_at"`
}

type OffboardResult struct {
	TenantID string `json:"tenant_id"`
	// NoOp is true when the tenant was already inactive.
	NoOp bool `json:"no_op"`
	// AuditWritten is false when an earlier run already recorded the offboard.
	AuditWritten bool `json:"audit_written"`
}

type ReconcileResult struct {
	Checked           int      `json:"checked"`
	DisabledOrphans   []string `json:"disabled_orphans"`
	DisabledInactive  []string `json:"disabled_inactive"`
	MissingCredential []string `json:"missing_credential"`
}

// SyncResult is one tenant's outcome inside a sync run.
type SyncResult struct {
	TenantID string        `json:"tenant_id"`
	Outcome  string        `json:"outcome"`
	Attempts int           `json:"attempts"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SyncReport summarises a fan-out run.
type SyncReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []SyncResult `json:"results"`
	Indexed    int          `json:"indexed"`
}

// Count returns how many results ended with outcome.
func (r *SyncReport) Count(outcome string) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}
