// Package queue carries background work over asynq: per-tenant syncs triggered by
// onboarding, the daily fan-out and the weekly digest.
package queue

const (
	TypeSyncTenant   = "posture:sync_tenant"
	TypeSyncAll      = "posture:sync_all"
	TypeWeeklyDigest = "advisor:weekly_digest"

	QueueSync    = "sync"
	QueueDefault = "default"
)

// SyncTenantPayload is the body of a TypeSyncTenant task.
type SyncTenantPayload struct {
	TenantID string `json:"tenant_id"`
	Reason   string `json:"reason,omitempty"`
}
