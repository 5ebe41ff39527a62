// Package constants defines system-wide constants for the compliance advisor.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Tenant Lifecycle Constants
// ================================================================================

// TenantStatus represents the lifecycle state of an onboarded tenant
type TenantStatus string

const (
	// TenantStatusActive indicates the tenant is synced and visible to its own sessions
	TenantStatusActive TenantStatus = "active"

	// TenantStatusInactive indicates the tenant was offboarded; history stays admin-visible
	TenantStatusInactive TenantStatus = "inactive"
)

// TenantSecretPrefix prefixes every per-tenant credential name in the secret store
const TenantSecretPrefix = "tenant-"

// ================================================================================
// Audit Action Constants
// ================================================================================

// AuditAction identifies a privileged lifecycle operation
type AuditAction string

const (
	AuditActionOnboard      AuditAction = "onboard"
	AuditActionOffboard     AuditAction = "offboard"
	AuditActionRotateSecret AuditAction = "rotate_secret"
	AuditActionReconcile    AuditAction = "reconcile"
)

// ================================================================================
// Posture Constants
// ================================================================================

const (
	// CategoryOverall is the snapshot category holding the overall compliance score
	CategoryOverall = "overall"

	// CategorySecureScore is the snapshot category holding the daily secure score total
	CategorySecureScore = "secure_score"
)

// Trend direction labels for week-over-week change
type Direction string

const (
	DirectionImproving Direction = "Improving"
	DirectionDeclining Direction = "Declining"
	DirectionStable    Direction = "Stable"
)

// Implementation and test status values reported for assessment controls
const (
	ImplementationImplemented = "implemented"
	TestResultPassed          = "passed"
	TestResultFailed          = "failed"
)

// ================================================================================
// API Limits
// ================================================================================

const (
	DefaultTrendDays = 30
	MaxTrendDays     = 90

	DefaultTopGaps = 20
	MaxTopGaps     = 50

	DefaultTopActions = 50
	MaxTopActions     = 200

	// MaxSecureScoreDays bounds the secure score history requested from the posture source
	MaxSecureScoreDays = 90
)

// ================================================================================
// Secret Names
// ================================================================================

const (
	SecretSearchAPIKey    = "azure-search-key"
	SecretTeamsWebhookURL = "teams-webhook-url"
)

// ================================================================================
// Timeouts
// ================================================================================

const (
	DefaultTenantSyncTimeout = 5 * time.Minute
	DefaultUpstreamTimeout   = 30 * time.Second
	SearchUploadBatchSize    = 1000
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey represents keys used in context.Context
type ContextKey string

const (
	// ContextKeyRequestID is the key for request ID in context
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyTraceID is the key for distributed trace ID in context
	ContextKeyTraceID ContextKey = "trace_id"

	// ContextKeySession is the gin context key holding the caller's models.Session
	ContextKeySession = "session"
)
