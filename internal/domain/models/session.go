package models

import "strings"

// Session is the caller's data-access scope. It is passed explicitly to every
// repository call that touches tenant-partitioned tables.
//
// The zero value denies every row.
type Session struct {
	TenantID string
	IsAdmin  bool
}

// AdminSession returns the cross-tenant scope used by trusted batch jobs.
func AdminSession() Session {
	return Session{IsAdmin: true}
}

// TenantSession returns a scope restricted to a single tenant's rows.
// Tenant ids are GUIDs and compare case-insensitively.
func TenantSession(tenantID string) Session {
	return Session{TenantID: strings.ToLower(strings.TrimSpace(tenantID))}
}

// Allows reports whether a row owned by rowTenantID is visible to the session.
func (s Session) Allows(rowTenantID string) bool {
	if s.IsAdmin {
		return true
	}
	return s.TenantID != "" && s.TenantID == rowTenantID
}

// IsZero reports whether neither attribute was set.
func (s Session) IsZero() bool {
	return !s.IsAdmin && s.TenantID == ""
}

// Scope returns a stable label for cache keys and logs.
func (s Session) Scope() string {
	switch {
	case s.IsAdmin:
		return "admin"
	case s.TenantID != "":
		return "tenant:" + s.TenantID
	default:
		return "none"
	}
}
