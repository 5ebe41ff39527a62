// Package secrets stores tenant credentials and shared service keys. Credentials
// are never deleted; disabling keeps the material for audit but stops it from
// being handed out.
package secrets

import (
	"context"
	"time"
)

// SecretInfo describes a stored secret without its value.
type SecretInfo struct {
	Name      string
	Enabled   bool
	UpdatedAt time.Time
}

// Store is the credential vault abstraction.
type Store interface {
	// Put writes a new version of the secret and marks it enabled.
	Put(ctx context.Context, name, value string) error

	// Get returns the current value. Missing secrets yield not_found; disabled
	// secrets yield referential_error.
	Get(ctx context.Context, name string) (string, error)

	// Disable marks the secret unusable. Disabling twice is not an error.
	Disable(ctx context.Context, name string) error

	// List enumerates every secret, enabled or not.
	List(ctx context.Context) ([]SecretInfo, error)
}
