package repository

import (
	"context"
	"time"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
)

// SnapshotQuery narrows snapshot reads. Zero fields match everything.
type SnapshotQuery struct {
	TenantID   string
	Categories []string
	Since      time.Time
}

// PostureRepository stores tenant posture data. Every method takes the caller's
// session explicitly; there is no unscoped read path.
type PostureRepository interface {
	// WriteBatch upserts one tenant's batch atomically. The tenant must be active.
	WriteBatch(ctx context.Context, sess models.Session, batch *models.PostureBatch) error

	ListSnapshots(ctx context.Context, sess models.Session, q SnapshotQuery) ([]models.ScoreSnapshot, error)

	// ListLatestSnapshots returns each visible tenant's snapshot of category from its most recent
	// snapshot date for that category, however old.
	ListLatestSnapshots(ctx context.Context, sess models.Session, category string) ([]models.ScoreSnapshot, error)

	// ListLatestControls returns each visible tenant's control records from its most recent snapshot date.
	ListLatestControls(ctx context.Context, sess models.Session) ([]models.ControlRecord, error)

	ListAssessments(ctx context.Context, sess models.Session) ([]models.Assessment, error)

	ListAssessmentControls(ctx context.Context, sess models.Session) ([]models.AssessmentControl, error)
}
