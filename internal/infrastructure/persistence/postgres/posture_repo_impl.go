package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/domain/repository"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/policy"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

const upsertBatchSize = 500

// PostureRepoImpl implements PostureRepository with gorm.
type PostureRepoImpl struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewPostureRepository creates a posture repository.
func NewPostureRepository(db *gorm.DB, log logger.Logger) repository.PostureRepository {
	return &PostureRepoImpl{
		db:     db,
		logger: log.WithComponent("posture_repository"),
	}
}

// WriteBatch upserts every row of the batch in one transaction. Either all rows
// land or none do.
func (r *PostureRepoImpl) WriteBatch(ctx context.Context, sess models.Session, batch *models.PostureBatch) error {
	if batch == nil {
		return errors.Validation("posture batch is required")
	}
	if err := policy.Authorize(sess, batch.TenantID); err != nil {
		return err
	}
	if err := normalizeBatch(batch); err != nil {
		return err
	}
	startTime := time.Now()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireActiveTenant(tx, batch.TenantID); err != nil {
			return err
		}
		if len(batch.Scores) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "snapshot_date"}, {Name: "category"}},
				DoUpdates: clause.AssignmentColumns([]string{"current_score", "max_score", "raw_json", "updated_at"}),
			}).CreateInBatches(&batch.Scores, upsertBatchSize).Error; err != nil {
				return translate(err, "upsert score snapshots")
			}
		}
		if len(batch.Controls) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "tenant_id"}, {Name: "snapshot_date"}, {Name: "control_name"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"control_category", "title", "description", "score", "max_score",
					"action_type", "rank", "service", "remediation_url", "updated_at",
				}),
			}).CreateInBatches(&batch.Controls, upsertBatchSize).Error; err != nil {
				return translate(err, "upsert control records")
			}
		}
		if len(batch.Assessments) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "tenant_id"}, {Name: "assessment_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"display_name", "description", "status", "regulation", "compliance_score",
					"passed_controls", "failed_controls", "total_controls",
					"created_date", "last_modified", "synced_at",
				}),
			}).CreateInBatches(&batch.Assessments, upsertBatchSize).Error; err != nil {
				return translate(err, "upsert assessments")
			}
		}
		if len(batch.AssessmentControls) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "tenant_id"}, {Name: "assessment_id"}, {Name: "control_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"control_name", "control_family", "control_category", "implementation_status",
					"test_status", "score", "max_score", "score_impact", "owner", "action_url",
					"implementation_details", "test_plan", "management_response",
					"evidence_of_completion", "service", "synced_at",
				}),
			}).CreateInBatches(&batch.AssessmentControls, upsertBatchSize).Error; err != nil {
				return translate(err, "upsert assessment controls")
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error(ctx, "Failed to write posture batch", err, logger.String("tenant_id", batch.TenantID))
		return err
	}

	r.logger.Debug(ctx, "Posture batch written",
		logger.String("tenant_id", batch.TenantID),
		logger.Int("scores", len(batch.Scores)),
		logger.Int("controls", len(batch.Controls)),
		logger.Int("assessments", len(batch.Assessments)),
		logger.Int("assessment_controls", len(batch.AssessmentControls)),
		logger.Int64("latency_ms", time.Since(startTime).Milliseconds()),
	)
	return nil
}

// ListSnapshots returns visible snapshots ordered by tenant, date and category.
func (r *PostureRepoImpl) ListSnapshots(ctx context.Context, sess models.Session, q repository.SnapshotQuery) ([]models.ScoreSnapshot, error) {
	var rows []models.ScoreSnapshot
	db := r.db.WithContext(ctx).Scopes(policy.TenantRows(sess))
	if q.TenantID != "" {
		db = db.Where("tenant_id = ?", q.TenantID)
	}
	if len(q.Categories) > 0 {
		db = db.Where("category IN ?", q.Categories)
	}
	if !q.Since.IsZero() {
		db = db.Where("snapshot_date >= ?", models.DateOf(q.Since))
	}
	if err := db.Order("tenant_id, snapshot_date, category").Find(&rows).Error; err != nil {
		return nil, translate(err, "list score snapshots")
	}
	return rows, nil
}

// ListLatestSnapshots returns one snapshot of category per tenant, taken on that tenant's most
// recent snapshot date for the category. There is no time window.
func (r *PostureRepoImpl) ListLatestSnapshots(ctx context.Context, sess models.Session, category string) ([]models.ScoreSnapshot, error) {
	var rows []models.ScoreSnapshot
	err := r.db.WithContext(ctx).
		Scopes(policy.TenantRows(sess)).
		Joins(`JOIN (SELECT tenant_id AS latest_tenant, MAX(snapshot_date) AS latest_date
			FROM score_snapshots WHERE category = ? GROUP BY tenant_id) latest
			ON latest.latest_tenant = score_snapshots.tenant_id AND latest.latest_date = score_snapshots.snapshot_date`, category).
		Where("score_snapshots.category = ?", category).
		Order("score_snapshots.tenant_id").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, "list latest score snapshots")
	}
	return rows, nil
}

// ListLatestControls returns control records from each tenant's most recent snapshot date.
func (r *PostureRepoImpl) ListLatestControls(ctx context.Context, sess models.Session) ([]models.ControlRecord, error) {
	var rows []models.ControlRecord
	err := r.db.WithContext(ctx).
		Scopes(policy.TenantRows(sess)).
		Joins(`JOIN (SELECT tenant_id AS latest_tenant, MAX(snapshot_date) AS latest_date
			FROM control_records GROUP BY tenant_id) latest
			ON latest.latest_tenant = control_records.tenant_id AND latest.latest_date = control_records.snapshot_date`).
		Order("control_records.tenant_id, control_records.rank").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err, "list control records")
	}
	return rows, nil
}

func (r *PostureRepoImpl) ListAssessments(ctx context.Context, sess models.Session) ([]models.Assessment, error) {
	var rows []models.Assessment
	if err := r.db.WithContext(ctx).Scopes(policy.TenantRows(sess)).
		Order("tenant_id, assessment_id").Find(&rows).Error; err != nil {
		return nil, translate(err, "list assessments")
	}
	return rows, nil
}

func (r *PostureRepoImpl) ListAssessmentControls(ctx context.Context, sess models.Session) ([]models.AssessmentControl, error) {
	var rows []models.AssessmentControl
	if err := r.db.WithContext(ctx).Scopes(policy.TenantRows(sess)).
		Order("tenant_id, assessment_id, control_id").Find(&rows).Error; err != nil {
		return nil, translate(err, "list assessment controls")
	}
	return rows, nil
}

// requireActiveTenant fails with a referential error unless the tenant exists and is active.
func requireActiveTenant(tx *gorm.DB, tenantID string) error {
	var n int64
	if err := tx.Model(&models.Tenant{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Count(&n).Error; err != nil {
		return translate(err, "check tenant")
	}
	if n == 0 {
		return errors.Referential("tenant %s is not registered or not active", tenantID)
	}
	return nil
}

// normalizeBatch truncates dates to days and rejects rows owned by another tenant.
func normalizeBatch(b *models.PostureBatch) error {
	check := func(kind, owner string) error {
		if owner != b.TenantID {
			return errors.Invariant("%s row for tenant %q in batch for tenant %q", kind, owner, b.TenantID)
		}
		return nil
	}
	for i := range b.Scores {
		if err := check("score", b.Scores[i].TenantID); err != nil {
			return err
		}
		b.Scores[i].SnapshotDate = models.DateOf(b.Scores[i].SnapshotDate)
	}
	for i := range b.Controls {
		if err := check("control", b.Controls[i].TenantID); err != nil {
			return err
		}
		b.Controls[i].SnapshotDate = models.DateOf(b.Controls[i].SnapshotDate)
	}
	for i := range b.Assessments {
		if err := check("assessment", b.Assessments[i].TenantID); err != nil {
			return err
		}
	}
	for i := range b.AssessmentControls {
		if err := check("assessment control", b.AssessmentControls[i].TenantID); err != nil {
			return err
		}
	}
	return nil
}
