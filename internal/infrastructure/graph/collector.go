package graph

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// Collector pulls everything one sync needs for one tenant and shapes it into
// a posture batch.
type Collector struct {
	client *Client
	tokens TokenProvider
	days   int
	now    func() time.Time
	log    logger.Logger
}

// NewCollector creates a collector. days is clamped to the secure score window.
func NewCollector(client *Client, tokens TokenProvider, days int, log logger.Logger) *Collector {
	if days < 1 || days > constants.MaxSecureScoreDays {
		days = constants.MaxSecureScoreDays
	}
	return &Collector{
		client: client,
		tokens: tokens,
		days:   days,
		now:    time.Now,
		log:    log.WithComponent("graph_collector"),
	}
}

// Collect fetches and converts one tenant's posture.
func (c *Collector) Collect(ctx context.Context, creds Credentials) (*models.PostureBatch, error) {
	token, err := c.tokens.Token(ctx, creds, c.client.Scope())
	if err != nil {
		return nil, err
	}

	scores, err := c.client.SecureScores(ctx, token, c.days)
	if err != nil {
		return nil, err
	}
	profiles, err := c.client.ControlProfiles(ctx, token)
	if err != nil {
		return nil, err
	}
	compliance, err := c.client.ComplianceScore(ctx, token)
	if err != nil {
		return nil, err
	}
	categories, err := c.client.ComplianceCategories(ctx, token)
	if err != nil {
		return nil, err
	}
	assessments, err := c.client.Assessments(ctx, token)
	if err != nil {
		return nil, err
	}
	controls := make(map[string][]AssessmentControl, len(assessments))
	for _, a := range assessments {
		if a.ID == "" {
			continue
		}
		ctls, err := c.client.AssessmentControls(ctx, token, a.ID)
		if err != nil {
			return nil, err
		}
		controls[a.ID] = ctls
	}

	batch := BuildBatch(creds.TenantID, c.now(), scores, profiles, compliance, categories, assessments, controls)
	c.log.Info(ctx, "Collected tenant posture",
		logger.String("tenant_id", creds.TenantID),
		logger.Int("secure_scores", len(scores)),
		logger.Int("assessments", len(batch.Assessments)),
		logger.Int("assessment_controls", len(batch.AssessmentControls)),
	)
	return batch, nil
}

// BuildBatch converts upstream payloads into store rows. Duplicate keys keep
// the last occurrence.
func BuildBatch(
	tenantID string,
	now time.Time,
	scores []SecureScore,
	profiles []ControlProfile,
	compliance *ComplianceScore,
	categories []ComplianceCategory,
	assessments []Assessment,
	controls map[string][]AssessmentControl,
) *models.PostureBatch {
	today := models.DateOf(now)
	syncedAt := now.UTC()
	batch := &models.PostureBatch{TenantID: tenantID, SnapshotDate: today}

	profileByID := make(map[string]ControlProfile, len(profiles))
	for _, p := range profiles {
		profileByID[p.ID] = p
	}

	scoreIdx := map[string]int{}
	putScore := func(s models.ScoreSnapshot) {
		key := s.SnapshotDate.Format("2006-01-02") + "|" + s.Category
		if i, ok := scoreIdx[key]; ok {
			batch.Scores[i] = s
			return
		}
		scoreIdx[key] = len(batch.Scores)
		batch.Scores = append(batch.Scores, s)
	}
	controlIdx := map[string]int{}
	putControl := func(r models.ControlRecord) {
		key := r.SnapshotDate.Format("2006-01-02") + "|" + r.ControlName
		if i, ok := controlIdx[key]; ok {
			batch.Controls[i] = r
			return
		}
		controlIdx[key] = len(batch.Controls)
		batch.Controls = append(batch.Controls, r)
	}

	for _, s := range scores {
		date, ok := parseDate(s.CreatedDateTime)
		if !ok {
			continue
		}
		putScore(models.ScoreSnapshot{
			TenantID:     tenantID,
			SnapshotDate: date,
			Category:     constants.CategorySecureScore,
			CurrentScore: s.CurrentScore,
			MaxScore:     s.MaxScore,
			RawJSON:      datatypes.JSON(s.Raw),
		})
		for _, cs := range s.ControlScores {
			if cs.ControlName == "" {
				continue
			}
			rec := models.ControlRecord{
				TenantID:        tenantID,
				SnapshotDate:    date,
				ControlName:     cs.ControlName,
				ControlCategory: cs.ControlCategory,
				Description:     cs.Description,
				Score:           cs.Score,
				MaxScore:        cs.MaxScore,
			}
			if p, ok := profileByID[cs.ControlName]; ok {
				rec.Title = p.Title
				rec.Rank = p.Rank
				rec.ActionType = p.ActionType
				rec.Service = p.Service
				rec.RemediationURL = p.ActionURL
				if rec.MaxScore == 0 {
					rec.MaxScore = p.MaxScore
				}
				if rec.ControlCategory == "" {
					rec.ControlCategory = p.ControlCategory
				}
			}
			putControl(rec)
		}
	}

	assessmentIdx := map[string]int{}
	controlKeyIdx := map[string]int{}
	for _, a := range assessments {
		if a.ID == "" {
			continue
		}
		row := models.Assessment{
			TenantID:        tenantID,
			AssessmentID:    a.ID,
			DisplayName:     a.DisplayName,
			Description:     a.Description,
			Status:          a.Status,
			Regulation:      a.RegulationLabel(),
			ComplianceScore: a.ComplianceScore,
			PassedControls:  a.PassedControls,
			FailedControls:  a.FailedControls,
			TotalControls:   a.TotalControls,
			CreatedDate:     parseTime(a.CreatedDateTime),
			LastModified:    parseTime(a.LastModifiedDateTime),
			SyncedAt:        syncedAt,
		}
		if i, ok := assessmentIdx[a.ID]; ok {
			batch.Assessments[i] = row
		} else {
			assessmentIdx[a.ID] = len(batch.Assessments)
			batch.Assessments = append(batch.Assessments, row)
		}

		for _, ctl := range controls[a.ID] {
			if ctl.ID == "" {
				continue
			}
			crow := models.AssessmentControl{
				TenantID:              tenantID,
				AssessmentID:          a.ID,
				ControlID:             ctl.ID,
				ControlName:           ctl.Name(),
				ControlFamily:         ctl.ControlFamily,
				ControlCategory:       ctl.ControlCategory,
				ImplementationStatus:  ctl.ImplementationStatus,
				TestStatus:            ctl.TestStatus,
				Score:                 ctl.Score,
				MaxScore:              ctl.MaxScore,
				ScoreImpact:           ctl.ScoreImpact,
				Owner:                 ctl.Owner,
				ActionURL:             ctl.ActionURL,
				ImplementationDetails: ctl.ImplementationDetails,
				TestPlan:              ctl.TestPlan,
				ManagementResponse:    ctl.ManagementResponse,
				EvidenceOfCompletion:  ctl.EvidenceOfCompletion,
				Service:               ctl.Service,
				SyncedAt:              syncedAt,
			}
			key := a.ID + "|" + ctl.ID
			if i, ok := controlKeyIdx[key]; ok {
				batch.AssessmentControls[i] = crow
			} else {
				controlKeyIdx[key] = len(batch.AssessmentControls)
				batch.AssessmentControls = append(batch.AssessmentControls, crow)
			}
		}
	}

	overall, hasOverall := overallScore(compliance, batch.Assessments)
	if hasOverall {
		putScore(models.ScoreSnapshot{
			TenantID:     tenantID,
			SnapshotDate: today,
			Category:     constants.CategoryOverall,
			CurrentScore: overall.CurrentScore,
			MaxScore:     overall.MaxScore,
		})
	}
	for _, cat := range categories {
		putScore(models.ScoreSnapshot{
			TenantID:     tenantID,
			SnapshotDate: today,
			Category:     cat.Name(),
			CurrentScore: cat.CurrentScore,
			MaxScore:     cat.MaxScore,
		})
	}
	return batch
}

// overallScore prefers the direct compliance score; without one it derives the
// mean of assessment compliance scores against a max of 100.
func overallScore(direct *ComplianceScore, assessments []models.Assessment) (ComplianceScore, bool) {
	if direct != nil {
		return *direct, true
	}
	var sum float64
	var n int
	for _, a := range assessments {
		if a.ComplianceScore != nil {
			sum += *a.ComplianceScore
			n++
		}
	}
	if n == 0 {
		return ComplianceScore{}, false
	}
	return ComplianceScore{CurrentScore: sum / float64(n), MaxScore: 100}, true
}

func parseDate(s string) (time.Time, bool) {
	if len(s) < 10 {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
