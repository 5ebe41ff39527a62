package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/domain/repository"
	domainservice "github.com/turtacn/compliance-advisor/internal/domain/service"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/monitoring"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/persistence/redis"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
	"github.com/turtacn/compliance-advisor/pkg/utils"
)

// ReportAppService serves the read-only dashboard views. Every read runs
// through the caller's session, so tenant sessions only ever see their own rows.
type ReportAppService interface {
	Compliance(ctx context.Context, sess models.Session, req dto.ComplianceRequest) (*dto.ComplianceResponse, error)
	Assessments(ctx context.Context, sess models.Session, req dto.AssessmentsRequest) (*dto.AssessmentsResponse, error)
	Regulations(ctx context.Context, sess models.Session) (*dto.RegulationsResponse, error)
	Actions(ctx context.Context, sess models.Session, req dto.ActionsRequest) (*dto.ActionsResponse, error)
	Status(ctx context.Context, sess models.Session) (*models.SyncStatus, error)
	Trends(ctx context.Context, sess models.Session, req dto.TrendsRequest) (*dto.TrendsResponse, error)
	Departments(ctx context.Context, sess models.Session) (*dto.DepartmentsResponse, error)
}

type reportAppServiceImpl struct {
	tenants repository.TenantRepository
	posture repository.PostureRepository
	cache   redis.ReportCache
	metrics *monitoring.Metrics
	logger  logger.Logger
	now     func() time.Time
}

func NewReportAppService(
	tenants repository.TenantRepository,
	posture repository.PostureRepository,
	cache redis.ReportCache,
	metrics *monitoring.Metrics,
	log logger.Logger,
) ReportAppService {
	if cache == nil {
		cache = redis.NoopReportCache{}
	}
	return &reportAppServiceImpl{
		tenants: tenants,
		posture: posture,
		cache:   cache,
		metrics: metrics,
		logger:  log.WithComponent("reports"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// cached serves dst from the report cache or computes it. Cache failures are
// logged and bypassed.
func cached[T any](ctx context.Context, s *reportAppServiceImpl, sess models.Session, action string, filters interface{}, compute func() (*T, error)) (*T, error) {
	if sess.IsZero() {
		return nil, errors.Forbidden("session carries no tenant or admin scope")
	}
	raw, _ := json.Marshal(filters)
	key := action + ":" + sess.Scope() + ":" + string(raw)

	var hit T
	found, err := s.cache.Get(ctx, key, &hit)
	switch {
	case err != nil:
		s.metrics.RecordCacheLookup("error")
		s.logger.Warn(ctx, "Report cache read failed", logger.String("action", action), logger.String("error", err.Error()))
	case found:
		s.metrics.RecordCacheLookup("hit")
		return &hit, nil
	default:
		s.metrics.RecordCacheLookup("miss")
	}

	out, err := compute()
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, out); err != nil {
		s.logger.Warn(ctx, "Report cache write failed", logger.String("action", action), logger.String("error", err.Error()))
	}
	return out, nil
}

func (s *reportAppServiceImpl) Compliance(ctx context.Context, sess models.Session, req dto.ComplianceRequest) (*dto.ComplianceResponse, error) {
	req.Normalize()
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	return cached(ctx, s, sess, "compliance", req, func() (*dto.ComplianceResponse, error) {
		tenants, snaps, err := s.scores(ctx, sess, []string{constants.CategoryOverall})
		if err != nil {
			return nil, err
		}
		latest, err := s.posture.ListLatestSnapshots(ctx, sess, constants.CategoryOverall)
		if err != nil {
			return nil, err
		}
		scoped := inDepartment(tenants, req.Department)
		since := s.now().AddDate(0, 0, -req.Days)
		return &dto.ComplianceResponse{
			LatestScores:     domainservice.LatestScores(scoped, latest, constants.CategoryOverall),
			ComplianceTrend:  domainservice.ScoreTrend(scoped, snaps, constants.CategoryOverall, since),
			WeeklyChanges:    domainservice.WeeklyChanges(scoped, snaps, constants.CategoryOverall),
			DepartmentRollup: domainservice.DepartmentRollup(domainservice.LatestScores(tenants, latest, constants.CategoryOverall)),
			Filters:          req,
		}, nil
	})
}

func (s *reportAppServiceImpl) Assessments(ctx context.Context, sess models.Session, req dto.AssessmentsRequest) (*dto.AssessmentsResponse, error) {
	req.Normalize()
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	return cached(ctx, s, sess, "assessments", req, func() (*dto.AssessmentsResponse, error) {
		tenants, assessments, controls, err := s.assessmentData(ctx, sess)
		if err != nil {
			return nil, err
		}
		filter := models.ViewFilter{Department: req.Department, Regulation: req.Regulation}
		return &dto.AssessmentsResponse{
			Assessments:     domainservice.AssessmentSummaries(tenants, assessments, filter),
			TopGaps:         domainservice.TopGaps(tenants, assessments, controls, filter, req.TopGaps),
			ControlFamilies: domainservice.ControlFamilies(tenants, assessments, controls, filter),
			Filters:         req,
		}, nil
	})
}

func (s *reportAppServiceImpl) Regulations(ctx context.Context, sess models.Session) (*dto.RegulationsResponse, error) {
	return cached(ctx, s, sess, "regulations", nil, func() (*dto.RegulationsResponse, error) {
		tenants, err := s.tenants.List(ctx, sess, true)
		if err != nil {
			return nil, err
		}
		assessments, err := s.posture.ListAssessments(ctx, sess)
		if err != nil {
			return nil, err
		}
		since := s.now().AddDate(0, 0, -constants.MaxTrendDays)
		snaps, err := s.posture.ListSnapshots(ctx, sess, repository.SnapshotQuery{Since: since})
		if err != nil {
			return nil, err
		}
		return &dto.RegulationsResponse{
			Regulations:    domainservice.RegulationCoverage(tenants, assessments),
			CategoryTrends: domainservice.CategoryTrends(tenants, snaps, since),
		}, nil
	})
}

func (s *reportAppServiceImpl) Actions(ctx context.Context, sess models.Session, req dto.ActionsRequest) (*dto.ActionsResponse, error) {
	req.Normalize()
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	return cached(ctx, s, sess, "actions", req, func() (*dto.ActionsResponse, error) {
		tenants, assessments, controls, err := s.assessmentData(ctx, sess)
		if err != nil {
			return nil, err
		}
		report := domainservice.ImprovementActions(tenants, assessments, controls, req.Filter(), req.TopN)
		return &dto.ActionsResponse{
			Actions:        report.Actions,
			Summary:        report.Summary,
			OwnerBreakdown: report.OwnerBreakdown,
			Filters:        req,
		}, nil
	})
}

// Status is never cached: operators use it to watch a sync land.
func (s *reportAppServiceImpl) Status(ctx context.Context, sess models.Session) (*models.SyncStatus, error) {
	if sess.IsZero() {
		return nil, errors.Forbidden("session carries no tenant or admin scope")
	}
	tenants, err := s.tenants.List(ctx, sess, true)
	if err != nil {
		return nil, err
	}
	status := domainservice.Status(tenants)
	return &status, nil
}

func (s *reportAppServiceImpl) Trends(ctx context.Context, sess models.Session, req dto.TrendsRequest) (*dto.TrendsResponse, error) {
	req.Normalize()
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	return cached(ctx, s, sess, "trends", req, func() (*dto.TrendsResponse, error) {
		tenants, snaps, err := s.scores(ctx, sess, nil)
		if err != nil {
			return nil, err
		}
		scoped := inDepartment(tenants, req.Department)
		if req.TenantID != "" {
			scoped = withTenant(scoped, req.TenantID)
		}
		since := s.now().AddDate(0, 0, -req.Days)
		return &dto.TrendsResponse{
			ScoreTrend:     domainservice.ScoreTrend(scoped, snaps, constants.CategorySecureScore, since),
			WeeklyChanges:  domainservice.WeeklyChanges(scoped, snaps, constants.CategorySecureScore),
			CategoryTrends: domainservice.CategoryTrends(scoped, snaps, since),
			Filters:        req,
		}, nil
	})
}

func (s *reportAppServiceImpl) Departments(ctx context.Context, sess models.Session) (*dto.DepartmentsResponse, error) {
	return cached(ctx, s, sess, "departments", nil, func() (*dto.DepartmentsResponse, error) {
		tenants, err := s.tenants.List(ctx, sess, true)
		if err != nil {
			return nil, err
		}
		snaps, err := s.posture.ListLatestSnapshots(ctx, sess, constants.CategorySecureScore)
		if err != nil {
			return nil, err
		}
		latest := domainservice.LatestScores(tenants, snaps, constants.CategorySecureScore)
		return &dto.DepartmentsResponse{
			Departments: domainservice.DepartmentRollup(latest),
			RiskTiers:   domainservice.RiskTierRollup(latest),
		}, nil
	})
}

// scores loads the visible tenants and their snapshots of the trend window.
// Latest-per-tenant views read ListLatestSnapshots instead, which has no window.
func (s *reportAppServiceImpl) scores(ctx context.Context, sess models.Session, categories []string) ([]models.Tenant, []models.ScoreSnapshot, error) {
	tenants, err := s.tenants.List(ctx, sess, true)
	if err != nil {
		return nil, nil, err
	}
	snaps, err := s.posture.ListSnapshots(ctx, sess, repository.SnapshotQuery{
		Categories: categories,
		Since:      s.now().AddDate(0, 0, -constants.MaxTrendDays),
	})
	if err != nil {
		return nil, nil, err
	}
	return tenants, snaps, nil
}

func (s *reportAppServiceImpl) assessmentData(ctx context.Context, sess models.Session) ([]models.Tenant, []models.Assessment, []models.AssessmentControl, error) {
	tenants, err := s.tenants.List(ctx, sess, true)
	if err != nil {
		return nil, nil, nil, err
	}
	assessments, err := s.posture.ListAssessments(ctx, sess)
	if err != nil {
		return nil, nil, nil, err
	}
	controls, err := s.posture.ListAssessmentControls(ctx, sess)
	if err != nil {
		return nil, nil, nil, err
	}
	return tenants, assessments, controls, nil
}

func inDepartment(tenants []models.Tenant, department string) []models.Tenant {
	if department == "" {
		return tenants
	}
	out := make([]models.Tenant, 0, len(tenants))
	for _, t := range tenants {
		if t.Department == department {
			out = append(out, t)
		}
	}
	return out
}

func withTenant(tenants []models.Tenant, tenantID string) []models.Tenant {
	for _, t := range tenants {
		if t.TenantID == tenantID {
			return []models.Tenant{t}
		}
	}
	return nil
}
