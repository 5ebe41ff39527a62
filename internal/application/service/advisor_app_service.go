package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/ai"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/notify"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/search"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
	"github.com/turtacn/compliance-advisor/pkg/utils"
)

const (
	groundingDocuments = 10
	briefingGaps       = 10
)

// AdvisorAppService answers questions and writes briefings from stored posture.
type AdvisorAppService interface {
	Ask(ctx context.Context, sess models.Session, req dto.AskRequest) (*dto.AskResponse, error)
	Briefing(ctx context.Context, sess models.Session, req dto.BriefingRequest) (*dto.BriefingResponse, error)
	// WeeklyDigest writes the enterprise digest and posts it to the notifier.
	WeeklyDigest(ctx context.Context) (*dto.BriefingResponse, error)
}

type advisorAppServiceImpl struct {
	reports  ReportAppService
	index    search.Index
	model    ai.ModelClient
	notifier notify.Notifier
	logger   logger.Logger
	now      func() time.Time
}

func NewAdvisorAppService(
	reports ReportAppService,
	index search.Index,
	model ai.ModelClient,
	notifier notify.Notifier,
	log logger.Logger,
) AdvisorAppService {
	if index == nil {
		index = search.NoopIndex{}
	}
	if model == nil {
		model = ai.DisabledClient{}
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &advisorAppServiceImpl{
		reports:  reports,
		index:    index,
		model:    model,
		notifier: notifier,
		logger:   log.WithComponent("advisor"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ask grounds the question on indexed posture documents. Tenant sessions are
// always restricted to their own documents; cross-tenant questions need admin.
func (s *advisorAppServiceImpl) Ask(ctx context.Context, sess models.Session, req dto.AskRequest) (*dto.AskResponse, error) {
	req.Question = strings.TrimSpace(req.Question)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}

	scope, err := askScope(sess, req)
	if err != nil {
		return nil, err
	}

	docs, err := s.index.Search(ctx, req.Question, scope, groundingDocuments)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []search.Document{}
	}

	answer, err := s.model.Complete(ctx, advisorInstructions, askPrompt(req.Question, scope, docs))
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Advisor answered question",
		logger.String("session", sess.Scope()),
		logger.String("question", utils.Truncate(req.Question, 80)),
		logger.Int("sources", len(docs)),
	)
	return &dto.AskResponse{Answer: answer, Sources: docs}, nil
}

// askScope returns the tenant filter for the search, or "" for every tenant.
func askScope(sess models.Session, req dto.AskRequest) (string, error) {
	switch {
	case sess.IsZero():
		return "", errors.Forbidden("session carries no tenant or admin scope")
	case req.CrossTenant && !sess.IsAdmin:
		return "", errors.Forbidden("cross-tenant questions require an administrative session")
	case sess.IsAdmin && req.CrossTenant:
		return "", nil
	case sess.IsAdmin:
		return req.TenantID, nil
	case req.TenantID != "" && req.TenantID != sess.TenantID:
		return "", errors.Forbidden("session %s may not query tenant %s", sess.Scope(), req.TenantID)
	default:
		return sess.TenantID, nil
	}
}

func askPrompt(question, scope string, docs []search.Document) string {
	var b strings.Builder
	b.WriteString(question)
	if scope != "" {
		b.WriteString("\n\n[Scope: answer for tenant " + scope + " only]")
	}
	b.WriteString("\n\nPosture records:\n")
	if len(docs) == 0 {
		b.WriteString("(no indexed records matched)\n")
	}
	for _, d := range docs {
		raw, _ := json.Marshal(d)
		b.Write(raw)
		b.WriteByte('\n')
	}
	return b.String()
}

// Briefing asks the model for an executive briefing and falls back to the
// template rendering of the same data when the model is unavailable.
func (s *advisorAppServiceImpl) Briefing(ctx context.Context, sess models.Session, req dto.BriefingRequest) (*dto.BriefingResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, err
	}
	data, err := s.collect(ctx, sess, req.Department)
	if err != nil {
		return nil, err
	}
	data.Title = "Executive compliance briefing"
	return s.write(ctx, briefingInstructions, data)
}

func (s *advisorAppServiceImpl) WeeklyDigest(ctx context.Context) (*dto.BriefingResponse, error) {
	data, err := s.collect(ctx, models.AdminSession(), "")
	if err != nil {
		return nil, err
	}
	data.Title = "Weekly compliance digest"

	resp, err := s.write(ctx, digestInstructions, data)
	if err != nil {
		return nil, err
	}
	if err := s.notifier.Notify(ctx, data.Title+" - "+data.GeneratedAt.Format("2006-01-02"), resp.Briefing); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Weekly digest posted", logger.Bool("generated", resp.Generated))
	return resp, nil
}

func (s *advisorAppServiceImpl) collect(ctx context.Context, sess models.Session, department string) (postureDigest, error) {
	compliance, err := s.reports.Compliance(ctx, sess, dto.ComplianceRequest{Department: department})
	if err != nil {
		return postureDigest{}, err
	}
	assessments, err := s.reports.Assessments(ctx, sess, dto.AssessmentsRequest{Department: department, TopGaps: briefingGaps})
	if err != nil {
		return postureDigest{}, err
	}
	return postureDigest{
		Department:       department,
		GeneratedAt:      s.now(),
		LatestScores:     compliance.LatestScores,
		WeeklyChanges:    compliance.WeeklyChanges,
		DepartmentRollup: compliance.DepartmentRollup,
		Assessments:      assessments.Assessments,
		TopGaps:          assessments.TopGaps,
	}, nil
}

func (s *advisorAppServiceImpl) write(ctx context.Context, instructions string, data postureDigest) (*dto.BriefingResponse, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Internal("encode briefing data").WithCause(err)
	}

	text, err := s.model.Complete(ctx, instructions, string(payload))
	if err == nil && strings.TrimSpace(text) != "" {
		return &dto.BriefingResponse{Briefing: text, Generated: true}, nil
	}
	if err != nil {
		s.logger.Warn(ctx, "Model unavailable, using template rendering", logger.String("error", err.Error()))
	}

	text, err = renderFallback(data)
	if err != nil {
		return nil, errors.Internal("render briefing").WithCause(err)
	}
	return &dto.BriefingResponse{Briefing: text}, nil
}
