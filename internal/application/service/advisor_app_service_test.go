package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/ai"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/notify"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/search"
	"github.com/turtacn/compliance-advisor/pkg/errors"
)

type fakeModel struct {
	answer  string
	err     error
	prompts []string
}

func (m *fakeModel) Complete(_ context.Context, _, user string) (string, error) {
	m.prompts = append(m.prompts, user)
	return m.answer, m.err
}

type fakeNotifier struct {
	titles []string
	texts  []string
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, title, text string) error {
	n.titles = append(n.titles, title)
	n.texts = append(n.texts, text)
	return n.err
}

func newAdvisor(t *testing.T, index search.Index, model ai.ModelClient, notifier notify.Notifier) (AdvisorAppService, *fixture) {
	t.Helper()
	f := newFixture(t)
	seedPosture(t, f)
	reports := NewReportAppService(f.tenants, f.posture, nil, nil, f.log)
	return NewAdvisorAppService(reports, index, model, notifier, f.log), f
}

func TestAskScopes(t *testing.T) {
	index := &fakeIndex{results: []search.Document{{ID: "d1", TenantID: tenantA, ControlName: "MFARegistrationV2"}}}
	model := &fakeModel{answer: "Enable MFA registration."}
	svc, _ := newAdvisor(t, index, model, nil)
	ctx := context.Background()

	res, err := svc.Ask(ctx, models.TenantSession(tenantA), dto.AskRequest{Question: "  What should we fix first?  "})
	require.NoError(t, err)
	assert.Equal(t, "Enable MFA registration.", res.Answer)
	require.Len(t, res.Sources, 1)
	assert.Contains(t, model.prompts[0], "MFARegistrationV2")
	assert.True(t, strings.HasPrefix(model.prompts[0], "What should we fix first?"))

	_, err = svc.Ask(ctx, models.AdminSession(), dto.AskRequest{Question: "Where are we weakest?", CrossTenant: true})
	require.NoError(t, err)
	_, err = svc.Ask(ctx, models.AdminSession(), dto.AskRequest{Question: "How is B doing?", TenantID: tenantB})
	require.NoError(t, err)
	assert.Equal(t, []string{tenantA, "", tenantB}, index.scopes)
}

func TestAskRejections(t *testing.T) {
	index := &fakeIndex{}
	svc, _ := newAdvisor(t, index, &fakeModel{answer: "x"}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		sess models.Session
		req  dto.AskRequest
		kind errors.Kind
	}{
		{"empty question", models.AdminSession(), dto.AskRequest{Question: "   "}, errors.KindValidation},
		{"question too long", models.AdminSession(), dto.AskRequest{Question: strings.Repeat("a", dto.MaxQuestionLength+1)}, errors.KindValidation},
		{"malformed tenant", models.AdminSession(), dto.AskRequest{Question: "q", TenantID: "abc"}, errors.KindValidation},
		{"no session", models.Session{}, dto.AskRequest{Question: "q"}, errors.KindForbidden},
		{"cross tenant without admin", models.TenantSession(tenantA), dto.AskRequest{Question: "q", CrossTenant: true}, errors.KindForbidden},
		{"other tenant", models.TenantSession(tenantA), dto.AskRequest{Question: "q", TenantID: tenantB}, errors.KindForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ask(ctx, tt.sess, tt.req)
			assert.Equal(t, tt.kind, errors.KindOf(err))
		})
	}
	assert.Empty(t, index.scopes, "rejected questions never reach the index")
}

func TestAskPropagatesUpstreamErrors(t *testing.T) {
	svc, _ := newAdvisor(t, &fakeIndex{}, &fakeModel{err: errors.TransientUpstream("rate limited")}, nil)
	_, err := svc.Ask(context.Background(), models.AdminSession(), dto.AskRequest{Question: "q"})
	assert.True(t, errors.IsRetryable(err))
}

func TestBriefing(t *testing.T) {
	model := &fakeModel{answer: "All good."}
	svc, _ := newAdvisor(t, nil, model, nil)
	ctx := context.Background()

	res, err := svc.Briefing(ctx, models.AdminSession(), dto.BriefingRequest{Department: "Finance"})
	require.NoError(t, err)
	assert.True(t, res.Generated)
	assert.Equal(t, "All good.", res.Briefing)
	assert.Contains(t, model.prompts[0], tenantA)
	assert.NotContains(t, model.prompts[0], `"tenant_id":"`+tenantB, "department filter applies to the briefing data")
}

func TestBriefingFallsBackToTemplate(t *testing.T) {
	svc, _ := newAdvisor(t, nil, &fakeModel{err: errors.Upstream("model offline")}, nil)

	res, err := svc.Briefing(context.Background(), models.TenantSession(tenantA), dto.BriefingRequest{})
	require.NoError(t, err)
	assert.False(t, res.Generated)
	assert.Contains(t, res.Briefing, "Executive compliance briefing")
	assert.Contains(t, res.Briefing, "Tenant "+tenantA[:4])
	assert.NotContains(t, res.Briefing, "Tenant "+tenantB[:4])
}

func TestWeeklyDigestPostsToNotifier(t *testing.T) {
	notifier := &fakeNotifier{}
	svc, _ := newAdvisor(t, nil, &fakeModel{answer: "   "}, notifier)

	res, err := svc.WeeklyDigest(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Generated, "blank model output falls back to the template")
	require.Len(t, notifier.titles, 1)
	assert.True(t, strings.HasPrefix(notifier.titles[0], "Weekly compliance digest - "))
	assert.Equal(t, res.Briefing, notifier.texts[0])

	notifier.err = errors.TransientUpstream("webhook down")
	_, err = svc.WeeklyDigest(context.Background())
	assert.True(t, errors.IsRetryable(err))
}

func TestTaskRunner(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantA, "Finance")
	sync := NewSyncAppService(f.tenants, f.posture, f.secrets, newScriptedCollector(), nil, nil, syncConfig(), nil, f.log)
	reports := NewReportAppService(f.tenants, f.posture, nil, nil, f.log)
	notifier := &fakeNotifier{}
	runner := &TaskRunner{
		Sync:    sync,
		Advisor: NewAdvisorAppService(reports, nil, nil, notifier, f.log),
		Logger:  f.log,
	}
	ctx := context.Background()

	require.NoError(t, runner.SyncAll(ctx))
	require.NoError(t, runner.SyncTenantByID(ctx, tenantA))
	assert.Equal(t, errors.KindReferential, errors.KindOf(runner.SyncTenantByID(ctx, tenantB)))
	require.NoError(t, runner.WeeklyDigest(ctx))
	assert.Len(t, notifier.texts, 1)
}
