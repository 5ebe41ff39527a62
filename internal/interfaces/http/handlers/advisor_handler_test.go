package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// MockAdvisorAppService is a mock for the AdvisorAppService
type MockAdvisorAppService struct {
	mock.Mock
}

func (m *MockAdvisorAppService) Ask(ctx context.Context, sess models.Session, req dto.AskRequest) (*dto.AskResponse, error) {
	args := m.Called(ctx, sess, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AskResponse), args.Error(1)
}

func (m *MockAdvisorAppService) Briefing(ctx context.Context, sess models.Session, req dto.BriefingRequest) (*dto.BriefingResponse, error) {
	args := m.Called(ctx, sess, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.BriefingResponse), args.Error(1)
}

func (m *MockAdvisorAppService) WeeklyDigest(ctx context.Context) (*dto.BriefingResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.BriefingResponse), args.Error(1)
}

// MockReportAppService is a mock for the ReportAppService
type MockReportAppService struct {
	mock.Mock
}

func (m *MockReportAppService) Compliance(ctx context.Context, sess models.Session, req dto.ComplianceRequest) (*dto.ComplianceResponse, error) {
	args := m.Called(ctx, sess, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ComplianceResponse), args.Error(1)
}

func (m *MockReportAppService) Assessments(ctx context.Context, sess models.Session, req dto.AssessmentsRequest) (*dto.AssessmentsResponse, error) {
	args := m.Called(ctx, sess, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.AssessmentsResponse), args.Error(1)
}

func (m *MockReportAppService) Regulations(ctx context.Context, sess models.Session) (*dto.RegulationsResponse, error) {
	args := m.Called(ctx, sess)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.RegulationsResponse), args.Error(1)
}

func (m *MockReportAppService) Actions(ctx context.Context, sess models.Session, req dto.ActionsRequest) (*dto.ActionsResponse, error) {
	args := m.Called(ctx, sess, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ActionsResponse), args.Error(1)
}

func (m *MockReportAppService) Status(ctx context.Context, sess models.Session) (*models.SyncStatus, error) {
	args := m.Called(ctx, sess)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SyncStatus), args.Error(1)
}

func (m *MockReportAppService) Trends(ctx context.Context, sess models.Session, req dto.TrendsRequest) (*dto.TrendsResponse, error) {
	args := m.Called(ctx, sess, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.TrendsResponse), args.Error(1)
}

func (m *MockReportAppService) Departments(ctx context.Context, sess models.Session) (*dto.DepartmentsResponse, error) {
	args := m.Called(ctx, sess)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.DepartmentsResponse), args.Error(1)
}

const tenantID = "6f1c2a9e-0c1b-4c55-9a53-2f1d6e7b8c90"

func setupRouter(advisor *MockAdvisorAppService, reports *MockReportAppService, sess models.Session) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAdvisorHandler(advisor, reports, logger.NewNoopLogger())
	r := gin.New()
	r.POST("/api/advisor/:action", func(c *gin.Context) {
		c.Set(constants.ContextKeySession, sess)
		c.Set(string(constants.ContextKeyTraceID), "trace-1")
		c.Next()
	}, h.Dispatch)
	return r
}

func post(r http.Handler, action, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/advisor/"+action, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAskAction(t *testing.T) {
	advisor := new(MockAdvisorAppService)
	sess := models.TenantSession(tenantID)
	advisor.On("Ask", mock.Anything, sess, dto.AskRequest{Question: "What is our weakest control?"}).
		Return(&dto.AskResponse{Answer: "MFA registration."}, nil)

	w := post(setupRouter(advisor, new(MockReportAppService), sess), "ask", `{"question":"What is our weakest control?"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.AskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "MFA registration.", resp.Answer)
	advisor.AssertExpectations(t)
}

func TestComplianceActionPassesFilters(t *testing.T) {
	reports := new(MockReportAppService)
	sess := models.AdminSession()
	reports.On("Compliance", mock.Anything, sess, dto.ComplianceRequest{Department: "Finance", Days: 14}).
		Return(&dto.ComplianceResponse{Filters: dto.ComplianceRequest{Department: "Finance", Days: 14}}, nil)

	w := post(setupRouter(new(MockAdvisorAppService), reports, sess), "compliance", `{"department":"Finance","days":14}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"department":"Finance"`)
	reports.AssertExpectations(t)
}

func TestActionsWithoutBody(t *testing.T) {
	reports := new(MockReportAppService)
	sess := models.AdminSession()
	reports.On("Status", mock.Anything, sess).Return(&models.SyncStatus{ActiveTenants: 3, Status: "ok"}, nil)
	reports.On("Trends", mock.Anything, sess, dto.TrendsRequest{}).Return(&dto.TrendsResponse{}, nil)
	r := setupRouter(new(MockAdvisorAppService), reports, sess)

	w := post(r, "status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active_tenants":3`)

	w = post(r, "trends", "")
	assert.Equal(t, http.StatusOK, w.Code)
	reports.AssertExpectations(t)
}

func TestUnknownAction(t *testing.T) {
	w := post(setupRouter(new(MockAdvisorAppService), new(MockReportAppService), models.AdminSession()), "export", "{}")
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := decodeError(t, w)
	assert.Equal(t, errors.KindNotFound, body.Kind)
	assert.Equal(t, []string{
		"actions", "ask", "assessments", "briefing", "compliance",
		"departments", "regulations", "status", "trends",
	}, body.AvailableActions)
}

func TestMalformedBody(t *testing.T) {
	w := post(setupRouter(new(MockAdvisorAppService), new(MockReportAppService), models.AdminSession()), "ask", `{"question":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.KindValidation, decodeError(t, w).Kind)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   errors.Kind
	}{
		{"validation", errors.Validation("question is required").WithMetadata("question", "required"), http.StatusBadRequest, errors.KindValidation},
		{"forbidden", errors.Forbidden("cross-tenant questions require an administrative session"), http.StatusForbidden, errors.KindForbidden},
		{"transient", errors.TransientUpstream("model rate limited"), http.StatusServiceUnavailable, errors.KindTransientUpstream},
		{"upstream", errors.Upstream("model rejected the request"), http.StatusBadGateway, errors.KindUpstream},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, errors.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advisor := new(MockAdvisorAppService)
			advisor.On("Ask", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			w := post(setupRouter(advisor, new(MockReportAppService), models.AdminSession()), "ask", `{"question":"q"}`)
			assert.Equal(t, tt.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tt.kind, body.Kind)
			assert.Equal(t, "trace-1", body.TraceID)
			assert.NotContains(t, body.Error, "pq:")
		})
	}
}
