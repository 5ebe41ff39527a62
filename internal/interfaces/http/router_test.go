package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/turtacn/compliance-advisor/internal/application/service"
	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/monitoring"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/persistence/postgres"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/ratelimit"
	"github.com/turtacn/compliance-advisor/internal/interfaces/http/handlers"
	"github.com/turtacn/compliance-advisor/internal/interfaces/http/middleware"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

const (
	tenantA = "6f1c2a9e-0c1b-4c55-9a53-2f1d6e7b8c90"
	tenantB = "0d7f3c1a-5e2b-4a8d-b1c3-9e8f7a6b5c4d"
)

func newTestRouter(t *testing.T, opts ...Option) (*gin.Engine, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.NewNoopLogger()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, postgres.Migrate(context.Background(), db))

	tenants := postgres.NewTenantRepository(db, log)
	posture := postgres.NewPostureRepository(db, log)
	for _, id := range []string{tenantA, tenantB} {
		require.NoError(t, tenants.Upsert(context.Background(), models.AdminSession(), &models.Tenant{
			TenantID: id, DisplayName: "Tenant " + id[:4], AppID: tenantA, KVSecretName: models.SecretNameFor(id),
			Department: "Finance", Status: constants.TenantStatusActive, IsActive: true, OnboardedAt: time.Now().UTC(),
		}))
	}

	cfg := &config.Config{
		Server: config.ServerConfig{Environment: "test", CORSAllowedOrigins: []string{"https://dashboard.example.com"}},
		Auth:   config.AuthConfig{JWTSecret: "router-secret", Issuer: "compliance-advisor"},
	}
	metrics := monitoring.NewMetrics()
	reports := service.NewReportAppService(tenants, posture, nil, metrics, log)
	advisor := service.NewAdvisorAppService(reports, nil, nil, nil, log)

	health := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"database": postgres.NewDBConnectionFromGorm(db, log),
	}, log)
	r := NewRouter(cfg, log, health, handlers.NewAdvisorHandler(advisor, reports, log), otel.Tracer("test"), metrics, opts...)
	r.SetupRoutes()
	return r.Engine(), cfg
}

func do(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRouterAdvisorStatus(t *testing.T) {
	r, cfg := newTestRouter(t)

	admin, err := middleware.SignSessionToken(cfg.Auth, models.AdminSession(), time.Hour)
	require.NoError(t, err)
	w := do(r, http.MethodPost, "/api/advisor/status", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	var status models.SyncStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 2, status.ActiveTenants)

	own, err := middleware.SignSessionToken(cfg.Auth, models.TenantSession(tenantA), time.Hour)
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/api/advisor/status", own, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 1, status.ActiveTenants)
}

func TestRouterRejectsAnonymousCalls(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(r, http.MethodPost, "/api/advisor/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"unauthorized"`)
}

func TestRouterCrossTenantAskNeedsAdmin(t *testing.T) {
	r, cfg := newTestRouter(t)
	own, err := middleware.SignSessionToken(cfg.Auth, models.TenantSession(tenantA), time.Hour)
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/advisor/ask", own, `{"question":"How do we compare?","cross_tenant":true}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"forbidden"`)

	w = do(r, http.MethodPost, "/api/advisor/ask", own, `{"question":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouterOperationalEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/live", "", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ready", "", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/metrics", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/nope", "", "").Code)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/advisor/status", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://dashboard.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterRateLimitsPerSession(t *testing.T) {
	query := ratelimit.NewLocalLimiter(ratelimit.Policy{Name: "query", Limit: 2, Window: time.Minute})
	r, cfg := newTestRouter(t, WithRateLimits(query, nil))

	own, err := middleware.SignSessionToken(cfg.Auth, models.TenantSession(tenantA), time.Hour)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/advisor/status", own, "").Code)
	}

	w := do(r, http.MethodPost, "/api/advisor/status", own, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"rate_limited"`)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	other, err := middleware.SignSessionToken(cfg.Auth, models.TenantSession(tenantB), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/advisor/status", other, "").Code)
}
