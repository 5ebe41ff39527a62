package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/monitoring"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

const testTenant = "6f1c2a9e-0c1b-4c55-9a53-2f1d6e7b8c90"

var authCfg = config.AuthConfig{JWTSecret: "test-secret", Issuer: "compliance-advisor"}

func sessionRouter(cfg config.AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireSession(cfg, logger.NewNoopLogger()))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, SessionFrom(c).Scope())
	})
	return r
}

func call(r http.Handler, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) errors.Kind {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Kind
}

func TestRequireSessionAcceptsSignedTokens(t *testing.T) {
	r := sessionRouter(authCfg)

	token, err := SignSessionToken(authCfg, models.TenantSession(testTenant), time.Hour)
	require.NoError(t, err)
	w := call(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant:"+testTenant, w.Body.String())

	token, err = SignSessionToken(authCfg, models.AdminSession(), time.Hour)
	require.NoError(t, err)
	w = call(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", w.Body.String())
}

func TestRequireSessionLowerCasesTenantClaim(t *testing.T) {
	r := sessionRouter(authCfg)

	token, err := SignSessionToken(authCfg, models.Session{TenantID: strings.ToUpper(testTenant)}, time.Hour)
	require.NoError(t, err)
	w := call(r, token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant:"+testTenant, w.Body.String())
}

func TestRequireSessionRejects(t *testing.T) {
	r := sessionRouter(authCfg)

	wrongSecret, _ := SignSessionToken(config.AuthConfig{JWTSecret: "other", Issuer: authCfg.Issuer}, models.AdminSession(), time.Hour)
	wrongIssuer, _ := SignSessionToken(config.AuthConfig{JWTSecret: authCfg.JWTSecret, Issuer: "someone-else"}, models.AdminSession(), time.Hour)
	expired, _ := SignSessionToken(authCfg, models.AdminSession(), -time.Minute)
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{
		Admin:            true,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{Admin: true}).SignedString([]byte(authCfg.JWTSecret))

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-token"},
		{"wrong secret", wrongSecret},
		{"wrong issuer", wrongIssuer},
		{"expired", expired},
		{"alg none", unsigned},
		{"no expiry", noExpiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(r, tt.token)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, errors.KindUnauthorized, errorKind(t, w))
		})
	}
}

func TestRequireSessionRejectsScopelessToken(t *testing.T) {
	r := sessionRouter(authCfg)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    authCfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(authCfg.JWTSecret))
	require.NoError(t, err)

	w := call(r, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, errors.KindForbidden, errorKind(t, w))
}

func TestRequireSessionDisabled(t *testing.T) {
	r := sessionRouter(config.AuthConfig{Disabled: true})
	w := call(r, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", w.Body.String())
}

func TestSignSessionTokenValidation(t *testing.T) {
	_, err := SignSessionToken(config.AuthConfig{}, models.AdminSession(), time.Hour)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
	_, err = SignSessionToken(authCfg, models.Session{}, time.Hour)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestSessionFromWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.True(t, SessionFrom(c).IsZero())
}

func TestObservabilityAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := sdktrace.NewTracerProvider().Tracer("test")

	var traceID, requestID string
	r := gin.New()
	r.Use(RequestID(), ObservabilityMiddleware(tracer, monitoring.NewMetrics()))
	r.GET("/items/:id", func(c *gin.Context) {
		traceID = c.GetString(string(constants.ContextKeyTraceID))
		requestID, _ = c.Request.Context().Value(constants.ContextKeyRequestID).(string)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/items/42", nil)
	req.Header.Set("X-Request-ID", "req-123")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, traceID, 32)
	assert.Equal(t, "req-123", requestID)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/43", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryMiddleware(logger.NewNoopLogger()), LoggingMiddleware(logger.NewNoopLogger()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.KindInternal, errorKind(t, w))
	assert.NotContains(t, w.Body.String(), "boom")
}
