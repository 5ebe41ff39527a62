package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// SessionClaims are the claims the API accepts. A token carries either a
// tenant id or the admin flag.
type SessionClaims struct {
	TenantID string `json:"tenant_id,omitempty"`
	Admin    bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// Session converts the claims to the data-access session.
func (c *SessionClaims) Session() models.Session {
	if c.Admin {
		return models.AdminSession()
	}
	return models.TenantSession(c.TenantID)
}

// extractBearer extracts the token from the Authorization header.
func extractBearer(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}

// RequireSession resolves the caller's session from an HS256 bearer token and
// stores it on the gin context. With auth disabled every request runs as admin.
func RequireSession(cfg config.AuthConfig, log logger.Logger) gin.HandlerFunc {
	if cfg.Disabled {
		log.Warn(context.Background(), "API authentication is disabled, every request runs with the administrative session")
		return func(c *gin.Context) {
			c.Set(constants.ContextKeySession, models.AdminSession())
			c.Next()
		}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	secret := []byte(cfg.JWTSecret)

	return func(c *gin.Context) {
		tokenStr := extractBearer(c.Request.Header.Get("Authorization"))
		if tokenStr == "" {
			abort(c, errors.Unauthorized("bearer token required"))
			return
		}

		claims := &SessionClaims{}
		_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil {
			log.Warn(c.Request.Context(), "Rejected bearer token", logger.String("error", err.Error()))
			abort(c, errors.Unauthorized("invalid bearer token"))
			return
		}
		if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
			log.Warn(c.Request.Context(), "Rejected bearer token from unexpected issuer", logger.String("issuer", claims.Issuer))
			abort(c, errors.Unauthorized("invalid bearer token"))
			return
		}

		sess := claims.Session()
		if sess.IsZero() {
			abort(c, errors.Forbidden("token carries no tenant or admin scope"))
			return
		}
		c.Set(constants.ContextKeySession, sess)
		c.Next()
	}
}

// SessionFrom returns the session stored by RequireSession, or the zero
// session, which sees nothing.
func SessionFrom(c *gin.Context) models.Session {
	if v, ok := c.Get(constants.ContextKeySession); ok {
		if sess, ok := v.(models.Session); ok {
			return sess
		}
	}
	return models.Session{}
}

// SignSessionToken issues a token for sess. Used by the admin CLI and tests.
func SignSessionToken(cfg config.AuthConfig, sess models.Session, ttl time.Duration) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.Validation("auth.jwt_secret is not configured")
	}
	if sess.IsZero() {
		return "", errors.Validation("a token needs a tenant id or the admin flag")
	}
	now := time.Now()
	claims := SessionClaims{
		TenantID: sess.TenantID,
		Admin:    sess.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   sess.Scope(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func abort(c *gin.Context, err error) {
	status, body := dto.NewErrorResponse(err, c.GetString(string(constants.ContextKeyTraceID)))
	c.AbortWithStatusJSON(status, body)
}

