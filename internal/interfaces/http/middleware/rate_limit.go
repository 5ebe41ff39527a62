package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/compliance-advisor/internal/infrastructure/monitoring"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/ratelimit"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// ModelActions call the language model and draw from the model budget too.
var ModelActions = map[string]bool{"ask": true, "briefing": true}

// RateLimit charges each request against the session's query budget, and model
// actions against the model budget as well. It must run after RequireSession.
// A nil limiter disables that budget.
func RateLimit(query, model ratelimit.Limiter, metrics *monitoring.Metrics, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := SessionFrom(c)
		if sess.IsZero() {
			abort(c, errors.Forbidden("no session context"))
			return
		}
		key := sess.Scope()

		limiters := []ratelimit.Limiter{query}
		if ModelActions[c.Param("action")] {
			limiters = append(limiters, model)
		}
		for _, l := range limiters {
			if l == nil {
				continue
			}
			d, err := l.Allow(c.Request.Context(), key)
			if err != nil {
				log.Warn(c.Request.Context(), "Rate limit check failed, allowing request", logger.String("error", err.Error()))
				continue
			}
			c.Header("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if !d.Allowed {
				policy := l.Policy().Name
				metrics.RecordRateLimited(policy)
				log.Info(c.Request.Context(), "Request rate limited",
					logger.String("policy", policy),
					logger.String("scope", key),
				)
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				abort(c, errors.RateLimited("%s budget exhausted, retry in %s", policy, d.RetryAfter.Round(time.Second)).
					WithMetadata("policy", policy))
				return
			}
		}
		c.Next()
	}
}
