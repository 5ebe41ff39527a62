package handlers

import (
	"context"
	"io"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/compliance-advisor/internal/application/dto"
	"github.com/turtacn/compliance-advisor/internal/application/service"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/interfaces/http/middleware"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

type actionFunc func(c *gin.Context, sess models.Session) (interface{}, error)

// AdvisorHandler dispatches POST /api/advisor/{action}.
type AdvisorHandler struct {
	actions map[string]actionFunc
	names   []string
	log     logger.Logger
}

// NewAdvisorHandler creates an AdvisorHandler.
func NewAdvisorHandler(advisor service.AdvisorAppService, reports service.ReportAppService, log logger.Logger) *AdvisorHandler {
	actions := map[string]actionFunc{
		"ask": withBody(func(ctx context.Context, sess models.Session, req dto.AskRequest) (interface{}, error) {
			return advisor.Ask(ctx, sess, req)
		}),
		"briefing": withBody(func(ctx context.Context, sess models.Session, req dto.BriefingRequest) (interface{}, error) {
			return advisor.Briefing(ctx, sess, req)
		}),
		"compliance": withBody(func(ctx context.Context, sess models.Session, req dto.ComplianceRequest) (interface{}, error) {
			return reports.Compliance(ctx, sess, req)
		}),
		"assessments": withBody(func(ctx context.Context, sess models.Session, req dto.AssessmentsRequest) (interface{}, error) {
			return reports.Assessments(ctx, sess, req)
		}),
		"regulations": withoutBody(func(ctx context.Context, sess models.Session) (interface{}, error) {
			return reports.Regulations(ctx, sess)
		}),
		"actions": withBody(func(ctx context.Context, sess models.Session, req dto.ActionsRequest) (interface{}, error) {
			return reports.Actions(ctx, sess, req)
		}),
		"status": withoutBody(func(ctx context.Context, sess models.Session) (interface{}, error) {
			return reports.Status(ctx, sess)
		}),
		"trends": withBody(func(ctx context.Context, sess models.Session, req dto.TrendsRequest) (interface{}, error) {
			return reports.Trends(ctx, sess, req)
		}),
		"departments": withoutBody(func(ctx context.Context, sess models.Session) (interface{}, error) {
			return reports.Departments(ctx, sess)
		}),
	}
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)

	return &AdvisorHandler{actions: actions, names: names, log: log.WithComponent("advisor_api")}
}

// Dispatch runs the requested action under the caller's session.
func (h *AdvisorHandler) Dispatch(c *gin.Context) {
	action := c.Param("action")
	fn, ok := h.actions[action]
	if !ok {
		c.JSON(http.StatusNotFound, dto.UnknownActionResponse(action, h.names))
		return
	}

	result, err := fn(c, middleware.SessionFrom(c))
	if err != nil {
		h.fail(c, action, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *AdvisorHandler) fail(c *gin.Context, action string, err error) {
	status, body := dto.NewErrorResponse(err, c.GetString(string(constants.ContextKeyTraceID)))
	fields := []logger.Field{
		logger.String("action", action),
		logger.String("kind", string(body.Kind)),
		logger.Int("status", status),
	}
	if status >= http.StatusInternalServerError {
		h.log.Error(c.Request.Context(), "Advisor action failed", err, fields...)
	} else {
		h.log.Info(c.Request.Context(), "Advisor action rejected", append(fields, logger.String("error", err.Error()))...)
	}
	c.JSON(status, body)
}

func withBody[T any](fn func(ctx context.Context, sess models.Session, req T) (interface{}, error)) actionFunc {
	return func(c *gin.Context, sess models.Session) (interface{}, error) {
		var req T
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Validation("request body must be a JSON object").WithCause(err)
		}
		return fn(c.Request.Context(), sess, req)
	}
}

func withoutBody(fn func(ctx context.Context, sess models.Session) (interface{}, error)) actionFunc {
	return func(c *gin.Context, sess models.Session) (interface{}, error) {
		return fn(c.Request.Context(), sess)
	}
}
