package dto

import (
	"net/http"

	"github.com/turtacn/compliance-advisor/pkg/errors"
)

// ErrorResponse is the error envelope returned by every API endpoint.
type ErrorResponse struct {
	Error            string                 `json:"error"`
	Kind             errors.Kind            `json:"kind"`
	Details          map[string]interface{} `json:"details,omitempty"`
	AvailableActions []string               `json:"available_actions,omitempty"`
	TraceID          string                 `json:"trace_id,omitempty"`
}

// NewErrorResponse maps err to its HTTP status and envelope. Messages of
// internal errors are replaced so driver text never leaks to callers.
func NewErrorResponse(err error, traceID string) (int, *ErrorResponse) {
	resp := &ErrorResponse{TraceID: traceID}
	appErr, ok := errors.As(err)
	if !ok || appErr.Kind == errors.KindInternal {
		resp.Error = "Internal server error"
		resp.Kind = errors.KindInternal
		return http.StatusInternalServerError, resp
	}

	resp.Error = appErr.Message
	resp.Kind = appErr.Kind
	if appErr.Kind == errors.KindValidation && len(appErr.Metadata) > 0 {
		resp.Details = appErr.Metadata
	}
	return errors.HTTPStatus(err), resp
}

// UnknownActionResponse lists the actions the dispatcher accepts.
func UnknownActionResponse(action string, available []string) *ErrorResponse {
	return &ErrorResponse{
		Error:            "Unknown action: " + action,
		Kind:             errors.KindNotFound,
		AvailableActions: available,
	}
}
