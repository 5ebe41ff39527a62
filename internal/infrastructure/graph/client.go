// Package graph reads tenant posture from the Microsoft Graph security and
// compliance endpoints.
package graph

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/httpx"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

const (
	publicHost = "https://graph.microsoft.com"
	usGovHost  = "https://graph.microsoft.us"

	controlSelect = "id,displayName,controlFamily,controlCategory," +
		"implementationStatus,testStatus,score,maxScore,owner,actionUrl," +
		"implementationDetails,testPlan,managementResponse," +
		"evidenceOfCompletion,service,scoreImpact"
)

// HTTPError carries the status of a failed upstream call.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("graph request %s returned %d", e.URL, e.Status)
}

// StatusOf returns the upstream status code carried by err, or 0.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if stderrors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

// Client issues authenticated reads against Graph.
type Client struct {
	http  *retryablehttp.Client
	host  string
	scope string
	log   logger.Logger
}

// NewClient builds a Graph client for the configured national cloud.
func NewClient(cfg *config.GraphConfig, log logger.Logger) *Client {
	host := publicHost
	if IsUSGov(cfg.Cloud) {
		host = usGovHost
	}
	if cfg.BaseURL != "" {
		host = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = constants.DefaultUpstreamTimeout
	}

	log = log.WithComponent("graph")
	rc := httpx.NewRetryClient(log, cfg.MaxRetries, timeout)

	return &Client{
		http:  rc,
		host:  host,
		scope: ScopeFor(cfg.Cloud),
		log:   log,
	}
}

// IsUSGov reports whether cloud names the US government cloud.
func IsUSGov(cloud string) bool {
	switch strings.ToLower(strings.TrimSpace(cloud)) {
	case "usgov", "usgovernment", "gcc high", "dod":
		return true
	}
	return false
}

// ScopeFor returns the token scope for the cloud.
func ScopeFor(cloud string) string {
	if IsUSGov(cloud) {
		return usGovHost + "/.default"
	}
	return publicHost + "/.default"
}

// Scope is the token scope this client expects.
func (c *Client) Scope() string {
	return c.scope
}

func (c *Client) v1(path string) string   { return c.host + "/v1.0" + path }
func (c *Client) beta(path string) string { return c.host + "/beta" + path }

// SecureScores returns up to days daily snapshots, newest first.
func (c *Client) SecureScores(ctx context.Context, token string, days int) ([]SecureScore, error) {
	if days < 1 || days > constants.MaxSecureScoreDays {
		return nil, errors.Validation("days must be between 1 and %d", constants.MaxSecureScoreDays)
	}
	items, err := c.paginate(ctx, token, c.v1(fmt.Sprintf("/security/secureScores?$top=%d", days)))
	if err != nil {
		return nil, err
	}
	out := make([]SecureScore, 0, len(items))
	for _, raw := range items {
		var s SecureScore
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.Upstream("decode secure score: %v", err)
		}
		s.Raw = raw
		out = append(out, s)
	}
	return out, nil
}

// ControlProfiles returns the secure score control catalog.
func (c *Client) ControlProfiles(ctx context.Context, token string) ([]ControlProfile, error) {
	var out []ControlProfile
	err := c.paginateInto(ctx, token, c.v1("/security/secureScoreControlProfiles"), func(raw json.RawMessage) error {
		var p ControlProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// Assessments returns all compliance assessments, trying the alternative
// endpoint when the preferred one is absent.
func (c *Client) Assessments(ctx context.Context, token string) ([]Assessment, error) {
	var out []Assessment
	collect := func(raw json.RawMessage) error {
		var a Assessment
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	}
	err := c.paginateInto(ctx, token, c.beta("/security/complianceManager/assessments"), collect)
	if StatusOf(err) != http.StatusNotFound {
		return out, err
	}
	c.log.Warn(ctx, "complianceManager/assessments not available, trying alternative endpoint")
	out = nil
	if err := c.paginateInto(ctx, token, c.beta("/compliance/complianceManagement/assessments"), collect); err != nil {
		if StatusOf(err) == 0 || errors.IsRetryable(err) {
			return nil, err
		}
		c.log.Warn(ctx, "No assessment API available")
		return []Assessment{}, nil
	}
	return out, nil
}

// AssessmentControls returns the controls of one assessment.
func (c *Client) AssessmentControls(ctx context.Context, token, assessmentID string) ([]AssessmentControl, error) {
	var out []AssessmentControl
	collect := func(raw json.RawMessage) error {
		var ctl AssessmentControl
		if err := json.Unmarshal(raw, &ctl); err != nil {
			return err
		}
		out = append(out, ctl)
		return nil
	}
	id := url.PathEscape(assessmentID)
	err := c.paginateInto(ctx, token,
		c.beta("/security/complianceManager/assessments/"+id+"/controls?$select="+controlSelect), collect)
	if StatusOf(err) != http.StatusNotFound {
		return out, err
	}
	out = nil
	if err := c.paginateInto(ctx, token,
		c.beta("/compliance/complianceManagement/assessments/"+id+"/controls?$select="+controlSelect), collect); err != nil {
		if StatusOf(err) == 0 || errors.IsRetryable(err) {
			return nil, err
		}
		c.log.Warn(ctx, "Could not fetch assessment controls", logger.String("assessment_id", assessmentID))
		return []AssessmentControl{}, nil
	}
	return out, nil
}

// ComplianceScore returns the overall compliance score, or nil when the
// endpoint is unavailable for the tenant.
func (c *Client) ComplianceScore(ctx context.Context, token string) (*ComplianceScore, error) {
	var score ComplianceScore
	err := c.getJSON(ctx, token, c.beta("/security/complianceManager/complianceScore"), &score)
	if StatusOf(err) == http.StatusNotFound {
		c.log.Info(ctx, "complianceScore endpoint unavailable")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &score, nil
}

// ComplianceCategories returns the compliance score breakdown by category.
func (c *Client) ComplianceCategories(ctx context.Context, token string) ([]ComplianceCategory, error) {
	var out []ComplianceCategory
	err := c.paginateInto(ctx, token, c.beta("/security/complianceManager/complianceScore/categories"), func(raw json.RawMessage) error {
		var cat ComplianceCategory
		if err := json.Unmarshal(raw, &cat); err != nil {
			return err
		}
		out = append(out, cat)
		return nil
	})
	if status := StatusOf(err); status == http.StatusNotFound || status == http.StatusBadRequest {
		c.log.Info(ctx, "Compliance score category breakdown not available")
		return []ComplianceCategory{}, nil
	}
	return out, err
}

func (c *Client) paginate(ctx context.Context, token, next string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	err := c.paginateInto(ctx, token, next, func(raw json.RawMessage) error {
		items = append(items, raw)
		return nil
	})
	return items, err
}

// paginateInto follows @odata.nextLink and hands every item to fn.
func (c *Client) paginateInto(ctx context.Context, token, next string, fn func(json.RawMessage) error) error {
	for next != "" {
		var p page
		if err := c.getJSON(ctx, token, next, &p); err != nil {
			return err
		}
		for _, raw := range p.Value {
			if err := fn(raw); err != nil {
				return errors.Upstream("decode %s: %v", next, err)
			}
		}
		next = p.NextLink
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, token, target string, out interface{}) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Internal("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.TransientUpstream("graph request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return classify(&HTTPError{Status: resp.StatusCode, URL: target})
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Upstream("decode graph response: %v", err).WithCause(err)
	}
	return nil
}

// classify maps a status to the error taxonomy: throttling and server errors
// are transient, everything else is a permanent upstream failure.
func classify(httpErr *HTTPError) error {
	if httpErr.Status == http.StatusTooManyRequests || httpErr.Status >= 500 {
		return errors.TransientUpstream("%s", httpErr.Error()).
			WithCause(httpErr).WithMetadata("status", httpErr.Status)
	}
	return errors.Upstream("%s", httpErr.Error()).
		WithCause(httpErr).WithMetadata("status", httpErr.Status)
}
