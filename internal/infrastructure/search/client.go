// Package search maintains the posture document index used to ground advisor answers.
package search

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/httpx"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/secrets"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// Document is one indexed control measurement.
type Document struct {
	ID              string  `json:"id"`
	TenantID        string  `json:"tenant_id"`
	TenantName      string  `json:"tenant_name"`
	Region          string  `json:"region"`
	Department      string  `json:"department"`
	SnapshotDate    string  `json:"snapshot_date"`
	ControlName     string  `json:"control_name"`
	ControlTitle    string  `json:"control_title"`
	ControlCategory string  `json:"control_category"`
	Score           float64 `json:"score"`
	MaxScore        float64 `json:"max_score"`
	PointsGap       float64 `json:"points_gap"`
	ActionType      string  `json:"action_type"`
	Rank            int     `json:"rank"`
	RemediationURL  string  `json:"remediation_url"`
}

// Index is the document index used by sync and the advisor.
type Index interface {
	Upload(ctx context.Context, docs []Document) (int, error)
	Search(ctx context.Context, query, tenantID string, top int) ([]Document, error)
}

// Client talks to the search service REST API.
type Client struct {
	http       *retryablehttp.Client
	endpoint   string
	index      string
	apiVersion string
	secrets    secrets.Store
	log        logger.Logger
}

// NewClient creates a search client. The API key is read from the secret
// store on every call so rotations take effect without a restart.
func NewClient(cfg *config.SearchConfig, store secrets.Store, log logger.Logger) *Client {
	log = log.WithComponent("search")
	rc := httpx.NewRetryClient(log, 3, constants.DefaultUpstreamTimeout)
	return &Client{
		http:       rc,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		index:      cfg.Index,
		apiVersion: cfg.APIVersion,
		secrets:    store,
		log:        log,
	}
}

type indexAction struct {
	Action string `json:"@search.action"`
	Document
}

type indexResult struct {
	Value []struct {
		Key    string `json:"key"`
		Status bool   `json:"status"`
	} `json:"value"`
}

// Upload merges documents into the index in batches and returns how many the
// service accepted.
func (c *Client) Upload(ctx context.Context, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	total := 0
	for start := 0; start < len(docs); start += constants.SearchUploadBatchSize {
		end := start + constants.SearchUploadBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		actions := make([]indexAction, 0, end-start)
		for _, d := range docs[start:end] {
			actions = append(actions, indexAction{Action: "mergeOrUpload", Document: d})
		}
		var res indexResult
		if err := c.post(ctx, "/docs/index", map[string]interface{}{"value": actions}, &res); err != nil {
			return total, err
		}
		for _, r := range res.Value {
			if r.Status {
				total++
			}
		}
	}
	c.log.Info(ctx, "Indexed documents", logger.Int("indexed", total), logger.String("index", c.index))
	return total, nil
}

// Search runs a full-text query. A non-empty tenantID restricts hits to that tenant.
func (c *Client) Search(ctx context.Context, query, tenantID string, top int) ([]Document, error) {
	if top <= 0 {
		top = 10
	}
	body := map[string]interface{}{
		"search":  query,
		"top":     top,
		"orderby": "points_gap desc",
	}
	if tenantID != "" {
		body["filter"] = TenantFilter(tenantID)
	}
	var res struct {
		Value []Document `json:"value"`
	}
	if err := c.post(ctx, "/docs/search", body, &res); err != nil {
		return nil, err
	}
	return res.Value, nil
}

// TenantFilter builds an OData equality filter with the literal escaped.
func TenantFilter(tenantID string) string {
	return fmt.Sprintf("tenant_id eq '%s'", strings.ReplaceAll(tenantID, "'", "''"))
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	key, err := c.secrets.Get(ctx, constants.SecretSearchAPIKey)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Internal("encode search request: %v", err)
	}
	target := fmt.Sprintf("%s/indexes/%s%s?api-version=%s", c.endpoint, c.index, path, c.apiVersion)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return errors.Internal("build search request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", key)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.TransientUpstream("search request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return errors.TransientUpstream("search %s returned %d", path, resp.StatusCode)
		}
		return errors.Upstream("search %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Upstream("decode search response: %v", err)
	}
	c.log.Debug(ctx, "Search request completed",
		logger.String("path", path),
		logger.Int64("latency_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// DocumentsFrom builds index documents from latest control records. Records of
// unknown or inactive tenants are skipped.
func DocumentsFrom(tenants []models.Tenant, controls []models.ControlRecord) []Document {
	byID := make(map[string]models.Tenant, len(tenants))
	for _, t := range tenants {
		if t.IsActive {
			byID[t.TenantID] = t
		}
	}
	docs := make([]Document, 0, len(controls))
	for _, c := range controls {
		t, ok := byID[c.TenantID]
		if !ok {
			continue
		}
		docs = append(docs, Document{
			ID:              c.TenantID + "-" + base64.RawURLEncoding.EncodeToString([]byte(c.ControlName)),
			TenantID:        c.TenantID,
			TenantName:      t.DisplayName,
			Region:          t.Region,
			Department:      t.Department,
			SnapshotDate:    c.SnapshotDate.Format("2006-01-02"),
			ControlName:     c.ControlName,
			ControlTitle:    c.Title,
			ControlCategory: c.ControlCategory,
			Score:           c.Score,
			MaxScore:        c.MaxScore,
			PointsGap:       models.Round2(c.MaxScore - c.Score),
			ActionType:      c.ActionType,
			Rank:            c.Rank,
			RemediationURL:  c.RemediationURL,
		})
	}
	return docs
}

// NoopIndex is used when search is disabled.
type NoopIndex struct{}

func (NoopIndex) Upload(context.Context, []Document) (int, error) { return 0, nil }

func (NoopIndex) Search(context.Context, string, string, int) ([]Document, error) { return nil, nil }
