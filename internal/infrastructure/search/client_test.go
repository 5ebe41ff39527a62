package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/internal/domain/models"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/secrets"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	store := secrets.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), constants.SecretSearchAPIKey, "key-1"))
	return NewClient(&config.SearchConfig{Endpoint: srv.URL, Index: "posture", APIVersion: "2023-11-01"}, store, logger.NewNoopLogger())
}

func TestUploadBatches(t *testing.T) {
	var batches []int
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/posture/docs/index", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("api-key"))
		var body struct {
			Value []map[string]interface{} `json:"value"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		batches = append(batches, len(body.Value))
		assert.Equal(t, "mergeOrUpload", body.Value[0]["@search.action"])

		res := make([]map[string]interface{}, len(body.Value))
		for i := range res {
			res[i] = map[string]interface{}{"key": i, "status": true}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": res})
	})

	docs := make([]Document, 2500)
	for i := range docs {
		docs[i] = Document{ID: "d", TenantID: "t1"}
	}
	n, err := c.Upload(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 2500, n)
	assert.Equal(t, []int{1000, 1000, 500}, batches)
}

func TestSearchFiltersByTenant(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tenant_id eq 'o''brien'", body["filter"])
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": []Document{{ControlName: "MFA"}}})
	})
	docs, err := c.Search(context.Background(), "mfa", "o'brien", 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "MFA", docs[0].ControlName)
}

func TestSearchErrors(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := c.Search(context.Background(), "q", "", 0)
	assert.True(t, errors.IsKind(err, errors.KindUpstream))
}

func TestSearchMissingKey(t *testing.T) {
	c := NewClient(&config.SearchConfig{Endpoint: "http://127.0.0.1:0"}, secrets.NewMemoryStore(), logger.NewNoopLogger())
	_, err := c.Search(context.Background(), "q", "", 0)
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestDocumentsFrom(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	tenants := []models.Tenant{
		{TenantID: "t1", DisplayName: "One", IsActive: true, Department: "Finance"},
		{TenantID: "t2", DisplayName: "Two", IsActive: false},
	}
	controls := []models.ControlRecord{
		{TenantID: "t1", SnapshotDate: day, ControlName: "MFA/Admins", Score: 2, MaxScore: 10},
		{TenantID: "t2", SnapshotDate: day, ControlName: "MFA", Score: 2, MaxScore: 10},
	}
	docs := DocumentsFrom(tenants, controls)
	require.Len(t, docs, 1)
	assert.Equal(t, 8.0, docs[0].PointsGap)
	assert.Equal(t, "2024-03-04", docs[0].SnapshotDate)
	assert.NotContains(t, docs[0].ID, "/")
	assert.Equal(t, "Finance", docs[0].Department)
}
