package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/compliance-advisor/internal/config"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

type staticTokens struct{ err error }

func (s staticTokens) Token(context.Context, Credentials, string) (string, error) {
	return "tok", s.err
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&config.GraphConfig{BaseURL: srv.URL, Timeout: 5, MaxRetries: 2}, logger.NewNoopLogger())
}

func TestSecureScoresPagination(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/security/secureScores", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, map[string]interface{}{"value": []map[string]interface{}{
				{"id": "b", "createdDateTime": "2024-03-03T00:00:00Z", "currentScore": 40, "maxScore": 80},
			}})
			return
		}
		assert.Equal(t, "90", r.URL.Query().Get("$top"))
		writeJSON(w, map[string]interface{}{
			"value": []map[string]interface{}{
				{"id": "a", "createdDateTime": "2024-03-04T00:00:00Z", "currentScore": 50, "maxScore": 80},
			},
			"@odata.nextLink": srvURL + "/v1.0/security/secureScores?page=2",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL
	c := NewClient(&config.GraphConfig{BaseURL: srv.URL, Timeout: 5}, logger.NewNoopLogger())

	scores, err := c.SecureScores(context.Background(), "tok", 90)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, 50.0, scores[0].CurrentScore)
	assert.NotEmpty(t, scores[1].Raw)

	_, err = c.SecureScores(context.Background(), "tok", 91)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestRetriesThrottledRequests(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]interface{}{"value": []interface{}{}})
	}))

	_, err := c.ControlProfiles(context.Background(), "tok")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestErrorClassification(t *testing.T) {
	status := http.StatusForbidden
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	_, err := c.ControlProfiles(context.Background(), "tok")
	assert.True(t, errors.IsKind(err, errors.KindUpstream))
	assert.Equal(t, http.StatusForbidden, StatusOf(err))
	assert.False(t, errors.IsRetryable(err))

	status = http.StatusServiceUnavailable
	c.http.RetryMax = 0
	_, err = c.ControlProfiles(context.Background(), "tok")
	assert.True(t, errors.IsRetryable(err))
}

func TestAssessmentsFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/beta/security/complianceManager/assessments", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/beta/compliance/complianceManagement/assessments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": []map[string]interface{}{
			{"id": "a1", "displayName": "ISO", "status": "active", "regulationName": "ISO 27001"},
		}})
	})
	c := newTestClient(t, mux)

	got, err := c.Assessments(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ISO 27001", got[0].RegulationLabel())
}

func TestAssessmentsNoAPI(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	got, err := c.Assessments(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, got)

	ctls, err := c.AssessmentControls(context.Background(), "tok", "a1")
	require.NoError(t, err)
	assert.Empty(t, ctls)

	score, err := c.ComplianceScore(context.Background(), "tok")
	require.NoError(t, err)
	assert.Nil(t, score)
}

func TestComplianceCategoriesBadRequest(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	cats, err := c.ComplianceCategories(context.Background(), "tok")
	require.NoError(t, err)
	assert.Empty(t, cats)
}

func TestScopeFor(t *testing.T) {
	assert.Equal(t, "https://graph.microsoft.com/.default", ScopeFor("public"))
	assert.Equal(t, "https://graph.microsoft.us/.default", ScopeFor("usgov"))
	assert.True(t, IsUSGov("USGovernment"))
	assert.False(t, IsUSGov(""))
}

func f(v float64) *float64 { return &v }

func TestBuildBatch(t *testing.T) {
	now := time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)
	scores := []SecureScore{
		{CreatedDateTime: "2024-03-04T02:00:00Z", CurrentScore: 40, MaxScore: 80, Raw: json.RawMessage(`{"id":"x"}`),
			ControlScores: []ControlScore{{ControlName: "MFA", Score: 5}, {ControlName: ""}}},
		{CreatedDateTime: "bad"},
	}
	profiles := []ControlProfile{{ID: "MFA", Title: "Require MFA", MaxScore: 10, Rank: 3, ActionType: "Config", ControlCategory: "Identity"}}
	assessments := []Assessment{
		{ID: "a1", Status: "active", ComplianceScore: f(80), ComplianceStandard: &named{Name: "NIST"}},
		{ID: "a2", Status: "active", ComplianceScore: f(60)},
		{ID: "a2", Status: "active", ComplianceScore: f(60), DisplayName: "dup"},
		{ID: "a3"},
	}
	controls := map[string][]AssessmentControl{
		"a1": {{ID: "c1", ControlName: "Access"}, {ID: "c1", DisplayName: "Access v2"}},
	}
	cats := []ComplianceCategory{{DisplayName: "Data Protection", CurrentScore: 1, MaxScore: 2}}

	b := BuildBatch("t1", now, scores, profiles, nil, cats, assessments, controls)

	require.Len(t, b.Controls, 1)
	assert.Equal(t, "Require MFA", b.Controls[0].Title)
	assert.Equal(t, 10.0, b.Controls[0].MaxScore)
	assert.Equal(t, "Identity", b.Controls[0].ControlCategory)

	byCategory := map[string]float64{}
	for _, s := range b.Scores {
		byCategory[s.Category] = s.CurrentScore
	}
	assert.Equal(t, 40.0, byCategory[constants.CategorySecureScore])
	assert.Equal(t, 70.0, byCategory[constants.CategoryOverall], "derived from assessment mean")
	assert.Equal(t, 1.0, byCategory["Data Protection"])

	require.Len(t, b.Assessments, 3)
	assert.Equal(t, "NIST", b.Assessments[0].Regulation)
	assert.Equal(t, "dup", b.Assessments[1].DisplayName)
	require.Len(t, b.AssessmentControls, 1)
	assert.Equal(t, "Access v2", b.AssessmentControls[0].ControlName)
}

func TestBuildBatchPrefersDirectScore(t *testing.T) {
	b := BuildBatch("t1", time.Now(), nil, nil, &ComplianceScore{CurrentScore: 300, MaxScore: 400},
		nil, []Assessment{{ID: "a", ComplianceScore: f(10)}}, nil)
	require.Len(t, b.Scores, 1)
	assert.Equal(t, 300.0, b.Scores[0].CurrentScore)

	empty := BuildBatch("t1", time.Now(), nil, nil, nil, nil, nil, nil)
	assert.True(t, empty.IsEmpty())
}

func TestCollectorPropagatesTokenErrors(t *testing.T) {
	c := NewCollector(newTestClient(t, http.NotFoundHandler()), staticTokens{err: fmt.Errorf("boom")}, 0, logger.NewNoopLogger())
	_, err := c.Collect(context.Background(), Credentials{TenantID: "t1"})
	assert.Error(t, err)
}

func TestCollectorEndToEnd(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/security/secureScores", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": []map[string]interface{}{
			{"createdDateTime": "2024-03-04T00:00:00Z", "currentScore": 40, "maxScore": 80},
		}})
	})
	mux.HandleFunc("/v1.0/security/secureScoreControlProfiles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": []interface{}{}})
	})
	mux.HandleFunc("/beta/security/complianceManager/complianceScore", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"currentScore": 70, "maxScore": 100})
	})
	mux.HandleFunc("/beta/security/complianceManager/assessments/a1/controls", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": []map[string]interface{}{{"id": "c1", "displayName": "MFA"}}})
	})
	mux.HandleFunc("/beta/security/complianceManager/assessments", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"value": []map[string]interface{}{{"id": "a1", "status": "active"}}})
	})
	c := NewCollector(newTestClient(t, mux), staticTokens{}, 30, logger.NewNoopLogger())

	b, err := c.Collect(context.Background(), Credentials{TenantID: "t1", AppID: "app", Secret: "s"})
	require.NoError(t, err)
	assert.Equal(t, "t1", b.TenantID)
	assert.Len(t, b.Scores, 2)
	assert.Len(t, b.Assessments, 1)
	assert.Len(t, b.AssessmentControls, 1)
}
