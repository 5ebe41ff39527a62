package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/compliance-advisor/internal/infrastructure/secrets"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

func TestTeamsNotifier(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := secrets.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), constants.SecretTeamsWebhookURL, srv.URL))
	n := NewTeamsNotifier(store, logger.NewNoopLogger())

	require.NoError(t, n.Notify(context.Background(), "Weekly Compliance Digest", "all good"))
	assert.Equal(t, "message", got["type"])
	attachments := got["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	card := attachments[0].(map[string]interface{})["content"].(map[string]interface{})
	assert.Equal(t, "AdaptiveCard", card["type"])
}

func TestTeamsNotifierRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	store := secrets.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), constants.SecretTeamsWebhookURL, srv.URL))
	err := NewTeamsNotifier(store, logger.NewNoopLogger()).Notify(context.Background(), "t", "x")
	assert.True(t, errors.IsKind(err, errors.KindUpstream))
}

func TestTeamsNotifierWithoutWebhook(t *testing.T) {
	err := NewTeamsNotifier(secrets.NewMemoryStore(), logger.NewNoopLogger()).Notify(context.Background(), "t", "x")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}
