// Package notify posts messages to a Teams channel through an incoming webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/turtacn/compliance-advisor/internal/infrastructure/httpx"
	"github.com/turtacn/compliance-advisor/internal/infrastructure/secrets"
	"github.com/turtacn/compliance-advisor/pkg/constants"
	"github.com/turtacn/compliance-advisor/pkg/errors"
	"github.com/turtacn/compliance-advisor/pkg/logger"
)

// Notifier delivers a titled text message.
type Notifier interface {
	Notify(ctx context.Context, title, text string) error
}

// TeamsNotifier posts adaptive cards. The webhook URL is read from the secret
// store at send time and never logged.
type TeamsNotifier struct {
	http    *retryablehttp.Client
	secrets secrets.Store
	log     logger.Logger
}

// NewTeamsNotifier creates a notifier.
func NewTeamsNotifier(store secrets.Store, log logger.Logger) *TeamsNotifier {
	log = log.WithComponent("teams_notifier")
	return &TeamsNotifier{
		http:    httpx.NewRetryClient(log, 2, 15*time.Second),
		secrets: store,
		log:     log,
	}
}

// Notify posts the card and fails unless the webhook answers 2xx.
func (n *TeamsNotifier) Notify(ctx context.Context, title, text string) error {
	url, err := n.secrets.Get(ctx, constants.SecretTeamsWebhookURL)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(AdaptiveCard(title, text))
	if err != nil {
		return errors.Internal("encode card: %v", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.Internal("build webhook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return errors.TransientUpstream("webhook post failed").WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.log.Warn(ctx, "Webhook rejected message", logger.Int("status_code", resp.StatusCode))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return errors.TransientUpstream("webhook returned %d", resp.StatusCode)
		}
		return errors.Upstream("webhook returned %d", resp.StatusCode)
	}
	n.log.Info(ctx, "Posted message to Teams", logger.String("title", title))
	return nil
}

// AdaptiveCard wraps text in a message with a single adaptive card attachment.
func AdaptiveCard(title, text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "message",
		"attachments": []map[string]interface{}{{
			"contentType": "application/vnd.microsoft.card.adaptive",
			"content": map[string]interface{}{
				"$schema": "http://adaptivecards.io/schemas/adaptive-card.json",
				"type":    "AdaptiveCard",
				"version": "1.4",
				"body": []map[string]interface{}{
					{"type": "TextBlock", "text": title, "weight": "Bolder", "size": "Medium"},
					{"type": "TextBlock", "text": text, "wrap": true},
				},
			},
		}},
	}
}

// NoopNotifier discards messages.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string, string) error { return nil }
