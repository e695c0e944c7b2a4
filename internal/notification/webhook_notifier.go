package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/railyard/railyard-api/internal/config"
	"github.com/railyard/railyard-api/internal/models"
	"github.com/rs/zerolog"
)

// WebhookNotifier posts each notification as JSON to a configured endpoint.
// Disabled when no URL is set.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewWebhookNotifier(cfg config.WebhookConfig, logger zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    cfg.URL,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("notifier", "webhook").Logger(),
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, notif models.Notification) error {
	if n.url == "" {
		return nil
	}

	payload, err := json.Marshal(notif)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Debug().
		Str("notification_id", notif.ID).
		Str("event_type", string(notif.EventType)).
		Msg("webhook notification delivered")
	return nil
}

func (n *WebhookNotifier) String() string {
	return "webhook"
}
