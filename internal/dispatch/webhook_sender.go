package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
)

// WebhookSender POSTs the alert as JSON to a contact-registered URL.
// This is the push-style channel for contacts that run their own
// monitoring endpoint (care services, family hubs).
type WebhookSender struct {
	client *http.Client
	logger *zap.Logger
}

type WebhookConfig struct {
	Timeout time.Duration
}

// webhookBody is the JSON document delivered to the endpoint.
type webhookBody struct {
	AlertID   string             `json:"alert_id"`
	Category  string             `json:"category"`
	Label     string             `json:"label"`
	Note      string             `json:"note,omitempty"`
	Location  *db.Location       `json:"location,omitempty"`
	Profile   db.ProfileSnapshot `json:"profile"`
	CreatedAt time.Time          `json:"created_at"`
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(logger *zap.Logger, cfg WebhookConfig) *WebhookSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send delivers the alert to the recipient's webhook URL. Any non-2xx
// response counts as a failed attempt.
func (s *WebhookSender) Send(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery) error {
	if rcpt.Channel != db.ChannelWebhook {
		return fmt.Errorf("webhook sender only supports webhooks, got: %s", rcpt.Channel)
	}
	if rcpt.Address == "" {
		return fmt.Errorf("recipient has no webhook url")
	}

	doc := webhookBody{
		AlertID:   alert.ID.String(),
		Category:  alert.Category,
		Label:     db.CategoryLabels[alert.Category],
		Note:      alert.Note,
		Location:  alert.Location,
		Profile:   alert.Profile,
		CreatedAt: alert.CreatedAt,
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rcpt.Address, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CallOut/1.0")
	req.Header.Set("X-CallOut-Alert-ID", alert.ID.String())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	s.logger.Info("alert webhook delivered",
		zap.String("alert_id", alert.ID.String()),
		zap.String("url", rcpt.Address),
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}

func (s *WebhookSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelWebhook
}
