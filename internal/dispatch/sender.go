// Package dispatch fans an alert out to its recipients across delivery
// channels, recording every outcome in the ledger.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
)

// Sender is the unified interface for all delivery channels.
// Implementations: email (SES), SMS (SNS), webhooks.
type Sender interface {
	Send(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery) error
	SupportsChannel(channel string) bool
}

// MultiSender routes each recipient to the first sender that supports
// its channel.
type MultiSender struct {
	senders []Sender
	logger  *zap.Logger
}

// NewMultiSender creates a router over the given channel senders.
func NewMultiSender(logger *zap.Logger, senders ...Sender) *MultiSender {
	return &MultiSender{
		senders: senders,
		logger:  logger,
	}
}

// Send routes the delivery to the appropriate sender based on channel.
func (m *MultiSender) Send(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery) error {
	for _, sender := range m.senders {
		if sender.SupportsChannel(rcpt.Channel) {
			m.logger.Debug("routing delivery to sender",
				zap.String("channel", rcpt.Channel),
				zap.String("alert_id", alert.ID.String()),
			)
			return sender.Send(ctx, alert, rcpt)
		}
	}

	return fmt.Errorf("no sender found for channel: %s", rcpt.Channel)
}

// SupportsChannel checks if any underlying sender supports the channel.
func (m *MultiSender) SupportsChannel(channel string) bool {
	for _, sender := range m.senders {
		if sender.SupportsChannel(channel) {
			return true
		}
	}
	return false
}

// LogSender logs deliveries instead of sending them, for development.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery) error {
	s.logger.Info("logging delivery (development mode)",
		zap.String("alert_id", alert.ID.String()),
		zap.String("recipient_id", rcpt.RecipientID.String()),
		zap.String("channel", rcpt.Channel),
		zap.String("address", rcpt.Address),
		zap.String("category", alert.Category),
	)
	return nil
}

func (s *LogSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelEmail || channel == db.ChannelSMS || channel == db.ChannelWebhook
}

// subject builds the one-line summary used by the email and SMS senders.
func subject(alert *db.Alert) string {
	label := db.CategoryLabels[alert.Category]
	if label == "" {
		label = alert.Category
	}
	name := alert.Profile.Name
	if name == "" {
		name = alert.Profile.Email
	}
	return fmt.Sprintf("EMERGENCY: %s — %s needs help", label, name)
}

// body renders the full alert text shared by email and webhook fallback
// content: what happened, where, and the sender's medical context.
func body(alert *db.Alert, rcpt *db.RecipientDelivery) string {
	var b strings.Builder

	label := db.CategoryLabels[alert.Category]
	if label == "" {
		label = alert.Category
	}

	fmt.Fprintf(&b, "%s, this is an automated emergency alert.\n\n", rcpt.DisplayName)
	fmt.Fprintf(&b, "Category: %s\n", label)
	fmt.Fprintf(&b, "Time: %s\n", alert.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	if alert.Note != "" {
		fmt.Fprintf(&b, "Note: %s\n", alert.Note)
	}

	if alert.Location != nil {
		fmt.Fprintf(&b, "Location: %.5f, %.5f (±%.0fm)\n", alert.Location.Lat, alert.Location.Lon, alert.Location.AccuracyM)
		fmt.Fprintf(&b, "Map: https://maps.google.com/?q=%.5f,%.5f\n", alert.Location.Lat, alert.Location.Lon)
	} else {
		b.WriteString("Location: unavailable\n")
	}

	p := alert.Profile
	b.WriteString("\nAbout the sender:\n")
	if p.Name != "" {
		fmt.Fprintf(&b, "  Name: %s\n", p.Name)
	}
	if p.Email != "" {
		fmt.Fprintf(&b, "  Email: %s\n", p.Email)
	}
	if p.BloodType != "" {
		fmt.Fprintf(&b, "  Blood type: %s\n", p.BloodType)
	}
	if p.Allergies != "" {
		fmt.Fprintf(&b, "  Allergies: %s\n", p.Allergies)
	}
	if p.MedicalInfo != "" {
		fmt.Fprintf(&b, "  Medical info: %s\n", p.MedicalInfo)
	}

	return b.String()
}

// smsText renders the short form used for the SMS channel.
func smsText(alert *db.Alert) string {
	var b strings.Builder
	b.WriteString(subject(alert))
	if alert.Note != "" {
		fmt.Fprintf(&b, ". %s", alert.Note)
	}
	if alert.Location != nil {
		fmt.Fprintf(&b, ". Map: https://maps.google.com/?q=%.5f,%.5f", alert.Location.Lat, alert.Location.Lon)
	}
	return b.String()
}
