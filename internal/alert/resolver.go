package alert

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
)

// ContactSource is the narrow slice of the store the resolver needs.
type ContactSource interface {
	ListContacts(ctx context.Context, ownerID uuid.UUID) ([]*db.Contact, error)
}

// Resolver loads the triggering user's contact list and filters it down
// to deliverable recipients.
type Resolver struct {
	contacts ContactSource
	logger   *zap.Logger
}

// NewResolver creates a resolver over the given contact source.
func NewResolver(contacts ContactSource, logger *zap.Logger) *Resolver {
	return &Resolver{
		contacts: contacts,
		logger:   logger,
	}
}

// Resolve returns the deliverable recipients for the owner: contacts
// with at least one channel, excluding self-references and duplicate
// addresses. Channel precedence is email, then SMS, then webhook.
// Returns ErrNoRecipients when nothing survives filtering, so the
// caller can tell the user instead of silently dropping the alert.
func (r *Resolver) Resolve(ctx context.Context, owner *db.User) ([]*db.Recipient, error) {
	contacts, err := r.contacts.ListContacts(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}

	seen := make(map[string]bool)
	var recipients []*db.Recipient

	for _, c := range contacts {
		if isSelf(c, owner) {
			r.logger.Debug("resolver skipping self-reference",
				zap.String("contact_id", c.ID.String()),
			)
			continue
		}

		channel, address := pickChannel(c)
		if channel == "" {
			r.logger.Debug("resolver skipping contact without channel",
				zap.String("contact_id", c.ID.String()),
			)
			continue
		}

		key := channel + ":" + strings.ToLower(address)
		if seen[key] {
			continue
		}
		seen[key] = true

		recipients = append(recipients, &db.Recipient{
			ID:          c.ID,
			Channel:     channel,
			Address:     address,
			DisplayName: c.DisplayName,
		})
	}

	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	return recipients, nil
}

func isSelf(c *db.Contact, owner *db.User) bool {
	if c.ContactUserID != nil && *c.ContactUserID == owner.ID {
		return true
	}
	return strings.EqualFold(c.Email, owner.Email)
}

// pickChannel chooses the contact's delivery channel and address.
func pickChannel(c *db.Contact) (channel, address string) {
	switch {
	case c.Email != "":
		return db.ChannelEmail, c.Email
	case c.Phone != "":
		return db.ChannelSMS, c.Phone
	case c.WebhookURL != "":
		return db.ChannelWebhook, c.WebhookURL
	default:
		return "", ""
	}
}
