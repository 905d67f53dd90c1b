package db

import (
	"time"

	"github.com/google/uuid"
)

// User is an account created through the identity endpoints.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Profile holds the medical data attached to an alert when the user
// triggers one. Visible to the owner always, and to other users only
// when they appear in the owner's contact list.
type Profile struct {
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	BloodType   string    `json:"blood_type"`
	Allergies   string    `json:"allergies"`
	MedicalInfo string    `json:"medical_info"`
	Email       string    `json:"email"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileSnapshot is the subset of Profile frozen into an alert at
// creation time. Later profile edits never change a sent alert.
type ProfileSnapshot struct {
	Name        string `json:"name"`
	BloodType   string `json:"blood_type"`
	Allergies   string `json:"allergies"`
	MedicalInfo string `json:"medical_info"`
	Email       string `json:"email"`
}

// Snapshot freezes the deliverable fields of a profile.
func (p *Profile) Snapshot() ProfileSnapshot {
	return ProfileSnapshot{
		Name:        p.Name,
		BloodType:   p.BloodType,
		Allergies:   p.Allergies,
		MedicalInfo: p.MedicalInfo,
		Email:       p.Email,
	}
}

// Contact is an entry in a user's emergency contact list. ContactUserID
// is set when the contact is a registered user; Email/Phone/WebhookURL
// are the delivery addresses.
type Contact struct {
	ID            uuid.UUID  `json:"id"`
	OwnerUserID   uuid.UUID  `json:"owner_user_id"`
	ContactUserID *uuid.UUID `json:"contact_user_id,omitempty"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone,omitempty"`
	WebhookURL    string     `json:"webhook_url,omitempty"`
	DisplayName   string     `json:"display_name"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Location is a device position fix.
type Location struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AccuracyM  float64   `json:"accuracy_m"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Alert is a single SOS event. Immutable once created except for the
// delivery state of its recipients.
type Alert struct {
	ID         uuid.UUID            `json:"id"`
	SenderID   uuid.UUID            `json:"sender_id"`
	Category   string               `json:"category"`
	Note       string               `json:"note,omitempty"`
	Location   *Location            `json:"location,omitempty"`
	Profile    ProfileSnapshot      `json:"profile"`
	CreatedAt  time.Time            `json:"created_at"`
	Recipients []*RecipientDelivery `json:"recipients,omitempty"`
}

// Recipient is a deliverable target produced by the resolver: one
// contact with its chosen channel and address.
type Recipient struct {
	ID          uuid.UUID `json:"id"`
	Channel     string    `json:"channel"`
	Address     string    `json:"address"`
	DisplayName string    `json:"display_name"`
}

// RecipientDelivery tracks the delivery of one alert to one recipient.
// Owned by its parent alert; mutated only through the ledger.
type RecipientDelivery struct {
	AlertID       uuid.UUID  `json:"alert_id"`
	RecipientID   uuid.UUID  `json:"recipient_id"`
	Channel       string     `json:"channel"`
	Address       string     `json:"address"`
	DisplayName   string     `json:"display_name"`
	State         string     `json:"state"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
}

// Delivery state constants. Transitions are monotonic:
// pending -> sent, or pending -> failed -> ... -> exhausted.
const (
	StatePending   = "pending"
	StateSent      = "sent"
	StateFailed    = "failed"
	StateExhausted = "exhausted"
)

// Channel constants
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelWebhook = "webhook"
)

// Alert category constants. These are the five SOS buttons.
const (
	CategoryPersonal   = "personal"
	CategoryMedical    = "medical"
	CategoryDisaster   = "disaster"
	CategoryAccident   = "accident"
	CategoryVulnerable = "vulnerable"
)

// CategoryLabels maps category keys to the labels shown to recipients.
var CategoryLabels = map[string]string{
	CategoryPersonal:   "Personal Threat",
	CategoryMedical:    "Medical Emergency",
	CategoryDisaster:   "Disaster / Environmental",
	CategoryAccident:   "Accident",
	CategoryVulnerable: "Vulnerable Person",
}
