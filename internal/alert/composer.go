// Package alert assembles and validates alerts before dispatch: the
// composer builds the immutable alert record, the resolver turns the
// user's contact list into deliverable recipients.
package alert

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Art-555/CallOut/internal/db"
)

// MaxNoteLen bounds the optional free-text note, in runes.
const MaxNoteLen = 500

// Policy controls compose-time validation.
type Policy struct {
	// RequireLocation rejects triggers without a position fix. Off by
	// default: an alert without coordinates still beats a dropped one.
	RequireLocation bool
}

// ComposeInput carries everything the composer needs. Location may be
// nil when the device could not produce a fix.
type ComposeInput struct {
	SenderID uuid.UUID
	Category string
	Note     string
	Location *db.Location
	Profile  db.ProfileSnapshot
}

// Composer builds alert records. It performs no I/O, which keeps
// composition testable in isolation.
type Composer struct {
	policy Policy
	now    func() time.Time
}

// NewComposer creates a composer with the given policy.
func NewComposer(policy Policy) *Composer {
	return &Composer{
		policy: policy,
		now:    time.Now,
	}
}

// Compose validates the input and assembles an alert with a fresh id
// and timestamp. The returned alert has no recipients yet; the
// dispatcher binds the resolved set when it records the alert.
func (c *Composer) Compose(in ComposeInput) (*db.Alert, error) {
	if _, ok := db.CategoryLabels[in.Category]; !ok {
		return nil, ErrInvalidCategory
	}

	if utf8.RuneCountInString(in.Note) > MaxNoteLen {
		return nil, ErrInvalidNote
	}

	if in.Location == nil && c.policy.RequireLocation {
		return nil, ErrLocationUnavailable
	}

	return &db.Alert{
		ID:        uuid.New(),
		SenderID:  in.SenderID,
		Category:  in.Category,
		Note:      in.Note,
		Location:  in.Location,
		Profile:   in.Profile,
		CreatedAt: c.now().UTC(),
	}, nil
}
