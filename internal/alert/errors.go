package alert

import "errors"

// Validation and resolution errors surfaced synchronously to the
// triggering user. Per-recipient delivery failures never appear here;
// they live in ledger rows and are retried in the background.
var (
	// ErrInvalidCategory means the category is not one of the known set.
	ErrInvalidCategory = errors.New("invalid alert category")

	// ErrInvalidNote means the optional note exceeds the length bound.
	ErrInvalidNote = errors.New("alert note too long")

	// ErrLocationUnavailable means no position fix was supplied and the
	// policy requires one.
	ErrLocationUnavailable = errors.New("location unavailable")

	// ErrNoRecipients means the user has no deliverable contacts. The
	// caller decides whether to still record the alert.
	ErrNoRecipients = errors.New("no deliverable recipients")
)
