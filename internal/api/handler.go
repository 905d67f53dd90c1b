package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/alert"
	"github.com/Art-555/CallOut/internal/db"
	"github.com/Art-555/CallOut/internal/dispatch"
	"github.com/Art-555/CallOut/internal/redis"
)

// AccountStore defines the account, profile and contact operations the
// handlers need from the database layer.
type AccountStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*db.User, error)
	SearchUsersByEmailPrefix(ctx context.Context, prefix string, limit int) ([]*db.User, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*db.Profile, error)
	UpdateProfile(ctx context.Context, p *db.Profile) error
	IsContactOf(ctx context.Context, ownerID uuid.UUID, viewer *db.User) (bool, error)
	CreateContact(ctx context.Context, c *db.Contact) error
	ListContacts(ctx context.Context, ownerID uuid.UUID) ([]*db.Contact, error)
	GetContact(ctx context.Context, ownerID, contactID uuid.UUID) (*db.Contact, error)
	UpdateContact(ctx context.Context, c *db.Contact) error
	DeleteContact(ctx context.Context, ownerID, contactID uuid.UUID) error
}

// AlertReader reads alert history from the ledger.
type AlertReader interface {
	GetAlert(ctx context.Context, id uuid.UUID) (*db.Alert, error)
	ListAlertsBySender(ctx context.Context, senderID uuid.UUID, limit, offset int) ([]*db.Alert, error)
}

// Dispatcher runs the fan-out for a composed alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, a *db.Alert, recipients []*db.Recipient) (dispatch.Summary, error)
}

// AuthService handles signup, login and logout.
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (*db.User, string, error)
	SignIn(ctx context.Context, email, password string) (*db.User, string, error)
	SignOut(ctx context.Context, token string) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger      *zap.Logger
	store       AccountStore
	alerts      AlertReader
	dispatcher  Dispatcher
	composer    *alert.Composer
	resolver    *alert.Resolver
	auth        AuthService
	sessions    *redis.SessionStore       // nil disables authenticated routes
	idempotency *redis.IdempotencyService // nil if Redis not configured
	locations   *redis.LocationStore      // nil disables the cached-position fallback
}

// Deps bundles the handler's dependencies.
type Deps struct {
	Store       AccountStore
	Alerts      AlertReader
	Dispatcher  Dispatcher
	Composer    *alert.Composer
	Resolver    *alert.Resolver
	Auth        AuthService
	Sessions    *redis.SessionStore
	Idempotency *redis.IdempotencyService
	Locations   *redis.LocationStore
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, deps Deps) *Handler {
	return &Handler{
		logger:      logger,
		store:       deps.Store,
		alerts:      deps.Alerts,
		dispatcher:  deps.Dispatcher,
		composer:    deps.Composer,
		resolver:    deps.Resolver,
		auth:        deps.Auth,
		sessions:    deps.Sessions,
		idempotency: deps.Idempotency,
		locations:   deps.Locations,
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
