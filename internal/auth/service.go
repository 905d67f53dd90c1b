package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Art-555/CallOut/internal/db"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password
	// so the login endpoint cannot be used to probe for accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken indicates signup with an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrWeakPassword indicates the password fails the minimum length check.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
)

const minPasswordLen = 8

// UserStore is the subset of the repository the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *db.User) error
	GetUserByEmail(ctx context.Context, email string) (*db.User, error)
}

// Sessions issues and revokes bearer tokens.
type Sessions interface {
	Create(ctx context.Context, userID uuid.UUID) (string, error)
	Delete(ctx context.Context, token string) error
}

// Service handles signup, login and logout.
type Service struct {
	users    UserStore
	sessions Sessions
	logger   *zap.Logger
}

// NewService creates an auth service.
func NewService(users UserStore, sessions Sessions, logger *zap.Logger) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		logger:   logger,
	}
}

// SignUp registers a new account and returns the user with a session token.
func (s *Service) SignUp(ctx context.Context, email, password string) (*db.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", ErrInvalidCredentials
	}
	if len(password) < minPasswordLen {
		return nil, "", ErrWeakPassword
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, "", ErrEmailTaken
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, "", fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &db.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, "", fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID.String()),
	)

	return user, token, nil
}

// SignIn authenticates a user and returns a session token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*db.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Burn a comparison anyway so the response time does not
			// reveal whether the account exists.
			_ = bcrypt.CompareHashAndPassword(
				[]byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"),
				[]byte(password),
			)
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	return user, token, nil
}

// SignOut revokes the given session token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
