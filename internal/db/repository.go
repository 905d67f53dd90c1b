package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Repository handles database operations for users, profiles and contacts.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateUser inserts a new user row together with an empty profile in
// one transaction, so every account has a profile from the start.
func (r *Repository) CreateUser(ctx context.Context, user *User) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, user.ID, user.Email, user.PasswordHash).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO profiles (user_id, email) VALUES ($1, $2)
	`, user.ID, user.Email)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email),
	)

	return nil
}

// GetUserByEmail retrieves a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.db.Pool().QueryRow(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user by email: %w", err)
	}

	return &user, nil
}

// GetUser retrieves a user by ID.
func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := r.db.Pool().QueryRow(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// SearchUsersByEmailPrefix finds registered users whose email starts
// with the given prefix. Backs the add-contact search box.
func (r *Repository) SearchUsersByEmailPrefix(ctx context.Context, prefix string, limit int) ([]*User, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, email, created_at
		FROM users
		WHERE email LIKE $1 || '%'
		ORDER BY email
		LIMIT $2
	`, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return users, nil
}

// GetProfile retrieves the profile for a user.
func (r *Repository) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	var p Profile
	err := r.db.Pool().QueryRow(ctx, `
		SELECT user_id, name, blood_type, allergies, medical_info, email, updated_at
		FROM profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.Name, &p.BloodType, &p.Allergies, &p.MedicalInfo, &p.Email, &p.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}

	return &p, nil
}

// UpdateProfile overwrites the editable fields of a user's profile.
func (r *Repository) UpdateProfile(ctx context.Context, p *Profile) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE profiles
		SET name = $1, blood_type = $2, allergies = $3, medical_info = $4, email = $5, updated_at = NOW()
		WHERE user_id = $6
	`, p.Name, p.BloodType, p.Allergies, p.MedicalInfo, p.Email, p.UserID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("profile updated", zap.String("user_id", p.UserID.String()))

	return nil
}

// IsContactOf reports whether the viewer appears in the owner's contact
// list, either by linked user id or by email. This is the authorization
// check for reading someone else's profile.
func (r *Repository) IsContactOf(ctx context.Context, ownerID uuid.UUID, viewer *User) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM contacts
			WHERE owner_user_id = $1
			  AND (contact_user_id = $2 OR email = $3)
		)
	`, ownerID, viewer.ID, viewer.Email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query contact membership: %w", err)
	}
	return exists, nil
}

// CreateContact inserts a contact into the owner's list.
func (r *Repository) CreateContact(ctx context.Context, c *Contact) error {
	err := r.db.Pool().QueryRow(ctx, `
		INSERT INTO contacts (id, owner_user_id, contact_user_id, email, phone, webhook_url, display_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, c.ID, c.OwnerUserID, c.ContactUserID, c.Email, c.Phone, c.WebhookURL, c.DisplayName).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}

	r.logger.Info("contact created",
		zap.String("contact_id", c.ID.String()),
		zap.String("owner_user_id", c.OwnerUserID.String()),
	)

	return nil
}

// ListContacts retrieves all contacts owned by a user.
func (r *Repository) ListContacts(ctx context.Context, ownerID uuid.UUID) ([]*Contact, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, owner_user_id, contact_user_id, email, phone, webhook_url, display_name, created_at
		FROM contacts
		WHERE owner_user_id = $1
		ORDER BY created_at ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		var c Contact
		err := rows.Scan(&c.ID, &c.OwnerUserID, &c.ContactUserID, &c.Email, &c.Phone, &c.WebhookURL, &c.DisplayName, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return contacts, nil
}

// GetContact retrieves a single contact owned by the given user.
// Scoping by owner keeps one user from reading another's list.
func (r *Repository) GetContact(ctx context.Context, ownerID, contactID uuid.UUID) (*Contact, error) {
	var c Contact
	err := r.db.Pool().QueryRow(ctx, `
		SELECT id, owner_user_id, contact_user_id, email, phone, webhook_url, display_name, created_at
		FROM contacts
		WHERE id = $1 AND owner_user_id = $2
	`, contactID, ownerID).Scan(&c.ID, &c.OwnerUserID, &c.ContactUserID, &c.Email, &c.Phone, &c.WebhookURL, &c.DisplayName, &c.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query contact: %w", err)
	}

	return &c, nil
}

// UpdateContact updates the editable fields of a contact.
func (r *Repository) UpdateContact(ctx context.Context, c *Contact) error {
	result, err := r.db.Pool().Exec(ctx, `
		UPDATE contacts
		SET email = $1, phone = $2, webhook_url = $3, display_name = $4
		WHERE id = $5 AND owner_user_id = $6
	`, c.Email, c.Phone, c.WebhookURL, c.DisplayName, c.ID, c.OwnerUserID)
	if err != nil {
		return fmt.Errorf("update contact: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteContact removes a contact from the owner's list. Alerts already
// dispatched keep their recipient rows; deletion only affects future ones.
func (r *Repository) DeleteContact(ctx context.Context, ownerID, contactID uuid.UUID) error {
	result, err := r.db.Pool().Exec(ctx, `
		DELETE FROM contacts WHERE id = $1 AND owner_user_id = $2
	`, contactID, ownerID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("contact deleted",
		zap.String("contact_id", contactID.String()),
		zap.String("owner_user_id", ownerID.String()),
	)

	return nil
}
