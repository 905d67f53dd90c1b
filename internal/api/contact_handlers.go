package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
)

type contactRequest struct {
	ContactUserID *string `json:"contact_user_id,omitempty"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone,omitempty"`
	WebhookURL    string  `json:"webhook_url,omitempty"`
	DisplayName   string  `json:"display_name"`
}

func (req *contactRequest) toContact(ownerID uuid.UUID) (*db.Contact, error) {
	c := &db.Contact{
		OwnerUserID: ownerID,
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:       strings.TrimSpace(req.Phone),
		WebhookURL:  strings.TrimSpace(req.WebhookURL),
		DisplayName: strings.TrimSpace(req.DisplayName),
	}

	if req.ContactUserID != nil {
		id, err := uuid.Parse(*req.ContactUserID)
		if err != nil {
			return nil, errors.New("contact_user_id must be a valid UUID")
		}
		c.ContactUserID = &id
	}

	if c.Email == "" && c.Phone == "" && c.WebhookURL == "" {
		return nil, errors.New("at least one of email, phone, or webhook_url is required")
	}

	return c, nil
}

// CreateContact handles POST /v1/contacts
func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	contact, err := req.toContact(user.ID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid contact", err.Error())
		return
	}
	contact.ID = uuid.New()

	if err := h.store.CreateContact(r.Context(), contact); err != nil {
		h.logger.Error("failed to create contact",
			zap.Error(err),
			zap.String("owner_id", user.ID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to create contact", "")
		return
	}

	h.writeJSON(w, http.StatusCreated, contact)
}

// ListContacts handles GET /v1/contacts
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	contacts, err := h.store.ListContacts(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to list contacts",
			zap.Error(err),
			zap.String("owner_id", user.ID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list contacts", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  contacts,
		"count": len(contacts),
	})
}

// UpdateContact handles PUT /v1/contacts/{id}
func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	contactID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid contact ID", "ID must be a valid UUID")
		return
	}

	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	contact, err := req.toContact(user.ID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid contact", err.Error())
		return
	}
	contact.ID = contactID

	if err := h.store.UpdateContact(r.Context(), contact); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Contact not found", "")
			return
		}
		h.logger.Error("failed to update contact",
			zap.Error(err),
			zap.String("contact_id", contactID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update contact", "")
		return
	}

	h.writeJSON(w, http.StatusOK, contact)
}

// DeleteContact handles DELETE /v1/contacts/{id}
func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	contactID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid contact ID", "ID must be a valid UUID")
		return
	}

	if err := h.store.DeleteContact(r.Context(), user.ID, contactID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Contact not found", "")
			return
		}
		h.logger.Error("failed to delete contact",
			zap.Error(err),
			zap.String("contact_id", contactID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to delete contact", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SearchUsers handles GET /v1/users/search?email=prefix
// Used by the add-contact flow to find registered users by email.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	prefix := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if len(prefix) < 3 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Search prefix too short", "email prefix must be at least 3 characters")
		return
	}

	users, err := h.store.SearchUsersByEmailPrefix(r.Context(), prefix, 20)
	if err != nil {
		h.logger.Error("user search failed",
			zap.Error(err),
			zap.String("prefix", prefix),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Search failed", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  users,
		"count": len(users),
	})
}
