package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
)

// GetMyProfile handles GET /v1/profile
func (h *Handler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	profile, err := h.store.GetProfile(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to get profile",
			zap.Error(err),
			zap.String("user_id", user.ID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load profile", "")
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

// UpdateMyProfile handles PUT /v1/profile
func (h *Handler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r.Context())

	var req struct {
		Name        string `json:"name"`
		BloodType   string `json:"blood_type"`
		Allergies   string `json:"allergies"`
		MedicalInfo string `json:"medical_info"`
		Email       string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	profile := &db.Profile{
		UserID:      user.ID,
		Name:        req.Name,
		BloodType:   req.BloodType,
		Allergies:   req.Allergies,
		MedicalInfo: req.MedicalInfo,
		Email:       req.Email,
	}

	if err := h.store.UpdateProfile(r.Context(), profile); err != nil {
		h.logger.Error("failed to update profile",
			zap.Error(err),
			zap.String("user_id", user.ID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update profile", "")
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

// GetUserProfile handles GET /v1/profiles/{userID}
// A profile is visible to its owner and to anyone listed in the
// owner's emergency contacts; everyone else gets 403.
func (h *Handler) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	viewer := CurrentUser(r.Context())

	ownerID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user ID", "ID must be a valid UUID")
		return
	}

	if ownerID != viewer.ID {
		allowed, err := h.store.IsContactOf(r.Context(), ownerID, viewer)
		if err != nil {
			h.logger.Error("contact check failed",
				zap.Error(err),
				zap.String("owner_id", ownerID.String()),
				zap.String("viewer_id", viewer.ID.String()),
			)
			h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to check access", "")
			return
		}
		if !allowed {
			h.writeError(w, http.StatusForbidden, "forbidden", "Not in this user's contacts", "")
			return
		}
	}

	profile, err := h.store.GetProfile(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Profile not found", "")
			return
		}
		h.logger.Error("failed to get profile",
			zap.Error(err),
			zap.String("owner_id", ownerID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load profile", "")
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}
