package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/auth"
	"github.com/Art-555/CallOut/internal/db"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string   `json:"token"`
	User  *db.User `json:"user"`
}

// SignUp handles POST /v1/auth/signup
func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	user, token, err := h.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			h.writeError(w, http.StatusConflict, "email_taken", "Email already registered", "")
		case errors.Is(err, auth.ErrWeakPassword):
			h.writeError(w, http.StatusBadRequest, "weak_password", "Password too short", err.Error())
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid email address", "")
		default:
			h.logger.Error("signup failed", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create account", "")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, sessionResponse{Token: token, User: user})
}

// Login handles POST /v1/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	user, token, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", "")
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to log in", "")
		return
	}

	h.writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: user})
}

// Logout handles POST /v1/auth/logout
// Requires the Authenticator middleware; revokes the presented token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token", "")
		return
	}

	if err := h.auth.SignOut(r.Context(), token); err != nil {
		h.logger.Error("logout failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to log out", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
