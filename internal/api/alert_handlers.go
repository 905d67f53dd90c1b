package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/alert"
	"github.com/Art-555/CallOut/internal/db"
	"github.com/Art-555/CallOut/internal/dispatch"
	"github.com/Art-555/CallOut/internal/ledger"
	"github.com/Art-555/CallOut/internal/metrics"
	"github.com/Art-555/CallOut/internal/redis"
)

type triggerRequest struct {
	Category string       `json:"category"`
	Note     string       `json:"note,omitempty"`
	Location *db.Location `json:"location,omitempty"`
}

type triggerResponse struct {
	ID     string `json:"id"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

// TriggerAlert handles POST /v1/alerts
// Supports idempotency via the Idempotency-Key header: a double-pressed
// SOS button replays the original response instead of re-alerting.
func (h *Handler) TriggerAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := CurrentUser(ctx)

	idempotencyKey := r.Header.Get("Idempotency-Key")

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	// Check idempotency if key provided
	if idempotencyKey != "" && h.idempotency != nil {
		cached, err := h.idempotency.CheckOrReserve(ctx, user.ID.String(), idempotencyKey)
		if err != nil {
			if errors.Is(err, redis.ErrDuplicateRequest) {
				h.writeError(w, http.StatusConflict, "duplicate_request",
					"Alert is already being processed",
					"Another trigger with this idempotency key is in progress")
				return
			}
			h.logger.Warn("idempotency check failed, proceeding",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		} else if cached != nil {
			metrics.RecordIdempotencyHit()
			w.Header().Set("X-Idempotency-Replayed", "true")
			h.writeJSON(w, cached.StatusCode, triggerResponse{
				ID:     cached.AlertID,
				Sent:   cached.Sent,
				Failed: cached.Failed,
			})
			return
		}
	}

	// Fall back to the last cached device position when the trigger
	// itself carries none.
	loc := req.Location
	if loc == nil && h.locations != nil {
		if cached, err := h.locations.Last(ctx, user.ID.String()); err == nil {
			loc = cached
		}
	}

	profile, err := h.store.GetProfile(ctx, user.ID)
	if err != nil {
		h.logger.Error("failed to load profile for alert",
			zap.Error(err),
			zap.String("user_id", user.ID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load profile", "")
		return
	}

	composed, err := h.composer.Compose(alert.ComposeInput{
		SenderID: user.ID,
		Category: req.Category,
		Note:     req.Note,
		Location: loc,
		Profile:  profile.Snapshot(),
	})
	if err != nil {
		switch {
		case errors.Is(err, alert.ErrInvalidCategory):
			h.writeError(w, http.StatusBadRequest, "invalid_category", "Unknown alert category",
				"category must be one of: personal, medical, disaster, accident, vulnerable")
		case errors.Is(err, alert.ErrInvalidNote):
			h.writeError(w, http.StatusBadRequest, "invalid_note", "Note too long", "")
		case errors.Is(err, alert.ErrLocationUnavailable):
			h.writeError(w, http.StatusUnprocessableEntity, "location_unavailable", "No position available",
				"a location is required and no recent position is cached")
		default:
			h.logger.Error("compose failed", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to compose alert", "")
		}
		return
	}

	recipients, err := h.resolver.Resolve(ctx, user)
	if err != nil {
		if errors.Is(err, alert.ErrNoRecipients) {
			h.writeError(w, http.StatusConflict, "no_recipients", "No emergency contacts",
				"add at least one emergency contact before triggering an alert")
			return
		}
		h.logger.Error("recipient resolution failed",
			zap.Error(err),
			zap.String("user_id", user.ID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to resolve recipients", "")
		return
	}

	summary, err := h.dispatcher.Dispatch(ctx, composed, recipients)
	if err != nil {
		if errors.Is(err, dispatch.ErrDispatchAborted) {
			// The alert was never recorded, so the reservation must not
			// block the retry we are about to ask for.
			h.releaseIdempotency(ctx, user.ID.String(), idempotencyKey)
			h.writeError(w, http.StatusBadGateway, "dispatch_aborted", "Alert could not be recorded",
				"the alert was not persisted; retry the trigger")
			return
		}
		h.logger.Error("dispatch failed",
			zap.Error(err),
			zap.String("alert_id", composed.ID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Dispatch failed", "")
		return
	}

	metrics.RecordAlertTriggered(composed.Category)

	h.logger.Info("alert triggered",
		zap.String("alert_id", composed.ID.String()),
		zap.String("sender_id", user.ID.String()),
		zap.String("category", composed.Category),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)

	// Store idempotency result
	if idempotencyKey != "" && h.idempotency != nil {
		result := &redis.IdempotencyResult{
			AlertID:    composed.ID.String(),
			StatusCode: http.StatusAccepted,
			Sent:       summary.Sent,
			Failed:     summary.Failed,
		}
		if err := h.idempotency.Store(ctx, user.ID.String(), idempotencyKey, result); err != nil {
			h.logger.Warn("failed to store idempotency result",
				zap.Error(err),
				zap.String("idempotency_key", idempotencyKey),
			)
		}
	}

	h.writeJSON(w, http.StatusAccepted, triggerResponse{
		ID:     composed.ID.String(),
		Sent:   summary.Sent,
		Failed: summary.Failed,
	})
}

func (h *Handler) releaseIdempotency(ctx context.Context, userID, key string) {
	if key == "" || h.idempotency == nil {
		return
	}
	if err := h.idempotency.Release(ctx, userID, key); err != nil {
		h.logger.Warn("failed to release idempotency reservation",
			zap.Error(err),
			zap.String("idempotency_key", key),
		)
	}
}

// GetAlert handles GET /v1/alerts/{id}
// Only the sender may view an alert and its delivery states.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := CurrentUser(ctx)

	alertID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid alert ID", "ID must be a valid UUID")
		return
	}

	a, err := h.alerts.GetAlert(ctx, alertID)
	if err != nil {
		if errors.Is(err, ledger.ErrAlertNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Alert not found", "")
			return
		}
		h.logger.Error("failed to get alert",
			zap.Error(err),
			zap.String("alert_id", alertID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load alert", "")
		return
	}

	if a.SenderID != user.ID {
		h.writeError(w, http.StatusNotFound, "not_found", "Alert not found", "")
		return
	}

	h.writeJSON(w, http.StatusOK, a)
}

// ListAlerts handles GET /v1/alerts?limit=20&offset=0
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := CurrentUser(ctx)

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	alerts, err := h.alerts.ListAlertsBySender(ctx, user.ID, limit, offset)
	if err != nil {
		h.logger.Error("failed to list alerts",
			zap.Error(err),
			zap.String("user_id", user.ID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list alerts", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   alerts,
		"limit":  limit,
		"offset": offset,
		"count":  len(alerts),
	})
}

// UpdateLocation handles PUT /v1/location
// Devices push position fixes opportunistically so triggers without a
// fresh fix can still carry coordinates.
func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := CurrentUser(ctx)

	if h.locations == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "Location cache not configured", "")
		return
	}

	var loc db.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if loc.Lat < -90 || loc.Lat > 90 || loc.Lon < -180 || loc.Lon > 180 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid coordinates",
			"lat must be in [-90, 90] and lon in [-180, 180]")
		return
	}

	if err := h.locations.Update(ctx, user.ID.String(), &loc); err != nil {
		h.logger.Error("failed to update location",
			zap.Error(err),
			zap.String("user_id", user.ID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to store location", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
