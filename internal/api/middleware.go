package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
	"github.com/Art-555/CallOut/internal/metrics"
	"github.com/Art-555/CallOut/internal/redis"
)

type contextKey string

const userContextKey contextKey = "current_user"

// CurrentUser returns the authenticated user placed in the context by
// the Authenticator middleware, or nil on unauthenticated requests.
func CurrentUser(ctx context.Context) *db.User {
	u, _ := ctx.Value(userContextKey).(*db.User)
	return u
}

// Authenticator resolves the Bearer token into a user and rejects
// requests without a valid session.
func (h *Handler) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.sessions == nil {
			h.writeError(w, http.StatusServiceUnavailable, "unavailable", "Session store not configured", "")
			return
		}

		token := bearerToken(r)
		if token == "" {
			h.writeError(w, http.StatusUnauthorized, "unauthorized", "Missing bearer token", "")
			return
		}

		userID, err := h.sessions.Lookup(r.Context(), token)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired session", "")
			return
		}

		user, err := h.store.GetUser(r.Context(), userID)
		if err != nil {
			h.logger.Warn("session resolved to unknown user",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			h.writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired session", "")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// RateLimitMiddleware creates an HTTP middleware that enforces rate limits.
// The keyFunc extracts the rate limit key from the request.
func RateLimitMiddleware(limiter *redis.RateLimiter, logger *zap.Logger, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limit check failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			// Set rate limit headers
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Remaining+1))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				metrics.RecordRateLimitRejection(key)
				retryAfter := time.Until(result.ResetAt).Seconds()
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter)))
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(ErrorResponse{
					Type:   "rate_limit_exceeded",
					Title:  "Too Many Requests",
					Status: http.StatusTooManyRequests,
					Detail: "Rate limit exceeded. Please retry after the specified time.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// UserKeyFunc extracts the authenticated user's ID for rate limiting.
// Must run after the Authenticator middleware.
func UserKeyFunc(r *http.Request) string {
	if user := CurrentUser(r.Context()); user != nil {
		return "user:" + user.ID.String()
	}
	return ""
}

// IPKeyFunc extracts the client IP for rate limiting.
func IPKeyFunc(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return "ip:" + ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return "ip:" + ip
	}
	return "ip:" + r.RemoteAddr
}
