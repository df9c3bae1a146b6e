package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	TherapistID string
}

// Context keys for storing authenticated caller information
type contextKeyTherapistID struct{}

// ContextKeyTherapistID is exported for use in handlers and tests.
var ContextKeyTherapistID = contextKeyTherapistID{}

// GetTherapistID retrieves the authenticated therapist ID from the context
func GetTherapistID(ctx context.Context) string {
	therapistID, ok := ctx.Value(ContextKeyTherapistID).(string)
	if !ok {
		return ""
	}
	return therapistID
}

// RequireAuth rejects requests without a valid bearer token and places the
// therapist ID into the request context for downstream handlers.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			if token, ok := strings.CutPrefix(authHeader, bearerPrefix); ok {
				claims, err := validator.ValidateToken(token)
				if err != nil {
					ctx := r.Context()
					logger.WarnContext(ctx, "unauthorized access - invalid token",
						"error", err,
						"request_id", GetRequestID(ctx),
					)
					writeUnauthorized(w, "Invalid or expired token")
					return
				}

				ctx := context.WithValue(r.Context(), ContextKeyTherapistID, claims.TherapistID)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// No Authorization header or invalid format
			ctx := r.Context()
			logger.WarnContext(ctx, "unauthorized access - missing token",
				"request_id", GetRequestID(ctx),
			)
			writeUnauthorized(w, "Missing or invalid Authorization header")
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
