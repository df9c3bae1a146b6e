package testutil

import (
	"context"
	"net/http"

	"attune/internal/platform/middleware"
)

// WithTherapist adds a therapist ID to the request context. This simulates
// what the auth middleware would do for authenticated requests.
func WithTherapist(req *http.Request, therapistID string) *http.Request {
	if therapistID == "" {
		return req
	}
	ctx := context.WithValue(req.Context(), middleware.ContextKeyTherapistID, therapistID)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
