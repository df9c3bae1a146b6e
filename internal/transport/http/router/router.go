// Package router assembles the HTTP surface: public health and metrics
// endpoints plus the JWT-protected therapist API.
package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attune/internal/couples"
	"attune/internal/guides"
	"attune/internal/jwttoken"
	"attune/internal/merge"
	"attune/internal/platform/middleware"
	"attune/internal/research"
)

// Deps carries the wired handlers and cross-cutting services.
type Deps struct {
	Logger   *slog.Logger
	JWT      middleware.JWTValidator
	Merge    *merge.Handler
	Couples  *couples.Handler
	Guides   *guides.Handler
	Research *research.Handler
}

// New builds the service router.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(deps.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.JWT, deps.Logger))
		deps.Merge.Register(r)
		deps.Couples.Register(r)
		deps.Guides.Register(r)
		deps.Research.Register(r)
	})

	return r
}

// jwtValidator adapts the token service to the middleware's validator port.
type jwtValidator struct {
	service *jwttoken.JWTService
}

// NewJWTValidator wraps a token service for the auth middleware.
func NewJWTValidator(service *jwttoken.JWTService) middleware.JWTValidator {
	return jwtValidator{service: service}
}

func (v jwtValidator) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := v.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{TherapistID: claims.TherapistID}, nil
}
