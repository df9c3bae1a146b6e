package research

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"attune/internal/platform/middleware"
	"attune/internal/transport/http/shared"
	id "attune/pkg/domain"
	dErrors "attune/pkg/domain-errors"
)

// LookupService is the handler's view of the research service.
type LookupService interface {
	Lookup(ctx context.Context, req LookupRequest) ([]TopicResult, error)
}

// Handler exposes research lookups over HTTP.
type Handler struct {
	service LookupService
	logger  *slog.Logger
}

// NewHandler creates a research handler.
func NewHandler(service LookupService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the research routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/research/lookup", h.handleLookup)
}

type lookupRequest struct {
	Labels []string `json:"labels"`
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	therapistID, err := id.ParseTherapistID(middleware.GetTherapistID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "therapist missing from context despite auth middleware",
			"request_id", requestID,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var body lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	results, err := h.service.Lookup(ctx, LookupRequest{
		TherapistID: therapistID,
		RequestID:   requestID,
		Labels:      body.Labels,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{"topics": results})
}
