package guides

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"attune/internal/analysis"
	"attune/internal/boundary/abstraction"
	"attune/internal/platform/middleware"
	"attune/internal/transport/http/shared"
	id "attune/pkg/domain"
	dErrors "attune/pkg/domain-errors"
)

// GuideService is the handler's view of the guides service.
type GuideService interface {
	Generate(ctx context.Context, req Request) (abstraction.Guide, error)
}

// Handler exposes guide generation over HTTP.
type Handler struct {
	service GuideService
	logger  *slog.Logger
}

// NewHandler creates a guides handler.
func NewHandler(service GuideService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the guides routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/clients/{clientID}/guide", h.handleGenerate)
}

type generateRequest struct {
	Themes           []string `json:"themes"`
	Explorations     []string `json:"explorations"`
	SessionQuestions []string `json:"session_questions"`
}

type guideResponse struct {
	Themes       []string `json:"themes"`
	Explorations []string `json:"explorations"`
	Focus        string   `json:"focus"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
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

	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body generateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	guide, err := h.service.Generate(ctx, Request{
		TherapistID: therapistID,
		ClientID:    clientID,
		RequestID:   requestID,
		Analysis: analysis.ClinicalAnalysis{
			Themes:           body.Themes,
			Explorations:     body.Explorations,
			SessionQuestions: body.SessionQuestions,
		},
	})
	if err != nil {
		h.logger.WarnContext(ctx, "guide withheld",
			"request_id", requestID,
			"code", dErrors.CodeOf(err),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, guideResponse{
		Themes:       guide.Themes,
		Explorations: guide.Explorations,
		Focus:        guide.Focus,
	})
}
