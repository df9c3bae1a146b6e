package couples

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attune/internal/platform/middleware"
	"attune/internal/transport/http/shared"
	id "attune/pkg/domain"
	dErrors "attune/pkg/domain-errors"
)

// LinkService is the handler's view of the couples service.
type LinkService interface {
	CreateLink(ctx context.Context, therapistID id.TherapistID, partnerA, partnerB id.ClientID, requestID string) (Link, string, error)
	ActivateLink(ctx context.Context, coupleID id.CoupleID, code string) (Link, error)
	RevokeLink(ctx context.Context, therapistID id.TherapistID, coupleID id.CoupleID, requestID string) (Link, error)
	ListLinks(ctx context.Context, therapistID id.TherapistID) ([]Link, error)
}

// Handler exposes couple link lifecycle over HTTP.
type Handler struct {
	service LinkService
	logger  *slog.Logger
}

// NewHandler creates a couples handler.
func NewHandler(service LinkService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the couples routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/couples", h.handleCreate)
	r.Get("/v1/couples", h.handleList)
	r.Post("/v1/couples/{coupleID}/activate", h.handleActivate)
	r.Post("/v1/couples/{coupleID}/revoke", h.handleRevoke)
}

type createLinkRequest struct {
	PartnerA string `json:"partner_a"`
	PartnerB string `json:"partner_b"`
}

type linkPayload struct {
	CoupleID    string     `json:"couple_id"`
	PartnerA    string     `json:"partner_a"`
	PartnerB    string     `json:"partner_b"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

func toLinkPayload(link Link) linkPayload {
	return linkPayload{
		CoupleID:    link.ID.String(),
		PartnerA:    link.PartnerA.String(),
		PartnerB:    link.PartnerB.String(),
		Status:      string(link.Status),
		CreatedAt:   link.CreatedAt,
		ActivatedAt: link.ActivatedAt,
		RevokedAt:   link.RevokedAt,
	}
}

func (h *Handler) therapistFromContext(w http.ResponseWriter, r *http.Request) (id.TherapistID, bool) {
	ctx := r.Context()
	therapistID, err := id.ParseTherapistID(middleware.GetTherapistID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "therapist missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.TherapistID{}, false
	}
	return therapistID, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	therapistID, ok := h.therapistFromContext(w, r)
	if !ok {
		return
	}

	var body createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	partnerA, err := id.ParseClientID(body.PartnerA)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	partnerB, err := id.ParseClientID(body.PartnerB)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	link, code, err := h.service.CreateLink(ctx, therapistID, partnerA, partnerB, middleware.GetRequestID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, map[string]any{
		"link": toLinkPayload(link),
		// Shown once; the service keeps only the hash.
		"invite_code": code,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	therapistID, ok := h.therapistFromContext(w, r)
	if !ok {
		return
	}

	links, err := h.service.ListLinks(r.Context(), therapistID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	payload := make([]linkPayload, 0, len(links))
	for _, link := range links {
		payload = append(payload, toLinkPayload(link))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"links": payload})
}

type activateLinkRequest struct {
	InviteCode string `json:"invite_code"`
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	coupleID, err := id.ParseCoupleID(chi.URLParam(r, "coupleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body activateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	link, err := h.service.ActivateLink(r.Context(), coupleID, body.InviteCode)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"link": toLinkPayload(link)})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	therapistID, ok := h.therapistFromContext(w, r)
	if !ok {
		return
	}

	coupleID, err := id.ParseCoupleID(chi.URLParam(r, "coupleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	link, err := h.service.RevokeLink(ctx, therapistID, coupleID, middleware.GetRequestID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"link": toLinkPayload(link)})
}
