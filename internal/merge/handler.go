package merge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"attune/internal/analysis"
	"attune/internal/platform/middleware"
	"attune/internal/transport/http/shared"
	id "attune/pkg/domain"
	dErrors "attune/pkg/domain-errors"
)

// MergeService is the handler's view of the orchestrator.
type MergeService interface {
	Merge(ctx context.Context, req Request) (Outcome, error)
	ListRecentAttempts(limit int) []AttemptRecord
}

// Handler exposes merge operations over HTTP. Routes assume RequireAuth ran
// upstream and left the therapist ID in the request context.
type Handler struct {
	service MergeService
	logger  *slog.Logger
}

// NewHandler creates a merge handler.
func NewHandler(service MergeService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the merge routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/couples/{coupleID}/merge", h.handleMerge)
	r.Get("/v1/merges/recent", h.handleRecentAttempts)
}

type frameworkPayload struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence"`
	Category   string  `json:"category"`
}

type patternPayload struct {
	Type       string   `json:"type"`
	Indicators []string `json:"indicators"`
	Context    string   `json:"context"`
}

type riskPayload struct {
	Severity          string `json:"severity"`
	Description       string `json:"description"`
	RecommendedAction string `json:"recommended_action"`
}

type analysisPayload struct {
	Frameworks        []frameworkPayload `json:"frameworks"`
	Patterns          []patternPayload   `json:"patterns"`
	RiskFlags         []riskPayload      `json:"risk_flags"`
	Themes            []string           `json:"themes"`
	Explorations      []string           `json:"explorations"`
	SessionQuestions  []string           `json:"session_questions"`
	OverallConfidence float64            `json:"overall_confidence"`
}

func (p analysisPayload) toDomain() analysis.ClinicalAnalysis {
	a := analysis.ClinicalAnalysis{
		Themes:            p.Themes,
		Explorations:      p.Explorations,
		SessionQuestions:  p.SessionQuestions,
		OverallConfidence: p.OverallConfidence,
	}
	for _, f := range p.Frameworks {
		a.Frameworks = append(a.Frameworks, analysis.FrameworkInsight{
			Name:       f.Name,
			Confidence: f.Confidence,
			Evidence:   f.Evidence,
			Category:   f.Category,
		})
	}
	for _, pat := range p.Patterns {
		a.Patterns = append(a.Patterns, analysis.PatternObservation{
			Type:       pat.Type,
			Indicators: pat.Indicators,
			Context:    pat.Context,
		})
	}
	for _, rf := range p.RiskFlags {
		a.RiskFlags = append(a.RiskFlags, analysis.RiskFlag{
			Severity:          rf.Severity,
			Description:       rf.Description,
			RecommendedAction: rf.RecommendedAction,
		})
	}
	return a
}

type partnerPayload struct {
	ClientID string          `json:"client_id"`
	Analysis analysisPayload `json:"analysis"`
}

type mergeRequest struct {
	SessionID string         `json:"session_id"`
	PartnerA  partnerPayload `json:"partner_a"`
	PartnerB  partnerPayload `json:"partner_b"`
}

type topicPayload struct {
	Type     string   `json:"type"`
	Category string   `json:"category"`
	Labels   []string `json:"labels"`
	Key      string   `json:"key,omitempty"`
}

type mergeResponse struct {
	CoupleID    string         `json:"couple_id"`
	SessionID   string         `json:"session_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Topics      []topicPayload `json:"topics"`
	FocusAreas  []string       `json:"focus_areas"`
	Summary     string         `json:"summary"`
	Exercises   []string       `json:"exercises"`
}

func toMergeResponse(outcome Outcome) mergeResponse {
	resp := mergeResponse{
		CoupleID:    outcome.CoupleID.String(),
		SessionID:   outcome.SessionID.String(),
		GeneratedAt: outcome.GeneratedAt,
		FocusAreas:  outcome.FocusAreas,
		Summary:     outcome.Summary,
		Exercises:   outcome.Exercises,
	}
	for _, t := range outcome.Topics {
		resp.Topics = append(resp.Topics, topicPayload(t))
	}
	return resp
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request) {
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

	coupleID, err := id.ParseCoupleID(chi.URLParam(r, "coupleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.WarnContext(ctx, "invalid merge request",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	sessionID, err := id.ParseSessionID(body.SessionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	clientA, err := id.ParseClientID(body.PartnerA.ClientID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	clientB, err := id.ParseClientID(body.PartnerB.ClientID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	outcome, err := h.service.Merge(ctx, Request{
		CoupleID:    coupleID,
		SessionID:   sessionID,
		TherapistID: therapistID,
		RequestID:   requestID,
		PartnerA:    PartnerAnalysis{ClientID: clientA, Analysis: body.PartnerA.Analysis.toDomain()},
		PartnerB:    PartnerAnalysis{ClientID: clientB, Analysis: body.PartnerB.Analysis.toDomain()},
	})
	if err != nil {
		h.logger.WarnContext(ctx, "merge rejected",
			"request_id", requestID,
			"couple_id", coupleID,
			"code", dErrors.CodeOf(err),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toMergeResponse(outcome))
}

type attemptPayload struct {
	Timestamp        time.Time `json:"timestamp"`
	CoupleID         string    `json:"couple_id"`
	SessionID        string    `json:"session_id"`
	PartnerA         string    `json:"partner_a"`
	PartnerB         string    `json:"partner_b"`
	Outcome          string    `json:"outcome"`
	Reason           string    `json:"reason,omitempty"`
	IsolationInvoked bool      `json:"isolation_invoked"`
	LabelsA          int       `json:"labels_a"`
	LabelsB          int       `json:"labels_b"`
	TopicSummary     string    `json:"topic_summary,omitempty"`
}

func (h *Handler) handleRecentAttempts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 100"))
			return
		}
		limit = parsed
	}

	records := h.service.ListRecentAttempts(limit)
	payload := make([]attemptPayload, 0, len(records))
	for _, rec := range records {
		payload = append(payload, attemptPayload{
			Timestamp:        rec.Timestamp,
			CoupleID:         rec.CoupleID.String(),
			SessionID:        rec.SessionID.String(),
			PartnerA:         rec.PartnerA.String(),
			PartnerB:         rec.PartnerB.String(),
			Outcome:          rec.Outcome,
			Reason:           rec.Reason,
			IsolationInvoked: rec.IsolationInvoked,
			LabelsA:          rec.LabelsA,
			LabelsB:          rec.LabelsB,
			TopicSummary:     rec.TopicSummary,
		})
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{"attempts": payload})
}
