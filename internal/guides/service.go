// Package guides produces client-safe session guides from a therapist's
// clinical analysis. It is a thin orchestration over the abstraction filter:
// the filter decides safety, this service decides who hears about it.
package guides

import (
	"context"
	"log/slog"
	"time"

	"attune/internal/analysis"
	"attune/internal/boundary/abstraction"
	id "attune/pkg/domain"
	audit "attune/pkg/platform/audit"
)

// Request is one guide generation for a client.
type Request struct {
	TherapistID id.TherapistID
	ClientID    id.ClientID
	RequestID   string
	Analysis    analysis.ClinicalAnalysis
}

// Service generates client-safe guides and audits both outcomes.
type Service struct {
	filter *abstraction.Filter
	sink   chan<- audit.Event
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithAuditSink wires the asynchronous audit channel for guide events.
func WithAuditSink(sink chan<- audit.Event) Option {
	return func(s *Service) { s.sink = sink }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a guides service.
func NewService(filter *abstraction.Filter, opts ...Option) *Service {
	s := &Service{
		filter: filter,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate produces the client-safe guide or withholds it entirely. A
// withheld guide is audited as a security event; the caller gets a coded
// error carrying no filter detail.
func (s *Service) Generate(ctx context.Context, req Request) (abstraction.Guide, error) {
	guide, err := s.filter.ToClientInput(req.Analysis)
	if err != nil {
		s.emit(audit.SecurityEvent{
			TherapistID: req.TherapistID,
			Action:      string(audit.EventGuideWithheld),
			Reason:      "residual_pattern",
			RequestID:   req.RequestID,
			Severity:    audit.SeverityWarning,
		}.ToEvent())
		return abstraction.Guide{}, err
	}

	s.emit(audit.OpsEvent{
		TherapistID: req.TherapistID,
		Action:      string(audit.EventGuideGenerated),
		RequestID:   req.RequestID,
	}.ToEvent())

	s.logger.InfoContext(ctx, "client guide generated",
		"request_id", req.RequestID,
		"themes", len(guide.Themes),
		"explorations", len(guide.Explorations),
	)
	return guide, nil
}

func (s *Service) emit(event audit.Event) {
	if s.sink == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	select {
	case s.sink <- event:
	default:
		s.logger.Warn("audit channel full, guide event dropped", "action", event.Action)
	}
}
