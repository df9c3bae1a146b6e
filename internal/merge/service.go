package merge

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Authorizer,CompliancePublisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"attune/internal/boundary/isolation"
	"attune/internal/boundary/match"
	"attune/internal/boundary/terms"
	"attune/internal/couples"
	id "attune/pkg/domain"
	dErrors "attune/pkg/domain-errors"
	audit "attune/pkg/platform/audit"
	"attune/pkg/platform/audit/observability"
)

// Authorizer answers whether a therapist may merge a couple right now.
type Authorizer interface {
	ValidateMergeAuthorization(ctx context.Context, coupleID id.CoupleID, therapistID id.TherapistID) (couples.Link, error)
}

// CompliancePublisher persists merge outcomes fail-closed.
type CompliancePublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// attemptLogCapacity bounds the in-process attempt log.
const attemptLogCapacity = 256

// Service runs merge attempts. Each stage is traced; each attempt produces
// exactly one AttemptRecord and, when content from both partners was
// combined, a fail-closed compliance event.
type Service struct {
	links    Authorizer
	isolator *isolation.Filter
	matcher  *match.Matcher
	tables   *terms.Tables
	auditor  CompliancePublisher
	security chan<- audit.Event

	strict bool
	tracer trace.Tracer
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	attempts []AttemptRecord
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithTracer overrides the default tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithSecuritySink wires the asynchronous security audit channel. Emission
// never blocks a merge; a full channel drops the event with a log line.
func WithSecuritySink(sink chan<- audit.Event) Option {
	return func(s *Service) { s.security = sink }
}

// WithPermissiveIsolation disables the strict residual re-check.
func WithPermissiveIsolation() Option {
	return func(s *Service) { s.strict = false }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a merge orchestrator.
func NewService(links Authorizer, isolator *isolation.Filter, matcher *match.Matcher, tables *terms.Tables, auditor CompliancePublisher, opts ...Option) *Service {
	s := &Service{
		links:    links,
		isolator: isolator,
		matcher:  matcher,
		tables:   tables,
		auditor:  auditor,
		strict:   true,
		tracer:   otel.Tracer("attune/merge"),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Merge runs one merge attempt end to end. On any failure the outcome is
// withheld entirely; there is no partial merge result.
func (s *Service) Merge(ctx context.Context, req Request) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "merge",
		trace.WithAttributes(attribute.String("couple_id", req.CoupleID.String())))
	defer span.End()

	if _, err := s.authorize(ctx, req); err != nil {
		s.recordAttempt(req, OutcomeDenied, string(dErrors.CodeOf(err)), false, labelSnapshot{}, "")
		s.emitSecurity(ctx, req, string(audit.EventMergeDenied), string(dErrors.CodeOf(err)))
		span.RecordError(err)
		return Outcome{}, err
	}

	profileA, profileB, err := s.isolate(ctx, req)
	if err != nil {
		// Isolation ran and refused; the attempt is audited as a failed
		// merge before the caller sees the abort. No labels crossed the
		// boundary, so the snapshot stays zero.
		span.RecordError(err)
		if auditErr := s.emitCompliance(ctx, req, audit.EventMergeFailed, OutcomeAborted, string(dErrors.CodeOf(err)), labelSnapshot{}, ""); auditErr != nil {
			s.recordAttempt(req, OutcomeFailed, string(dErrors.CodeInternal), true, labelSnapshot{}, "")
			return Outcome{}, dErrors.Wrap(auditErr, dErrors.CodeInternal, "merge engine failure")
		}
		s.recordAttempt(req, OutcomeAborted, string(dErrors.CodeOf(err)), true, labelSnapshot{}, "")
		return Outcome{}, err
	}
	labels := labelSnapshot{A: profileA.LabelCount(), B: profileB.LabelCount()}

	result := s.matchProfiles(ctx, profileA, profileB)
	exercises := s.derive(ctx, result)

	outcome := Outcome{
		CoupleID:    req.CoupleID,
		SessionID:   req.SessionID,
		GeneratedAt: s.now(),
		Topics:      result.Topics,
		FocusAreas:  result.FocusAreas,
		Summary:     result.Summary,
		Exercises:   exercises,
	}

	// Fail closed: a merged outcome without its compliance record must not
	// leave this function.
	if err := s.emitCompliance(ctx, req, audit.EventMergeSucceeded, OutcomeMerged, "", labels, result.Summary); err != nil {
		s.recordAttempt(req, OutcomeFailed, string(dErrors.CodeInternal), true, labels, result.Summary)
		span.RecordError(err)
		return Outcome{}, dErrors.Wrap(err, dErrors.CodeInternal, "merge engine failure")
	}
	s.recordAttempt(req, OutcomeMerged, "", true, labels, result.Summary)

	s.logger.InfoContext(ctx, "merge completed",
		"couple_id", req.CoupleID,
		"session_id", req.SessionID,
		"summary", result.Summary,
		"exercises", len(exercises),
	)
	return outcome, nil
}

// ListRecentAttempts returns up to limit attempt records, newest first.
func (s *Service) ListRecentAttempts(limit int) []AttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.attempts) {
		limit = len(s.attempts)
	}
	records := make([]AttemptRecord, 0, limit)
	for i := len(s.attempts) - 1; i >= len(s.attempts)-limit; i-- {
		records = append(records, s.attempts[i])
	}
	return records
}

func (s *Service) authorize(ctx context.Context, req Request) (couples.Link, error) {
	ctx, span := s.tracer.Start(ctx, "merge.authorize")
	defer span.End()

	link, err := s.links.ValidateMergeAuthorization(ctx, req.CoupleID, req.TherapistID)
	if err != nil {
		span.RecordError(err)
		return couples.Link{}, err
	}
	if req.PartnerA.ClientID == req.PartnerB.ClientID {
		return couples.Link{}, dErrors.New(dErrors.CodeValidation, "merge requires two distinct partners")
	}
	if !link.Includes(req.PartnerA.ClientID) || !link.Includes(req.PartnerB.ClientID) {
		return couples.Link{}, dErrors.New(dErrors.CodeForbidden, "analysis does not belong to this couple")
	}
	return link, nil
}

func (s *Service) isolate(ctx context.Context, req Request) (isolation.Profile, isolation.Profile, error) {
	_, span := s.tracer.Start(ctx, "merge.isolate")
	defer span.End()

	profileA, profileB, err := s.isolator.IsolateForMerge(req.PartnerA.Analysis, req.PartnerB.Analysis, s.strict)
	if err != nil {
		span.RecordError(err)
		return isolation.Profile{}, isolation.Profile{}, err
	}
	span.SetAttributes(
		attribute.Int("labels_a", profileA.LabelCount()),
		attribute.Int("labels_b", profileB.LabelCount()),
	)
	return profileA, profileB, nil
}

func (s *Service) matchProfiles(ctx context.Context, a, b isolation.Profile) match.Result {
	_, span := s.tracer.Start(ctx, "merge.match")
	defer span.End()

	result := s.matcher.Match(a, b)
	span.SetAttributes(attribute.Int("topics", len(result.Topics)))
	return result
}

func (s *Service) derive(ctx context.Context, result match.Result) []string {
	_, span := s.tracer.Start(ctx, "merge.derive_exercises")
	defer span.End()

	exercises := deriveExercises(s.tables, result)
	span.SetAttributes(attribute.Int("exercises", len(exercises)))
	return exercises
}

// labelSnapshot is the content-free record of how many allow-listed labels
// each partner's profile contributed to an attempt.
type labelSnapshot struct {
	A int
	B int
}

func (s *Service) emitCompliance(ctx context.Context, req Request, action audit.AuditEvent, decision, reason string, labels labelSnapshot, summary string) error {
	return s.auditor.Emit(ctx, audit.ComplianceEvent{
		CoupleID:         req.CoupleID,
		SessionID:        req.SessionID,
		TherapistID:      req.TherapistID,
		PartnerA:         req.PartnerA.ClientID,
		PartnerB:         req.PartnerB.ClientID,
		Action:           string(action),
		Decision:         decision,
		Reason:           reason,
		RequestID:        req.RequestID,
		IsolationInvoked: true,
		LabelsA:          labels.A,
		LabelsB:          labels.B,
		TopicSummary:     summary,
	})
}

func (s *Service) emitSecurity(ctx context.Context, req Request, action, reason string) {
	observability.LogAudit(ctx, s.logger, s.security, action,
		"couple_id", req.CoupleID.String(),
		"therapist_id", req.TherapistID.String(),
		"request_id", req.RequestID,
		"reason", reason,
	)
}

func (s *Service) recordAttempt(req Request, outcome, reason string, isolationInvoked bool, labels labelSnapshot, summary string) {
	record := AttemptRecord{
		Timestamp:        s.now(),
		CoupleID:         req.CoupleID,
		SessionID:        req.SessionID,
		TherapistID:      req.TherapistID,
		PartnerA:         req.PartnerA.ClientID,
		PartnerB:         req.PartnerB.ClientID,
		RequestID:        req.RequestID,
		Outcome:          outcome,
		Reason:           reason,
		IsolationInvoked: isolationInvoked,
		LabelsA:          labels.A,
		LabelsB:          labels.B,
		TopicSummary:     summary,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, record)
	if len(s.attempts) > attemptLogCapacity {
		s.attempts = s.attempts[len(s.attempts)-attemptLogCapacity:]
	}
}
