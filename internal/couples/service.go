package couples

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "attune/pkg/domain"
	dErrors "attune/pkg/domain-errors"
	audit "attune/pkg/platform/audit"
	"attune/pkg/platform/sentinel"
)

// AuditPublisher emits compliance events for link lifecycle changes.
// Link creation and revocation are consent facts and persist fail-closed.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Service owns the couple link lifecycle and answers the one question the
// merge path cares about: is this therapist allowed to merge this couple
// right now.
type Service struct {
	store   Store
	auditor AuditPublisher
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a couples service.
func NewService(store Store, auditor AuditPublisher, opts ...Option) *Service {
	s := &Service{
		store:   store,
		auditor: auditor,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateLink registers a pending link between two clients and returns the
// one-time invite code the second partner confirms with.
func (s *Service) CreateLink(ctx context.Context, therapistID id.TherapistID, partnerA, partnerB id.ClientID, requestID string) (Link, string, error) {
	if partnerA.IsNil() || partnerB.IsNil() {
		return Link{}, "", dErrors.New(dErrors.CodeValidation, "both partners are required")
	}
	if partnerA == partnerB {
		return Link{}, "", dErrors.New(dErrors.CodeValidation, "partners must be distinct clients")
	}

	code, hash, err := NewInviteCode()
	if err != nil {
		return Link{}, "", dErrors.Wrap(err, dErrors.CodeInternal, "create invite code")
	}

	link := Link{
		ID:             id.NewCoupleID(),
		PartnerA:       partnerA,
		PartnerB:       partnerB,
		TherapistID:    therapistID,
		Status:         StatusPending,
		InviteCodeHash: hash,
		CreatedAt:      s.now(),
	}
	if err := s.store.Save(ctx, link); err != nil {
		return Link{}, "", dErrors.Wrap(err, dErrors.CodeInternal, "persist couple link")
	}

	if err := s.auditor.Emit(ctx, audit.ComplianceEvent{
		CoupleID:    link.ID,
		TherapistID: therapistID,
		PartnerA:    link.PartnerA,
		PartnerB:    link.PartnerB,
		Action:      string(audit.EventLinkCreated),
		Decision:    string(StatusPending),
		RequestID:   requestID,
	}); err != nil {
		return Link{}, "", err
	}

	s.logger.InfoContext(ctx, "couple link created",
		"couple_id", link.ID,
		"therapist_id", therapistID,
	)
	return link, code, nil
}

// ActivateLink confirms the second partner's consent with the invite code.
// Activation is idempotent; confirming an already-active link succeeds.
func (s *Service) ActivateLink(ctx context.Context, coupleID id.CoupleID, code string) (Link, error) {
	link, err := s.getLink(ctx, coupleID)
	if err != nil {
		return Link{}, err
	}

	if link.Status == StatusRevoked {
		return Link{}, dErrors.New(dErrors.CodeConflict, "couple link has been revoked")
	}
	if !VerifyInviteCode(link.InviteCodeHash, code) {
		return Link{}, dErrors.New(dErrors.CodeForbidden, "invalid invite code")
	}
	if link.Status == StatusActive {
		return link, nil
	}

	activatedAt := s.now()
	link.Status = StatusActive
	link.ActivatedAt = &activatedAt
	if err := s.store.Update(ctx, link); err != nil {
		return Link{}, dErrors.Wrap(err, dErrors.CodeInternal, "activate couple link")
	}

	s.logger.InfoContext(ctx, "couple link activated", "couple_id", link.ID)
	return link, nil
}

// RevokeLink withdraws merge consent for a couple. Only the owning
// therapist may revoke. Revocation is terminal and idempotent.
func (s *Service) RevokeLink(ctx context.Context, therapistID id.TherapistID, coupleID id.CoupleID, requestID string) (Link, error) {
	link, err := s.getLink(ctx, coupleID)
	if err != nil {
		return Link{}, err
	}
	if link.TherapistID != therapistID {
		return Link{}, dErrors.New(dErrors.CodeForbidden, "couple is not managed by this therapist")
	}
	if link.Status == StatusRevoked {
		return link, nil
	}

	revokedAt := s.now()
	link.Status = StatusRevoked
	link.RevokedAt = &revokedAt
	if err := s.store.Update(ctx, link); err != nil {
		return Link{}, dErrors.Wrap(err, dErrors.CodeInternal, "revoke couple link")
	}

	if err := s.auditor.Emit(ctx, audit.ComplianceEvent{
		CoupleID:    link.ID,
		TherapistID: therapistID,
		PartnerA:    link.PartnerA,
		PartnerB:    link.PartnerB,
		Action:      string(audit.EventLinkRevoked),
		Decision:    string(StatusRevoked),
		RequestID:   requestID,
	}); err != nil {
		return Link{}, err
	}

	s.logger.InfoContext(ctx, "couple link revoked",
		"couple_id", link.ID,
		"therapist_id", therapistID,
	)
	return link, nil
}

// GetLink returns the link for a couple.
func (s *Service) GetLink(ctx context.Context, coupleID id.CoupleID) (Link, error) {
	return s.getLink(ctx, coupleID)
}

// ListLinks returns every link owned by a therapist.
func (s *Service) ListLinks(ctx context.Context, therapistID id.TherapistID) ([]Link, error) {
	links, err := s.store.ListByTherapist(ctx, therapistID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list couple links")
	}
	return links, nil
}

// ValidateMergeAuthorization checks that the therapist may merge this
// couple. Denials stay distinguishable by code: missing link, foreign
// therapist, and inactive link are different outcomes for the audit trail.
func (s *Service) ValidateMergeAuthorization(ctx context.Context, coupleID id.CoupleID, therapistID id.TherapistID) (Link, error) {
	link, err := s.getLink(ctx, coupleID)
	if err != nil {
		return Link{}, err
	}
	if link.TherapistID != therapistID {
		return Link{}, dErrors.New(dErrors.CodeForbidden, "couple is not managed by this therapist")
	}
	if !link.MergeAllowed() {
		if link.Status == StatusRevoked {
			return Link{}, dErrors.New(dErrors.CodeConflict, "couple link has been revoked")
		}
		return Link{}, dErrors.New(dErrors.CodeConflict, "couple link is not active")
	}
	return link, nil
}

func (s *Service) getLink(ctx context.Context, coupleID id.CoupleID) (Link, error) {
	link, err := s.store.Get(ctx, coupleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Link{}, dErrors.New(dErrors.CodeNotFound, "couple link not found")
		}
		return Link{}, dErrors.Wrap(err, dErrors.CodeInternal, "load couple link")
	}
	return link, nil
}
