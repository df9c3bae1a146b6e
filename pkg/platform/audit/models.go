package audit

import (
	"time"

	id "attune/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// Merge attempts over clinical content fall here; these require
	// tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring:
	// denied merges, rejected research queries, withheld guides.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out. Events never carry
// clinical content; Reason and TopicSummary are code- and count-based only.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	CoupleID  id.CoupleID
	SessionID id.SessionID
	// TherapistID is the authenticated clinician who triggered the action.
	TherapistID id.TherapistID
	// PartnerA and PartnerB identify both clients whose material the action
	// touched. Set on merge events; zero elsewhere.
	PartnerA  id.ClientID
	PartnerB  id.ClientID
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// IsolationInvoked records that the cross-partner filter ran before any
	// content was combined. Compliance reviews key on this field.
	IsolationInvoked bool
	// LabelsA and LabelsB snapshot how many allow-listed labels each
	// partner's profile contributed. Counts only, never the labels.
	LabelsA int
	LabelsB int
	// TopicSummary is the count-based match summary, safe to persist.
	TopicSummary string
}

type AuditEvent string

const (
	// Merge events
	EventMergeSucceeded AuditEvent = "merge_succeeded"
	EventMergeFailed    AuditEvent = "merge_failed"
	EventMergeDenied    AuditEvent = "merge_denied"

	// Couple link events
	EventLinkCreated AuditEvent = "couple_link_created"
	EventLinkRevoked AuditEvent = "couple_link_revoked"

	// Boundary events
	EventGuideGenerated AuditEvent = "guide_generated"
	EventGuideWithheld  AuditEvent = "guide_withheld"
	EventQueryIssued    AuditEvent = "research_query_issued"
	EventQueryRejected  AuditEvent = "research_query_rejected"
)

// eventCategories maps each audit event to its category.
// Compliance: every merge attempt and link change, tamper-proof retention.
// Security: content-safety rejections and authorization denials.
// Operations: routine boundary activity, can be sampled.
var eventCategories = map[AuditEvent]EventCategory{
	EventMergeSucceeded: CategoryCompliance,
	EventMergeFailed:    CategoryCompliance,
	EventLinkCreated:    CategoryCompliance,
	EventLinkRevoked:    CategoryCompliance,

	EventMergeDenied:   CategorySecurity,
	EventGuideWithheld: CategorySecurity,
	EventQueryRejected: CategorySecurity,

	EventGuideGenerated: CategoryOperations,
	EventQueryIssued:    CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures regulatory-significant actions requiring
// guaranteed persistence. Use with the compliance publisher for fail-closed
// semantics: if the event cannot be written, the operation must not proceed.
type ComplianceEvent struct {
	Timestamp        time.Time // Set automatically if zero
	CoupleID         id.CoupleID
	SessionID        id.SessionID
	TherapistID      id.TherapistID
	PartnerA         id.ClientID
	PartnerB         id.ClientID
	Action           string // e.g. "merge_succeeded"
	Decision         string // Outcome (e.g. "merged", "denied", "aborted")
	Reason           string // Error code or denial reason, never content
	RequestID        string // Correlation ID for request tracing
	IsolationInvoked bool
	LabelsA          int // per-partner accessed-label counts, never content
	LabelsB          int
	TopicSummary     string
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the generic Event type for store fan-out.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:         CategoryCompliance,
		Timestamp:        e.Timestamp,
		CoupleID:         e.CoupleID,
		SessionID:        e.SessionID,
		TherapistID:      e.TherapistID,
		PartnerA:         e.PartnerA,
		PartnerB:         e.PartnerB,
		Action:           e.Action,
		Decision:         e.Decision,
		Reason:           e.Reason,
		RequestID:        e.RequestID,
		IsolationInvoked: e.IsolationInvoked,
		LabelsA:          e.LabelsA,
		LabelsB:          e.LabelsB,
		TopicSummary:     e.TopicSummary,
	}
}

// SecurityEvent captures content-safety rejections and authorization
// denials. Events are processed asynchronously; emission never blocks the
// rejecting operation.
type SecurityEvent struct {
	Timestamp   time.Time
	CoupleID    id.CoupleID
	TherapistID id.TherapistID
	Action      string
	Reason      string // e.g. "unsafe_content", "link_revoked"
	RequestID   string
	Severity    Severity
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Category returns CategorySecurity (always).
func (e SecurityEvent) Category() EventCategory { return CategorySecurity }

// ToEvent converts to the generic Event type for store fan-out.
func (e SecurityEvent) ToEvent() Event {
	return Event{
		Category:    CategorySecurity,
		Timestamp:   e.Timestamp,
		CoupleID:    e.CoupleID,
		TherapistID: e.TherapistID,
		Action:      e.Action,
		Reason:      e.Reason,
		RequestID:   e.RequestID,
	}
}

// OpsEvent captures routine boundary activity with minimal overhead.
type OpsEvent struct {
	Timestamp   time.Time
	CoupleID    id.CoupleID
	TherapistID id.TherapistID
	Action      string
	RequestID   string
}

// Category returns CategoryOperations (always).
func (e OpsEvent) Category() EventCategory { return CategoryOperations }

// ToEvent converts to the generic Event type for store fan-out.
func (e OpsEvent) ToEvent() Event {
	return Event{
		Category:    CategoryOperations,
		Timestamp:   e.Timestamp,
		CoupleID:    e.CoupleID,
		TherapistID: e.TherapistID,
		Action:      e.Action,
		RequestID:   e.RequestID,
	}
}
