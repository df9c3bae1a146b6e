// Package merge orchestrates the couple-session merge: authorization,
// cross-partner isolation, topic matching, and exercise derivation. It is
// the only place where material derived from both partners' analyses is
// combined, and it only ever combines isolated profiles.
package merge

import (
	"time"

	"attune/internal/analysis"
	"attune/internal/boundary/match"
	id "attune/pkg/domain"
)

// PartnerAnalysis pairs one partner's identity with their full analysis.
// The analysis never leaves this process; only its isolated profile feeds
// the merge.
type PartnerAnalysis struct {
	ClientID id.ClientID
	Analysis analysis.ClinicalAnalysis
}

// Request is one merge attempt for a couple session.
type Request struct {
	CoupleID    id.CoupleID
	SessionID   id.SessionID
	TherapistID id.TherapistID
	RequestID   string
	PartnerA    PartnerAnalysis
	PartnerB    PartnerAnalysis
}

// Outcome is the shareable merge result. Everything in it is built from
// allow-listed labels and fixed exercise text.
type Outcome struct {
	CoupleID    id.CoupleID
	SessionID   id.SessionID
	GeneratedAt time.Time
	Topics      []match.Topic
	FocusAreas  []string
	Summary     string
	Exercises   []string
}

// Attempt outcomes.
const (
	OutcomeMerged  = "merged"
	OutcomeDenied  = "denied"
	OutcomeAborted = "aborted_unsafe"
	OutcomeFailed  = "failed"
)

// AttemptRecord is the orchestrator's own log row for one merge attempt.
// Exactly one record exists per attempt, whatever the outcome. Reason is a
// domain error code, never content.
type AttemptRecord struct {
	Timestamp        time.Time
	CoupleID         id.CoupleID
	SessionID        id.SessionID
	TherapistID      id.TherapistID
	PartnerA         id.ClientID
	PartnerB         id.ClientID
	RequestID        string
	Outcome          string
	Reason           string
	IsolationInvoked bool
	// LabelsA and LabelsB snapshot the per-partner allow-listed label counts
	// the attempt accessed. Counts only, never the labels.
	LabelsA      int
	LabelsB      int
	TopicSummary string
}
