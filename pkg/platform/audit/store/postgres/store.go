package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	id "attune/pkg/domain"
	audit "attune/pkg/platform/audit"
	txcontext "attune/pkg/platform/tx"

	"github.com/google/uuid"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to the outbox table and published to Kafka by the
// stream worker; Kafka is the source of truth for audit events.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// audit.Event for deserialization by downstream consumers.
type outboxPayload struct {
	ID               string `json:"ID"`
	Category         string `json:"Category"`
	Timestamp        string `json:"Timestamp"`
	CoupleID         string `json:"CoupleID,omitempty"`
	SessionID        string `json:"SessionID,omitempty"`
	TherapistID      string `json:"TherapistID,omitempty"`
	PartnerA         string `json:"PartnerA,omitempty"`
	PartnerB         string `json:"PartnerB,omitempty"`
	Action           string `json:"Action"`
	Decision         string `json:"Decision,omitempty"`
	Reason           string `json:"Reason,omitempty"`
	RequestID        string `json:"RequestID,omitempty"`
	IsolationInvoked bool   `json:"IsolationInvoked"`
	LabelsA          int    `json:"LabelsA,omitempty"`
	LabelsB          int    `json:"LabelsB,omitempty"`
	TopicSummary     string `json:"TopicSummary,omitempty"`
}

// Append writes an audit event to the outbox table for Kafka publishing.
// When a transaction is present in the context, the outbox insert joins it,
// so a merge and its audit record commit or roll back together.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	// Always derive category from action; the event table is the source of
	// truth even when the caller pre-filled Category.
	category := audit.AuditEvent(event.Action).Category()

	payload := outboxPayload{
		ID:               eventID.String(),
		Category:         string(category),
		Timestamp:        event.Timestamp.Format(time.RFC3339Nano),
		Action:           event.Action,
		Decision:         event.Decision,
		Reason:           event.Reason,
		RequestID:        event.RequestID,
		IsolationInvoked: event.IsolationInvoked,
		LabelsA:          event.LabelsA,
		LabelsB:          event.LabelsB,
		TopicSummary:     event.TopicSummary,
	}
	if !event.CoupleID.IsNil() {
		payload.CoupleID = event.CoupleID.String()
	}
	if !event.SessionID.IsNil() {
		payload.SessionID = event.SessionID.String()
	}
	if !event.TherapistID.IsNil() {
		payload.TherapistID = event.TherapistID.String()
	}
	if !event.PartnerA.IsNil() {
		payload.PartnerA = event.PartnerA.String()
	}
	if !event.PartnerB.IsNil() {
		payload.PartnerB = event.PartnerB.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if !event.CoupleID.IsNil() {
		aggregateType = "couple"
		aggregateID = event.CoupleID.String()
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(), // outbox entry ID
		aggregateType,
		aggregateID,
		event.Action,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// AppendWithID inserts an audit event into the audit_events table with a
// specific ID. Used by the Kafka consumer to materialize events for
// querying. Idempotent via ON CONFLICT DO NOTHING.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event audit.Event) error {
	query := `
		INSERT INTO audit_events (
			id, category, timestamp, couple_id, session_id, therapist_id,
			partner_a, partner_b, action, decision, reason, request_id,
			isolation_invoked, labels_a, labels_b, topic_summary
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING
	`

	var coupleID, sessionID, therapistID, partnerA, partnerB *uuid.UUID
	if !event.CoupleID.IsNil() {
		cid := uuid.UUID(event.CoupleID)
		coupleID = &cid
	}
	if !event.SessionID.IsNil() {
		sid := uuid.UUID(event.SessionID)
		sessionID = &sid
	}
	if !event.TherapistID.IsNil() {
		tid := uuid.UUID(event.TherapistID)
		therapistID = &tid
	}
	if !event.PartnerA.IsNil() {
		pa := uuid.UUID(event.PartnerA)
		partnerA = &pa
	}
	if !event.PartnerB.IsNil() {
		pb := uuid.UUID(event.PartnerB)
		partnerB = &pb
	}

	_, err := s.db.ExecContext(ctx, query,
		eventID,
		string(event.Category),
		event.Timestamp,
		coupleID,
		sessionID,
		therapistID,
		partnerA,
		partnerB,
		event.Action,
		event.Decision,
		event.Reason,
		event.RequestID,
		event.IsolationInvoked,
		event.LabelsA,
		event.LabelsB,
		event.TopicSummary,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByCouple returns events for a specific couple, most recent first.
func (s *Store) ListByCouple(ctx context.Context, coupleID id.CoupleID) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, couple_id, session_id, therapist_id,
			   partner_a, partner_b, action, decision, reason, request_id,
			   isolation_invoked, labels_a, labels_b, topic_summary
		FROM audit_events
		WHERE couple_id = $1
		ORDER BY timestamp DESC
	`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(coupleID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, couple_id, session_id, therapist_id,
			   partner_a, partner_b, action, decision, reason, request_id,
			   isolation_invoked, labels_a, labels_b, topic_summary
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

func (s *Store) scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			category    string
			event       audit.Event
			coupleID    *uuid.UUID
			sessionID   *uuid.UUID
			therapistID *uuid.UUID
			partnerA    *uuid.UUID
			partnerB    *uuid.UUID
		)

		err := rows.Scan(
			&category,
			&event.Timestamp,
			&coupleID,
			&sessionID,
			&therapistID,
			&partnerA,
			&partnerB,
			&event.Action,
			&event.Decision,
			&event.Reason,
			&event.RequestID,
			&event.IsolationInvoked,
			&event.LabelsA,
			&event.LabelsB,
			&event.TopicSummary,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		if coupleID != nil {
			event.CoupleID = id.CoupleID(*coupleID)
		}
		if sessionID != nil {
			event.SessionID = id.SessionID(*sessionID)
		}
		if therapistID != nil {
			event.TherapistID = id.TherapistID(*therapistID)
		}
		if partnerA != nil {
			event.PartnerA = id.ClientID(*partnerA)
		}
		if partnerB != nil {
			event.PartnerB = id.ClientID(*partnerB)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
