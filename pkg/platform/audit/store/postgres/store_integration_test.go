//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	id "attune/pkg/domain"
	audit "attune/pkg/platform/audit"
	"attune/pkg/testutil/containers"
)

const auditSchema = `
	CREATE TABLE IF NOT EXISTS outbox (
		id UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		category TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		couple_id UUID,
		session_id UUID,
		therapist_id UUID,
		partner_a UUID,
		partner_b UUID,
		action TEXT NOT NULL,
		decision TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		isolation_invoked BOOLEAN NOT NULL DEFAULT FALSE,
		labels_a INT NOT NULL DEFAULT 0,
		labels_b INT NOT NULL DEFAULT 0,
		topic_summary TEXT NOT NULL DEFAULT ''
	);
`

func TestPostgresAuditStore(t *testing.T) {
	pc := containers.NewPostgresContainer(t)
	pc.Exec(t, auditSchema)

	store := New(pc.DB)
	ctx := context.Background()

	coupleID := id.NewCoupleID()
	sessionID := id.SessionID(uuid.New())
	therapistID := id.TherapistID(uuid.New())
	partnerA := id.ClientID(uuid.New())
	partnerB := id.ClientID(uuid.New())

	event := audit.Event{
		Timestamp:        time.Now().UTC(),
		CoupleID:         coupleID,
		SessionID:        sessionID,
		TherapistID:      therapistID,
		PartnerA:         partnerA,
		PartnerB:         partnerB,
		Action:           string(audit.EventMergeSucceeded),
		Decision:         "merged",
		RequestID:        "req-123",
		IsolationInvoked: true,
		LabelsA:          4,
		LabelsB:          3,
		TopicSummary:     "1 shared, 1 complementary, 0 conflict topics across 3 focus areas",
	}

	t.Run("Append writes to the outbox", func(t *testing.T) {
		require.NoError(t, store.Append(ctx, event))

		var count int
		require.NoError(t, pc.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM outbox WHERE aggregate_type = 'couple' AND aggregate_id = $1`,
			coupleID.String(),
		).Scan(&count))
		require.Equal(t, 1, count)
	})

	t.Run("AppendWithID materializes and is idempotent", func(t *testing.T) {
		eventID := uuid.New()
		require.NoError(t, store.AppendWithID(ctx, eventID, event))
		require.NoError(t, store.AppendWithID(ctx, eventID, event), "duplicate insert is a no-op")

		events, err := store.ListByCouple(ctx, coupleID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, string(audit.EventMergeSucceeded), events[0].Action)
		require.True(t, events[0].IsolationInvoked)
		require.Equal(t, therapistID.String(), events[0].TherapistID.String())
		require.Equal(t, sessionID.String(), events[0].SessionID.String())
		require.Equal(t, partnerA.String(), events[0].PartnerA.String())
		require.Equal(t, partnerB.String(), events[0].PartnerB.String())
		require.Equal(t, 4, events[0].LabelsA)
		require.Equal(t, 3, events[0].LabelsB)
	})

	t.Run("ListRecent orders newest first", func(t *testing.T) {
		older := event
		older.Timestamp = event.Timestamp.Add(-time.Hour)
		older.Action = string(audit.EventMergeFailed)
		require.NoError(t, store.AppendWithID(ctx, uuid.New(), older))

		events, err := store.ListRecent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		require.Equal(t, string(audit.EventMergeSucceeded), events[0].Action)
		require.Equal(t, string(audit.EventMergeFailed), events[1].Action)
	})
}
