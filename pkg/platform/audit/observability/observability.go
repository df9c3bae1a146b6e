// Package observability bridges structured logging and the asynchronous
// audit channel: one call writes the log line and forwards the matching
// security event.
package observability

import (
	"context"
	"log/slog"

	"attune/pkg/attrs"
	id "attune/pkg/domain"
	audit "attune/pkg/platform/audit"
)

// LogAudit logs a security-relevant event and forwards it to the async
// audit channel without blocking. attrList follows the slog key-value
// convention; couple_id, therapist_id, request_id, and reason are lifted
// into the typed event. A full channel drops the event; the log line has
// already been written at that point.
func LogAudit(ctx context.Context, logger *slog.Logger, sink chan<- audit.Event, event string, attrList ...any) {
	args := append(attrList, "event", event, "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, event, args...)
	}
	if sink == nil {
		return
	}

	e := audit.SecurityEvent{
		Action:    event,
		Reason:    attrs.ExtractString(attrList, "reason"),
		RequestID: attrs.ExtractString(attrList, "request_id"),
		Severity:  audit.SeverityWarning,
	}.ToEvent()
	if coupleID, err := id.ParseCoupleID(attrs.ExtractString(attrList, "couple_id")); err == nil {
		e.CoupleID = coupleID
	}
	if therapistID, err := id.ParseTherapistID(attrs.ExtractString(attrList, "therapist_id")); err == nil {
		e.TherapistID = therapistID
	}

	select {
	case sink <- e:
	default:
	}
}
