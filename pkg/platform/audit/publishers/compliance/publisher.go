// Package compliance provides a fail-closed audit publisher for regulatory
// events.
//
// The publisher emits compliance events with synchronous, fail-closed
// semantics. Events are written to the outbox and the caller blocks until
// the write succeeds. If the write fails, an error is returned and the
// calling operation MUST fail: a merge over clinical content without its
// audit record is not allowed to exist.
//
// Use for: merge_succeeded, merge_failed, couple_link_*
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	audit "attune/pkg/platform/audit"
)

// Publisher emits compliance events with fail-closed semantics.
// All writes are synchronous; the caller blocks until persistence succeeds
// or fails.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
// The store must be outbox-backed for guaranteed delivery.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store: store,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes a compliance event to the audit store.
// Returns an error if persistence fails; the caller MUST fail its operation.
func (p *Publisher) Emit(ctx context.Context, event audit.ComplianceEvent) error {
	start := time.Now()

	if event.CoupleID.IsNil() {
		return fmt.Errorf("compliance event requires CoupleID")
	}
	if event.Action == "" {
		return fmt.Errorf("compliance event requires Action")
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := p.store.Append(ctx, event.ToEvent()); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: compliance audit failed",
				"action", event.Action,
				"couple_id", event.CoupleID,
				"error", err,
			)
		}
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEventsEmitted()
	}

	return nil
}

// Close is a no-op for the synchronous compliance publisher.
func (p *Publisher) Close() error {
	return nil
}
