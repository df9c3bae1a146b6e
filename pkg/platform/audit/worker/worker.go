// Package worker drains the asynchronous audit channel. Security and
// operations events flow through here; compliance events bypass the channel
// and go through the fail-closed publisher.
package worker

import (
	"context"
	"log/slog"
	"time"

	audit "attune/pkg/platform/audit"
)

// Sink receives events after they are persisted, typically the Kafka stream
// publisher.
type Sink interface {
	Publish(ctx context.Context, event audit.Event) error
}

// Worker consumes audit events from a channel and persists them. A failed
// append is logged and dropped rather than stopping the worker: async audit
// is best-effort, and a crash-looping drainer loses more events than it
// saves.
type Worker struct {
	store  audit.Store
	stream Sink
	inbox  <-chan audit.Event
	logger *slog.Logger
}

// Option configures the Worker.
type Option func(*Worker)

// WithStream forwards persisted events to a downstream sink.
func WithStream(sink Sink) Option {
	return func(w *Worker) { w.stream = sink }
}

// WithLogger sets a logger for drop reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

// NewWorker creates an audit worker over the given inbox.
func NewWorker(store audit.Store, inbox <-chan audit.Event, opts ...Option) *Worker {
	w := &Worker{store: store, inbox: inbox}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains the inbox until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			w.handle(ctx, event)
		}
	}
}

func (w *Worker) handle(ctx context.Context, event audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := w.store.Append(ctx, event); err != nil {
		if w.logger != nil {
			w.logger.Error("audit event dropped",
				"action", event.Action,
				"category", event.Category,
				"error", err,
			)
		}
		return
	}

	if w.stream != nil {
		if err := w.stream.Publish(ctx, event); err != nil && w.logger != nil {
			w.logger.Warn("audit stream publish failed",
				"action", event.Action,
				"error", err,
			)
		}
	}
}
