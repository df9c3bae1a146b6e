// Package stream publishes audit events to Kafka. The audit topic is the
// durable fan-out point for downstream consumers (retention tooling, SIEM
// forwarders, the materializer that fills audit_events).
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "attune/pkg/platform/audit"
)

// Publisher produces audit events to a single Kafka topic, keyed by couple
// so per-couple ordering is preserved across partitions.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for produce diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates a Kafka-backed audit publisher.
func New(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("stream publisher requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("stream publisher requires a topic")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	p := &Publisher{client: client, topic: topic}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Publish produces one event synchronously. Callers decide whether a
// produce failure is fatal; the audit worker logs and keeps draining, the
// compliance path uses the outbox instead of this publisher.
func (p *Publisher) Publish(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	key := []byte(event.Action)
	if !event.CoupleID.IsNil() {
		key = []byte(event.CoupleID.String())
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   key,
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (p *Publisher) Close() error {
	p.client.Close()
	return nil
}
