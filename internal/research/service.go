// Package research turns allow-listed clinical labels into external
// literature lookups. Every query crosses the anonymization boundary before
// it leaves the process, and results are cached so repeat lookups never
// re-issue the external call inside the retention window.
package research

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"attune/internal/boundary/anonymize"
	"attune/internal/platform/config"
	id "attune/pkg/domain"
	dErrors "attune/pkg/domain-errors"
	audit "attune/pkg/platform/audit"
)

// Finding is one external research result, already free of any client
// content: it originates entirely from the external corpus.
type Finding struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
	Source  string `json:"source"`
}

// SearchClient is the port to the external literature search API.
type SearchClient interface {
	Search(ctx context.Context, query string) ([]Finding, error)
}

// TopicResult groups the findings for one requested label.
type TopicResult struct {
	Label     string    `json:"label"`
	Query     string    `json:"query"`
	Findings  []Finding `json:"findings"`
	FromCache bool      `json:"from_cache"`
}

// LookupRequest is one research lookup across a set of labels.
type LookupRequest struct {
	TherapistID id.TherapistID
	RequestID   string
	Labels      []string
}

// maxLabelsPerLookup bounds one request's external fan-out.
const maxLabelsPerLookup = 8

// Service builds, anonymizes, caches, and issues research queries.
type Service struct {
	builder *anonymize.Builder
	search  SearchClient

	cache    *redis.Client
	cacheTTL time.Duration

	sink   chan<- audit.Event
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithCache wires the redis result cache. TTL enforces result retention.
func WithCache(cache *redis.Client, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithAuditSink wires the asynchronous audit channel for query events.
func WithAuditSink(sink chan<- audit.Event) Option {
	return func(s *Service) { s.sink = sink }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a research service.
func NewService(builder *anonymize.Builder, search SearchClient, opts ...Option) *Service {
	s := &Service{
		builder:  builder,
		search:   search,
		cacheTTL: config.ResearchCacheTTL,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup resolves research findings for each label. A label whose rendered
// query fails anonymization is skipped and audited as a rejection; it never
// fails the batch. A search backend failure on a cache miss is skipped with
// a warning so one flaky upstream call cannot sink the whole lookup.
func (s *Service) Lookup(ctx context.Context, req LookupRequest) ([]TopicResult, error) {
	if len(req.Labels) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "research lookup requires at least one label")
	}
	if len(req.Labels) > maxLabelsPerLookup {
		return nil, dErrors.New(dErrors.CodeValidation, "too many labels in one lookup")
	}

	var results []TopicResult
	var lastErr error
	for _, label := range req.Labels {
		query, err := s.builder.Build(label)
		if err != nil {
			s.emit(audit.SecurityEvent{
				TherapistID: req.TherapistID,
				Action:      string(audit.EventQueryRejected),
				Reason:      string(dErrors.CodeOf(err)),
				RequestID:   req.RequestID,
				Severity:    audit.SeverityWarning,
			}.ToEvent())
			continue
		}

		if findings, ok := s.cached(ctx, query); ok {
			results = append(results, TopicResult{Label: label, Query: query, Findings: findings, FromCache: true})
			continue
		}

		findings, err := s.search.Search(ctx, query)
		if err != nil {
			lastErr = err
			s.logger.WarnContext(ctx, "research search failed",
				"request_id", req.RequestID,
				"error", err.Error(),
			)
			continue
		}
		s.store(ctx, query, findings)
		s.emit(audit.OpsEvent{
			TherapistID: req.TherapistID,
			Action:      string(audit.EventQueryIssued),
			RequestID:   req.RequestID,
		}.ToEvent())

		results = append(results, TopicResult{Label: label, Query: query, Findings: findings})
	}

	if len(results) == 0 && lastErr != nil {
		return nil, dErrors.Wrap(lastErr, dErrors.CodeInternal, "research search unavailable")
	}
	return results, nil
}

// cacheKey hashes the anonymized query so cached entries never store query
// text as a key, and keys rotate with the terms artifact.
func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return "research:v1:" + hex.EncodeToString(sum[:])
}

func (s *Service) cached(ctx context.Context, query string) ([]Finding, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, cacheKey(query)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.WarnContext(ctx, "research cache read failed", "error", err.Error())
		}
		return nil, false
	}
	var findings []Finding
	if err := json.Unmarshal(raw, &findings); err != nil {
		// A corrupt entry behaves like a miss and is overwritten on store.
		s.logger.WarnContext(ctx, "research cache entry corrupt", "error", err.Error())
		return nil, false
	}
	return findings, true
}

func (s *Service) store(ctx context.Context, query string, findings []Finding) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(findings)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(query), raw, s.cacheTTL).Err(); err != nil {
		s.logger.WarnContext(ctx, "research cache write failed", "error", err.Error())
	}
}

func (s *Service) emit(event audit.Event) {
	if s.sink == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	select {
	case s.sink <- event:
	default:
		s.logger.Warn("audit channel full, research event dropped", "action", event.Action)
	}
}
