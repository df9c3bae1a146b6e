// Package anonymize reduces free-text research queries to a form safe for an
// external search API. Layered detection: blocking patterns reject a query
// outright, a capitalized-pair heuristic catches person names, and
// per-category regex sets substitute canonical placeholder tokens.
package anonymize

import (
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"attune/internal/boundary/metrics"
	"attune/internal/boundary/terms"
	dErrors "attune/pkg/domain-errors"
)

// CategoryBlocking tags queries rejected by a blocking pattern. Blocking
// rejections never carry a redacted candidate.
const CategoryBlocking = "blocking_pattern"

// CategoryName tags heuristic person-name detections.
const CategoryName = "name"

// Outcome is the tagged result of one anonymization pass. Redacted is
// advisory: consult it only when Safe is true.
type Outcome struct {
	Original   string
	Redacted   string
	Categories []string
	Safe       bool
	Reason     string
}

// Anonymizer applies the boundary tables to research queries. Pure function
// of its input and the tables; safe for concurrent use.
type Anonymizer struct {
	tables  *terms.Tables
	metrics *metrics.Metrics
	logger  *slog.Logger

	// strict forces Safe=false whenever any category was detected, even if
	// every detection was substituted. The redacted candidate is then
	// diagnostic-only.
	strict bool
}

// Option configures the Anonymizer.
type Option func(*Anonymizer)

// WithMetrics sets the boundary metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Anonymizer) { a.metrics = m }
}

// WithLogger sets a logger for therapist-facing diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Anonymizer) { a.logger = logger }
}

// WithPermissiveMode allows redacted candidates to be used downstream when
// every detection was successfully substituted. Strict is the default.
func WithPermissiveMode() Option {
	return func(a *Anonymizer) { a.strict = false }
}

// New creates a strict-mode anonymizer over the given tables.
func New(tables *terms.Tables, opts ...Option) *Anonymizer {
	a := &Anonymizer{tables: tables, strict: true}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// namePair matches runs of two consecutive capitalized words.
var namePair = regexp.MustCompile(`\b([A-Z][a-z]+)[ ]([A-Z][a-z]+)\b`)

// Anonymize runs the full detection pipeline over one query.
func (a *Anonymizer) Anonymize(query string) Outcome {
	// Stage 1: blocking patterns short-circuit. No partial redaction is
	// attempted for explicit self-disclosure.
	for _, re := range a.tables.Anonymizer.BlockingPatterns {
		if re.MatchString(query) {
			a.metrics.IncQueryRejected(CategoryBlocking)
			return Outcome{
				Original:   query,
				Categories: []string{CategoryBlocking},
				Safe:       false,
				Reason:     "query contains explicit self-disclosure",
			}
		}
	}

	redacted := query
	var categories []string

	// Stage 2: heuristic name detection.
	redacted, nameHits := a.redactNames(redacted)
	if nameHits > 0 {
		categories = append(categories, CategoryName)
	}

	// Stage 3: category regex sets, in table order.
	for _, cat := range a.tables.Anonymizer.Categories {
		hit := false
		for _, re := range cat.Patterns {
			redacted = re.ReplaceAllStringFunc(redacted, func(match string) string {
				if a.allWordsClinical(match) {
					// Every constituent word is allow-listed jargon; treat
					// the match as a false positive.
					return match
				}
				hit = true
				return cat.Placeholder
			})
		}
		if hit {
			categories = append(categories, cat.Name)
		}
	}

	// Stage 4: categories are recorded once each (stage 3 already emits one
	// tag per category; the dedupe guards the name/category overlap).
	categories = dedupe(categories)

	outcome := Outcome{
		Original:   query,
		Redacted:   redacted,
		Categories: categories,
	}

	// Stage 5: safety verdict.
	switch {
	case len(categories) == 0:
		outcome.Safe = true
	case a.strict:
		outcome.Safe = false
		outcome.Reason = "identifying content detected"
	default:
		outcome.Safe = strings.TrimSpace(redacted) != ""
		if !outcome.Safe {
			outcome.Reason = "nothing usable remained after redaction"
		}
	}

	if !outcome.Safe {
		for _, c := range categories {
			a.metrics.IncQueryRejected(c)
		}
		if a.logger != nil {
			a.logger.Debug("research query rejected",
				"filter", "anonymize",
				"categories", categories,
			)
		}
	}

	return outcome
}

// MustAnonymize returns the usable query text or a content-safety error.
// The error message carries no detected content.
func (a *Anonymizer) MustAnonymize(query string) (string, error) {
	outcome := a.Anonymize(query)
	if !outcome.Safe {
		return "", dErrors.New(dErrors.CodeUnsafeContent, "research query failed anonymization")
	}
	if len(outcome.Categories) == 0 {
		return outcome.Original, nil
	}
	return outcome.Redacted, nil
}

// redactNames replaces surviving capitalized-word pairs with a [PERSON]
// token. Pairs are skipped when they are clinical jargon, a street address
// tail, or a known multi-word place name.
func (a *Anonymizer) redactNames(query string) (string, int) {
	hits := 0
	redacted := namePair.ReplaceAllStringFunc(query, func(match string) string {
		words := strings.SplitN(match, " ", 2)
		first, second := words[0], words[1]

		if a.isClinicalWord(first) && a.isClinicalWord(second) {
			return match
		}
		if _, ok := a.tables.Anonymizer.StreetSuffixes[second]; ok {
			return match
		}
		for _, place := range a.tables.Anonymizer.KnownPlaces {
			if strings.EqualFold(match, place) {
				return match
			}
		}

		hits++
		return "[PERSON]"
	})
	return redacted, hits
}

func (a *Anonymizer) isClinicalWord(word string) bool {
	_, ok := a.tables.Anonymizer.ClinicalVocabulary[strings.ToLower(word)]
	return ok
}

// allWordsClinical reports whether every alphabetic word of a match is in
// the clinical vocabulary. Matches with no alphabetic words (phone numbers,
// IDs) are never false positives.
func (a *Anonymizer) allWordsClinical(match string) bool {
	words := strings.FieldsFunc(match, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !a.isClinicalWord(w) {
			return false
		}
	}
	return true
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
