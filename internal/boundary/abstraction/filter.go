// Package abstraction reduces a full clinical analysis to a client-safe
// guide. Deny-list based: a fixed remove-entirely vocabulary drops whole
// items, a substitution map rewrites surviving clinical terms to plain
// language, and an independent residual pattern scan backstops both.
package abstraction

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"attune/internal/analysis"
	"attune/internal/boundary/metrics"
	"attune/internal/boundary/terms"
	dErrors "attune/pkg/domain-errors"
)

const (
	maxThemes       = 5
	maxExplorations = 4
)

// Guide is the client-facing reduction of one ClinicalAnalysis. Every string
// is free of remove-entirely terms by construction; Safe outputs have also
// passed the residual pattern scan.
type Guide struct {
	Themes       []string
	Explorations []string
	Focus        string
}

// Result is the tagged outcome of one abstraction pass. Callers must check
// Safe before delivering the guide anywhere; ToClientInput enforces that.
type Result struct {
	Guide         Guide
	StrippedTerms []string
	Safe          bool
}

// Filter is a pure function of its input and the loaded term tables; it is
// safe for concurrent use.
type Filter struct {
	tables  *terms.Tables
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures the Filter.
type Option func(*Filter)

// WithMetrics sets the boundary metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Filter) { f.metrics = m }
}

// WithLogger sets a logger for therapist-facing diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Filter) { f.logger = logger }
}

// New creates an abstraction filter over the given tables.
func New(tables *terms.Tables, opts ...Option) *Filter {
	f := &Filter{tables: tables}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Abstract reduces the analysis to a client-safe guide. It returns the guide,
// the list of clinical terms that were stripped or substituted, and whether
// the finished guide passed the residual safety check. An unsafe guide must
// never be delivered; use ToClientInput for enforced fail-closed semantics.
func (f *Filter) Abstract(a analysis.ClinicalAnalysis) Result {
	var stripped []string
	removed, substituted := 0, 0

	clean := func(items []string, limit int) []string {
		var out []string
		for _, item := range items {
			if len(out) == limit {
				break
			}
			if term, hit := f.removeEntirelyHit(item); hit {
				stripped = append(stripped, term)
				removed++
				continue
			}
			rewritten, terms := f.substitute(item)
			stripped = append(stripped, terms...)
			substituted += len(terms)
			if final := capitalize(rewritten); final != "" {
				out = append(out, final)
			}
		}
		return out
	}

	guide := Guide{
		Themes:       clean(a.Themes, maxThemes),
		Explorations: clean(a.Explorations, maxExplorations),
	}
	guide.Focus = f.focusSentence(guide.Themes)

	residual := f.tables.ResidualScan(strings.Join(append(append([]string{guide.Focus}, guide.Themes...), guide.Explorations...), " "))
	safe := len(residual) == 0

	f.metrics.IncTermsFiltered("removed", removed)
	f.metrics.IncTermsFiltered("substituted", substituted)
	if !safe {
		f.metrics.IncUnsafeOutput("abstraction", "residual_pattern")
		if f.logger != nil {
			// Pattern detail stays in operator logs; it must not reach the
			// client-facing consumer.
			f.logger.Debug("abstraction residual check failed",
				"filter", "abstraction",
				"patterns_matched", len(residual),
			)
		}
	}

	return Result{Guide: guide, StrippedTerms: stripped, Safe: safe}
}

// ToClientInput returns the guide only when it is safe to deliver. The error
// carries no filter-internal detail; callers surface a generic message.
func (f *Filter) ToClientInput(a analysis.ClinicalAnalysis) (Guide, error) {
	result := f.Abstract(a)
	if !result.Safe {
		return Guide{}, dErrors.New(dErrors.CodeUnsafeContent, "client guide failed residual clinical check")
	}
	return result.Guide, nil
}

func (f *Filter) removeEntirelyHit(item string) (string, bool) {
	lower := strings.ToLower(item)
	for _, term := range f.tables.Abstraction.RemoveEntirely {
		if strings.Contains(lower, term) {
			return term, true
		}
	}
	return "", false
}

// substitute applies the clinical-to-plain map, longest term first, and
// returns the rewritten string plus every term that was replaced. Matching
// runs through the precompiled case-insensitive patterns; indexes are never
// transferred between a string and its lowercased form, which differ in
// byte length for some runes.
func (f *Filter) substitute(item string) (string, []string) {
	var replaced []string
	for _, sub := range f.tables.Abstraction.Substitutions {
		if !sub.Pattern.MatchString(item) {
			continue
		}
		item = sub.Pattern.ReplaceAllLiteralString(item, sub.Plain)
		replaced = append(replaced, sub.Term)
	}
	return item, replaced
}

func (f *Filter) focusSentence(themes []string) string {
	if len(themes) == 0 {
		return f.tables.Abstraction.DefaultFocus
	}
	// The first theme has already been through the substitution map.
	r, size := utf8.DecodeRuneInString(themes[0])
	return "In this session, you might explore " + string(unicode.ToLower(r)) + themes[0][size:] + "."
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
