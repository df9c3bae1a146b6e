// Package isolation reduces a full clinical analysis to the category-only
// structure that may be shared with the other partner of a couple. Unlike
// the abstraction and anonymization filters this is allow-list based: only
// labels on a fixed per-category list survive, and the output type has no
// field capable of holding narrative content, so leakage of free text is
// structurally impossible rather than merely filtered.
package isolation

import (
	"log/slog"
	"strings"

	"attune/internal/analysis"
	"attune/internal/boundary/metrics"
	"attune/internal/boundary/terms"
	dErrors "attune/pkg/domain-errors"
)

// Profile is the partner-shareable reduction of one ClinicalAnalysis.
// Every label is drawn from the allow-list for its category. There is no
// free-text field in this type; do not add one.
type Profile struct {
	Attachment    []string
	Frameworks    []string
	Themes        []string
	Modalities    []string
	Defenses      []string
	Communication []string
}

// Serialize renders the profile's labels as one reviewable string. Used by
// the strict-mode residual check and compliance tests; contains labels only.
func (p Profile) Serialize() string {
	var b strings.Builder
	write := func(category string, labels []string) {
		b.WriteString(category)
		b.WriteString(": ")
		b.WriteString(strings.Join(labels, " "))
		b.WriteString("; ")
	}
	write("attachment", p.Attachment)
	write("frameworks", p.Frameworks)
	write("themes", p.Themes)
	write("modalities", p.Modalities)
	write("defenses", p.Defenses)
	write("communication", p.Communication)
	return b.String()
}

// LabelSet flattens the profile into a membership set for pair matching.
func (p Profile) LabelSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, labels := range [][]string{p.Attachment, p.Frameworks, p.Themes, p.Modalities, p.Defenses, p.Communication} {
		for _, l := range labels {
			set[l] = struct{}{}
		}
	}
	return set
}

// LabelCount reports how many labels the profile carries, for audit
// snapshots.
func (p Profile) LabelCount() int {
	return len(p.Attachment) + len(p.Frameworks) + len(p.Themes) +
		len(p.Modalities) + len(p.Defenses) + len(p.Communication)
}

// ViolationError marks a strict-mode isolation failure: a serialized profile
// still matched a residual clinical pattern. The merge must abort; no
// partially-isolated result is emitted.
type ViolationError struct {
	PatternsMatched int
}

func (e *ViolationError) Error() string {
	return "cross-partner isolation violation"
}

// Filter is a pure function of its input and the loaded allow-lists; it is
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

// New creates an isolation filter over the given tables.
func New(tables *terms.Tables, opts ...Option) *Filter {
	f := &Filter{tables: tables}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Isolate intersects the analysis labels against the per-category
// allow-lists. Labels outside an allow-list are dropped silently; only the
// drop count is observable, through metrics. Narrative fields of the
// analysis (evidence, indicators, context, risk descriptions) are never
// read.
func (f *Filter) Isolate(a analysis.ClinicalAnalysis) Profile {
	lists := f.tables.Isolation

	var attachmentRaw, frameworkRaw, modalityRaw []string
	for _, fw := range a.Frameworks {
		switch terms.Normalize(fw.Category) {
		case "attachment":
			attachmentRaw = append(attachmentRaw, fw.Name)
		case "modality":
			modalityRaw = append(modalityRaw, fw.Name)
		default:
			frameworkRaw = append(frameworkRaw, fw.Name)
		}
	}

	var p Profile
	var dropped int

	p.Attachment, dropped = lists.Attachment.Intersect(attachmentRaw)
	f.metrics.IncLabelsDropped("attachment", dropped)

	p.Frameworks, dropped = lists.Frameworks.Intersect(frameworkRaw)
	f.metrics.IncLabelsDropped("frameworks", dropped)

	p.Modalities, dropped = lists.Modalities.Intersect(modalityRaw)
	f.metrics.IncLabelsDropped("modalities", dropped)

	p.Themes, dropped = lists.Themes.Intersect(a.Themes)
	f.metrics.IncLabelsDropped("themes", dropped)

	// Pattern observations route by allow-list membership: an attachment
	// label, a defense, or a communication pattern each land in their own
	// category; anything else is dropped.
	patternsDropped := 0
	for _, obs := range a.Patterns {
		label := terms.Normalize(obs.Type)
		switch {
		case lists.Attachment.Contains(label):
			p.Attachment = appendUnique(p.Attachment, label)
		case lists.Defenses.Contains(label):
			p.Defenses = appendUnique(p.Defenses, label)
		case lists.Communication.Contains(label):
			p.Communication = appendUnique(p.Communication, label)
		default:
			patternsDropped++
		}
	}
	f.metrics.IncLabelsDropped("patterns", patternsDropped)

	return p
}

// IsolateForMerge isolates each partner's analysis independently; each call
// sees only one party's analysis, so no cross-contamination path exists. In
// strict mode the serialized label sets are additionally re-checked against
// the residual clinical patterns; a match aborts the merge.
func (f *Filter) IsolateForMerge(a, b analysis.ClinicalAnalysis, strict bool) (Profile, Profile, error) {
	profileA := f.Isolate(a)
	profileB := f.Isolate(b)

	if strict {
		if err := f.residualCheck(profileA); err != nil {
			return Profile{}, Profile{}, err
		}
		if err := f.residualCheck(profileB); err != nil {
			return Profile{}, Profile{}, err
		}
	}

	return profileA, profileB, nil
}

func (f *Filter) residualCheck(p Profile) error {
	matched := f.tables.Isolation.ResidualScan(p.Serialize())
	if len(matched) == 0 {
		return nil
	}
	f.metrics.IncUnsafeOutput("isolation", "residual_pattern")
	if f.logger != nil {
		f.logger.Debug("isolation residual check failed",
			"filter", "isolation",
			"patterns_matched", len(matched),
		)
	}
	return dErrors.Wrap(&ViolationError{PatternsMatched: len(matched)},
		dErrors.CodeUnsafeContent, "isolated profile failed residual check")
}

func appendUnique(labels []string, label string) []string {
	for _, l := range labels {
		if l == label {
			return labels
		}
	}
	return append(labels, label)
}
