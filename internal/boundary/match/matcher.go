// Package match compares two isolated partner profiles and names what they
// have in common. It operates strictly on allow-listed labels; both inputs
// have already crossed the isolation boundary, so nothing here can reach
// back into either partner's raw analysis.
package match

import (
	"fmt"
	"log/slog"
	"sort"

	"attune/internal/boundary/isolation"
	"attune/internal/boundary/terms"
	pstrings "attune/pkg/platform/strings"
)

// Topic types, in emission order.
const (
	TypeShared        = "shared"
	TypeComplementary = "complementary"
	TypeConflict      = "conflict"
)

// maxFocusAreas caps the focus list handed to exercise derivation.
const maxFocusAreas = 5

// Topic is one point of contact between the two profiles. Shared topics
// carry a single label; pair topics carry both sides. Key, when set, names
// an exercise table entry.
type Topic struct {
	Type     string
	Category string
	Labels   []string
	Key      string
}

// Result is the full comparison of two profiles. The summary is count-based
// only, safe to log and audit.
type Result struct {
	Topics     []Topic
	FocusAreas []string
	Summary    string
}

// Keys returns the deduplicated exercise keys of the matched topics,
// complementary and conflict pairs before shared themes.
func (r Result) Keys() []string {
	var pairKeys, themeKeys []string
	for _, t := range r.Topics {
		if t.Key == "" {
			continue
		}
		if t.Type == TypeShared {
			themeKeys = append(themeKeys, t.Key)
		} else {
			pairKeys = append(pairKeys, t.Key)
		}
	}
	return pstrings.DedupeAndTrim(append(pairKeys, themeKeys...))
}

// Counts reports how many topics of each type were found.
func (r Result) Counts() (shared, complementary, conflict int) {
	for _, t := range r.Topics {
		switch t.Type {
		case TypeShared:
			shared++
		case TypeComplementary:
			complementary++
		case TypeConflict:
			conflict++
		}
	}
	return shared, complementary, conflict
}

// Matcher compares isolated profiles against the fixed pair tables. Safe
// for concurrent use.
type Matcher struct {
	tables *terms.Tables
	logger *slog.Logger
}

// Option configures the Matcher.
type Option func(*Matcher)

// WithLogger sets a logger for count-only match diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Matcher) { m.logger = logger }
}

// New creates a matcher over the given tables.
func New(tables *terms.Tables, opts ...Option) *Matcher {
	m := &Matcher{tables: tables}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Match compares the two profiles. Symmetric: Match(a, b) and Match(b, a)
// produce the same result, so neither partner's analysis order matters.
func (m *Matcher) Match(a, b isolation.Profile) Result {
	var topics []Topic

	// Shared labels, category by category in a fixed order.
	categories := []struct {
		name string
		a, b []string
	}{
		{"attachment", a.Attachment, b.Attachment},
		{"frameworks", a.Frameworks, b.Frameworks},
		{"themes", a.Themes, b.Themes},
		{"modalities", a.Modalities, b.Modalities},
		{"defenses", a.Defenses, b.Defenses},
		{"communication", a.Communication, b.Communication},
	}
	for _, c := range categories {
		for _, label := range sortedIntersection(c.a, c.b) {
			topic := Topic{Type: TypeShared, Category: c.name, Labels: []string{label}}
			if c.name == "themes" && len(m.tables.ExercisesFor(label)) > 0 {
				topic.Key = label
			}
			topics = append(topics, topic)
		}
	}

	// Pair tables. Pair.Matches is direction-agnostic, and the sorted label
	// pair keeps the emitted topic identical either way round.
	setA, setB := a.LabelSet(), b.LabelSet()
	for _, pair := range m.tables.Matching.Complementary {
		if pair.Matches(setA, setB) {
			topics = append(topics, Topic{
				Type:     TypeComplementary,
				Category: pair.Category,
				Labels:   sortedPair(pair.A, pair.B),
				Key:      pair.Key,
			})
		}
	}
	for _, pair := range m.tables.Matching.Conflict {
		if pair.Matches(setA, setB) {
			topics = append(topics, Topic{
				Type:     TypeConflict,
				Category: pair.Category,
				Labels:   sortedPair(pair.A, pair.B),
				Key:      pair.Key,
			})
		}
	}

	result := Result{Topics: topics}
	result.FocusAreas = m.focusAreas(a, b, topics)

	shared, complementary, conflict := result.Counts()
	result.Summary = fmt.Sprintf("%d shared, %d complementary, %d conflict topics across %d focus areas",
		shared, complementary, conflict, len(result.FocusAreas))

	if m.logger != nil {
		m.logger.Debug("profiles matched",
			"shared", shared,
			"complementary", complementary,
			"conflict", conflict,
		)
	}

	return result
}

// focusAreas ranks the themes for the couple: shared themes first, then the
// keys of complementary pairings, then the remaining themes either partner
// carries. Every tier is sorted so the list is symmetric in its inputs.
func (m *Matcher) focusAreas(a, b isolation.Profile, topics []Topic) []string {
	focus := sortedIntersection(a.Themes, b.Themes)
	for _, t := range topics {
		if t.Type == TypeComplementary {
			focus = append(focus, t.Key)
		}
	}
	focus = append(focus, sortedUnion(a.Themes, b.Themes)...)
	return pstrings.TruncateList(pstrings.DedupeAndTrim(focus), maxFocusAreas)
}

func sortedIntersection(a, b []string) []string {
	inB := make(map[string]struct{}, len(b))
	for _, label := range b {
		inB[label] = struct{}{}
	}
	var out []string
	for _, label := range a {
		if _, ok := inB[label]; ok {
			out = append(out, label)
		}
	}
	out = pstrings.DedupeAndTrim(out)
	sort.Strings(out)
	return out
}

func sortedUnion(a, b []string) []string {
	out := pstrings.DedupeAndTrim(append(append([]string{}, a...), b...))
	sort.Strings(out)
	return out
}

func sortedPair(a, b string) []string {
	if a > b {
		a, b = b, a
	}
	return []string{a, b}
}
