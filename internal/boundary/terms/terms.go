// Package terms loads the versioned boundary tables: substitution maps,
// remove-entirely vocabulary, anonymization patterns, per-category
// allow-lists, matching pair tables, and the exercise table.
//
// The tables ship embedded so a deployment can be audited against exactly
// one reviewed artifact. Everything here is read-only after Load; the
// filters stay trivially safe for concurrent use.
package terms

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed terms.yaml
var embedded []byte

// Substitution maps one clinical term to its plain-language replacement.
// Terms are stored lowercased; Pattern matches them case-insensitively and
// is the only way the term is applied, so multibyte input never shifts
// replacement offsets.
type Substitution struct {
	Term    string
	Plain   string
	Pattern *regexp.Regexp
}

// AbstractionTables drive the client-safe abstraction filter.
type AbstractionTables struct {
	RemoveEntirely   []string       // lowercased substrings; a hit drops the whole item
	Substitutions    []Substitution // sorted longest term first
	ResidualPatterns []*regexp.Regexp
	DefaultFocus     string
}

// CategoryPatterns is one anonymization category: its canonical placeholder
// token and the regular expressions that detect it.
type CategoryPatterns struct {
	Name        string
	Placeholder string
	Patterns    []*regexp.Regexp
}

// AnonymizerTables drive the external-query anonymizer.
type AnonymizerTables struct {
	BlockingPatterns   []*regexp.Regexp
	ClinicalVocabulary map[string]struct{} // lowercased single words
	StreetSuffixes     map[string]struct{}
	KnownPlaces        []string
	Categories         []CategoryPatterns // applied in declared order
}

// AllowList is a fixed positive list for one isolation category.
type AllowList struct {
	values map[string]struct{}
	// Labels preserves declaration order for review tooling and tests.
	Labels []string
}

// Contains reports allow-list membership for a normalized label.
func (a AllowList) Contains(label string) bool {
	_, ok := a.values[label]
	return ok
}

// Intersect keeps the labels present in the allow-list, preserving input
// order and deduplicating. The dropped count is returned for compliance
// metrics; dropped content itself is never surfaced.
func (a AllowList) Intersect(labels []string) (kept []string, dropped int) {
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		norm := Normalize(label)
		if norm == "" {
			continue
		}
		if !a.Contains(norm) {
			dropped++
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		kept = append(kept, norm)
	}
	return kept, dropped
}

// IsolationAllowLists hold the six per-category allow-lists plus the
// diagnosis-grade residual patterns re-checked before labels cross partners.
type IsolationAllowLists struct {
	Attachment    AllowList
	Frameworks    AllowList
	Themes        AllowList
	Modalities    AllowList
	Defenses      AllowList
	Communication AllowList

	ResidualPatterns []*regexp.Regexp
}

// ResidualScan runs the isolation residual patterns over text and returns
// the source of every pattern that matched.
func (l IsolationAllowLists) ResidualScan(text string) []string {
	var matched []string
	for _, re := range l.ResidualPatterns {
		if re.MatchString(text) {
			matched = append(matched, re.String())
		}
	}
	return matched
}

// Pair is one symmetric complementary or conflict pairing. Key names the
// exercise table entry the pairing maps to.
type Pair struct {
	A        string `yaml:"a"`
	B        string `yaml:"b"`
	Category string `yaml:"category"`
	Key      string `yaml:"key"`
}

// Matches reports whether the pair links the two label sets, in either
// direction.
func (p Pair) Matches(a, b map[string]struct{}) bool {
	_, aHasA := a[p.A]
	_, bHasB := b[p.B]
	if aHasA && bHasB {
		return true
	}
	_, aHasB := a[p.B]
	_, bHasA := b[p.A]
	return aHasB && bHasA
}

// MatchTables hold the fixed pair tables for the topic matcher.
type MatchTables struct {
	Complementary []Pair
	Conflict      []Pair
}

// ExerciseSet is the ordered suggestion list for one matched category.
type ExerciseSet struct {
	Key   string   `yaml:"key"`
	Items []string `yaml:"items"`
}

// Tables is the full, immutable boundary configuration.
type Tables struct {
	Version     string
	Abstraction AbstractionTables
	Anonymizer  AnonymizerTables
	Isolation   IsolationAllowLists
	Matching    MatchTables
	Exercises   []ExerciseSet
}

// ExercisesFor returns the suggestion list for a matched category key.
func (t *Tables) ExercisesFor(key string) []string {
	for _, set := range t.Exercises {
		if set.Key == key {
			return set.Items
		}
	}
	return nil
}

// ResidualScan runs the residual clinical patterns over text and returns the
// source of every pattern that matched. Used by the abstraction filter's
// second-stage check and, in strict mode, by isolation before a merge.
func (t *Tables) ResidualScan(text string) []string {
	var matched []string
	for _, re := range t.Abstraction.ResidualPatterns {
		if re.MatchString(text) {
			matched = append(matched, re.String())
		}
	}
	return matched
}

// Normalize lowercases a label and converts separators so raw analysis
// labels line up with allow-list entries ("Gottman Method" -> "gottman_method").
func Normalize(label string) string {
	norm := strings.ToLower(strings.TrimSpace(label))
	norm = strings.ReplaceAll(norm, " ", "_")
	return norm
}

// raw mirrors the YAML document.
type raw struct {
	Version     string `yaml:"version"`
	Abstraction struct {
		RemoveEntirely   []string          `yaml:"remove_entirely"`
		Substitutions    map[string]string `yaml:"substitutions"`
		ResidualPatterns []string          `yaml:"residual_patterns"`
		DefaultFocus     string            `yaml:"default_focus"`
	} `yaml:"abstraction"`
	Anonymizer struct {
		BlockingPatterns   []string `yaml:"blocking_patterns"`
		ClinicalVocabulary []string `yaml:"clinical_vocabulary"`
		StreetSuffixes     []string `yaml:"street_suffixes"`
		KnownPlaces        []string `yaml:"known_places"`
		Categories         []struct {
			Name        string   `yaml:"name"`
			Placeholder string   `yaml:"placeholder"`
			Patterns    []string `yaml:"patterns"`
		} `yaml:"categories"`
	} `yaml:"anonymizer"`
	Isolation map[string][]string `yaml:"isolation"`
	Matching  struct {
		Complementary []Pair `yaml:"complementary"`
		Conflict      []Pair `yaml:"conflict"`
	} `yaml:"matching"`
	Exercises []ExerciseSet `yaml:"exercises"`
}

// Load parses and compiles a tables document. Every regular expression is
// compiled eagerly so a bad artifact fails at startup, not mid-merge.
func Load(data []byte) (*Tables, error) {
	var doc raw
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse terms document: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("terms document missing version")
	}

	t := &Tables{Version: doc.Version}

	// Abstraction
	for _, term := range doc.Abstraction.RemoveEntirely {
		t.Abstraction.RemoveEntirely = append(t.Abstraction.RemoveEntirely, strings.ToLower(term))
	}
	for term, plain := range doc.Abstraction.Substitutions {
		lowered := strings.ToLower(term)
		t.Abstraction.Substitutions = append(t.Abstraction.Substitutions, Substitution{
			Term:  lowered,
			Plain: plain,
			// QuoteMeta output is always a valid pattern.
			Pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(lowered)),
		})
	}
	// Longest term first so "anxious attachment" wins over "attachment".
	sort.SliceStable(t.Abstraction.Substitutions, func(i, j int) bool {
		return len(t.Abstraction.Substitutions[i].Term) > len(t.Abstraction.Substitutions[j].Term)
	})
	var err error
	t.Abstraction.ResidualPatterns, err = compileAll(doc.Abstraction.ResidualPatterns, "residual")
	if err != nil {
		return nil, err
	}
	t.Abstraction.DefaultFocus = doc.Abstraction.DefaultFocus
	if t.Abstraction.DefaultFocus == "" {
		return nil, fmt.Errorf("terms document missing abstraction default_focus")
	}

	// Anonymizer
	t.Anonymizer.BlockingPatterns, err = compileAll(doc.Anonymizer.BlockingPatterns, "blocking")
	if err != nil {
		return nil, err
	}
	t.Anonymizer.ClinicalVocabulary = toSet(doc.Anonymizer.ClinicalVocabulary, strings.ToLower)
	t.Anonymizer.StreetSuffixes = toSet(doc.Anonymizer.StreetSuffixes, nil)
	t.Anonymizer.KnownPlaces = doc.Anonymizer.KnownPlaces
	for _, cat := range doc.Anonymizer.Categories {
		compiled, err := compileAll(cat.Patterns, cat.Name)
		if err != nil {
			return nil, err
		}
		t.Anonymizer.Categories = append(t.Anonymizer.Categories, CategoryPatterns{
			Name:        cat.Name,
			Placeholder: cat.Placeholder,
			Patterns:    compiled,
		})
	}

	// Isolation
	t.Isolation.Attachment = newAllowList(doc.Isolation["attachment"])
	t.Isolation.Frameworks = newAllowList(doc.Isolation["frameworks"])
	t.Isolation.Themes = newAllowList(doc.Isolation["themes"])
	t.Isolation.Modalities = newAllowList(doc.Isolation["modalities"])
	t.Isolation.Defenses = newAllowList(doc.Isolation["defenses"])
	t.Isolation.Communication = newAllowList(doc.Isolation["communication"])
	t.Isolation.ResidualPatterns, err = compileAll(doc.Isolation["residual_patterns"], "isolation residual")
	if err != nil {
		return nil, err
	}

	// Matching + exercises
	t.Matching.Complementary = doc.Matching.Complementary
	t.Matching.Conflict = doc.Matching.Conflict
	t.Exercises = doc.Exercises
	for _, pair := range append(append([]Pair{}, t.Matching.Complementary...), t.Matching.Conflict...) {
		if pair.A == "" || pair.B == "" || pair.Key == "" {
			return nil, fmt.Errorf("matching pair %q/%q missing field", pair.A, pair.B)
		}
	}

	return t, nil
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
)

// Default returns the embedded tables, compiled once per process. The
// embedded artifact is review-gated, so a failure here is a build defect.
func Default() *Tables {
	defaultOnce.Do(func() {
		t, err := Load(embedded)
		if err != nil {
			panic(fmt.Sprintf("embedded terms.yaml invalid: %v", err))
		}
		defaultTables = t
	})
	return defaultTables
}

func compileAll(patterns []string, kind string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %s pattern %q: %w", kind, p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func toSet(values []string, transform func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if transform != nil {
			v = transform(v)
		}
		set[v] = struct{}{}
	}
	return set
}

func newAllowList(values []string) AllowList {
	list := AllowList{values: make(map[string]struct{}, len(values))}
	for _, v := range values {
		norm := Normalize(v)
		list.values[norm] = struct{}{}
		list.Labels = append(list.Labels, norm)
	}
	return list
}
