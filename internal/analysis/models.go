// Package analysis defines the full, un-reduced output of the upstream
// clinical analysis pipeline. The boundary filters consume these values and
// never persist them; the calling pipeline owns their lifecycle.
package analysis

// FrameworkInsight is one identification against a therapeutic framework
// (attachment theory, Gottman method, ...). Category groups the insight for
// allow-list intersection: "attachment", "framework", "modality".
type FrameworkInsight struct {
	Name       string
	Confidence float64 // in [0,1]
	Evidence   string  // narrative, never crosses a boundary
	Category   string
}

// PatternObservation is one observed behavioral pattern. Type is a short
// label ("stonewalling", "pursuer"); Indicators and Context are narrative
// and never cross a boundary.
type PatternObservation struct {
	Type       string
	Indicators []string
	Context    string
}

// RiskFlag marks content needing clinician attention. It never reaches the
// client-facing or partner-facing outputs in any form.
type RiskFlag struct {
	Severity          string
	Description       string
	RecommendedAction string
}

// ClinicalAnalysis is produced once per analysis request and treated as
// immutable afterward. Slices are ordered as produced upstream.
type ClinicalAnalysis struct {
	Frameworks        []FrameworkInsight
	Patterns          []PatternObservation
	RiskFlags         []RiskFlag
	Themes            []string
	Explorations      []string
	SessionQuestions  []string
	OverallConfidence float64
}
