package merge

import (
	"attune/internal/boundary/match"
	"attune/internal/boundary/terms"
	pstrings "attune/pkg/platform/strings"
)

const (
	// maxExercisesPerKey keeps one pairing from dominating the suggestions.
	maxExercisesPerKey = 2
	maxExercises       = 6
)

// deriveExercises turns a match result into joint exercise suggestions.
// Keys are consumed in priority order: complementary and conflict pairings
// first, then shared themes, then the remaining focus areas. Text comes
// exclusively from the exercise table.
func deriveExercises(tables *terms.Tables, result match.Result) []string {
	keys := result.Keys()
	keys = append(keys, result.FocusAreas...)
	keys = pstrings.DedupeAndTrim(keys)

	var suggestions []string
	for _, key := range keys {
		items := tables.ExercisesFor(key)
		for i, item := range items {
			if i >= maxExercisesPerKey {
				break
			}
			suggestions = append(suggestions, item)
		}
	}
	return pstrings.TruncateList(pstrings.DedupeAndTrim(suggestions), maxExercises)
}
