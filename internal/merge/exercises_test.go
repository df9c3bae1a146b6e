package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attune/internal/boundary/match"
	"attune/internal/boundary/terms"
)

func TestDeriveExercises(t *testing.T) {
	tables := terms.Default()

	t.Run("pair keys take priority over focus areas", func(t *testing.T) {
		result := match.Result{
			Topics: []match.Topic{
				{Type: match.TypeComplementary, Category: "attachment", Key: "anxious-avoidant"},
			},
			FocusAreas: []string{"trust"},
		}

		exercises := deriveExercises(tables, result)
		require.NotEmpty(t, exercises)
		assert.Equal(t, tables.ExercisesFor("anxious-avoidant")[0], exercises[0])
		assert.Contains(t, exercises, tables.ExercisesFor("trust")[0])
	})

	t.Run("at most two suggestions per key", func(t *testing.T) {
		result := match.Result{
			Topics: []match.Topic{
				{Type: match.TypeConflict, Category: "communication", Key: "conflict"},
			},
		}

		exercises := deriveExercises(tables, result)
		assert.Len(t, exercises, 2, "the conflict set has three entries; only two may surface")
	})

	t.Run("capped at six overall", func(t *testing.T) {
		result := match.Result{
			Topics: []match.Topic{
				{Type: match.TypeComplementary, Key: "anxious-avoidant"},
				{Type: match.TypeComplementary, Key: "communication"},
				{Type: match.TypeConflict, Key: "conflict"},
			},
			FocusAreas: []string{"trust", "intimacy"},
		}

		exercises := deriveExercises(tables, result)
		assert.Len(t, exercises, 6)
	})

	t.Run("duplicate keys contribute once", func(t *testing.T) {
		result := match.Result{
			Topics: []match.Topic{
				{Type: match.TypeComplementary, Key: "communication"},
				{Type: match.TypeShared, Category: "themes", Key: "communication"},
			},
			FocusAreas: []string{"communication"},
		}

		exercises := deriveExercises(tables, result)
		assert.Len(t, exercises, 2)
	})

	t.Run("unknown keys yield nothing", func(t *testing.T) {
		result := match.Result{FocusAreas: []string{"in_laws", "household"}}
		assert.Empty(t, deriveExercises(tables, result))
	})
}
