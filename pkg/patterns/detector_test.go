package patterns

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

func timeOfDayCandidate(anchor string, hour, width int, conf float64) Candidate {
	return Candidate{
		Kind:   storage.PatternKindTimeOfDay,
		Anchor: anchor,
		Metadata: storage.PatternMetadata{
			TimeOfDay: &storage.TimeOfDayMetadata{Hour: hour, WindowWidth: width},
		},
		Confidence: conf,
	}
}

func TestSubExplanationOf_FinerWindowInsideCoarserIsDominated(t *testing.T) {
	coarse := timeOfDayCandidate("light.kitchen_main", 6, 2, 0.5)
	fine := timeOfDayCandidate("light.kitchen_main", 7, 1, 0.4)
	require.True(t, SubExplanationOf(coarse, fine))
}

func TestSubExplanationOf_DifferentAnchorsNeverDominate(t *testing.T) {
	coarse := timeOfDayCandidate("light.kitchen_main", 6, 2, 0.5)
	fine := timeOfDayCandidate("light.office", 7, 1, 0.4)
	require.False(t, SubExplanationOf(coarse, fine))
}

func TestSubExplanationOf_HigherConfidenceFineNeverDominated(t *testing.T) {
	coarse := timeOfDayCandidate("light.kitchen_main", 6, 2, 0.3)
	fine := timeOfDayCandidate("light.kitchen_main", 7, 1, 0.9)
	require.False(t, SubExplanationOf(coarse, fine))
}

func TestCrossValidate_DropsDominatedCandidates(t *testing.T) {
	coarse := timeOfDayCandidate("light.kitchen_main", 6, 2, 0.5)
	fine := timeOfDayCandidate("light.kitchen_main", 7, 1, 0.4)
	unrelated := timeOfDayCandidate("light.office", 20, 1, 0.6)

	kept := CrossValidate([]Candidate{coarse, fine, unrelated})
	require.Len(t, kept, 2)
	for _, c := range kept {
		require.NotEqual(t, 7, c.Metadata.TimeOfDay.Hour)
	}
}
