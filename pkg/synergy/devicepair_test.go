package synergy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

func coPattern(id, anchor, partner string, confidence float64, occurrences int) storage.Pattern {
	return storage.Pattern{
		ID: id, Kind: storage.PatternKindCoOccurrence, AnchorEntityID: anchor,
		Metadata: storage.PatternMetadata{CoOccurrence: &storage.CoOccurrenceMetadata{Partner: partner, Direction: "A->B", WindowSec: 300}},
		Confidence: confidence, Occurrences: occurrences,
	}
}

func TestDetectDevicePairs_EmitsDepth2SynergyAboveFloor(t *testing.T) {
	cfg := DefaultConfig()
	patterns := []storage.Pattern{
		coPattern("p1", "binary_sensor.kitchen_motion", "light.kitchen_main", 0.75, 40),
	}
	synergies := DetectDevicePairs(patterns, cfg)
	require.Len(t, synergies, 1)
	s := synergies[0]
	require.Equal(t, storage.SynergyTypeDevicePair, s.Type)
	require.Equal(t, 2, s.Depth)
	require.Equal(t, []string{"binary_sensor.kitchen_motion", "light.kitchen_main"}, s.Chain)
	require.GreaterOrEqual(t, s.Priority(storage.DefaultPriorityWeights()), 0.70)
}

func TestDetectDevicePairs_BelowFloorIsDropped(t *testing.T) {
	cfg := DefaultConfig()
	patterns := []storage.Pattern{coPattern("p1", "a", "b", 0.5, 10)}
	require.Empty(t, DetectDevicePairs(patterns, cfg))
}

func TestDetectDevicePairs_UbiquitousAnchorPenalized(t *testing.T) {
	cfg := DefaultConfig()
	var patterns []storage.Pattern
	// anchor "hub" co-occurs with ten different partners: low distinctness.
	for i := 0; i < 10; i++ {
		patterns = append(patterns, coPattern("p"+string(rune('a'+i)), "hub", "device"+string(rune('a'+i)), 0.80, 20))
	}
	// a focused anchor co-occurring with exactly one partner: high distinctness.
	patterns = append(patterns, coPattern("focused", "binary_sensor.kitchen_motion", "light.kitchen_main", 0.80, 20))

	synergies := DetectDevicePairs(patterns, cfg)
	var hubImpact, focusedImpact float64
	for _, s := range synergies {
		if s.Chain[0] == "hub" {
			hubImpact = s.Impact
		}
		if s.Chain[0] == "binary_sensor.kitchen_motion" {
			focusedImpact = s.Impact
		}
	}
	require.Greater(t, focusedImpact, hubImpact)
}
