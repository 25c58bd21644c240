package synergy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

func TestDetectChains_Depth3ChainFromCoOccurrenceEdges(t *testing.T) {
	cfg := DefaultConfig()
	baseWindow := 60 * time.Second

	patterns := []storage.Pattern{
		coPattern("p1", "binary_sensor.front_door", "lock.front_door", 0.80, 5),
		coPattern("p2", "lock.front_door", "light.hallway", 0.80, 5),
	}

	base := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	var activations []events.Event
	for day := 0; day < 10; day++ {
		t0 := base.Add(time.Duration(day) * 24 * time.Hour)
		if day >= 5 {
			continue // only 5 of the 10 days actually produce the triple
		}
		activations = append(activations,
			stateEvent2("binary_sensor.front_door", "on", t0),
			stateEvent2("lock.front_door", "locked", t0.Add(30*time.Second)),
			stateEvent2("light.hallway", "on", t0.Add(90*time.Second)),
		)
	}

	synergies := DetectChains(patterns, activations, baseWindow, cfg)
	require.Len(t, synergies, 1)
	s := synergies[0]
	require.Equal(t, 3, s.Depth)
	require.Equal(t, []string{"binary_sensor.front_door", "lock.front_door", "light.hallway"}, s.Chain)
}

func TestDetectChains_BelowMinSupportChainIsDropped(t *testing.T) {
	cfg := DefaultConfig()
	baseWindow := 60 * time.Second

	patterns := []storage.Pattern{
		coPattern("p1", "a", "b", 0.80, 5),
		coPattern("p2", "b", "c", 0.80, 5),
	}
	base := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	activations := []events.Event{
		stateEvent2("a", "on", base),
		stateEvent2("b", "on", base.Add(10*time.Second)),
		stateEvent2("c", "on", base.Add(20*time.Second)),
	}
	synergies := DetectChains(patterns, activations, baseWindow, cfg)
	require.Empty(t, synergies)
}

func TestDetectChains_EdgeBelowFloorPrunesChain(t *testing.T) {
	cfg := DefaultConfig()
	baseWindow := 60 * time.Second

	patterns := []storage.Pattern{
		coPattern("p1", "a", "b", 0.50, 10), // below edge_floor 0.70
		coPattern("p2", "b", "c", 0.90, 10),
	}
	base := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)
	var activations []events.Event
	for i := 0; i < 5; i++ {
		t0 := base.Add(time.Duration(i) * time.Hour)
		activations = append(activations,
			stateEvent2("a", "on", t0),
			stateEvent2("b", "on", t0.Add(10*time.Second)),
			stateEvent2("c", "on", t0.Add(20*time.Second)),
		)
	}
	synergies := DetectChains(patterns, activations, baseWindow, cfg)
	require.Empty(t, synergies, "a->b edge below floor should prune the whole chain")
}
