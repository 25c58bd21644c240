package synergy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

func weatherEvent(at time.Time, rain bool) events.Event {
	return events.Event{Timestamp: at, EntityID: "weather.home", EventType: "context", NewState: "n/a", Attributes: map[string]interface{}{"rain": rain}}
}

func TestDetectContextSynergies_RainCorrelatedActivation(t *testing.T) {
	cfg := DefaultConfig()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var weather []events.Event
	var activations []events.Event
	// 20 days: odd days rainy, even days dry; the porch light fires almost
	// exclusively on rainy days.
	for day := 0; day < 20; day++ {
		t0 := base.Add(time.Duration(day) * 24 * time.Hour)
		rain := day%2 == 0
		weather = append(weather, weatherEvent(t0, rain))
		if rain {
			activations = append(activations, stateEvent2("light.porch", "on", t0.Add(time.Hour)))
		}
	}
	// a couple of stray activations on dry days so the table isn't degenerate.
	activations = append(activations, stateEvent2("light.porch", "on", base.Add(25*time.Hour)))

	signals := ExtractContextSignals(weather)
	synergies := DetectContextSynergies(activations, signals, cfg)
	require.NotEmpty(t, synergies)

	found := false
	for _, s := range synergies {
		if s.Type == storage.SynergyTypeWeatherContext && s.Chain[0] == "light.porch" {
			found = true
		}
	}
	require.True(t, found)
}

func TestDetectContextSynergies_UncorrelatedActivationYieldsNothing(t *testing.T) {
	cfg := DefaultConfig()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var weather []events.Event
	var activations []events.Event
	for day := 0; day < 20; day++ {
		t0 := base.Add(time.Duration(day) * 24 * time.Hour)
		weather = append(weather, weatherEvent(t0, day%2 == 0))
		// activates every single day regardless of rain: no correlation.
		activations = append(activations, stateEvent2("light.kitchen_main", "on", t0.Add(time.Hour)))
	}
	signals := ExtractContextSignals(weather)
	synergies := DetectContextSynergies(activations, signals, cfg)
	require.Empty(t, synergies)
}

func stateEvent2(entity, state string, at time.Time) events.Event {
	return events.Event{Timestamp: at, EntityID: entity, EventType: "state_changed", NewState: state, Domain: events.DomainOf(entity)}
}
