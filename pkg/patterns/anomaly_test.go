package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

func TestAnomalyDetector_FindsRecurringOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSupport = 3
	cfg.OverrideWindow = 2 * time.Minute
	cfg.Contamination = 0.6
	cfg.ConfidenceFloor = 0

	var slice []events.Event
	base := time.Date(2026, 1, 1, 21, 0, 0, 0, time.UTC)
	for day := 0; day < 5; day++ {
		t0 := base.Add(time.Duration(day) * 24 * time.Hour)
		// automation turns the light on, then a human overrides it off
		// within the override window.
		slice = append(slice, stateEvent("light.bedroom", "on", t0))
		slice = append(slice, stateEvent("light.bedroom", "off", t0.Add(30*time.Second)))
		// plenty of routine same-state noise that should not count as a
		// transition at all.
		slice = append(slice, stateEvent("light.bedroom", "off", t0.Add(1*time.Hour)))
	}

	cands, err := AnomalyDetector{}.Detect(context.Background(), slice, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, cands)

	c := cands[0]
	require.Equal(t, storage.PatternKindAnomaly, c.Kind)
	require.Equal(t, "light.bedroom", c.Anchor)
	require.Equal(t, "on->off", c.Metadata.Anomaly.Signature)
	require.Equal(t, 5, c.Occurrences)
}

func TestAnomalyDetector_TooCommonRelativeToTrafficIsNotAnomalous(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSupport = 1
	cfg.OverrideWindow = 2 * time.Minute
	cfg.Contamination = 0.10

	// every single transition is the override signature: common, not rare,
	// so it should not be flagged no matter how often it recurs.
	var slice []events.Event
	base := time.Date(2026, 1, 1, 21, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		t0 := base.Add(time.Duration(i) * time.Hour)
		slice = append(slice, stateEvent("light.garage", "on", t0))
		slice = append(slice, stateEvent("light.garage", "off", t0.Add(10*time.Second)))
	}

	cands, err := AnomalyDetector{}.Detect(context.Background(), slice, cfg)
	require.NoError(t, err)
	require.Empty(t, cands)
}

func TestAnomalyDetector_BelowMinSupportIsDropped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSupport = 5
	cfg.OverrideWindow = 2 * time.Minute
	cfg.Contamination = 0.5

	base := time.Date(2026, 1, 1, 21, 0, 0, 0, time.UTC)
	slice := []events.Event{
		stateEvent("light.bedroom", "on", base),
		stateEvent("light.bedroom", "off", base.Add(30*time.Second)),
	}
	cands, err := AnomalyDetector{}.Detect(context.Background(), slice, cfg)
	require.NoError(t, err)
	require.Empty(t, cands)
}
