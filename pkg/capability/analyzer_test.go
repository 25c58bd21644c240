package capability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

func activeEvent(deviceID string, at time.Time, attrs map[string]interface{}) events.Event {
	return events.Event{Timestamp: at, EntityID: "light." + deviceID, DeviceID: deviceID, EventType: "state_changed", NewState: "on", Attributes: attrs}
}

func TestAnalyzeCapability_UnderutilizedWhenNeverNonDefault(t *testing.T) {
	a := New(Config{DeviceMinActivity: 5})
	dc := storage.DeviceCapability{DeviceID: "office_lamp"}
	cap := storage.Capability{Name: "color_temp", Commandable: true}

	base := time.Now()
	var evs []events.Event
	for i := 0; i < 12; i++ {
		evs = append(evs, activeEvent("office_lamp", base.Add(time.Duration(i)*time.Hour), map[string]interface{}{"color_temp": "default"}))
	}

	fu, underutilized := a.AnalyzeCapability(dc, cap, evs, "color_temp", "default")
	require.True(t, underutilized)
	require.False(t, fu.ObservedUsed)
	require.Equal(t, 0.0, fu.Utilization)
}

func TestAnalyzeCapability_NotUnderutilizedWhenUsed(t *testing.T) {
	a := New(Config{DeviceMinActivity: 5})
	dc := storage.DeviceCapability{DeviceID: "office_lamp"}
	cap := storage.Capability{Name: "color_temp", Commandable: true}

	base := time.Now()
	var evs []events.Event
	for i := 0; i < 12; i++ {
		val := "default"
		if i%3 == 0 {
			val = "warm"
		}
		evs = append(evs, activeEvent("office_lamp", base.Add(time.Duration(i)*time.Hour), map[string]interface{}{"color_temp": val}))
	}

	fu, underutilized := a.AnalyzeCapability(dc, cap, evs, "color_temp", "default")
	require.False(t, underutilized)
	require.True(t, fu.ObservedUsed)
	require.Greater(t, fu.Utilization, 0.0)
}

func TestAnalyzeCapability_BelowMinActivityNeverFlagged(t *testing.T) {
	a := New(Config{DeviceMinActivity: 20})
	dc := storage.DeviceCapability{DeviceID: "office_lamp"}
	cap := storage.Capability{Name: "color_temp", Commandable: true}

	base := time.Now()
	evs := []events.Event{activeEvent("office_lamp", base, map[string]interface{}{"color_temp": "default"})}

	_, underutilized := a.AnalyzeCapability(dc, cap, evs, "color_temp", "default")
	require.False(t, underutilized)
}

func TestAnalyzeCapability_NonCommandableNeverFlagged(t *testing.T) {
	a := New(Config{DeviceMinActivity: 1})
	dc := storage.DeviceCapability{DeviceID: "sensor1"}
	cap := storage.Capability{Name: "battery_level", Commandable: false}

	evs := []events.Event{activeEvent("sensor1", time.Now(), map[string]interface{}{"battery_level": "default"})}
	_, underutilized := a.AnalyzeCapability(dc, cap, evs, "battery_level", "default")
	require.False(t, underutilized)
}

func TestRankCandidates_OneSuggestionPerDevice(t *testing.T) {
	flagged := []FlaggedUsage{
		{Usage: storage.FeatureUsage{DeviceID: "d1", CapabilityName: "color_temp", Utilization: 0}, ActiveCount: 10},
		{Usage: storage.FeatureUsage{DeviceID: "d1", CapabilityName: "effect", Utilization: 0}, ActiveCount: 10},
		{Usage: storage.FeatureUsage{DeviceID: "d2", CapabilityName: "rgb_color", Utilization: 0}, ActiveCount: 15},
	}
	out := RankCandidates(flagged)
	require.Len(t, out, 2)

	seen := map[string]bool{}
	for _, c := range out {
		require.False(t, seen[c.DeviceID], "device %s suggested more than once", c.DeviceID)
		seen[c.DeviceID] = true
	}
}

func TestRankCandidates_DeterministicTieBreakOnCapabilityName(t *testing.T) {
	flagged := []FlaggedUsage{
		{Usage: storage.FeatureUsage{DeviceID: "d1", CapabilityName: "effect", Utilization: 0}},
		{Usage: storage.FeatureUsage{DeviceID: "d1", CapabilityName: "color_temp", Utilization: 0}},
	}
	out := RankCandidates(flagged)
	require.Len(t, out, 1)
	require.Equal(t, "color_temp", out[0].CapabilityName)
}
