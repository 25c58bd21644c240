package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/wtthornton/homeiq-insight/pkg/capability"
	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/notify"
	"github.com/wtthornton/homeiq-insight/pkg/patterns"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
	"github.com/wtthornton/homeiq-insight/pkg/suggestions"
	"github.com/wtthornton/homeiq-insight/pkg/synergy"
)

type fakePrimary struct{ events []events.Event }

func (f fakePrimary) FetchEvents(_ context.Context, _, _ time.Time, _ events.Filter, _ int) ([]events.Event, error) {
	return f.events, nil
}

type fakeFallback struct{ events []events.Event }

func (f fakeFallback) QueryRange(_ context.Context, _, _ time.Time, _ events.Filter, _ int) ([]events.Event, error) {
	return f.events, nil
}

func (f fakeFallback) AttributeSeries(_ context.Context, _, _ string, _, _ time.Time) ([]events.Event, error) {
	return nil, nil
}

func (f fakeFallback) WeatherTaggedEvents(_ context.Context, _, _ time.Time) ([]events.Event, error) {
	return nil, nil
}

type fakeRegistry struct{ devices []storage.DeviceCapability }

func (f fakeRegistry) ListDevices(_ context.Context) ([]storage.DeviceCapability, error) {
	return f.devices, nil
}

func buildOrchestrator(t *testing.T, ev []events.Event, devices []storage.DeviceCapability) (*Orchestrator, *storage.Store) {
	t.Helper()
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fetcher := events.New(fakePrimary{events: ev}, fakeFallback{events: ev}, events.DefaultConfig(), logrus.New())
	cfg := DefaultConfig()
	cfg.EventWindow = 30 * 24 * time.Hour

	o := New(
		store,
		fetcher,
		fakeRegistry{devices: devices},
		[]patterns.Detector{patterns.TimeOfDayDetector{}, patterns.CoOccurrenceDetector{}, patterns.AnomalyDetector{}},
		patterns.DefaultConfig(),
		synergy.New(synergy.DefaultConfig()),
		capability.New(capability.DefaultConfig()),
		suggestions.NewDescriber(nil),
		notify.NoopPublisher{},
		nil,
		cfg,
		logrus.New(),
		nil,
	)
	return o, store
}

func onEvent(entity string, at time.Time) events.Event {
	return events.Event{Timestamp: at, EventType: "state_changed", EntityID: entity, NewState: "on", Domain: "light"}
}

func TestRunSucceedsAndRecordsAllPhases(t *testing.T) {
	base := time.Now().Add(-24 * time.Hour)
	var ev []events.Event
	for i := 0; i < 20; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		ev = append(ev, onEvent("light.kitchen", at))
		ev = append(ev, onEvent("lock.front_door", at.Add(30*time.Second)))
	}

	o, store := buildOrchestrator(t, ev, nil)
	run, err := o.Run(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, storage.RunSucceeded, run.Status)
	require.Len(t, run.PhaseTimings, 5)
	for _, pt := range run.PhaseTimings {
		require.Equal(t, "ok", pt.Status)
	}

	_, err = store.LatestAnalysisRun()
	require.NoError(t, err)
}

func TestRunEmitsDepth3ChainThroughNonActivationTransitions(t *testing.T) {
	// The middle hop is a lock whose transition is "locked", not "on";
	// the chain must still verify end to end. The light trails the door
	// by more than the pair window so no direct door->light edge forms,
	// but it stays inside the doubled chain-verification window.
	base := time.Now().Add(-3 * 24 * time.Hour)
	var ev []events.Event
	for i := 0; i < 30; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		ev = append(ev, events.Event{Timestamp: at, EventType: "state_changed", EntityID: "binary_sensor.front_door", NewState: "on", Domain: "binary_sensor"})
		ev = append(ev, events.Event{Timestamp: at.Add(60 * time.Second), EventType: "state_changed", EntityID: "lock.front_door", NewState: "locked", Domain: "lock"})
		ev = append(ev, events.Event{Timestamp: at.Add(350 * time.Second), EventType: "state_changed", EntityID: "light.hallway", NewState: "on", Domain: "light"})
	}

	o, store := buildOrchestrator(t, ev, nil)
	run, err := o.Run(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, storage.RunSucceeded, run.Status)

	chains, err := store.ListSynergies(`.type == "device_chain" and .depth == 3`)
	require.NoError(t, err)
	require.NotEmpty(t, chains)
	require.Equal(t, []string{"binary_sensor.front_door", "lock.front_door", "light.hallway"}, chains[0].Chain)
}

func TestRunRefusesConcurrentTrigger(t *testing.T) {
	o, store := buildOrchestrator(t, nil, nil)
	_, err := store.StartAnalysisRun(time.Now())
	require.NoError(t, err)

	_, err = o.Run(context.Background(), time.Now())
	require.ErrorIs(t, err, storage.ErrRunAlreadyInProgress)
}

func TestRunComposesFeatureSuggestionFromUnderutilizedCapability(t *testing.T) {
	base := time.Now().Add(-48 * time.Hour)
	var ev []events.Event
	for i := 0; i < 15; i++ {
		e := onEvent("light.office", base.Add(time.Duration(i)*time.Hour))
		e.DeviceID = "office_lamp"
		e.Attributes = map[string]interface{}{"color_temp": "default"}
		ev = append(ev, e)
	}
	devices := []storage.DeviceCapability{
		{DeviceID: "office_lamp", Model: "Bulb9000", Capabilities: []storage.Capability{
			{Name: "color_temp", Commandable: true},
		}},
	}

	o, store := buildOrchestrator(t, ev, devices)
	run, err := o.Run(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, storage.RunSucceeded, run.Status)
	require.GreaterOrEqual(t, run.Counts.Suggestions, 1)

	sugs, err := store.ListSuggestions(storage.SuggestionDraft)
	require.NoError(t, err)
	require.NotEmpty(t, sugs)
}
