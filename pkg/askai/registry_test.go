package askai

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/wtthornton/homeiq-insight/pkg/events"
)

type fakeEventPrimary struct{ events []events.Event }

func (f fakeEventPrimary) FetchEvents(_ context.Context, _, _ time.Time, _ events.Filter, _ int) ([]events.Event, error) {
	return f.events, nil
}

type fakeEventFallback struct{}

func (fakeEventFallback) QueryRange(_ context.Context, _, _ time.Time, _ events.Filter, _ int) ([]events.Event, error) {
	return nil, nil
}
func (fakeEventFallback) AttributeSeries(_ context.Context, _, _ string, _, _ time.Time) ([]events.Event, error) {
	return nil, nil
}
func (fakeEventFallback) WeatherTaggedEvents(_ context.Context, _, _ time.Time) ([]events.Event, error) {
	return nil, nil
}

func TestEventRegistryLookupDerivesDistinctEntities(t *testing.T) {
	now := time.Now().UTC()
	primary := fakeEventPrimary{events: []events.Event{
		{Timestamp: now, EventType: "state_changed", EntityID: "light.kitchen_main", NewState: "on", Domain: "light", AreaID: "kitchen"},
		{Timestamp: now, EventType: "state_changed", EntityID: "light.kitchen_main", NewState: "off", Domain: "light", AreaID: "kitchen"},
		{Timestamp: now, EventType: "state_changed", EntityID: "binary_sensor.kitchen_motion", NewState: "on", Domain: "binary_sensor", AreaID: "kitchen"},
	}}
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	adapter := events.New(primary, fakeEventFallback{}, events.DefaultConfig(), log)

	lookup := NewEventRegistryLookup(adapter, 24*time.Hour, nil)
	registry, err := lookup.EntityRegistry(context.Background(), "household")
	require.NoError(t, err)
	require.Len(t, registry, 2)

	byID := map[string]string{}
	for _, e := range registry {
		byID[e.EntityID] = e.FriendlyName
	}
	require.Equal(t, "kitchen main", byID["light.kitchen_main"])
	require.Equal(t, "kitchen motion", byID["binary_sensor.kitchen_motion"])
}

func TestFriendlyNameOfHandlesNoDomainPrefix(t *testing.T) {
	require.Equal(t, "no prefix", friendlyNameOf("no_prefix"))
}
