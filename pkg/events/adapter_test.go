package events

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharederrors "github.com/wtthornton/homeiq-insight/pkg/shared/errors"
)

type fakePrimary struct {
	events []Event
	err    error
	calls  int
}

func (f *fakePrimary) FetchEvents(ctx context.Context, start, end time.Time, filter Filter, limit int) ([]Event, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type fakeFallback struct {
	events []Event
	err    error
}

func (f *fakeFallback) QueryRange(ctx context.Context, start, end time.Time, filter Filter, limit int) ([]Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeFallback) AttributeSeries(ctx context.Context, entityID, attribute string, start, end time.Time) ([]Event, error) {
	return f.events, f.err
}

func (f *fakeFallback) WeatherTaggedEvents(ctx context.Context, start, end time.Time) ([]Event, error) {
	return f.events, f.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BackoffBase = time.Millisecond
	cfg.MaxRetries = 1
	cfg.RateLimitRPS = 1000
	return cfg
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

func TestFetchEvents_PrimarySucceeds(t *testing.T) {
	primary := &fakePrimary{events: []Event{
		{Timestamp: time.Now(), EntityID: "light.office", NewState: "on"},
	}}
	fallback := &fakeFallback{}
	adapter := New(primary, fallback, testConfig(), testLogger())

	out, err := adapter.FetchEvents(context.Background(), time.Now().Add(-time.Hour), time.Now(), Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "light", out[0].Domain)
}

func TestFetchEvents_FallsBackOnPrimaryError(t *testing.T) {
	primary := &fakePrimary{err: sharederrors.Transient(assertErr("boom"))}
	fallback := &fakeFallback{events: []Event{
		{Timestamp: time.Now(), EntityID: "binary_sensor.kitchen_motion", NewState: "on"},
	}}
	adapter := New(primary, fallback, testConfig(), testLogger())

	out, err := adapter.FetchEvents(context.Background(), time.Now().Add(-time.Hour), time.Now(), Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "binary_sensor", out[0].Domain)
}

func TestFetchEvents_BothFail(t *testing.T) {
	primary := &fakePrimary{err: sharederrors.Transient(assertErr("primary down"))}
	fallback := &fakeFallback{err: assertErr("fallback down")}
	adapter := New(primary, fallback, testConfig(), testLogger())

	_, err := adapter.FetchEvents(context.Background(), time.Now().Add(-time.Hour), time.Now(), Filter{}, 10)
	require.Error(t, err)
	var srcErr *sharederrors.SourceUnavailable
	require.ErrorAs(t, err, &srcErr)
}

func TestFetchEvents_DropsInvalidRecords(t *testing.T) {
	primary := &fakePrimary{events: []Event{
		{Timestamp: time.Now(), EntityID: ""}, // invalid: empty entity_id
		{Timestamp: time.Now(), EntityID: "light.kitchen", NewState: "on"},
	}}
	adapter := New(primary, &fakeFallback{}, testConfig(), testLogger())

	out, err := adapter.FetchEvents(context.Background(), time.Now().Add(-time.Hour), time.Now(), Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "light", DomainOf("light.office"))
	assert.Equal(t, "binary_sensor", DomainOf("binary_sensor.kitchen_motion"))
	assert.Equal(t, "nodomain", DomainOf("nodomain"))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(s string) error { return simpleErr(s) }
