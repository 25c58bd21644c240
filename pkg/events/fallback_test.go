package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFallbackSourceQueryRange(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query_range", r.URL.Path)
		assert.Equal(t, "light.kitchen", r.URL.Query().Get("entity_id"))
		_ = json.NewEncoder(w).Encode([]Event{
			{Timestamp: time.Now().UTC(), EventType: "state_changed", EntityID: "light.kitchen", NewState: "on"},
		})
	}))
	defer ts.Close()

	src := NewHTTPFallbackSource(ts.URL)
	events, err := src.QueryRange(context.Background(), time.Now().Add(-time.Hour), time.Now(), Filter{EntityIDs: []string{"light.kitchen"}}, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "light.kitchen", events[0].EntityID)
}

func TestHTTPFallbackSourceServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	src := NewHTTPFallbackSource(ts.URL)
	_, err := src.QueryRange(context.Background(), time.Now().Add(-time.Hour), time.Now(), Filter{}, 10)
	require.Error(t, err)
}

func TestHTTPFallbackSourceAttributeSeriesAndWeather(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/attribute_series":
			assert.Equal(t, "brightness", r.URL.Query().Get("attribute"))
		case "/weather_tagged":
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]Event{})
	}))
	defer ts.Close()

	src := NewHTTPFallbackSource(ts.URL)
	_, err := src.AttributeSeries(context.Background(), "light.kitchen", "brightness", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	_, err = src.WeatherTaggedEvents(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
}
