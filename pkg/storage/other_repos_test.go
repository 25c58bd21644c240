package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeviceCapabilityUpsertAndList(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	dc := DeviceCapability{
		DeviceID: "light.office", Model: "A19", Manufacturer: "Acme",
		Capabilities: []Capability{{Name: "brightness", ValueDomain: "0-255", Commandable: true}},
	}
	require.NoError(t, store.UpsertDeviceCapability(dc, now))

	dc.Manufacturer = "Acme Corp"
	require.NoError(t, store.UpsertDeviceCapability(dc, now.Add(time.Hour)))

	all, err := store.ListDeviceCapabilities()
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "Acme Corp", all[0].Manufacturer)
	require.Len(t, all[0].Capabilities, 1)
}

func TestFeatureUsageInsertAndList(t *testing.T) {
	store := newTestStore(t)
	start := time.Now().Add(-24 * time.Hour)
	end := time.Now()
	fu := FeatureUsage{DeviceID: "light.office", CapabilityName: "color_temp", ObservedUsed: false, Utilization: 0, WindowStart: start, WindowEnd: end}
	require.NoError(t, store.InsertFeatureUsage(fu))

	rows, err := store.ListFeatureUsage("light.office")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.False(t, rows[0].ObservedUsed)
}

func TestAliasLifecycle(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	require.NoError(t, store.UpsertAlias(AliasMap{UserID: "u1", Alias: "kitchen light", Target: "light.kitchen_main", CreatedAt: now}))

	target, ok, err := store.ResolveAlias("u1", "kitchen light")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "light.kitchen_main", target)

	_, ok, err = store.ResolveAlias("u1", "missing alias")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.DeleteAlias("u1", "kitchen light"))
	list, err := store.ListAliases("u1")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestQueryMemoryKeptOnly(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	require.NoError(t, store.InsertQueryMemory(QueryMemory{ID: "m1", UserID: "u1", NormalizedText: "turn on the light", VectorDim: 4, ResolvedEntities: []string{"light.kitchen_main"}, Outcome: true, CreatedAt: now}))
	require.NoError(t, store.InsertQueryMemory(QueryMemory{ID: "m2", UserID: "u1", NormalizedText: "bad match", VectorDim: 4, Outcome: false, CreatedAt: now}))

	kept, err := store.ListKeptQueryMemories("u1")
	require.NoError(t, err)
	require.Len(t, kept, 1)
	require.Equal(t, "m1", kept[0].ID)
}

func TestPreferencesDefaultsAndSet(t *testing.T) {
	store := newTestStore(t)
	defaults, err := store.GetPreferences("u1")
	require.NoError(t, err)
	require.Equal(t, 10, defaults.MaxSuggestions)

	p := DefaultPreferences("u1")
	p.MaxSuggestions = 7
	require.NoError(t, store.SetPreferences(p))

	got, err := store.GetPreferences("u1")
	require.NoError(t, err)
	require.Equal(t, 7, got.MaxSuggestions)
}

func TestAnalysisRunConcurrencyGuard(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	id1, err := store.StartAnalysisRun(now)
	require.NoError(t, err)

	_, err = store.StartAnalysisRun(now)
	require.ErrorIs(t, err, ErrRunAlreadyInProgress)

	require.NoError(t, store.FinishAnalysisRun(id1, RunSucceeded, nil, RunCounts{Patterns: 3}, "", "", now.Add(time.Minute)))

	id2, err := store.StartAnalysisRun(now.Add(2 * time.Minute))
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)
}
