package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestUpsertPattern_CreatesNew(t *testing.T) {
	store := newTestStore(t)
	meta := PatternMetadata{TimeOfDay: &TimeOfDayMetadata{Hour: 7, WeekdayMask: 0b0111110}}

	id, wasNew, err := store.UpsertPattern(PatternKindTimeOfDay, "light.office", meta, 0.9, 22, time.Now())
	require.NoError(t, err)
	require.True(t, wasNew)
	require.NotEmpty(t, id)

	p, err := store.GetPattern(id)
	require.NoError(t, err)
	require.Equal(t, 0.9, p.Confidence)
	require.Equal(t, 22, p.Occurrences)
	require.Equal(t, 7, p.Metadata.TimeOfDay.Hour)
}

func TestUpsertPattern_MergesOnReDetection(t *testing.T) {
	store := newTestStore(t)
	meta := PatternMetadata{TimeOfDay: &TimeOfDayMetadata{Hour: 7, WeekdayMask: 0b0111110}}
	now := time.Now()

	id1, wasNew1, err := store.UpsertPattern(PatternKindTimeOfDay, "light.office", meta, 0.8, 20, now)
	require.NoError(t, err)
	require.True(t, wasNew1)

	id2, wasNew2, err := store.UpsertPattern(PatternKindTimeOfDay, "light.office", meta, 1.0, 5, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.False(t, wasNew2)
	require.Equal(t, id1, id2)

	p, err := store.GetPattern(id1)
	require.NoError(t, err)
	require.InDelta(t, 0.9, p.Confidence, 1e-9) // weighted mean of 0.8 and 1.0
	require.Equal(t, 25, p.Occurrences)         // 20 + 5, monotonic
}

func TestUpsertPattern_SameDayReRunIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	meta := PatternMetadata{TimeOfDay: &TimeOfDayMetadata{Hour: 7, WeekdayMask: 0b0111110}}
	morning := time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC)

	id1, wasNew1, err := store.UpsertPattern(PatternKindTimeOfDay, "light.office", meta, 0.8, 20, morning)
	require.NoError(t, err)
	require.True(t, wasNew1)

	// A second pipeline run over the same window, later the same day,
	// must not move counts, confidence, or the snapshot series.
	id2, wasNew2, err := store.UpsertPattern(PatternKindTimeOfDay, "light.office", meta, 0.8, 20, morning.Add(4*time.Hour))
	require.NoError(t, err)
	require.False(t, wasNew2)
	require.Equal(t, id1, id2)

	p, err := store.GetPattern(id1)
	require.NoError(t, err)
	require.Equal(t, 0.8, p.Confidence)
	require.Equal(t, 20, p.Occurrences)
	require.Equal(t, 1, p.ConfidenceHistoryCount)

	var snapshots int
	require.NoError(t, store.DB.Get(&snapshots, `SELECT COUNT(*) FROM pattern_snapshots WHERE pattern_id=?`, id1))
	require.Equal(t, 1, snapshots)

	// The next day's re-detection still merges and appends per usual.
	_, wasNew3, err := store.UpsertPattern(PatternKindTimeOfDay, "light.office", meta, 1.0, 5, morning.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.False(t, wasNew3)

	p, err = store.GetPattern(id1)
	require.NoError(t, err)
	require.Equal(t, 25, p.Occurrences)
	require.NoError(t, store.DB.Get(&snapshots, `SELECT COUNT(*) FROM pattern_snapshots WHERE pattern_id=?`, id1))
	require.Equal(t, 2, snapshots)
}

func TestUpsertPattern_UniquenessPerKindAnchorMetadata(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	metaA := PatternMetadata{TimeOfDay: &TimeOfDayMetadata{Hour: 7}}
	metaB := PatternMetadata{TimeOfDay: &TimeOfDayMetadata{Hour: 8}}

	id1, _, err := store.UpsertPattern(PatternKindTimeOfDay, "light.office", metaA, 0.9, 10, now)
	require.NoError(t, err)
	id2, _, err := store.UpsertPattern(PatternKindTimeOfDay, "light.office", metaB, 0.9, 10, now)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	patterns, err := store.ListPatterns("")
	require.NoError(t, err)
	require.Len(t, patterns, 2)
}

func TestListPatterns_JQFilter(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	_, _, err := store.UpsertPattern(PatternKindCoOccurrence, "binary_sensor.kitchen_motion",
		PatternMetadata{CoOccurrence: &CoOccurrenceMetadata{Partner: "light.kitchen_main", WindowSec: 30, Direction: "A->B"}},
		0.9, 40, now)
	require.NoError(t, err)
	_, _, err = store.UpsertPattern(PatternKindTimeOfDay, "light.office",
		PatternMetadata{TimeOfDay: &TimeOfDayMetadata{Hour: 7}}, 0.5, 10, now)
	require.NoError(t, err)

	filtered, err := store.ListPatterns(`.kind == "co_occurrence"`)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	require.Equal(t, PatternKindCoOccurrence, filtered[0].Kind)

	highConfidence, err := store.ListPatterns(`.confidence >= 0.8`)
	require.NoError(t, err)
	require.Len(t, highConfidence, 1)
}

func TestUpsertPattern_RejectsOutOfRangeConfidence(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.UpsertPattern(PatternKindAnomaly, "lock.front_door", PatternMetadata{Anomaly: &AnomalyMetadata{Signature: "on->off"}}, 1.5, 5, time.Now())
	require.Error(t, err)
}

func TestPruneOldPatterns(t *testing.T) {
	store := newTestStore(t)
	old := time.Now().AddDate(-2, 0, 0)
	id, _, err := store.UpsertPattern(PatternKindTimeOfDay, "light.attic", PatternMetadata{TimeOfDay: &TimeOfDayMetadata{Hour: 3}}, 0.9, 10, old)
	require.NoError(t, err)

	n, err := store.PruneOldPatterns(time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = store.GetPattern(id)
	require.Error(t, err)
}
