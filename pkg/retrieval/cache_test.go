package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// fakeEmbedder maps known phrases to fixed 3-dim vectors so cosine
// similarity between related and unrelated phrases is predictable.
type fakeEmbedder struct{}

func (fakeEmbedder) Dimension() int { return 3 }

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	switch text {
	case "turn on the kitchen light when i get home":
		return []float64{1, 0, 0}, nil
	case "turn on the kitchen lights when i arrive":
		return []float64{0.95, 0.05, 0}, nil
	case "set thermostat to 68 at night":
		return []float64{0, 0, 1}, nil
	default:
		return []float64{0, 1, 0}, nil
	}
}

func newTestCache(t *testing.T) (*Cache, *storage.Store) {
	t.Helper()
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	c, err := New(fakeEmbedder{}, store)
	require.NoError(t, err)
	return c, store
}

func TestRememberOnlyIndexesKeptOutcomes(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Remember(ctx, "u1", "turn on the kitchen light when i get home", []string{"light.kitchen_main"}, true))
	require.NoError(t, c.Remember(ctx, "u1", "set thermostat to 68 at night", []string{"climate.main"}, false))

	hits, err := c.Lookup(ctx, "u1", "turn on the kitchen lights when i arrive", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, []string{"light.kitchen_main"}, hits[0].ResolvedEntities)
	require.Greater(t, hits[0].Cosine, SkipClarificationThreshold)
}

func TestLookupScopedToUser(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Remember(ctx, "u1", "turn on the kitchen light when i get home", []string{"light.kitchen_main"}, true))

	hits, err := c.Lookup(ctx, "u2", "turn on the kitchen lights when i arrive", 5)
	require.NoError(t, err)
	require.Empty(t, hits)
}

func TestRebuildFallsBackToLinearScanDuringRebuild(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.Remember(ctx, "u1", "turn on the kitchen light when i get home", []string{"light.kitchen_main"}, true))

	require.NoError(t, c.Rebuild(ctx, "u1"))

	hits, err := c.Lookup(ctx, "u1", "turn on the kitchen lights when i arrive", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "light.kitchen_main", hits[0].ResolvedEntities[0])
}

func TestRememberRejectsDimensionMismatch(t *testing.T) {
	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c, err := New(fakeEmbedder{}, store)
	require.NoError(t, err)
	c.dim = 8 // force a mismatch against the fake embedder's fixed 3-dim output

	err = c.Remember(context.Background(), "u1", "turn on the kitchen light when i get home", nil, true)
	require.Error(t, err)
}
