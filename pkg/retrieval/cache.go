// Package retrieval implements the retrieval cache: an
// embedding-indexed memory of past successful queries, consulted by the
// ask-AI pipeline to decide whether clarification can be skipped.
package retrieval

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	sharederrors "github.com/wtthornton/homeiq-insight/pkg/shared/errors"
	"github.com/wtthornton/homeiq-insight/pkg/shared/mathutil"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// SkipClarificationThreshold is the default cosine threshold,
// overridable per user via Preferences.ClarificationSkipThreshold.
const SkipClarificationThreshold = 0.85

// Embedder is the narrow embedding contract the cache depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

// Hit is one nearest-neighbor result from Lookup.
type Hit struct {
	MemoryID         string
	NormalizedText   string
	ResolvedEntities []string
	Cosine           float64
}

// Cache is the vector-indexed query memory. It wraps a chromem-go
// in-memory collection (a flat brute-force index is plenty at
// single-home scale) behind a reader-writer guard so concurrent queries
// can read while an index rebuild is in flight.
type Cache struct {
	mu         sync.RWMutex
	collection *chromem.Collection
	embedder   Embedder
	dim        int
	store      *storage.Store
	rebuilding bool
}

const collectionName = "query_memory"

// New builds a Cache backed by an in-memory chromem-go collection. The
// durable storage.QueryMemory rows are the source of truth the index is
// rebuilt from after a restart.
func New(embedder Embedder, store *storage.Store) (*Cache, error) {
	coll, err := chromem.NewDB().CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{collection: coll, embedder: embedder, dim: embedder.Dimension(), store: store}, nil
}

// Remember implements the `remember(query_text, entity_set,
// outcome)`. Only outcome=kept queries are indexed for retrieval, but
// every query is persisted for audit.
func (c *Cache) Remember(ctx context.Context, userID, queryText string, entitySet []string, outcome bool) error {
	vec, err := c.embedder.Embed(ctx, queryText)
	if err != nil {
		return sharederrors.FailedTo("embed query for retrieval cache", err)
	}
	if len(vec) != c.dim {
		return &sharederrors.ContractViolation{Source: "embedding-adapter", Reason: "vector dimension mismatch against cache index"}
	}

	qm := storage.QueryMemory{
		ID:               uuid.NewString(),
		UserID:           userID,
		NormalizedText:   queryText,
		VectorDim:        c.dim,
		ResolvedEntities: entitySet,
		Outcome:          outcome,
		CreatedAt:        time.Now(),
	}
	if err := c.store.InsertQueryMemory(qm); err != nil {
		return err
	}
	if !outcome {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.collection.AddDocument(ctx, chromem.Document{
		ID:        qm.ID,
		Content:   queryText,
		Embedding: float32Vec(vec),
		Metadata:  entityMetadata(userID, entitySet),
	})
}

// Lookup implements the `lookup(query_text)`: embed, return top-K
// nearest with cosine scores, scoped to userID. While a rebuild is in
// flight it falls back to a transparent linear scan over the durable
// QueryMemory rows.
func (c *Cache) Lookup(ctx context.Context, userID, queryText string, k int) ([]Hit, error) {
	vec, err := c.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, sharederrors.FailedTo("embed query for retrieval lookup", err)
	}

	c.mu.RLock()
	rebuilding := c.rebuilding
	c.mu.RUnlock()
	if rebuilding {
		return c.linearScan(ctx, userID, vec, k)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	results, err := c.collection.QueryEmbedding(ctx, float32Vec(vec), k, nil, nil)
	if err != nil {
		// An empty or not-yet-populated collection is not a failure mode
		// the caller needs to distinguish from "no match found".
		return nil, nil
	}
	out := make([]Hit, 0, len(results))
	for _, r := range results {
		if r.Metadata["user_id"] != userID {
			continue
		}
		out = append(out, Hit{
			MemoryID:         r.ID,
			NormalizedText:   r.Content,
			ResolvedEntities: decodeEntities(r.Metadata["entities"]),
			Cosine:           float64(r.Similarity),
		})
	}
	return out, nil
}

// Rebuild reindexes the collection from the durable kept-outcome
// QueryMemory rows, re-embedding each.
func (c *Cache) Rebuild(ctx context.Context, userID string) error {
	c.mu.Lock()
	c.rebuilding = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.rebuilding = false
		c.mu.Unlock()
	}()

	rows, err := c.store.ListKeptQueryMemories(userID)
	if err != nil {
		return err
	}

	coll, err := chromem.NewDB().CreateCollection(collectionName, nil, nil)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.VectorDim != c.dim {
			continue // : refuse to compare vectors across dimensions
		}
		vec, err := c.embedder.Embed(ctx, row.NormalizedText)
		if err != nil {
			continue
		}
		_ = coll.AddDocument(ctx, chromem.Document{
			ID:        row.ID,
			Content:   row.NormalizedText,
			Embedding: float32Vec(vec),
			Metadata:  entityMetadata(row.UserID, row.ResolvedEntities),
		})
	}

	c.mu.Lock()
	c.collection = coll
	c.mu.Unlock()
	return nil
}

// linearScan is the fallback path during a rebuild: a brute-force cosine
// comparison over every kept memory for userID, sufficient at
// single-home scale.
func (c *Cache) linearScan(ctx context.Context, userID string, vec []float64, k int) ([]Hit, error) {
	rows, err := c.store.ListKeptQueryMemories(userID)
	if err != nil {
		return nil, err
	}
	out := make([]Hit, 0, len(rows))
	for _, r := range rows {
		if r.VectorDim != len(vec) {
			continue
		}
		rowVec, err := c.embedder.Embed(ctx, r.NormalizedText)
		if err != nil {
			continue
		}
		out = append(out, Hit{
			MemoryID:         r.ID,
			NormalizedText:   r.NormalizedText,
			ResolvedEntities: r.ResolvedEntities,
			Cosine:           mathutil.CosineSimilarity(vec, rowVec),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cosine > out[j].Cosine })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func entityMetadata(userID string, entities []string) map[string]string {
	encoded, _ := json.Marshal(entities)
	return map[string]string{"user_id": userID, "entities": string(encoded)}
}

func decodeEntities(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func float32Vec(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
