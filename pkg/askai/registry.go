package askai

import (
	"context"
	"strings"
	"time"

	"github.com/wtthornton/homeiq-insight/pkg/entities"
	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/nlp"
)

// EventRegistryLookup derives the current entity registry from the
// most recent event window the event source can serve: the core has no
// separate device-registry table of its own (only
// storage.DeviceCapability, keyed by device_id, not entity_id), so the
// distinct entity_ids seen in recent activity are the registry the
// resolver actually has available to resolve against.
type EventRegistryLookup struct {
	fetcher *events.Adapter
	window  time.Duration
	embedder nlp.EmbeddingAdapter // optional; nil skips the semantic signal
}

// NewEventRegistryLookup builds a RegistryLookup backed by fetcher,
// looking back `window` for distinct entities. embedder may be nil.
func NewEventRegistryLookup(fetcher *events.Adapter, window time.Duration, embedder nlp.EmbeddingAdapter) *EventRegistryLookup {
	return &EventRegistryLookup{fetcher: fetcher, window: window, embedder: embedder}
}

// EntityRegistry implements askai.RegistryLookup.
func (l *EventRegistryLookup) EntityRegistry(ctx context.Context, userID string) ([]entities.RegistryEntity, error) {
	now := time.Now().UTC()
	slice, err := l.fetcher.FetchEvents(ctx, now.Add(-l.window), now, events.Filter{}, 0)
	if err != nil {
		return nil, err
	}

	seen := map[string]entities.RegistryEntity{}
	for _, e := range slice {
		if !e.Valid() {
			continue
		}
		if _, ok := seen[e.EntityID]; ok {
			continue
		}
		re := entities.RegistryEntity{
			EntityID:     e.EntityID,
			FriendlyName: friendlyNameOf(e.EntityID),
			Domain:       e.Domain,
			AreaID:       e.AreaID,
		}
		if l.embedder != nil {
			if vec, err := l.embedder.Embed(ctx, re.FriendlyName); err == nil {
				re.Embedding = vec
			}
		}
		seen[e.EntityID] = re
	}

	out := make([]entities.RegistryEntity, 0, len(seen))
	for _, re := range seen {
		out = append(out, re)
	}
	return out, nil
}

// friendlyNameOf derives a human-readable name from an entity_id's
// object-id segment (the part after the domain prefix), e.g.
// "light.kitchen_main" -> "kitchen main".
func friendlyNameOf(entityID string) string {
	objectID := entityID
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		objectID = entityID[i+1:]
	}
	return strings.ReplaceAll(objectID, "_", " ")
}
