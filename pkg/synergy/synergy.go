package synergy

import (
	"time"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// Engine wires the four synergy layers together for the orchestrator's
// phase 3 parallel run alongside the detectors.
type Engine struct {
	cfg Config
}

// New builds an Engine with the given configuration.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Run produces every synergy layer's output for one analysis run. The
// caller is responsible for upserting the results via storage.Store.
// slice carries every valid transition in the window, not just "on"
// activations: chain verification needs transitions like "locked" or
// "closed" to participate, and the context layer filters to activations
// itself.
func (e *Engine) Run(patterns []storage.Pattern, slice []events.Event, weatherEvents []events.Event, baseWindow time.Duration, embeddings map[string][]float64) []storage.Synergy {
	var out []storage.Synergy
	out = append(out, DetectDevicePairs(patterns, e.cfg)...)

	signals := ExtractContextSignals(weatherEvents)
	out = append(out, DetectContextSynergies(slice, signals, e.cfg)...)

	chains := DetectChains(patterns, slice, baseWindow, e.cfg)
	if embeddings != nil {
		chains = ApplySimilarityDemotion(chains, embeddings, e.cfg)
	}
	out = append(out, chains...)

	return out
}
