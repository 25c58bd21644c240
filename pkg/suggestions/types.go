// Package suggestions implements the suggestion composer: it scores
// pattern/synergy/feature candidates, applies a creativity floor and a
// preference-weighted re-rank, deduplicates, caps to the
// per-user max_suggestions, and generates a description for each
// survivor via the LLM adapter with a deterministic template fallback.
package suggestions

import "github.com/wtthornton/homeiq-insight/pkg/storage"

// Candidate is one ranking-pipeline entry regardless of source.
type Candidate struct {
	Source          storage.SuggestionSource
	Kind            string // brief kind, e.g. "time_of_day", "device_pair", "feature"
	AnchorEntityID  string
	DevicesInvolved []string
	Confidence      float64
	BaseScore       float64
	Score           float64
	// IsTemplateMatch marks a synergy candidate that corresponds to a
	// known community template; only such
	// candidates are subject to the blueprint-preference multiplier.
	IsTemplateMatch bool
	Metadata        map[string]interface{}
	PatternID       string
	SynergyID       string
}

func (c Candidate) devicesSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.DevicesInvolved))
	for _, d := range c.DevicesInvolved {
		set[d] = struct{}{}
	}
	return set
}

// isSubsetOf reports whether c's devices are a (non-strict) subset of
// other's devices.
func (c Candidate) isSubsetOf(other Candidate) bool {
	if len(c.DevicesInvolved) == 0 {
		return false
	}
	otherSet := other.devicesSet()
	for _, d := range c.DevicesInvolved {
		if _, ok := otherSet[d]; !ok {
			return false
		}
	}
	return true
}
