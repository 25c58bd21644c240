package synergy

import "github.com/wtthornton/homeiq-insight/pkg/storage"

// DeviceCentrality computes a degree-centrality score per entity from the
// same co-occurrence edges buildEdgeGraph turns into the chain graph,
// normalized to [0,1] by the highest observed degree. The orchestrator
// feeds this into the feature-suggestion scorer as
// the "how central is this device to the household's routines" signal.
func DeviceCentrality(patterns []storage.Pattern) map[string]float64 {
	degree := map[string]int{}
	for _, p := range patterns {
		if p.Kind != storage.PatternKindCoOccurrence || p.Metadata.CoOccurrence == nil {
			continue
		}
		degree[p.AnchorEntityID]++
		degree[p.Metadata.CoOccurrence.Partner]++
	}

	maxDegree := 0
	for _, d := range degree {
		if d > maxDegree {
			maxDegree = d
		}
	}
	if maxDegree == 0 {
		return map[string]float64{}
	}

	out := make(map[string]float64, len(degree))
	for entity, d := range degree {
		out[entity] = float64(d) / float64(maxDegree)
	}
	return out
}
