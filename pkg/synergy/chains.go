package synergy

import (
	"sort"
	"time"

	"github.com/dominikbraun/graph"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// weightScale converts a [0,1] edge confidence into the integer weight
// dominikbraun/graph requires, at three decimal digits of precision.
const weightScale = 1000

// buildEdgeGraph builds a directed graph over entity ids from the
// co-occurrence patterns, one edge per directed pair weighted by
// P(B|A), and returns it alongside a float lookup for exact weights
// (the graph's own weight is an int and would lose precision for
// ranking).
func buildEdgeGraph(patterns []storage.Pattern) (graph.Graph[string, string], map[string]map[string]float64) {
	g := graph.New(graph.StringHash, graph.Directed())
	weights := map[string]map[string]float64{}

	for _, p := range patterns {
		if p.Kind != storage.PatternKindCoOccurrence || p.Metadata.CoOccurrence == nil {
			continue
		}
		from, to := p.AnchorEntityID, p.Metadata.CoOccurrence.Partner
		_ = g.AddVertex(from)
		_ = g.AddVertex(to)
		_ = g.AddEdge(from, to, graph.EdgeWeight(int(p.Confidence*weightScale)))
		if weights[from] == nil {
			weights[from] = map[string]float64{}
		}
		weights[from][to] = p.Confidence
	}
	return g, weights
}

// chainCandidate is an admissible multi-hop chain before the empirical
// sequence-occurrence check is applied.
type chainCandidate struct {
	chain     []string
	minWeight float64
}

// DetectChains finds depth-3 and depth-4 chains
// over the co-occurrence edge graph, admissible only when every edge
// clears edge_floor and the raw event stream shows the whole sequence
// occurring in order, within the window, at least min_support_chain
// times.
func DetectChains(patterns []storage.Pattern, slice []events.Event, baseWindow time.Duration, cfg Config) []storage.Synergy {
	g, weights := buildEdgeGraph(patterns)
	adjacency, err := g.AdjacencyMap()
	if err != nil {
		return nil
	}

	depth3 := enumerateChains(adjacency, weights, 3, cfg.EdgeFloor)
	depth4 := enumerateChains(adjacency, weights, 4, cfg.EdgeFloor)

	var out []storage.Synergy
	out = append(out, verifyAndBuild(depth3, slice, baseWindow*2, cfg)...)
	out = append(out, verifyAndBuild(depth4, slice, baseWindow*3, cfg)...)
	return tieBreakByAnchor(out)
}

// enumerateChains walks every simple path of exactly depth vertices
// (depth-1 edges) whose edges all clear edgeFloor.
func enumerateChains(adjacency map[string]map[string]graph.Edge[string], weights map[string]map[string]float64, depth int, edgeFloor float64) []chainCandidate {
	var out []chainCandidate
	var walk func(path []string, minW float64)
	walk = func(path []string, minW float64) {
		if len(path) == depth {
			out = append(out, chainCandidate{chain: append([]string{}, path...), minWeight: minW})
			return
		}
		last := path[len(path)-1]
		for next := range adjacency[last] {
			w := weights[last][next]
			if w < edgeFloor {
				continue
			}
			if contains(path, next) {
				continue
			}
			walk(append(path, next), minFloat(minW, w))
		}
	}
	for anchor := range adjacency {
		walk([]string{anchor}, 1.0)
	}
	return out
}

func contains(path []string, v string) bool {
	for _, p := range path {
		if p == v {
			return true
		}
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// verifyAndBuild keeps only chains whose raw event stream shows the
// whole sequence, in order, within window, at least min_support_chain
// times, and constructs the resulting Synergy.
func verifyAndBuild(candidates []chainCandidate, slice []events.Event, window time.Duration, cfg Config) []storage.Synergy {
	var out []storage.Synergy
	for _, c := range candidates {
		occurrences := countSequenceOccurrences(slice, c.chain, window)
		if occurrences < cfg.MinSupportChain {
			continue
		}
		out = append(out, storage.Synergy{
			Type:                storage.SynergyTypeDeviceChain,
			Depth:               len(c.chain),
			Chain:               c.chain,
			Impact:              clamp01(c.minWeight),
			Confidence:          clamp01(c.minWeight),
			Complexity:          chainComplexity(len(c.chain)),
			PatternSupport:      supportScore(occurrences),
			ValidatedByPatterns: true,
		})
	}
	return out
}

func chainComplexity(depth int) storage.Complexity {
	if depth >= 4 {
		return storage.ComplexityHigh
	}
	return storage.ComplexityMedium
}

// countSequenceOccurrences counts how many times chain[0]'s transition
// is followed, in order, by a transition of every subsequent chain
// member, with the last event no later than window after the first. Any
// valid state transition participates, so a lock's "locked" can anchor
// or continue a chain.
func countSequenceOccurrences(slice []events.Event, chain []string, window time.Duration) int {
	byEntity := map[string][]time.Time{}
	for _, e := range slice {
		if e.Valid() {
			byEntity[e.EntityID] = append(byEntity[e.EntityID], e.Timestamp)
		}
	}
	for entity := range byEntity {
		sort.Slice(byEntity[entity], func(i, j int) bool { return byEntity[entity][i].Before(byEntity[entity][j]) })
	}

	count := 0
	for _, start := range byEntity[chain[0]] {
		cursor := start
		ok := true
		for _, next := range chain[1:] {
			t, found := nextAfter(byEntity[next], cursor, start.Add(window))
			if !found {
				ok = false
				break
			}
			cursor = t
		}
		if ok {
			count++
		}
	}
	return count
}

// nextAfter returns the earliest timestamp strictly after cursor and no
// later than deadline.
func nextAfter(times []time.Time, cursor, deadline time.Time) (time.Time, bool) {
	for _, t := range times {
		if t.After(cursor) && !t.After(deadline) {
			return t, true
		}
	}
	return time.Time{}, false
}

// tieBreakByAnchor implements the tie-break: when two chains
// share an anchor (first element), keep the one with the higher minimum
// edge weight; on equality, keep the shorter chain.
func tieBreakByAnchor(synergies []storage.Synergy) []storage.Synergy {
	best := map[string]storage.Synergy{}
	for _, s := range synergies {
		if len(s.Chain) == 0 {
			continue
		}
		anchor := s.Chain[0]
		cur, ok := best[anchor]
		if !ok {
			best[anchor] = s
			continue
		}
		if s.Confidence > cur.Confidence || (s.Confidence == cur.Confidence && len(s.Chain) < len(cur.Chain)) {
			best[anchor] = s
		}
	}
	out := make([]storage.Synergy, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	return out
}
