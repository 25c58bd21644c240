package patterns

import (
	"context"
	"sort"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/shared/mathutil"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// CoOccurrenceDetector finds directed A->B pairs where B activates within
// cfg.CoOccurrenceWindow after A activates
type CoOccurrenceDetector struct{}

func (CoOccurrenceDetector) Name() string { return "co_occurrence" }

type pairCount struct {
	from, to string
	hits     int
}

// Detect walks the time-sorted activation stream once: for every
// activation of A, it counts every distinct later entity B activating
// within the window, crediting the A->B pair. Entities are credited once
// per A-activation even if B fires multiple times inside the window, so a
// chatty device cannot inflate its own pair count.
func (CoOccurrenceDetector) Detect(_ context.Context, slice []events.Event, cfg Config) ([]Candidate, error) {
	activations := make([]events.Event, 0, len(slice))
	for _, e := range slice {
		if e.Valid() {
			activations = append(activations, e)
		}
	}
	sort.Slice(activations, func(i, j int) bool {
		return activations[i].Timestamp.Before(activations[j].Timestamp)
	})

	entityActivationTotal := map[string]int{}
	pairHits := map[[2]string]int{}

	window := cfg.CoOccurrenceWindow
	for i, a := range activations {
		entityActivationTotal[a.EntityID]++
		seen := map[string]bool{a.EntityID: true}
		for j := i + 1; j < len(activations); j++ {
			b := activations[j]
			if b.Timestamp.Sub(a.Timestamp) > window {
				break
			}
			if seen[b.EntityID] {
				continue
			}
			seen[b.EntityID] = true
			pairHits[[2]string{a.EntityID, b.EntityID}]++
		}
	}

	pairs := make([]pairCount, 0, len(pairHits))
	for k, hits := range pairHits {
		pairs = append(pairs, pairCount{from: k[0], to: k[1], hits: hits})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].from != pairs[j].from {
			return pairs[i].from < pairs[j].from
		}
		return pairs[i].to < pairs[j].to
	})

	// Statistical validation: for each anchor
	// A, the distribution of P(B|A) across every distinct partner B it was
	// ever observed leading to must show adequate sample size and
	// non-degenerate variance before any of A's pairs are trusted.
	anchorRates := map[string][]float64{}
	for k, hits := range pairHits {
		total := entityActivationTotal[k[0]]
		if total == 0 {
			continue
		}
		anchorRates[k[0]] = append(anchorRates[k[0]], float64(hits)/float64(total))
	}

	var out []Candidate
	for _, p := range pairs {
		if p.hits < cfg.MinSupport {
			continue
		}
		total := entityActivationTotal[p.from]
		if total == 0 {
			continue
		}
		if !acceptsStatistically(defaultDetectorValidator, anchorRates[p.from]) {
			continue
		}
		rate := float64(p.hits) / float64(total)
		conf := mathutil.EmpiricalBayesShrink(rate, p.hits, 0, cfg.EmpiricalBayesWeight)
		if conf < cfg.ConfidenceFloor {
			continue
		}
		cv := crossValidate(anchorRates[p.from])
		out = append(out, Candidate{
			Kind:   storage.PatternKindCoOccurrence,
			Anchor: p.from,
			Metadata: storage.PatternMetadata{
				CoOccurrence: &storage.CoOccurrenceMetadata{
					Partner:   p.to,
					WindowSec: int(window.Seconds()),
					Direction: "A->B",
				},
				CrossValidation: cv,
			},
			Confidence:  shrinkByCrossValidation(conf, cv),
			Occurrences: p.hits,
		})
	}
	return out, nil
}
