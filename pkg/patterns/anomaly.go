package patterns

import (
	"context"
	"sort"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/shared/mathutil"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// AnomalyDetector finds recurring manual-override signatures: a state
// flip back within cfg.OverrideWindow of the previous one, e.g. an
// automation switching a light on immediately followed by a human turning
// it back off. An override signature only becomes a pattern when it both
// recurs (>= MinSupport) and stays rare relative to the entity's total
// transition volume (an isolation-forest-style contamination cutoff),
// so routine toggling isn't mistaken for an anomaly.
type AnomalyDetector struct{}

func (AnomalyDetector) Name() string { return "anomaly" }

type overrideKey struct {
	entity    string
	signature string
	roughHour int
}

func (AnomalyDetector) Detect(_ context.Context, slice []events.Event, cfg Config) ([]Candidate, error) {
	perEntity := map[string][]events.Event{}
	for _, e := range slice {
		if !e.Valid() {
			continue
		}
		perEntity[e.EntityID] = append(perEntity[e.EntityID], e)
	}

	overrideHits := map[overrideKey]int{}
	entityTransitions := map[string]int{}

	for entity, evs := range perEntity {
		sort.Slice(evs, func(i, j int) bool { return evs[i].Timestamp.Before(evs[j].Timestamp) })
		for i := 1; i < len(evs); i++ {
			prev, cur := evs[i-1], evs[i]
			if prev.NewState == cur.NewState {
				continue
			}
			entityTransitions[entity]++
			gap := cur.Timestamp.Sub(prev.Timestamp)
			if gap < 0 || gap > cfg.OverrideWindow {
				continue
			}
			key := overrideKey{
				entity:    entity,
				signature: prev.NewState + "->" + cur.NewState,
				roughHour: prev.Timestamp.Hour(),
			}
			overrideHits[key]++
		}
	}

	// Statistical validation: for each
	// entity, the distribution of its override-signature rates across
	// every distinct signature it was ever observed producing must show
	// adequate sample size and non-degenerate variance before any of its
	// signatures are trusted as an anomaly pattern.
	entitySignatureRates := map[string][]float64{}
	for k, hits := range overrideHits {
		total := entityTransitions[k.entity]
		if total == 0 {
			continue
		}
		entitySignatureRates[k.entity] = append(entitySignatureRates[k.entity], float64(hits)/float64(total))
	}

	var out []Candidate
	for k, hits := range overrideHits {
		if hits < cfg.MinSupport {
			continue
		}
		total := entityTransitions[k.entity]
		if total == 0 {
			continue
		}
		if !acceptsStatistically(defaultDetectorValidator, entitySignatureRates[k.entity]) {
			continue
		}
		rate := float64(hits) / float64(total)
		if rate > cfg.Contamination {
			// Too common relative to the entity's own traffic to count as
			// an anomalous override; it's just how this entity behaves.
			continue
		}
		conf := mathutil.EmpiricalBayesShrink(1-rate/cfg.Contamination, hits, 0, cfg.EmpiricalBayesWeight)
		if conf < cfg.ConfidenceFloor {
			continue
		}
		cv := crossValidate(entitySignatureRates[k.entity])
		out = append(out, Candidate{
			Kind:   storage.PatternKindAnomaly,
			Anchor: k.entity,
			Metadata: storage.PatternMetadata{
				Anomaly: &storage.AnomalyMetadata{
					Signature:      k.signature,
					RoughHour:      k.roughHour,
					OverrideWinSec: int(cfg.OverrideWindow.Seconds()),
				},
				CrossValidation: cv,
			},
			Confidence:  shrinkByCrossValidation(conf, cv),
			Occurrences: hits,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Anchor != out[j].Anchor {
			return out[i].Anchor < out[j].Anchor
		}
		return out[i].Confidence > out[j].Confidence
	})
	return out, nil
}
