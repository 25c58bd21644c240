package synergy

import (
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// DetectDevicePairs derives depth-2 synergies: for each co-occurrence
// pattern above the synergy floor, emit a depth-2 synergy whose impact
// rewards frequency but penalizes an anchor that co-occurs with nearly
// everything (a motion sensor wired to ten lights is less of a signal
// than one wired to one).
func DetectDevicePairs(patterns []storage.Pattern, cfg Config) []storage.Synergy {
	eligible := make([]storage.Pattern, 0, len(patterns))
	anchorFanout := map[string]int{}
	for _, p := range patterns {
		if p.Kind != storage.PatternKindCoOccurrence || p.Metadata.CoOccurrence == nil {
			continue
		}
		anchorFanout[p.AnchorEntityID]++
		if p.Confidence >= cfg.SynergyFloor {
			eligible = append(eligible, p)
		}
	}

	maxFanout := 1
	for _, n := range anchorFanout {
		if n > maxFanout {
			maxFanout = n
		}
	}

	out := make([]storage.Synergy, 0, len(eligible))
	for _, p := range eligible {
		distinctness := 1 - float64(anchorFanout[p.AnchorEntityID]-1)/float64(maxFanout)
		if distinctness < 0 {
			distinctness = 0
		}
		impact := p.Confidence * distinctness
		complexity := storage.ComplexityLow

		out = append(out, storage.Synergy{
			Type:                storage.SynergyTypeDevicePair,
			Depth:               2,
			Chain:               []string{p.AnchorEntityID, p.Metadata.CoOccurrence.Partner},
			Impact:              clamp01(impact),
			Confidence:          p.Confidence,
			Complexity:          complexity,
			PatternSupport:      supportScore(p.Occurrences),
			ValidatedByPatterns: true,
			SupportingPatterns:  []string{p.ID},
		})
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// supportScore maps a raw occurrence count onto [0,1] for PatternSupport,
// saturating once a pattern has comfortably cleared min_support several
// times over.
func supportScore(occurrences int) float64 {
	const saturatesAt = 40.0
	v := float64(occurrences) / saturatesAt
	return clamp01(v)
}
