package synergy

import (
	"github.com/wtthornton/homeiq-insight/pkg/shared/mathutil"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// DeviceFeatures is the raw material behind a device embedding: domain,
// area, capability set, and a recent activation histogram (
// layer 4, "a fixed-length embedding per device from its (domain, area,
// capability set, recent activation histogram)").
type DeviceFeatures struct {
	Domain             string
	Area               string
	Capabilities       []string
	ActivationHistogram [24]float64 // fraction of activations per hour-of-day bucket
}

// allDomains and allCapabilities give the embedding a fixed vocabulary so
// every device produces a vector of the same length regardless of which
// domains/capabilities are present in this particular home; unseen values
// are silently dropped from the one-hot slice, matching a production
// system's need for a stable embedding dimension across re-detections.
var (
	allDomains = []string{"light", "switch", "lock", "binary_sensor", "climate", "media_player", "cover", "fan", "sensor"}
	allCapabilities = []string{"brightness", "color_temp", "rgb_color", "effect", "hvac_mode", "target_temperature", "volume"}
)

// Embed produces a fixed-length vector: one-hot domain, one-hot
// capability presence, then the 24-bucket activation histogram.
func Embed(f DeviceFeatures) []float64 {
	vec := make([]float64, 0, len(allDomains)+len(allCapabilities)+24)
	for _, d := range allDomains {
		if d == f.Domain {
			vec = append(vec, 1)
		} else {
			vec = append(vec, 0)
		}
	}
	capSet := map[string]bool{}
	for _, c := range f.Capabilities {
		capSet[c] = true
	}
	for _, c := range allCapabilities {
		if capSet[c] {
			vec = append(vec, 1)
		} else {
			vec = append(vec, 0)
		}
	}
	for _, h := range f.ActivationHistogram {
		vec = append(vec, h)
	}
	return vec
}

// demotedImpactFactor is applied (rather than dropping the synergy
// outright) when adjacent devices in a chain fall below the similarity
// floor (demoted, not dropped).
const demotedImpactFactor = 0.5

// ApplySimilarityDemotion walks each chain synergy's adjacent device
// pairs; if any pair's cosine similarity falls below the configured
// floor and the synergy's pattern support is not already strong, its
// impact is halved rather than the synergy being removed.
func ApplySimilarityDemotion(synergies []storage.Synergy, embeddings map[string][]float64, cfg Config) []storage.Synergy {
	out := make([]storage.Synergy, len(synergies))
	copy(out, synergies)

	for i, s := range out {
		if s.Type != storage.SynergyTypeDeviceChain || len(s.Chain) < 2 {
			continue
		}
		if s.PatternSupport >= 0.7 {
			// strong pattern support overrides the dissimilarity signal
			continue
		}
		for j := 0; j+1 < len(s.Chain); j++ {
			va, okA := embeddings[s.Chain[j]]
			vb, okB := embeddings[s.Chain[j+1]]
			if !okA || !okB {
				continue
			}
			if mathutil.CosineSimilarity(va, vb) < cfg.SimilarityFloor {
				out[i].Impact = clamp01(s.Impact * demotedImpactFactor)
				break
			}
		}
	}
	return out
}
