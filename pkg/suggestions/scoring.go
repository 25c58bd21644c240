package suggestions

import (
	"math"
	"time"

	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// RecencyHalfLifeDays sets the exponential decay rate for pattern
// recency weighting: a pattern last seen this many days ago contributes
// half the weight of one seen today.
const RecencyHalfLifeDays = 14.0

// RecencyWeight implements the recency half of the
// "pattern (confidence x recency weight)": an exponential decay from 1.0
// at lastSeen == now down towards 0 as the pattern goes stale.
func RecencyWeight(lastSeen, now time.Time) float64 {
	ageDays := now.Sub(lastSeen).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-math.Ln2 * ageDays / RecencyHalfLifeDays)
}

// ScorePattern computes the pattern base score:
// confidence x recency weight.
func ScorePattern(p storage.Pattern, now time.Time) float64 {
	return p.Confidence * RecencyWeight(p.LastSeen, now)
}

// ScoreSynergy computes the synergy base score: the
// synergy's priority.
func ScoreSynergy(s storage.Synergy, w storage.PriorityWeights) float64 {
	return s.Priority(w)
}

// ScoreFeature computes the feature base score:
// utilization-gap x device centrality. centrality is supplied by the
// caller (the orchestrator derives it from the co-occurrence edge graph);
// a device absent from that graph gets centrality 0 and so never
// out-ranks a pattern/synergy candidate purely on novelty.
func ScoreFeature(utilization, centrality float64) float64 {
	gap := 1 - utilization
	return gap * centrality
}

// NewPatternCandidate builds a scored Candidate from a Pattern, the
// shape the composer's ranking pipeline operates on uniformly across sources.
func NewPatternCandidate(p storage.Pattern, now time.Time, devices []string) Candidate {
	score := ScorePattern(p, now)
	return Candidate{
		Source:          storage.SourcePattern,
		Kind:            string(p.Kind),
		AnchorEntityID:  p.AnchorEntityID,
		DevicesInvolved: devices,
		Confidence:      p.Confidence,
		BaseScore:       score,
		Score:           score,
		Metadata:        patternMetadataMap(p.Metadata),
		PatternID:       p.ID,
	}
}

// NewSynergyCandidate builds a scored Candidate from a Synergy.
// isTemplateMatch marks whether this synergy corresponds to a known
// community automation template, making it eligible for the blueprint
// re-rank.
func NewSynergyCandidate(s storage.Synergy, w storage.PriorityWeights, isTemplateMatch bool) Candidate {
	score := ScoreSynergy(s, w)
	return Candidate{
		Source:          storage.SourceSynergy,
		Kind:            string(s.Type),
		AnchorEntityID:  firstOrEmpty(s.Chain),
		DevicesInvolved: s.Chain,
		Confidence:      s.Confidence,
		BaseScore:       score,
		Score:           score,
		IsTemplateMatch: isTemplateMatch,
		SynergyID:       s.ID,
	}
}

// NewFeatureCandidate builds a scored Candidate from an underutilized
// capability.Candidate (pkg/capability), plus the device's precomputed
// graph centrality.
func NewFeatureCandidate(deviceID, capabilityName string, utilization, centrality float64) Candidate {
	score := ScoreFeature(utilization, centrality)
	return Candidate{
		Source:          storage.SourceFeature,
		Kind:            "feature",
		AnchorEntityID:  deviceID,
		DevicesInvolved: []string{deviceID},
		Confidence:      1 - utilization,
		BaseScore:       score,
		Score:           score,
		Metadata:        map[string]interface{}{"capability_name": capabilityName, "utilization": utilization},
	}
}

func firstOrEmpty(devices []string) string {
	if len(devices) == 0 {
		return ""
	}
	return devices[0]
}

func patternMetadataMap(m storage.PatternMetadata) map[string]interface{} {
	out := map[string]interface{}{}
	switch {
	case m.TimeOfDay != nil:
		out["hour"] = m.TimeOfDay.Hour
		out["weekday_mask"] = m.TimeOfDay.WeekdayMask
	case m.CoOccurrence != nil:
		out["partner_entity_id"] = m.CoOccurrence.Partner
		out["direction"] = m.CoOccurrence.Direction
	case m.Anomaly != nil:
		out["signature"] = m.Anomaly.Signature
		out["rough_hour"] = m.Anomaly.RoughHour
	}
	return out
}
