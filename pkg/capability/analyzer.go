// Package capability implements the capability and feature analyzer:
// it turns the device-capability registry plus the attribute event
// series into per-capability utilization figures and a rate-limited
// list of underutilized-feature suggestion candidates for the composer.
package capability

import (
	"sort"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// Config holds the analyzer's tunables.
type Config struct {
	DeviceMinActivity int // minimum active-events before underutilization can be claimed, default 10
}

// DefaultConfig matches the implied default.
func DefaultConfig() Config {
	return Config{DeviceMinActivity: 10}
}

// Candidate is a feature-suggestion candidate consumed by the composer.
type Candidate struct {
	DeviceID       string
	CapabilityName string
	Utilization    float64
	ActiveCount    int
}

// Analyzer computes FeatureUsage rows and underutilized-feature
// candidates from a device's attribute event series.
type Analyzer struct {
	cfg Config
}

// New builds an Analyzer with the given configuration.
func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg}
}

// AnalyzeCapability implements the per-(device, capability) computation
// in : utilization is the share of active-device events whose
// attribute reflects a non-default use of the capability. activeEvents
// must already be filtered to this device; attr/defaultValue identify
// which attribute encodes the capability's default-vs-used distinction
// (e.g. "color_temp" defaulting to the fixture's native white).
func (a *Analyzer) AnalyzeCapability(dc storage.DeviceCapability, cap storage.Capability, activeEvents []events.Event, attr string, defaultValue interface{}) (storage.FeatureUsage, bool) {
	if len(activeEvents) == 0 {
		return storage.FeatureUsage{}, false
	}

	activeCount := 0
	nonDefaultCount := 0
	windowStart := activeEvents[0].Timestamp
	windowEnd := activeEvents[0].Timestamp

	for _, e := range activeEvents {
		if e.Timestamp.Before(windowStart) {
			windowStart = e.Timestamp
		}
		if e.Timestamp.After(windowEnd) {
			windowEnd = e.Timestamp
		}
		activeCount++
		if v, ok := e.Attributes[attr]; ok && v != defaultValue {
			nonDefaultCount++
		}
	}

	utilization := float64(nonDefaultCount) / float64(activeCount)
	fu := storage.FeatureUsage{
		DeviceID:       dc.DeviceID,
		CapabilityName: cap.Name,
		ObservedUsed:   utilization > 0,
		Utilization:    utilization,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
	}
	underutilized := cap.Commandable && !fu.ObservedUsed && activeCount >= a.cfg.DeviceMinActivity
	return fu, underutilized
}

// flaggedUsage pairs a FeatureUsage row with the raw active-event count
// its underutilization call was based on, so RankCandidates can be
// deterministic without recomputing it.
type FlaggedUsage struct {
	Usage       storage.FeatureUsage
	ActiveCount int
}

// RankCandidates applies the rate limit (at most one feature
// suggestion per device per analysis run), keeping, per device, the
// capability with the lowest utilization (the clearest underutilization
// signal). Ties break on capability name for determinism.
func RankCandidates(flagged []FlaggedUsage) []Candidate {
	sorted := make([]FlaggedUsage, len(flagged))
	copy(sorted, flagged)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Usage, sorted[j].Usage
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		if a.Utilization != b.Utilization {
			return a.Utilization < b.Utilization
		}
		return a.CapabilityName < b.CapabilityName
	})

	seenDevice := map[string]bool{}
	out := make([]Candidate, 0, len(sorted))
	for _, f := range sorted {
		if seenDevice[f.Usage.DeviceID] {
			continue
		}
		seenDevice[f.Usage.DeviceID] = true
		out = append(out, Candidate{
			DeviceID:       f.Usage.DeviceID,
			CapabilityName: f.Usage.CapabilityName,
			Utilization:    f.Usage.Utilization,
			ActiveCount:    f.ActiveCount,
		})
	}
	return out
}
