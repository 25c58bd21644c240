package synergy

import (
	"sort"
	"time"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/shared/mathutil"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// ContextSignal is a boolean-valued external context reading (rain
// state, peak-tariff state, media-playing state) at a point in time, read
// via the event source adapter's specialized WeatherTaggedEvents path.
type ContextSignal struct {
	Name   string
	Active bool
	At     time.Time
}

// contextAttributeKeys maps the attribute name the event source adapter's weather-tagged feed
// carries to the synergy type it feeds's three named
// context variables.
var contextAttributeKeys = map[string]storage.SynergyType{
	"rain":          storage.SynergyTypeWeatherContext,
	"peak_tariff":   storage.SynergyTypeEnergyContext,
	"media_playing": storage.SynergyTypeEventContext,
}

// ExtractContextSignals pulls one ContextSignal series per known
// attribute key out of the weather-tagged event feed.
func ExtractContextSignals(weatherEvents []events.Event) map[string][]ContextSignal {
	out := map[string][]ContextSignal{}
	for _, e := range weatherEvents {
		for attr := range contextAttributeKeys {
			raw, ok := e.Attributes[attr]
			if !ok {
				continue
			}
			active, ok := raw.(bool)
			if !ok {
				continue
			}
			out[attr] = append(out[attr], ContextSignal{Name: attr, Active: active, At: e.Timestamp})
		}
	}
	for attr := range out {
		sort.Slice(out[attr], func(i, j int) bool { return out[attr][i].At.Before(out[attr][j].At) })
	}
	return out
}

// contextAt returns whether the named context was active at the most
// recent signal reading at or before t. Defaults to inactive if no
// reading precedes t.
func contextAt(signals []ContextSignal, t time.Time) bool {
	active := false
	for _, s := range signals {
		if s.At.After(t) {
			break
		}
		active = s.Active
	}
	return active
}

// DetectContextSynergies derives context synergies: for each entity's
// activation events, builds a 2x2 contingency table of (context
// active/inactive) vs (activation happened/did not relative to its own
// baseline rate) and accepts the synergy when the chi-square statistic
// clears the p<0.01 critical value AND the effect size (Cramér's V)
// clears the configured floor.
func DetectContextSynergies(slice []events.Event, signalsByAttr map[string][]ContextSignal, cfg Config) []storage.Synergy {
	var out []storage.Synergy

	perEntity := map[string][]events.Event{}
	for _, e := range slice {
		if e.Valid() && e.NewState == "on" {
			perEntity[e.EntityID] = append(perEntity[e.EntityID], e)
		}
	}

	for attr, signals := range signalsByAttr {
		if len(signals) == 0 {
			continue
		}
		synergyType := contextAttributeKeys[attr]
		activeFraction := fractionActive(signals)
		if activeFraction <= 0 || activeFraction >= 1 {
			continue
		}

		for entity, evs := range perEntity {
			total := len(evs)
			if total == 0 {
				continue
			}
			activeHits := 0
			for _, e := range evs {
				if contextAt(signals, e.Timestamp) {
					activeHits++
				}
			}
			observed := []float64{float64(activeHits), float64(total - activeHits)}
			expected := []float64{float64(total) * activeFraction, float64(total) * (1 - activeFraction)}
			chi2 := mathutil.ChiSquareStatistic(observed, expected)
			if chi2 < cfg.PValueChiCritical {
				continue
			}
			effect := mathutil.CramersV(chi2, float64(total), 1)
			if effect < cfg.EffectSizeFloor {
				continue
			}

			observedRate := float64(activeHits) / float64(total)
			out = append(out, storage.Synergy{
				Type:                synergyType,
				Depth:               2,
				Chain:               []string{entity, "context:" + attr},
				Impact:              clamp01(effect),
				Confidence:          clamp01(observedRate),
				Complexity:          storage.ComplexityMedium,
				PatternSupport:      supportScore(total),
				ValidatedByPatterns: false,
			})
		}
	}
	return out
}

func fractionActive(signals []ContextSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	active := 0
	for _, s := range signals {
		if s.Active {
			active++
		}
	}
	return float64(active) / float64(len(signals))
}
