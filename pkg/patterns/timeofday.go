package patterns

import (
	"context"
	"sort"

	"github.com/wtthornton/homeiq-insight/pkg/events"
	"github.com/wtthornton/homeiq-insight/pkg/shared/mathutil"
	"github.com/wtthornton/homeiq-insight/pkg/storage"
)

// TimeOfDayDetector bins each entity's activation events by hour of day
// and weekday, fusing adjacent hour bins that clear the confidence floor
// together
type TimeOfDayDetector struct{}

func (TimeOfDayDetector) Name() string { return "time_of_day" }

type hourBin struct {
	hour        int
	weekdayMask uint8
	count       int
}

// Detect groups activation events (new_state "on") per entity per hour,
// computes an empirical-Bayes-shrunk confidence for each hour bin, and
// fuses adjacent bins that both clear the confidence floor into a single
// wider window so "6-7am" collapses to one pattern instead of two.
func (TimeOfDayDetector) Detect(_ context.Context, slice []events.Event, cfg Config) ([]Candidate, error) {
	perEntityTotal := map[string]int{}
	perEntityHour := map[string]map[int]*hourBin{}

	for _, e := range slice {
		if !e.Valid() || e.NewState != "on" {
			continue
		}
		hour := e.Timestamp.Hour()
		weekday := uint8(e.Timestamp.Weekday())

		perEntityTotal[e.EntityID]++
		bins, ok := perEntityHour[e.EntityID]
		if !ok {
			bins = map[int]*hourBin{}
			perEntityHour[e.EntityID] = bins
		}
		b, ok := bins[hour]
		if !ok {
			b = &hourBin{hour: hour}
			bins[hour] = b
		}
		b.count++
		b.weekdayMask |= 1 << weekday
	}

	var out []Candidate
	for entity, bins := range perEntityHour {
		total := perEntityTotal[entity]
		if total == 0 {
			continue
		}

		// Statistical validation: the
		// entity's full 24-bucket hour distribution must show adequate
		// sample size and non-degenerate variance before any of its bins
		// are trusted as a time-of-day pattern.
		distribution := make([]float64, 24)
		for h, b := range bins {
			distribution[h] = float64(b.count) / float64(total)
		}
		if !acceptsStatistically(defaultDetectorValidator, distribution) {
			continue
		}
		cv := crossValidate(distribution)

		hours := make([]int, 0, len(bins))
		for h := range bins {
			hours = append(hours, h)
		}
		sort.Ints(hours)

		consumed := map[int]bool{}
		for _, h := range hours {
			if consumed[h] {
				continue
			}
			b := bins[h]
			if b.count < cfg.MinSupport {
				continue
			}
			conf := confidenceForBin(b.count, total, cfg)
			if conf < cfg.ConfidenceFloor {
				continue
			}

			width := 1
			mask := b.weekdayMask
			occ := b.count
			next := (h + 1) % 24
			if nb, ok := bins[next]; ok && !consumed[next] {
				nextConf := confidenceForBin(nb.count, total, cfg)
				if nb.count >= cfg.MinSupport && nextConf >= cfg.ConfidenceFloor {
					width = 2
					mask |= nb.weekdayMask
					occ += nb.count
					consumed[next] = true
				}
			}
			consumed[h] = true

			out = append(out, Candidate{
				Kind:   storage.PatternKindTimeOfDay,
				Anchor: entity,
				Metadata: storage.PatternMetadata{
					TimeOfDay: &storage.TimeOfDayMetadata{
						Hour:        h,
						WeekdayMask: mask,
						WindowWidth: width,
					},
					CrossValidation: cv,
				},
				Confidence:  shrinkByCrossValidation(confidenceForBin(occ, total, cfg), cv),
				Occurrences: occ,
			})
		}
	}
	return CrossValidate(out), nil
}

// uniformHourPrior is the no-information baseline rate for "activation
// happened in this specific hour": 1 in 24.
const uniformHourPrior = 1.0 / 24.0

func confidenceForBin(hits, total int, cfg Config) float64 {
	if total == 0 {
		return 0
	}
	rate := float64(hits) / float64(total)
	return mathutil.EmpiricalBayesShrink(rate, hits, uniformHourPrior, cfg.EmpiricalBayesWeight)
}
