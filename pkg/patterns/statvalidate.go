package patterns

import (
	"github.com/sirupsen/logrus"

	"github.com/wtthornton/homeiq-insight/pkg/shared/mathutil"
)

// StatisticalValidator gates a detector candidate on sample size and
// variance before it is allowed to become a Pattern, a stricter check
// than the bare min_support/confidence_floor floors alone.
type StatisticalValidator struct {
	minSamples int
	log        *logrus.Logger
}

// NewStatisticalValidator wires a validator against the detector's
// min-support floor.
func NewStatisticalValidator(minSamples int, log *logrus.Logger) *StatisticalValidator {
	return &StatisticalValidator{minSamples: minSamples, log: log}
}

// Assumptions is the per-check breakdown backing ValidationResult, so a
// caller can see *which* assumption failed, not just a single bool.
type Assumptions struct {
	SampleSizeAdequate bool
	VarianceNonDegenerate bool
}

// ValidationResult reports whether a candidate's observed rates came from
// a statistically trustworthy sample.
type ValidationResult struct {
	IsValid          bool
	SampleSizeAdequate bool
	DataQualityScore float64
	Assumptions      Assumptions
}

// Validate checks sample size (>= 2x minSamples, a cutoff sitting above
// the bare min_support floor) and that the activation rates are not
// degenerate (all-identical observations tell you nothing about timing).
func (v *StatisticalValidator) Validate(rates []float64) ValidationResult {
	n := len(rates)
	sampleOK := n >= 2*v.minSamples
	varianceOK := mathutil.StdDev(rates) > 0 || n <= 1

	quality := v.dataQuality(rates)
	result := ValidationResult{
		SampleSizeAdequate: sampleOK,
		IsValid:            sampleOK && varianceOK,
		DataQualityScore:   quality,
		Assumptions: Assumptions{
			SampleSizeAdequate:    sampleOK,
			VarianceNonDegenerate: varianceOK,
		},
	}
	if !result.IsValid {
		v.log.WithField("sample_size", n).Debug("pattern candidate failed statistical validation")
	}
	return result
}

// defaultDetectorValidator backs the statistical-validation supplement
// wired into all three detector families below: a candidate's per-bucket
// rate distribution (hour-of-day for time-of-day, partner for
// co-occurrence, signature for anomaly) is checked for sample size and
// variance before the candidate is allowed to become a Pattern.
var defaultDetectorValidator = NewStatisticalValidator(1, logrus.New())

// acceptsStatistically gates a detector candidate's rate distribution
// through the validator. A distribution with fewer than two buckets
// carries no variance information to judge, so it is accepted without
// comment, matching Validate's own n<=1 carve-out for the variance check.
func acceptsStatistically(v *StatisticalValidator, rates []float64) bool {
	if len(rates) < 2 {
		return true
	}
	return v.Validate(rates).IsValid
}

// dataQuality scores 0..1 based on how close the sample size is to a
// comfortable multiple of minSamples, saturating at 1.
func (v *StatisticalValidator) dataQuality(rates []float64) float64 {
	if v.minSamples <= 0 {
		return 1
	}
	ratio := float64(len(rates)) / float64(4*v.minSamples)
	if ratio > 1 {
		return 1
	}
	if ratio < 0 {
		return 0
	}
	return ratio
}
