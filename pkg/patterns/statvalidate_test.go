package patterns

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestValidator(minSamples int) *StatisticalValidator {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewStatisticalValidator(minSamples, log)
}

func TestStatisticalValidator_RejectsSmallSample(t *testing.T) {
	v := newTestValidator(5)
	result := v.Validate([]float64{0.2, 0.3})
	require.False(t, result.IsValid)
	require.False(t, result.SampleSizeAdequate)
}

func TestStatisticalValidator_RejectsDegenerateVariance(t *testing.T) {
	v := newTestValidator(2)
	rates := make([]float64, 10)
	for i := range rates {
		rates[i] = 0.5
	}
	result := v.Validate(rates)
	require.True(t, result.SampleSizeAdequate)
	require.False(t, result.Assumptions.VarianceNonDegenerate)
	require.False(t, result.IsValid)
}

func TestStatisticalValidator_AcceptsAdequateVariedSample(t *testing.T) {
	v := newTestValidator(2)
	rates := []float64{0.1, 0.5, 0.3, 0.8, 0.2, 0.6, 0.4, 0.9}
	result := v.Validate(rates)
	require.True(t, result.IsValid)
	require.Greater(t, result.DataQualityScore, 0.0)
}

func TestStatisticalValidator_DataQualitySaturatesAtOne(t *testing.T) {
	v := newTestValidator(1)
	rates := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	result := v.Validate(rates)
	require.Equal(t, 1.0, result.DataQualityScore)
}
