// Package norm computes the scale factors that bring feature intensities
// onto a common scale: per-sample median factors across the whole dataset and
// per-run factors across technical replicates.
package norm

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"featurenorm/pkg/store"
)

// medianBatchSize is the number of samples (or conditions) pulled per query
// while accumulating medians. Narrow two-column batches stay cheap even at
// this width.
const medianBatchSize = 1000

// SampleMethod selects how cross-sample scale factors are computed.
type SampleMethod string

const (
	// SampleGlobalMedian centers every sample's median on the median of all
	// sample medians.
	SampleGlobalMedian SampleMethod = "globalMedian"
	// SampleConditionMedian centers sample medians on the mean within each
	// study condition instead.
	SampleConditionMedian SampleMethod = "conditionMedian"
)

// ParseSampleMethod validates a sample normalization method name.
func ParseSampleMethod(s string) (SampleMethod, error) {
	switch SampleMethod(s) {
	case SampleGlobalMedian, SampleConditionMedian:
		return SampleMethod(s), nil
	}
	return "", fmt.Errorf("unknown sample normalization method %q (supported: %s, %s)",
		s, SampleGlobalMedian, SampleConditionMedian)
}

// MedianMap holds per-sample scale factors, grouped by condition when built
// with SampleConditionMedian.
type MedianMap struct {
	Global    map[string]float64
	Condition map[string]map[string]float64
}

// Factor returns the scale factor for a sample. The condition is consulted
// only for condition-grouped maps.
func (m *MedianMap) Factor(condition, sample string) (float64, bool) {
	if m.Condition != nil {
		samples, ok := m.Condition[condition]
		if !ok {
			return 0, false
		}
		f, ok := samples[sample]
		return f, ok
	}
	f, ok := m.Global[sample]
	return f, ok
}

// BuildMedianMap streams the store once and returns the scale factors for the
// requested method.
func BuildMedianMap(s *store.Store, method SampleMethod) (*MedianMap, error) {
	if method == SampleConditionMedian {
		return conditionMedianMap(s)
	}
	return globalMedianMap(s)
}

// globalMedianMap accumulates one median per sample, batch by batch. Batches
// cover whole samples, so each sample's median is computed exactly once and
// the raw values can be discarded with the batch.
func globalMedianMap(s *store.Store) (*MedianMap, error) {
	medians := make(map[string]float64)
	it := s.IntensitiesBySample(medianBatchSize)
	for it.Next() {
		for sample, values := range groupBySample(it.Batch().Rows) {
			medians[sample] = Median(values)
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("building global median map: %w", err)
	}
	return &MedianMap{Global: globalFactors(medians)}, nil
}

// conditionMedianMap accumulates per-sample medians within each study
// condition. Batches cover whole conditions, so a condition's samples are
// complete within one batch.
func conditionMedianMap(s *store.Store) (*MedianMap, error) {
	factors := make(map[string]map[string]float64)
	it := s.IntensitiesByCondition(medianBatchSize)
	for it.Next() {
		batch := it.Batch()
		perCondition := make(map[string]map[string][]float64)
		for _, r := range batch.Rows {
			samples := perCondition[r.Condition]
			if samples == nil {
				samples = make(map[string][]float64)
				perCondition[r.Condition] = samples
			}
			samples[r.SampleID] = append(samples[r.SampleID], r.Intensity)
		}
		for condition, samples := range perCondition {
			medians := make(map[string]float64, len(samples))
			for sample, values := range samples {
				medians[sample] = Median(values)
			}
			factors[condition] = conditionFactors(medians)
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("building condition median map: %w", err)
	}
	return &MedianMap{Condition: factors}, nil
}

// globalFactors divides each sample median by the median of all sample
// medians, yielding factors centered at 1.
func globalFactors(medians map[string]float64) map[string]float64 {
	all := make([]float64, 0, len(medians))
	for _, m := range medians {
		all = append(all, m)
	}
	ref := Median(all)
	factors := make(map[string]float64, len(medians))
	for sample, m := range medians {
		factors[sample] = safeDivide(m, ref)
	}
	return factors
}

// conditionFactors divides each sample median by the mean of the medians in
// the condition.
func conditionFactors(medians map[string]float64) map[string]float64 {
	all := make([]float64, 0, len(medians))
	for _, m := range medians {
		all = append(all, m)
	}
	ref := stat.Mean(all, nil)
	factors := make(map[string]float64, len(medians))
	for sample, m := range medians {
		factors[sample] = safeDivide(m, ref)
	}
	return factors
}

func groupBySample(rows []store.IntensityRow) map[string][]float64 {
	values := make(map[string][]float64)
	for _, r := range rows {
		values[r.SampleID] = append(values[r.SampleID], r.Intensity)
	}
	return values
}

// safeDivide keeps a degenerate reference (all-zero medians) from poisoning
// the map with NaN or Inf.
func safeDivide(v, ref float64) float64 {
	if ref == 0 {
		return 1
	}
	return v / ref
}

// Median returns the middle value of xs, averaging the two central values
// for even counts. It returns 0 for an empty slice.
func Median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := make([]float64, len(xs))
	copy(s, xs)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// IQR returns the interquartile range of xs.
func IQR(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := make([]float64, len(xs))
	copy(s, xs)
	sort.Float64s(s)
	return stat.Quantile(0.75, stat.Empirical, s, nil) - stat.Quantile(0.25, stat.Empirical, s, nil)
}
