package norm

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"featurenorm/pkg/core"
)

// RunMethod selects the statistic equalized across technical replicates
// within one sample.
type RunMethod string

const (
	RunMean   RunMethod = "mean"
	RunMedian RunMethod = "median"
	RunIQR    RunMethod = "iqr"
	// RunNone disables run-level normalization.
	RunNone RunMethod = "none"
)

// ParseRunMethod validates a run normalization method name.
func ParseRunMethod(s string) (RunMethod, error) {
	switch RunMethod(s) {
	case RunMean, RunMedian, RunIQR, RunNone:
		return RunMethod(s), nil
	}
	return "", fmt.Errorf("unknown run normalization method %q (supported: %s, %s, %s, %s)",
		s, RunMean, RunMedian, RunIQR, RunNone)
}

// NormalizeRuns scales each technical replicate's intensities so the chosen
// statistic is equal across the sample's replicates: every replicate is
// divided by stat(replicate)/mean(stats). Rows are copied; the input slice is
// left untouched.
func NormalizeRuns(rows []core.FeatureRow, method RunMethod) []core.FeatureRow {
	if method == RunNone || len(rows) == 0 {
		return rows
	}

	values := make(map[int][]float64)
	for _, r := range rows {
		values[r.TechReplicate] = append(values[r.TechReplicate], r.Intensity)
	}
	if len(values) < 2 {
		return rows
	}

	stats := make(map[int]float64, len(values))
	all := make([]float64, 0, len(values))
	for rep, v := range values {
		stats[rep] = runStat(v, method)
		all = append(all, stats[rep])
	}
	ref := stat.Mean(all, nil)
	if ref == 0 {
		return rows
	}

	out := make([]core.FeatureRow, len(rows))
	copy(out, rows)
	for i := range out {
		factor := stats[out[i].TechReplicate] / ref
		if factor == 0 {
			continue
		}
		out[i].Intensity /= factor
	}
	return out
}

func runStat(values []float64, method RunMethod) float64 {
	switch method {
	case RunMean:
		return stat.Mean(values, nil)
	case RunIQR:
		return IQR(values)
	default:
		return Median(values)
	}
}
