package norm

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		name string
		xs   []float64
		want float64
	}{
		{"odd count", []float64{3, 1, 2}, 2},
		{"even count interpolates", []float64{1, 2, 3, 4}, 2.5},
		{"single value", []float64{7}, 7},
		{"unsorted input", []float64{10, 2, 8, 4}, 6},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Median(tt.xs); got != tt.want {
				t.Errorf("Median(%v) = %v, want %v", tt.xs, got, tt.want)
			}
		})
	}
}

func TestMedianLeavesInputUnsorted(t *testing.T) {
	xs := []float64{3, 1, 2}
	Median(xs)
	if diff := cmp.Diff([]float64{3, 1, 2}, xs); diff != "" {
		t.Errorf("Median mutated its input (-want +got):\n%s", diff)
	}
}

func TestIQR(t *testing.T) {
	xs := []float64{5, 1, 3, 2, 4}
	got := IQR(xs)
	if got <= 0 {
		t.Errorf("IQR(%v) = %v, want a positive spread", xs, got)
	}
	// Shifting every value leaves the spread unchanged.
	shifted := make([]float64, len(xs))
	for i, x := range xs {
		shifted[i] = x + 100
	}
	if s := IQR(shifted); math.Abs(s-got) > 1e-12 {
		t.Errorf("IQR shift invariance violated: %v vs %v", got, s)
	}
	// Scaling every value scales the spread.
	scaled := make([]float64, len(xs))
	for i, x := range xs {
		scaled[i] = x * 3
	}
	if s := IQR(scaled); math.Abs(s-3*got) > 1e-12 {
		t.Errorf("IQR scale equivariance violated: %v vs %v", got, s)
	}
}

func TestGlobalFactors(t *testing.T) {
	medians := map[string]float64{
		"S1": 100,
		"S2": 200,
		"S3": 400,
	}
	factors := globalFactors(medians)
	// Reference is median(100, 200, 400) = 200.
	want := map[string]float64{"S1": 0.5, "S2": 1, "S3": 2}
	if diff := cmp.Diff(want, factors); diff != "" {
		t.Errorf("globalFactors mismatch (-want +got):\n%s", diff)
	}
	// Round trip: dividing each sample median by its factor recovers the
	// reference median for every sample.
	for sample, m := range medians {
		if got := m / factors[sample]; math.Abs(got-200) > 1e-9 {
			t.Errorf("scaled median for %s = %v, want 200", sample, got)
		}
	}
}

func TestConditionFactors(t *testing.T) {
	medians := map[string]float64{
		"S1": 100,
		"S2": 300,
	}
	factors := conditionFactors(medians)
	// Reference is mean(100, 300) = 200.
	want := map[string]float64{"S1": 0.5, "S2": 1.5}
	if diff := cmp.Diff(want, factors); diff != "" {
		t.Errorf("conditionFactors mismatch (-want +got):\n%s", diff)
	}
}

func TestFactorsDegenerate(t *testing.T) {
	factors := globalFactors(map[string]float64{"S1": 0, "S2": 0})
	for sample, f := range factors {
		if f != 1 {
			t.Errorf("factor for %s = %v, want 1 for an all-zero reference", sample, f)
		}
	}
}

func TestMedianMapFactor(t *testing.T) {
	global := &MedianMap{Global: map[string]float64{"S1": 0.5}}
	if f, ok := global.Factor("ignored", "S1"); !ok || f != 0.5 {
		t.Errorf("global Factor(S1) = (%v, %v), want (0.5, true)", f, ok)
	}
	if _, ok := global.Factor("ignored", "S9"); ok {
		t.Error("global Factor(S9) = ok for an unknown sample")
	}

	byCondition := &MedianMap{Condition: map[string]map[string]float64{
		"control": {"S1": 1.5},
	}}
	if f, ok := byCondition.Factor("control", "S1"); !ok || f != 1.5 {
		t.Errorf("condition Factor(control, S1) = (%v, %v), want (1.5, true)", f, ok)
	}
	if _, ok := byCondition.Factor("disease", "S1"); ok {
		t.Error("condition Factor(disease, S1) = ok for an unknown condition")
	}
}

func TestParseSampleMethod(t *testing.T) {
	if _, err := ParseSampleMethod("globalMedian"); err != nil {
		t.Errorf("ParseSampleMethod(globalMedian) error = %v", err)
	}
	if _, err := ParseSampleMethod("conditionMedian"); err != nil {
		t.Errorf("ParseSampleMethod(conditionMedian) error = %v", err)
	}
	if _, err := ParseSampleMethod("quantile"); err == nil {
		t.Error("ParseSampleMethod(quantile) expected error")
	}
}
