package pipeline

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"featurenorm/pkg/core"
	"featurenorm/pkg/filter"
	"featurenorm/pkg/norm"
)

func testContext() *Context {
	return &Context{
		Scheme:            core.SchemeLFQ,
		MinAminoAcids:     7,
		MinUniquePeptides: 2,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
		Stats:             &Stats{},
		Sample:            "S1",
	}
}

func TestMapChannels(t *testing.T) {
	ctx := testContext()
	ctx.Scheme = core.SchemeTMT
	ctx.Channels = core.TMT6plex

	rows := []core.FeatureRow{
		{Channel: "TMT126"},
		{Channel: "TMT131"},
		{Channel: "TMT999"},
	}
	out, err := mapChannels(ctx, rows)
	if err != nil {
		t.Fatalf("mapChannels() error = %v", err)
	}
	if out[0].ChannelIndex != 1 || out[1].ChannelIndex != 6 {
		t.Errorf("ChannelIndex = %d, %d, want 1, 6", out[0].ChannelIndex, out[1].ChannelIndex)
	}
	if out[2].ChannelIndex != 0 {
		t.Errorf("unknown channel index = %d, want 0", out[2].ChannelIndex)
	}
}

func TestMapChannelsLabelFree(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{{Channel: "some label"}}
	out, err := mapChannels(ctx, rows)
	if err != nil {
		t.Fatalf("mapChannels() error = %v", err)
	}
	if out[0].Channel != "" {
		t.Errorf("Channel = %q, want cleared for label-free", out[0].Channel)
	}
}

func TestCleanRows(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{
		{ProteinGroup: "sp|P02768|ALBU_HUMAN", PeptideSequence: "PEPTM(Oxidation)IDEK", Unique: true,
			Intensity: 100, Condition: "control", Run: "S1_3"},
		{ProteinGroup: "P1", PeptideSequence: "AADEFGHIK", Unique: false,
			Intensity: 100, Condition: "control", Run: "S1_1"},
		{ProteinGroup: "P1", PeptideSequence: "AADEFGHIK", Unique: true,
			Intensity: 0, Condition: "control", Run: "S1_1"},
		{ProteinGroup: "P1", PeptideSequence: "AADEFGHIK", Unique: true,
			Intensity: -5, Condition: "control", Run: "S1_1"},
		{ProteinGroup: "P1", PeptideSequence: "AADEFGHIK", Unique: true,
			Intensity: 100, Condition: "Empty", Run: "S1_1"},
		{ProteinGroup: "P1", PeptideSequence: "SHORT(mod)", Unique: true,
			Intensity: 100, Condition: "control", Run: "S1_1"},
	}

	out, err := cleanRows(ctx, rows)
	if err != nil {
		t.Fatalf("cleanRows() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("cleanRows() kept %d rows, want 1", len(out))
	}
	r := out[0]
	if r.CanonicalPeptide != "PEPTMIDEK" {
		t.Errorf("CanonicalPeptide = %q, want PEPTMIDEK", r.CanonicalPeptide)
	}
	if r.ProteinGroup != "P02768" {
		t.Errorf("ProteinGroup = %q, want P02768", r.ProteinGroup)
	}
	if r.TechReplicate != 3 {
		t.Errorf("TechReplicate = %d, want 3", r.TechReplicate)
	}
	if r.Fraction != 1 {
		t.Errorf("Fraction = %d, want defaulted 1", r.Fraction)
	}
}

func TestCleanRowsCountsMalformedAccessions(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{
		{ProteinGroup: "bad|acc", PeptideSequence: "AADEFGHIK", Unique: true,
			Intensity: 100, Condition: "control", Run: "S1_1"},
	}
	out, err := cleanRows(ctx, rows)
	if err != nil {
		t.Fatalf("cleanRows() error = %v", err)
	}
	if len(out) != 1 || out[0].ProteinGroup != "bad|acc" {
		t.Fatalf("cleanRows() = %+v, want the row kept verbatim", out)
	}
	if ctx.Stats.MalformedAccessions != 1 {
		t.Errorf("MalformedAccessions = %d, want 1", ctx.Stats.MalformedAccessions)
	}
}

func TestCleanRowsReplicateError(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{
		{ProteinGroup: "P1", PeptideSequence: "AADEFGHIK", Unique: true,
			Intensity: 100, Condition: "control", Run: "badrun"},
	}
	_, err := cleanRows(ctx, rows)
	var parseErr *core.ReplicateParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("cleanRows() error = %v, want *core.ReplicateParseError", err)
	}
}

func TestFilterMinEvidence(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{
		{ProteinGroup: "P1", CanonicalPeptide: "PEPTIDEK"},
		{ProteinGroup: "P1", CanonicalPeptide: "AADEFGHIK"},
		{ProteinGroup: "P1", CanonicalPeptide: "PEPTIDEK"},
		{ProteinGroup: "P2", CanonicalPeptide: "LLMNPQRST"},
		{ProteinGroup: "P2", CanonicalPeptide: "LLMNPQRST"},
	}
	out, err := filterMinEvidence(ctx, rows)
	if err != nil {
		t.Fatalf("filterMinEvidence() error = %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("filterMinEvidence() kept %d rows, want 3", len(out))
	}
	for _, r := range out {
		if r.ProteinGroup != "P1" {
			t.Errorf("kept row for %q, want only P1 to survive", r.ProteinGroup)
		}
	}
}

func TestFilterContaminants(t *testing.T) {
	ctx := testContext()
	cfg, err := filter.NewConfig(true, []string{"Q99999"})
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	ctx.Filters = cfg

	rows := []core.FeatureRow{
		{ProteinGroup: "DECOY_P02768"},
		{ProteinGroup: "CONTAMINANT_P00761"},
		{ProteinGroup: "Q99999"},
		{ProteinGroup: "P02768"},
	}
	out, err := filterContaminants(ctx, rows)
	if err != nil {
		t.Fatalf("filterContaminants() error = %v", err)
	}
	if len(out) != 1 || out[0].ProteinGroup != "P02768" {
		t.Errorf("filterContaminants() = %+v, want only P02768", out)
	}
}

func TestFilterContaminantsDisabled(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{{ProteinGroup: "DECOY_P02768"}}
	out, err := filterContaminants(ctx, rows)
	if err != nil {
		t.Fatalf("filterContaminants() error = %v", err)
	}
	if len(out) != 1 {
		t.Errorf("filterContaminants() dropped rows with no filter configured")
	}
}

func TestNormalizeRunsGating(t *testing.T) {
	rows := []core.FeatureRow{
		{TechReplicate: 1, Intensity: 10},
		{TechReplicate: 2, Intensity: 40},
	}

	ctx := testContext()
	ctx.RunMethod = norm.RunMedian
	ctx.TechReplicates = 1
	out, err := normalizeRuns(ctx, rows)
	if err != nil {
		t.Fatalf("normalizeRuns() error = %v", err)
	}
	if out[0].Intensity != 10 || out[1].Intensity != 40 {
		t.Error("single-replicate experiment should pass through unchanged")
	}

	ctx.TechReplicates = 2
	ctx.SkipNormalization = true
	out, err = normalizeRuns(ctx, rows)
	if err != nil {
		t.Fatalf("normalizeRuns() error = %v", err)
	}
	if out[0].Intensity != 10 || out[1].Intensity != 40 {
		t.Error("skip-normalization should pass through unchanged")
	}

	ctx.SkipNormalization = false
	out, err = normalizeRuns(ctx, rows)
	if err != nil {
		t.Fatalf("normalizeRuns() error = %v", err)
	}
	// Replicate medians 10 and 40 against a reference of 25.
	if math.Abs(out[0].Intensity-25) > 1e-9 || math.Abs(out[1].Intensity-25) > 1e-9 {
		t.Errorf("normalized intensities = %v, %v, want 25, 25", out[0].Intensity, out[1].Intensity)
	}
}

func TestResolvePeptidoforms(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{
		{PeptideSequence: "PEPTIDEK", Charge: 2, SampleID: "S1", Condition: "c", BioReplicate: "1", Intensity: 10, Fraction: 1},
		{PeptideSequence: "PEPTIDEK", Charge: 2, SampleID: "S1", Condition: "c", BioReplicate: "1", Intensity: 30, Fraction: 2},
		{PeptideSequence: "PEPTIDEK", Charge: 2, SampleID: "S1", Condition: "c", BioReplicate: "1", Intensity: 20, Fraction: 3},
		{PeptideSequence: "PEPTIDEK", Charge: 3, SampleID: "S1", Condition: "c", BioReplicate: "1", Intensity: 5, Fraction: 1},
	}
	out, err := resolvePeptidoforms(ctx, rows)
	if err != nil {
		t.Fatalf("resolvePeptidoforms() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("resolvePeptidoforms() kept %d rows, want 2", len(out))
	}
	if out[0].Intensity != 30 {
		t.Errorf("charge-2 group intensity = %v, want the maximum 30", out[0].Intensity)
	}
	if out[1].Intensity != 5 {
		t.Errorf("charge-3 group intensity = %v, want 5", out[1].Intensity)
	}
}

func TestResolvePeptidoformsTie(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{
		{PeptideSequence: "PEPTIDEK", Charge: 2, SampleID: "S1", Condition: "c", BioReplicate: "1", Intensity: 30, Fraction: 1},
		{PeptideSequence: "PEPTIDEK", Charge: 2, SampleID: "S1", Condition: "c", BioReplicate: "1", Intensity: 30, Fraction: 2},
	}
	out, err := resolvePeptidoforms(ctx, rows)
	if err != nil {
		t.Fatalf("resolvePeptidoforms() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("resolvePeptidoforms() kept %d rows, want 1", len(out))
	}
	// Equal intensities keep the earliest row.
	if out[0].Fraction != 1 {
		t.Errorf("tie kept the row from fraction %d, want the first seen", out[0].Fraction)
	}
}

func TestMergeFractions(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{
		{ProteinGroup: "P1", PeptideSequence: "PEPTIDEK", CanonicalPeptide: "PEPTIDEK", Charge: 2,
			Condition: "c", BioReplicate: "1", TechReplicate: 1, SampleID: "S1", Fraction: 1, Intensity: 10},
		{ProteinGroup: "P1", PeptideSequence: "PEPTIDEK", CanonicalPeptide: "PEPTIDEK", Charge: 2,
			Condition: "c", BioReplicate: "1", TechReplicate: 1, SampleID: "S1", Fraction: 2, Intensity: 40},
		{ProteinGroup: "P1", PeptideSequence: "AADEFGHIK", CanonicalPeptide: "AADEFGHIK", Charge: 2,
			Condition: "c", BioReplicate: "1", TechReplicate: 1, SampleID: "S1", Fraction: 1, Intensity: 7},
	}
	out, err := mergeFractions(ctx, rows)
	if err != nil {
		t.Fatalf("mergeFractions() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("mergeFractions() kept %d rows, want 2", len(out))
	}
	if out[0].Intensity != 40 {
		t.Errorf("merged intensity = %v, want the maximum 40 across fractions", out[0].Intensity)
	}
	if out[1].Intensity != 7 {
		t.Errorf("single-fraction feature intensity = %v, want 7", out[1].Intensity)
	}
}

func TestMergeFractionsSingleFraction(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{
		{PeptideSequence: "PEPTIDEK", Fraction: 1, Intensity: 10},
		{PeptideSequence: "AADEFGHIK", Fraction: 1, Intensity: 20},
	}
	out, err := mergeFractions(ctx, rows)
	if err != nil {
		t.Fatalf("mergeFractions() error = %v", err)
	}
	if diff := cmp.Diff(rows, out); diff != "" {
		t.Errorf("single-fraction sample should pass through unchanged (-want +got):\n%s", diff)
	}
}

func TestScaleSamples(t *testing.T) {
	ctx := testContext()
	ctx.MedianMap = &norm.MedianMap{Global: map[string]float64{"S1": 2}}
	rows := []core.FeatureRow{
		{SampleID: "S1", Condition: "c", Intensity: 10},
		{SampleID: "S1", Condition: "c", Intensity: 30},
	}
	out, err := scaleSamples(ctx, rows)
	if err != nil {
		t.Fatalf("scaleSamples() error = %v", err)
	}
	if out[0].Intensity != 5 || out[1].Intensity != 15 {
		t.Errorf("scaled intensities = %v, %v, want 5, 15", out[0].Intensity, out[1].Intensity)
	}
}

func TestScaleSamplesMissingFactor(t *testing.T) {
	ctx := testContext()
	ctx.MedianMap = &norm.MedianMap{Global: map[string]float64{"other": 2}}
	rows := []core.FeatureRow{{SampleID: "S1", Condition: "c", Intensity: 10}}
	if _, err := scaleSamples(ctx, rows); err == nil {
		t.Fatal("scaleSamples() expected error for a sample without a factor")
	}
}

func TestScaleSamplesSkipped(t *testing.T) {
	ctx := testContext()
	ctx.MedianMap = &norm.MedianMap{Global: map[string]float64{"S1": 2}}
	ctx.SkipNormalization = true
	rows := []core.FeatureRow{{SampleID: "S1", Condition: "c", Intensity: 10}}
	out, err := scaleSamples(ctx, rows)
	if err != nil {
		t.Fatalf("scaleSamples() error = %v", err)
	}
	if out[0].Intensity != 10 {
		t.Errorf("intensity = %v, want unchanged 10", out[0].Intensity)
	}
}

func TestDropLowFrequency(t *testing.T) {
	ctx := testContext()
	ctx.SampleCount = 5
	ctx.LowFrequency = filter.LowFrequencySet{
		{Protein: "P02768", Peptide: "PEPTIDEK"}: {},
	}
	rows := []core.FeatureRow{
		{ProteinGroup: "P02768", CanonicalPeptide: "PEPTIDEK"},
		{ProteinGroup: "P02768", CanonicalPeptide: "AADEFGHIK"},
		{ProteinGroup: "P02768;Q99999", CanonicalPeptide: "PEPTIDEK"},
	}
	out, err := dropLowFrequency(ctx, rows)
	if err != nil {
		t.Fatalf("dropLowFrequency() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("dropLowFrequency() kept %d rows, want 2", len(out))
	}
	for _, r := range out {
		if r.ProteinGroup == "P02768" && r.CanonicalPeptide == "PEPTIDEK" {
			t.Error("excluded pair still present")
		}
	}
}

func TestDropLowFrequencySingleSample(t *testing.T) {
	ctx := testContext()
	ctx.SampleCount = 1
	ctx.LowFrequency = filter.LowFrequencySet{
		{Protein: "P02768", Peptide: "PEPTIDEK"}: {},
	}
	rows := []core.FeatureRow{{ProteinGroup: "P02768", CanonicalPeptide: "PEPTIDEK"}}
	out, err := dropLowFrequency(ctx, rows)
	if err != nil {
		t.Fatalf("dropLowFrequency() error = %v", err)
	}
	if len(out) != 1 {
		t.Error("single-sample experiment should never drop low-frequency peptides")
	}
}

func TestSumPeptidoforms(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{
		{ProteinGroup: "P1", CanonicalPeptide: "PEPTIDEK", SampleID: "S1", BioReplicate: "1", Condition: "c", Intensity: 10},
		{ProteinGroup: "P1", CanonicalPeptide: "PEPTIDEK", SampleID: "S1", BioReplicate: "1", Condition: "c", Intensity: 30},
		{ProteinGroup: "P1", CanonicalPeptide: "AADEFGHIK", SampleID: "S1", BioReplicate: "1", Condition: "c", Intensity: 7},
	}
	out, err := sumPeptidoforms(ctx, rows)
	if err != nil {
		t.Fatalf("sumPeptidoforms() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("sumPeptidoforms() produced %d rows, want 2", len(out))
	}
	if out[0].Intensity != 40 {
		t.Errorf("summed intensity = %v, want 40", out[0].Intensity)
	}
	if out[1].Intensity != 7 {
		t.Errorf("single-form intensity = %v, want 7", out[1].Intensity)
	}
}

func TestSumPeptidoformsOrderIndependent(t *testing.T) {
	ctx := testContext()
	rows := []core.FeatureRow{
		{ProteinGroup: "P1", CanonicalPeptide: "PEPTIDEK", SampleID: "S1", BioReplicate: "1", Condition: "c", Intensity: 1.25},
		{ProteinGroup: "P1", CanonicalPeptide: "AADEFGHIK", SampleID: "S1", BioReplicate: "1", Condition: "c", Intensity: 3},
		{ProteinGroup: "P1", CanonicalPeptide: "PEPTIDEK", SampleID: "S1", BioReplicate: "1", Condition: "c", Intensity: 2.5},
		{ProteinGroup: "P1", CanonicalPeptide: "PEPTIDEK", SampleID: "S1", BioReplicate: "1", Condition: "c", Intensity: 4},
	}
	reversed := make([]core.FeatureRow, len(rows))
	for i, r := range rows {
		reversed[len(rows)-1-i] = r
	}

	sums := func(in []core.FeatureRow) map[string]float64 {
		out, err := sumPeptidoforms(ctx, in)
		if err != nil {
			t.Fatalf("sumPeptidoforms() error = %v", err)
		}
		m := make(map[string]float64, len(out))
		for _, r := range out {
			m[r.CanonicalPeptide] = r.Intensity
		}
		return m
	}

	if diff := cmp.Diff(sums(rows), sums(reversed)); diff != "" {
		t.Errorf("summation depends on row order (-forward +reversed):\n%s", diff)
	}
}

func TestLogTransform(t *testing.T) {
	ctx := testContext()
	ctx.Log2 = true
	rows := []core.FeatureRow{{Intensity: 8}}
	out, err := logTransform(ctx, rows)
	if err != nil {
		t.Fatalf("logTransform() error = %v", err)
	}
	if out[0].Intensity != 3 {
		t.Errorf("log2(8) = %v, want 3", out[0].Intensity)
	}

	ctx.Log2 = false
	rows = []core.FeatureRow{{Intensity: 8}}
	out, err = logTransform(ctx, rows)
	if err != nil {
		t.Fatalf("logTransform() error = %v", err)
	}
	if out[0].Intensity != 8 {
		t.Errorf("intensity = %v, want unchanged 8", out[0].Intensity)
	}
}

func TestProcessChainsStages(t *testing.T) {
	pipe := New(Context{
		Scheme:            core.SchemeLFQ,
		MinAminoAcids:     7,
		MinUniquePeptides: 1,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	rows := []core.FeatureRow{
		{ProteinGroup: "sp|P02768|ALBU_HUMAN", PeptideSequence: "PEPTIDEK", Unique: true, Charge: 2,
			SampleID: "S1", Condition: "control", BioReplicate: "1", Run: "S1_1", Intensity: 100},
		{ProteinGroup: "sp|P02768|ALBU_HUMAN", PeptideSequence: "PEPT(Phospho)IDEK", Unique: true, Charge: 2,
			SampleID: "S1", Condition: "control", BioReplicate: "1", Run: "S1_1", Intensity: 300},
		{ProteinGroup: "sp|P02768|ALBU_HUMAN", PeptideSequence: "PEPTIDEK", Unique: false, Charge: 2,
			SampleID: "S1", Condition: "control", BioReplicate: "1", Run: "S1_1", Intensity: 999},
	}
	out, stats, err := pipe.Process("S1", rows)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if stats.MalformedAccessions != 0 {
		t.Errorf("MalformedAccessions = %d, want 0", stats.MalformedAccessions)
	}
	want := []core.PeptideRow{{
		ProteinGroup:        "P02768",
		CanonicalPeptide:    "PEPTIDEK",
		SampleID:            "S1",
		BioReplicate:        "1",
		Condition:           "control",
		NormalizedIntensity: 400,
	}}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("Process() mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessEmptySample(t *testing.T) {
	pipe := New(Context{
		Scheme:            core.SchemeLFQ,
		MinAminoAcids:     7,
		MinUniquePeptides: 2,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	out, _, err := pipe.Process("S1", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Process() = %d rows for an empty sample, want 0", len(out))
	}
}
