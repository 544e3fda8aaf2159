package pipeline

import (
	"fmt"
	"math"

	"featurenorm/pkg/core"
	"featurenorm/pkg/norm"
)

// mapChannels rewrites the reporter-channel token to the scheme's 1-based
// index. Label-free data carries no meaningful channel, so the token is
// cleared instead.
func mapChannels(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error) {
	if ctx.Scheme == core.SchemeLFQ {
		for i := range rows {
			rows[i].Channel = ""
		}
		return rows, nil
	}
	for i := range rows {
		rows[i].ChannelIndex = ctx.Channels[rows[i].Channel]
	}
	return rows, nil
}

// cleanRows applies the row admission rules: only unique peptides with
// strictly positive intensity and a real condition survive, canonical
// sequences must reach the minimum length, accessions are normalized, and
// the fraction and technical-replicate fields are derived.
func cleanRows(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error) {
	kept := make([]core.FeatureRow, 0, len(rows))
	for _, r := range rows {
		if !r.Unique || r.Intensity <= 0 || r.Condition == core.EmptyCondition {
			continue
		}
		r.CanonicalPeptide = core.CanonicalPeptide(r.PeptideSequence)
		if len(r.CanonicalPeptide) < ctx.MinAminoAcids {
			continue
		}
		group, malformed := core.ParseProteinGroup(r.ProteinGroup)
		if malformed > 0 {
			ctx.Stats.MalformedAccessions += malformed
			ctx.Logger.Warn("unparseable accession kept verbatim",
				"sample", ctx.Sample, "group", r.ProteinGroup)
		}
		r.ProteinGroup = group
		if r.Fraction == 0 {
			r.Fraction = 1
		}
		rep, err := core.TechReplicate(r.Run)
		if err != nil {
			return nil, err
		}
		r.TechReplicate = rep
		kept = append(kept, r)
	}
	return kept, nil
}

// filterMinEvidence drops whole protein groups backed by fewer distinct
// canonical peptides than the configured minimum within this sample.
func filterMinEvidence(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error) {
	peptides := make(map[string]map[string]struct{})
	for _, r := range rows {
		set := peptides[r.ProteinGroup]
		if set == nil {
			set = make(map[string]struct{})
			peptides[r.ProteinGroup] = set
		}
		set[r.CanonicalPeptide] = struct{}{}
	}
	kept := make([]core.FeatureRow, 0, len(rows))
	for _, r := range rows {
		if len(peptides[r.ProteinGroup]) >= ctx.MinUniquePeptides {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// filterContaminants removes contaminant, entrapment, and decoy groups plus
// anything on the user's exclusion list.
func filterContaminants(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error) {
	if ctx.Filters == nil || !ctx.Filters.Active() {
		return rows, nil
	}
	kept := make([]core.FeatureRow, 0, len(rows))
	for _, r := range rows {
		if ctx.Filters.Excluded(r.ProteinGroup) {
			continue
		}
		kept = append(kept, r)
	}
	return kept, nil
}

// normalizeRuns equalizes the chosen statistic across the sample's technical
// replicates. A single-replicate experiment or a disabled method passes
// through unchanged.
func normalizeRuns(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error) {
	if ctx.SkipNormalization || ctx.RunMethod == norm.RunNone || ctx.TechReplicates <= 1 {
		return rows, nil
	}
	return norm.NormalizeRuns(rows, ctx.RunMethod), nil
}

// resolvePeptidoforms keeps, per (sequence, charge, sample, condition,
// replicate) group, the single row with the highest intensity. Ties keep the
// earliest row so results do not depend on iteration order.
func resolvePeptidoforms(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error) {
	type key struct {
		sequence  string
		charge    int
		sample    string
		condition string
		bio       string
	}
	best := make(map[key]int, len(rows))
	order := make([]key, 0, len(rows))
	for i, r := range rows {
		k := key{r.PeptideSequence, r.Charge, r.SampleID, r.Condition, r.BioReplicate}
		j, seen := best[k]
		if !seen {
			best[k] = i
			order = append(order, k)
			continue
		}
		if r.Intensity > rows[j].Intensity {
			best[k] = i
		}
	}
	kept := make([]core.FeatureRow, 0, len(order))
	for _, k := range order {
		kept = append(kept, rows[best[k]])
	}
	return kept, nil
}

// mergeFractions collapses multi-fraction samples to one row per feature,
// keeping the maximum intensity across fractions. Single-fraction samples
// pass through untouched.
func mergeFractions(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error) {
	fractions := make(map[int]struct{})
	for _, r := range rows {
		fractions[r.Fraction] = struct{}{}
	}
	if len(fractions) <= 1 {
		return rows, nil
	}

	type key struct {
		group     string
		sequence  string
		canonical string
		charge    int
		condition string
		bio       string
		tech      int
		sample    string
	}
	best := make(map[key]int, len(rows))
	order := make([]key, 0, len(rows))
	for i, r := range rows {
		k := key{r.ProteinGroup, r.PeptideSequence, r.CanonicalPeptide, r.Charge,
			r.Condition, r.BioReplicate, r.TechReplicate, r.SampleID}
		j, seen := best[k]
		if !seen {
			best[k] = i
			order = append(order, k)
			continue
		}
		if r.Intensity > rows[j].Intensity {
			best[k] = i
		}
	}
	kept := make([]core.FeatureRow, 0, len(order))
	for _, k := range order {
		kept = append(kept, rows[best[k]])
	}
	return kept, nil
}

// scaleSamples divides every intensity by the sample's precomputed median
// factor, bringing all samples onto a common scale.
func scaleSamples(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error) {
	if ctx.SkipNormalization || ctx.MedianMap == nil || len(rows) == 0 {
		return rows, nil
	}
	// Condition-grouped maps are keyed by the sample's study condition;
	// every row of a sample carries the same one.
	factor, ok := ctx.MedianMap.Factor(rows[0].Condition, ctx.Sample)
	if !ok {
		return nil, fmt.Errorf("no median factor for sample %s", ctx.Sample)
	}
	if factor == 0 {
		return nil, fmt.Errorf("zero median factor for sample %s", ctx.Sample)
	}
	for i := range rows {
		rows[i].Intensity /= factor
	}
	return rows, nil
}

// dropLowFrequency removes peptide pairs seen in too few samples across the
// experiment. Meaningless for single-sample experiments.
func dropLowFrequency(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error) {
	if len(ctx.LowFrequency) == 0 || ctx.SampleCount <= 1 {
		return rows, nil
	}
	kept := make([]core.FeatureRow, 0, len(rows))
	for _, r := range rows {
		if ctx.LowFrequency.Contains(r.ProteinGroup, r.CanonicalPeptide) {
			continue
		}
		kept = append(kept, r)
	}
	return kept, nil
}

// sumPeptidoforms collapses peptidoforms into canonical peptides, summing all
// contributing intensities. One row per output key survives, in first-seen
// order.
func sumPeptidoforms(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error) {
	type key struct {
		group     string
		canonical string
		sample    string
		bio       string
		condition string
	}
	sums := make(map[key]float64, len(rows))
	first := make(map[key]core.FeatureRow, len(rows))
	order := make([]key, 0, len(rows))
	for _, r := range rows {
		k := key{r.ProteinGroup, r.CanonicalPeptide, r.SampleID, r.BioReplicate, r.Condition}
		if _, seen := sums[k]; !seen {
			order = append(order, k)
			first[k] = r
		}
		sums[k] += r.Intensity
	}
	out := make([]core.FeatureRow, 0, len(order))
	for _, k := range order {
		r := first[k]
		r.Intensity = sums[k]
		out = append(out, r)
	}
	return out, nil
}

// logTransform replaces intensities with their base-2 logarithm.
func logTransform(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error) {
	if !ctx.Log2 {
		return rows, nil
	}
	for i := range rows {
		rows[i].Intensity = math.Log2(rows[i].Intensity)
	}
	return rows, nil
}
