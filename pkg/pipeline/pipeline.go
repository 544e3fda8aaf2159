// Package pipeline implements the per-sample normalization chain and the
// orchestration that streams sample batches through it.
package pipeline

import (
	"fmt"
	"log/slog"

	"featurenorm/pkg/core"
	"featurenorm/pkg/filter"
	"featurenorm/pkg/norm"
)

// Context carries the run-wide inputs every stage may consult. One Context is
// built per run; per-sample state lives in the copy Process works on.
type Context struct {
	Scheme            core.Scheme
	Channels          map[string]int
	MinAminoAcids     int
	MinUniquePeptides int
	TechReplicates    int // distinct-run count for the experiment
	SampleCount       int
	RunMethod         norm.RunMethod
	SkipNormalization bool
	Filters           *filter.Config         // nil disables contaminant filtering
	LowFrequency      filter.LowFrequencySet // nil disables low-frequency exclusion
	MedianMap         *norm.MedianMap        // nil disables cross-sample scaling
	Log2              bool
	Logger            *slog.Logger

	// Per-sample state, set by Process.
	Sample string
	Stats  *Stats
}

// Stats counts per-sample observations surfaced in the run log.
type Stats struct {
	MalformedAccessions int
}

// A StageFunc transforms one sample's rows. Stages run in a fixed order and
// each one's output feeds the next.
type StageFunc func(ctx *Context, rows []core.FeatureRow) ([]core.FeatureRow, error)

type stage struct {
	name string
	fn   StageFunc
}

// Pipeline is the ordered per-sample transform chain.
type Pipeline struct {
	ctx    Context
	stages []stage
}

// New assembles the full transform chain for the given context. The order is
// load-bearing: reordering stages changes numerical results.
func New(ctx Context) *Pipeline {
	if ctx.Logger == nil {
		ctx.Logger = slog.Default()
	}
	return &Pipeline{
		ctx: ctx,
		stages: []stage{
			{"map_channels", mapChannels},
			{"clean_rows", cleanRows},
			{"min_evidence", filterMinEvidence},
			{"contaminants", filterContaminants},
			{"normalize_runs", normalizeRuns},
			{"resolve_peptidoforms", resolvePeptidoforms},
			{"merge_fractions", mergeFractions},
			{"scale_samples", scaleSamples},
			{"low_frequency", dropLowFrequency},
			{"sum_peptidoforms", sumPeptidoforms},
			{"log_transform", logTransform},
		},
	}
}

// Process runs one sample's rows through every stage and returns the final
// peptide rows in deterministic order.
func (p *Pipeline) Process(sample string, rows []core.FeatureRow) ([]core.PeptideRow, Stats, error) {
	var stats Stats
	ctx := p.ctx
	ctx.Sample = sample
	ctx.Stats = &stats

	for _, st := range p.stages {
		var err error
		rows, err = st.fn(&ctx, rows)
		if err != nil {
			return nil, stats, fmt.Errorf("sample %s: %s: %w", sample, st.name, err)
		}
		ctx.Logger.Debug("stage complete", "sample", sample, "stage", st.name, "rows", len(rows))
	}

	out := make([]core.PeptideRow, len(rows))
	for i, r := range rows {
		out[i] = core.PeptideRow{
			ProteinGroup:        r.ProteinGroup,
			CanonicalPeptide:    r.CanonicalPeptide,
			SampleID:            r.SampleID,
			BioReplicate:        r.BioReplicate,
			Condition:           r.Condition,
			NormalizedIntensity: r.Intensity,
		}
	}
	return out, stats, nil
}
