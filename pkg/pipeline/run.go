package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"featurenorm/pkg/core"
	"featurenorm/pkg/filter"
	"featurenorm/pkg/norm"
	"featurenorm/pkg/reader/sdrf"
	"featurenorm/pkg/store"
	"featurenorm/pkg/writer/parquet"
	"featurenorm/pkg/writer/peptides"
)

// DefaultBatchSize is the number of samples fetched per query when the caller
// does not choose one.
const DefaultBatchSize = 20

// OutputExistsError reports a destination artifact that already exists. The
// output is append-only within a single run and never overwritten.
type OutputExistsError struct {
	Path string
}

func (e *OutputExistsError) Error() string {
	return fmt.Sprintf("output %s already exists", e.Path)
}

// InputNotFoundError reports a missing source dataset path.
type InputNotFoundError struct {
	Path string
}

func (e *InputNotFoundError) Error() string {
	if e.Path == "" {
		return "no input dataset given"
	}
	return fmt.Sprintf("input dataset %s does not exist", e.Path)
}

// Options configures a full normalization run.
type Options struct {
	InputPath  string // feature store (parquet or SQLite)
	SDRFPath   string // optional design metadata; inferred from the store when empty
	OutputPath string // destination peptide table, must not exist

	MinAminoAcids     int
	MinUniquePeptides int
	RunMethod         norm.RunMethod
	SampleMethod      norm.SampleMethod
	SkipNormalization bool

	RemoveContaminants bool
	ExclusionIDFile    string
	RemoveLowFrequency bool

	Log2        bool
	BatchSize   int
	SaveParquet bool

	Logger *slog.Logger
}

// design is the resolved experiment description the run works from.
type design struct {
	scheme         core.Scheme
	channels       map[string]int
	samples        []string
	techReplicates int
}

// Run executes a whole normalization: resolve the experimental design, build
// the run-wide maps, then stream sample batches through the pipeline,
// appending each sample's peptide rows to the output.
func Run(opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	if _, err := os.Stat(opts.OutputPath); err == nil {
		return &OutputExistsError{Path: opts.OutputPath}
	}
	if opts.InputPath == "" {
		return &InputNotFoundError{}
	}

	st, err := store.Open(opts.InputPath)
	if err != nil {
		return err
	}
	defer st.Close()

	des, err := resolveDesign(st, opts.SDRFPath)
	if err != nil {
		return err
	}
	logger.Info("experimental design resolved",
		"scheme", des.scheme,
		"samples", len(des.samples),
		"technical_replicates", des.techReplicates)

	var filters *filter.Config
	if opts.RemoveContaminants || opts.ExclusionIDFile != "" {
		var ids []string
		if opts.ExclusionIDFile != "" {
			if ids, err = filter.LoadExclusionIDs(opts.ExclusionIDFile); err != nil {
				return err
			}
		}
		if filters, err = filter.NewConfig(opts.RemoveContaminants, ids); err != nil {
			return err
		}
	}

	var lowFrequency filter.LowFrequencySet
	if opts.RemoveLowFrequency {
		counts, err := st.PeptideProteinCounts()
		if err != nil {
			return err
		}
		// The frequency threshold always counts against the store's own
		// sample list, even when the design metadata names fewer samples.
		var skipped int
		lowFrequency, skipped = filter.BuildLowFrequencySet(counts, len(st.Samples()))
		if skipped > 0 {
			logger.Warn("skipped unparseable protein groups while building the low-frequency set",
				"count", skipped)
		}
		logger.Info("low-frequency peptide set built", "excluded_pairs", len(lowFrequency))
	}

	var medians *norm.MedianMap
	if !opts.SkipNormalization {
		if medians, err = norm.BuildMedianMap(st, opts.SampleMethod); err != nil {
			return err
		}
		logger.Info("median normalization map built", "method", opts.SampleMethod)
	}

	out, err := peptides.NewWriter(opts.OutputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	pipe := New(Context{
		Scheme:            des.scheme,
		Channels:          des.channels,
		MinAminoAcids:     opts.MinAminoAcids,
		MinUniquePeptides: opts.MinUniquePeptides,
		TechReplicates:    des.techReplicates,
		SampleCount:       len(des.samples),
		RunMethod:         opts.RunMethod,
		SkipNormalization: opts.SkipNormalization,
		Filters:           filters,
		LowFrequency:      lowFrequency,
		MedianMap:         medians,
		Log2:              opts.Log2,
		Logger:            logger,
	})

	it := st.BatchBySample(opts.BatchSize)
	written := 0
	for it.Next() {
		batch := it.Batch()
		bySample := splitBatch(batch)
		for _, sample := range batch.Samples {
			rows := bySample[sample]
			logger.Info("processing sample", "sample", sample, "features", len(rows))
			result, stats, err := pipe.Process(sample, rows)
			if err != nil {
				return err
			}
			if stats.MalformedAccessions > 0 {
				logger.Warn("sample carried unparseable accessions",
					"sample", sample, "count", stats.MalformedAccessions)
			}
			if err := out.WriteRows(result); err != nil {
				return fmt.Errorf("appending sample %s: %w", sample, err)
			}
			written += len(result)
			logger.Info("sample complete", "sample", sample, "peptides", len(result))
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	logger.Info("normalization finished", "peptides", written, "output", opts.OutputPath)

	if opts.SaveParquet {
		target := parquetPath(opts.OutputPath)
		if err := parquet.FromCSV(opts.OutputPath, target); err != nil {
			return err
		}
		logger.Info("parquet copy written", "output", target)
	}
	return nil
}

// resolveDesign reads the experimental design from SDRF metadata when given,
// falling back to inference from the store itself.
func resolveDesign(st *store.Store, sdrfPath string) (*design, error) {
	if sdrfPath != "" {
		d, err := sdrf.Parse(sdrfPath)
		if err != nil {
			return nil, err
		}
		return &design{
			scheme:         d.Scheme,
			channels:       d.Channels,
			samples:        d.Samples,
			techReplicates: d.TechReplicates,
		}, nil
	}

	labels, err := st.Channels()
	if err != nil {
		return nil, err
	}
	if len(labels) == 0 {
		// Stores without channel annotations are label-free.
		labels = []string{"label free"}
	}
	scheme, channels, err := core.ResolveLabelScheme(labels)
	if err != nil {
		return nil, err
	}
	reps, err := st.TechnicalReplicates()
	if err != nil {
		return nil, err
	}
	return &design{
		scheme:         scheme,
		channels:       channels,
		samples:        st.Samples(),
		techReplicates: len(reps),
	}, nil
}

// splitBatch groups a batch's rows per sample, dropping rows without a
// protein-group assignment.
func splitBatch(batch *store.RowBatch) map[string][]core.FeatureRow {
	bySample := make(map[string][]core.FeatureRow, len(batch.Samples))
	for _, r := range batch.Rows {
		if r.ProteinGroup == "" {
			continue
		}
		bySample[r.SampleID] = append(bySample[r.SampleID], r)
	}
	return bySample
}

// parquetPath swaps the output extension for ".parquet".
func parquetPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".parquet"
}
