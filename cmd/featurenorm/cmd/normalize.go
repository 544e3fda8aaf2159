package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"featurenorm/pkg/norm"
	"featurenorm/pkg/pipeline"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Normalize a feature store into a peptide intensity table",
	Long: `Normalize streams a feature store sample batch by sample batch and writes
one normalized intensity row per (protein group, peptide, sample).

Per sample, features are cleaned (unique peptides, positive intensities,
minimum peptide length and evidence), optionally filtered for contaminants,
normalized across technical replicates, resolved from peptidoforms to
canonical peptides, merged across fractions, scaled to a common median, and
summed.

Examples:
  # Normalize a parquet feature store with design metadata
  featurenorm normalize --in features.parquet --sdrf design.sdrf.tsv --out peptides.csv

  # Label-free run without contaminants, log2-transformed
  featurenorm normalize --in features.parquet --out peptides.csv --remove-decoy-contaminants --log2

  # Skip normalization but still collapse peptidoforms
  featurenorm normalize --in features.sqlite --out peptides.csv --skip-normalization`,
	RunE: runNormalize,
}

func runNormalize(cmd *cobra.Command, args []string) error {
	rm, err := norm.ParseRunMethod(runMethod)
	if err != nil {
		return err
	}
	sm, err := norm.ParseSampleMethod(sampleMethod)
	if err != nil {
		return err
	}

	return pipeline.Run(pipeline.Options{
		InputPath:          inputFile,
		SDRFPath:           sdrfFile,
		OutputPath:         outputFile,
		MinAminoAcids:      minAminoAcids,
		MinUniquePeptides:  minUniquePeptides,
		RunMethod:          rm,
		SampleMethod:       sm,
		SkipNormalization:  skipNormalization,
		RemoveContaminants: removeContaminants,
		ExclusionIDFile:    exclusionIDFile,
		RemoveLowFrequency: removeLowFrequency,
		Log2:               log2Transform,
		BatchSize:          batchSize,
		SaveParquet:        saveParquet,
		Logger:             slog.Default(),
	})
}
