// Package cmd provides CLI command implementations
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Flags for normalize command
	inputFile          string
	sdrfFile           string
	outputFile         string
	minAminoAcids      int
	minUniquePeptides  int
	runMethod          string
	sampleMethod       string
	skipNormalization  bool
	removeContaminants bool
	exclusionIDFile    string
	removeLowFrequency bool
	log2Transform      bool
	batchSize          int
	saveParquet        bool

	// Flags for convert command
	convertInput  string
	convertOutput string

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "featurenorm",
	Short: "featurenorm - Feature-level intensity normalization for quantitative proteomics",
	Long: `featurenorm converts per-feature (PSM-level) quantitative proteomics
measurements into a single normalized peptide-intensity table suitable for
downstream protein-level quantification.

Feature datasets are read as parquet or SQLite stores and processed in
sample batches, so memory stays bounded regardless of dataset size.
Label-free, TMT (6/10/11/16-plex), and iTRAQ (4/8-plex) experiments are
supported; the labeling scheme is taken from SDRF design metadata or
inferred from the dataset itself.`,
	Version: "1.0.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(convertCmd)

	// Normalize command flags
	normalizeCmd.Flags().StringVarP(&inputFile, "in", "i", "", "Feature store path, parquet or SQLite (required)")
	normalizeCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output peptide CSV, must not exist (required)")
	normalizeCmd.Flags().StringVar(&sdrfFile, "sdrf", "", "SDRF design metadata (inferred from the store if not given)")
	normalizeCmd.Flags().IntVar(&minAminoAcids, "min-aa", 7, "Minimum canonical peptide length in amino acids")
	normalizeCmd.Flags().IntVar(&minUniquePeptides, "min-unique", 2, "Minimum distinct peptides per protein group")
	normalizeCmd.Flags().StringVar(&runMethod, "nmethod", "median", "Run normalization method: mean, median, iqr, or none")
	normalizeCmd.Flags().StringVar(&sampleMethod, "pnmethod", "globalMedian", "Sample normalization method: globalMedian or conditionMedian")
	normalizeCmd.Flags().BoolVar(&skipNormalization, "skip-normalization", false, "Skip run and sample normalization entirely")
	normalizeCmd.Flags().BoolVar(&removeContaminants, "remove-decoy-contaminants", false, "Drop contaminant, entrapment, and decoy protein groups")
	normalizeCmd.Flags().StringVar(&exclusionIDFile, "remove-ids", "", "File with protein identifiers to drop, one per line")
	normalizeCmd.Flags().BoolVar(&removeLowFrequency, "remove-low-frequency-peptides", false, "Drop peptides observed in fewer than 20% of samples")
	normalizeCmd.Flags().BoolVar(&log2Transform, "log2", false, "Report base-2 logarithms of the normalized intensities")
	normalizeCmd.Flags().IntVar(&batchSize, "batch-size", 20, "Samples fetched per store query")
	normalizeCmd.Flags().BoolVar(&saveParquet, "save-parquet", false, "Additionally write the peptide table as parquet")

	normalizeCmd.MarkFlagRequired("in")
	normalizeCmd.MarkFlagRequired("out")

	// Convert command flags
	convertCmd.Flags().StringVarP(&convertInput, "in", "i", "", "Input feature CSV (required)")
	convertCmd.Flags().StringVarP(&convertOutput, "out", "o", "", "Output store: .parquet, .sqlite, or .db (required)")

	convertCmd.MarkFlagRequired("in")
	convertCmd.MarkFlagRequired("out")
}
