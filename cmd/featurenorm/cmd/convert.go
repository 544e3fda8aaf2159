package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"featurenorm/pkg/reader/features"
	"featurenorm/pkg/writer/parquet"
	"featurenorm/pkg/writer/sqlite"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a feature CSV into a queryable store",
	Long: `Convert builds a feature store from a CSV export so normalize can query it
in sample batches. The output format follows the file extension.

Examples:
  # Build a SQLite store
  featurenorm convert --in features.csv --out features.sqlite

  # Build a parquet store
  featurenorm convert --in features.csv --out features.parquet`,
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(convertInput); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", convertInput)
	}
	if _, err := os.Stat(convertOutput); err == nil {
		return fmt.Errorf("output already exists: %s", convertOutput)
	}

	switch ext := strings.ToLower(filepath.Ext(convertOutput)); ext {
	case ".parquet":
		if err := parquet.FromCSV(convertInput, convertOutput); err != nil {
			return err
		}
		slog.Info("conversion complete", "output", convertOutput)
		return nil
	case ".sqlite", ".sqlite3", ".db":
		return convertToSQLite()
	default:
		return fmt.Errorf("cannot infer output format from extension %q, use .parquet or .sqlite", ext)
	}
}

func convertToSQLite() error {
	in, err := os.Open(convertInput)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer in.Close()

	reader, err := features.NewReader(in)
	if err != nil {
		return err
	}

	writer, err := sqlite.NewWriter(convertOutput)
	if err != nil {
		return fmt.Errorf("failed to create output database: %w", err)
	}
	defer writer.Close()

	for reader.Next() {
		if err := writer.WriteRow(reader.Row()); err != nil {
			return err
		}
		if writer.Count()%100000 == 0 {
			slog.Debug("conversion progress", "rows", writer.Count())
		}
	}
	if err := reader.Err(); err != nil {
		return fmt.Errorf("error reading input file: %w", err)
	}

	if err := writer.Finalize(); err != nil {
		return err
	}

	slog.Info("conversion complete", "rows", writer.Count(), "output", convertOutput)
	return nil
}
