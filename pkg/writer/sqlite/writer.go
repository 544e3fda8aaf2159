// Package sqlite writes feature tables into SQLite databases that the
// feature store can query directly.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"featurenorm/pkg/core"
)

// Writer handles writing feature rows into a SQLite database.
type Writer struct {
	db         *sql.DB
	tx         *sql.Tx
	stmt       *sql.Stmt
	outputPath string
	count      int
}

// NewWriter creates the database, the features table, and the prepared
// insert. All rows are written inside one transaction.
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the feature table schema. The "unique" column is a
// reserved word and stays quoted everywhere.
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS features (
		"sample_accession" TEXT NOT NULL,
		"pg_accessions" TEXT,
		"peptidoform" TEXT,
		"sequence" TEXT,
		"unique" INTEGER,
		"charge" INTEGER,
		"intensity" REAL,
		"run" TEXT,
		"condition" TEXT,
		"biological_replicate" TEXT,
		"channel" TEXT,
		"fraction" INTEGER
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements prepares the SQL statement for batch insertion.
func (w *Writer) prepareStatements() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	w.tx = tx

	w.stmt, err = tx.Prepare(`
		INSERT INTO features (
			"sample_accession", "pg_accessions", "peptidoform", "sequence",
			"unique", "charge", "intensity", "run", "condition",
			"biological_replicate", "channel", "fraction"
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	return nil
}

// WriteRow writes a single feature row to the database. Empty protein groups
// and channels are stored as NULL so the store's NULL handling applies.
func (w *Writer) WriteRow(r core.FeatureRow) error {
	unique := 0
	if r.Unique {
		unique = 1
	}
	fraction := r.Fraction
	if fraction == 0 {
		fraction = 1
	}

	_, err := w.stmt.Exec(
		r.SampleID,
		nullIfEmpty(r.ProteinGroup),
		r.PeptideSequence,
		r.CanonicalPeptide,
		unique,
		r.Charge,
		r.Intensity,
		r.Run,
		r.Condition,
		r.BioReplicate,
		nullIfEmpty(r.Channel),
		fraction,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feature: %w", err)
	}

	w.count++
	return nil
}

// Count returns the number of rows written so far.
func (w *Writer) Count() int {
	return w.count
}

// Finalize indexes the sample column, commits, and closes the database.
func (w *Writer) Finalize() error {
	if w.stmt != nil {
		w.stmt.Close()
	}

	if w.tx != nil {
		// The index is built once after the bulk load.
		if _, err := w.tx.Exec(`CREATE INDEX IF NOT EXISTS idx_features_sample ON features("sample_accession")`); err != nil {
			w.tx.Rollback()
			return fmt.Errorf("failed to index features: %w", err)
		}
		if err := w.tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit features: %w", err)
		}
		w.tx = nil
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Close closes the database connection (alias for Finalize).
func (w *Writer) Close() error {
	return w.Finalize()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
