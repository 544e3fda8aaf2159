// Package store provides read-only, sample-batched access to an on-disk
// feature table. Parquet files are attached through DuckDB and SQLite
// databases through the sqlite3 driver; both backends are exposed behind the
// same SQL surface so the rest of the pipeline never sees the difference.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/mattn/go-sqlite3"

	"featurenorm/pkg/core"
)

// featureTable is the table (or view) name every backend exposes the
// dataset under.
const featureTable = "features"

// StoreNotFoundError reports a dataset path that does not exist on disk.
type StoreNotFoundError struct {
	Path string
}

func (e *StoreNotFoundError) Error() string {
	return fmt.Sprintf("feature store %s does not exist", e.Path)
}

// Store is a read-only view over one feature dataset.
type Store struct {
	db          *sql.DB
	path        string
	samples     []string
	hasFraction bool
}

// Open opens the feature dataset at path. The backend is chosen by file
// extension: ".parquet" is attached as a DuckDB view, anything else is
// treated as a SQLite database holding a "features" table.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &StoreNotFoundError{Path: path}
	}

	var db *sql.DB
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		db, err = sql.Open("duckdb", "")
		if err == nil {
			_, err = db.Exec(fmt.Sprintf(
				`CREATE VIEW %s AS SELECT * FROM parquet_scan(%s)`,
				featureTable, sqlString(path)))
		}
	default:
		db, err = sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	}
	if err != nil {
		return nil, fmt.Errorf("opening feature store %s: %w", path, err)
	}

	s := &Store{db: db, path: path}
	if err := s.checkColumns(); err != nil {
		db.Close()
		return nil, err
	}
	if s.samples, err = s.distinct(core.ColSampleAccession); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the on-disk location the store was opened from.
func (s *Store) Path() string {
	return s.path
}

// HasFraction reports whether the dataset carries a fraction column. Stores
// without one behave as single-fraction datasets.
func (s *Store) HasFraction() bool {
	return s.hasFraction
}

// checkColumns verifies the required schema and records whether the optional
// fraction column is present.
func (s *Store) checkColumns() error {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT * FROM %s LIMIT 0`, featureTable))
	if err != nil {
		return fmt.Errorf("reading schema of %s: %w", s.path, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("reading schema of %s: %w", s.path, err)
	}
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[strings.ToLower(c)] = true
	}

	var missing []string
	for _, c := range core.RequiredColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("feature store %s: missing required columns: %s",
			s.path, strings.Join(missing, ", "))
	}
	s.hasFraction = have[core.ColFraction]
	return nil
}

// Samples returns the distinct sample accessions in deterministic order.
func (s *Store) Samples() []string {
	out := make([]string, len(s.samples))
	copy(out, s.samples)
	return out
}

// Conditions returns the distinct study conditions in the dataset.
func (s *Store) Conditions() ([]string, error) {
	return s.distinct(core.ColCondition)
}

// Channels returns the distinct reporter channel tokens in the dataset.
func (s *Store) Channels() ([]string, error) {
	return s.distinct(core.ColChannel)
}

// Runs returns the distinct run identifiers in the dataset.
func (s *Store) Runs() ([]string, error) {
	return s.distinct(core.ColRun)
}

// TechnicalReplicates parses the replicate token of every distinct run and
// returns the distinct replicate indices in ascending order. The length of
// the result is the experiment's technical-replicate count.
func (s *Store) TechnicalReplicates() ([]int, error) {
	runs, err := s.Runs()
	if err != nil {
		return nil, err
	}
	seen := make(map[int]struct{}, len(runs))
	var reps []int
	for _, run := range runs {
		n, err := core.TechReplicate(run)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		reps = append(reps, n)
	}
	sort.Ints(reps)
	return reps, nil
}

// PeptideProteinCount is one (canonical sequence, protein group) pair with
// the number of distinct samples it was observed in.
type PeptideProteinCount struct {
	Sequence     string
	ProteinGroup string
	Samples      int
}

// PeptideProteinCounts aggregates the whole dataset in a single grouped
// query, counting for every (sequence, protein group) pair the distinct
// samples it appears in. Rows without a protein group are ignored.
func (s *Store) PeptideProteinCounts() ([]PeptideProteinCount, error) {
	query := fmt.Sprintf(
		`SELECT %s, %s, COUNT(DISTINCT %s) FROM %s WHERE %s IS NOT NULL GROUP BY %s, %s ORDER BY 1, 2`,
		quoteIdent(core.ColSequence), quoteIdent(core.ColProteinGroups),
		quoteIdent(core.ColSampleAccession), featureTable,
		quoteIdent(core.ColProteinGroups),
		quoteIdent(core.ColSequence), quoteIdent(core.ColProteinGroups))
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("counting peptide observations: %w", err)
	}
	defer rows.Close()

	var counts []PeptideProteinCount
	for rows.Next() {
		var c PeptideProteinCount
		if err := rows.Scan(&c.Sequence, &c.ProteinGroup, &c.Samples); err != nil {
			return nil, fmt.Errorf("counting peptide observations: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// distinct returns the column's distinct non-null values ordered by value,
// so batching and iteration are reproducible across runs.
func (s *Store) distinct(column string) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT %s FROM %s ORDER BY 1`, quoteIdent(column), featureTable)
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("reading distinct %s: %w", column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("reading distinct %s: %w", column, err)
		}
		if v.Valid {
			values = append(values, v.String)
		}
	}
	return values, rows.Err()
}

// quoteIdent double-quotes a column identifier. The schema includes "unique",
// a reserved word in both backends.
func quoteIdent(column string) string {
	return `"` + column + `"`
}

// sqlString single-quotes a literal for statements that cannot take bind
// parameters, such as DuckDB view DDL.
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// placeholders returns n comma-joined "?" markers for an IN clause.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
