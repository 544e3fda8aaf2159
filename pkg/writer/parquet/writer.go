// Package parquet converts delimited text tables to parquet through DuckDB's
// bulk CSV reader.
package parquet

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

// FromCSV reads an entire CSV table and writes it as a parquet file. Column
// types are inferred by DuckDB.
func FromCSV(csvPath, parquetPath string) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("opening conversion database: %w", err)
	}
	defer db.Close()

	// COPY cannot take bind parameters, so the paths are quoted inline.
	query := fmt.Sprintf(
		`COPY (SELECT * FROM read_csv(%s, header=true)) TO %s (FORMAT PARQUET)`,
		sqlString(csvPath), sqlString(parquetPath))
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("converting %s to parquet: %w", csvPath, err)
	}
	return nil
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
