// Package features provides a streaming reader for feature tables in CSV
// form, the textual export that precedes conversion into a queryable store.
package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"featurenorm/pkg/core"
)

// Reader provides streaming access to CSV feature tables.
type Reader struct {
	cr          *csv.Reader
	index       map[string]int
	hasFraction bool
	lineNum     int
	current     core.FeatureRow
	err         error
}

// NewReader reads and validates the header before any row is consumed.
// Column names are matched case-insensitively.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading feature table header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, c := range core.RequiredColumns {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("feature table missing required columns: %s", strings.Join(missing, ", "))
	}

	_, hasFraction := index[core.ColFraction]
	return &Reader{
		cr:          cr,
		index:       index,
		hasFraction: hasFraction,
		lineNum:     1,
	}, nil
}

// Next advances to the next row. Returns false when no more rows or error.
func (r *Reader) Next() bool {
	record, err := r.cr.Read()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}
	r.lineNum++

	row, err := r.parseRecord(record)
	if err != nil {
		r.err = fmt.Errorf("line %d: %w", r.lineNum, err)
		return false
	}
	r.current = row
	return true
}

// Row returns the current feature row.
func (r *Reader) Row() core.FeatureRow {
	return r.current
}

// Err returns any error encountered during reading.
func (r *Reader) Err() error {
	return r.err
}

// HasFraction reports whether the source carries a fraction column.
func (r *Reader) HasFraction() bool {
	return r.hasFraction
}

func (r *Reader) parseRecord(record []string) (core.FeatureRow, error) {
	row := core.FeatureRow{
		SampleID:         r.field(record, core.ColSampleAccession),
		ProteinGroup:     r.field(record, core.ColProteinGroups),
		PeptideSequence:  r.field(record, core.ColPeptidoform),
		CanonicalPeptide: r.field(record, core.ColSequence),
		Run:              r.field(record, core.ColRun),
		Condition:        r.field(record, core.ColCondition),
		BioReplicate:     r.field(record, core.ColBioReplicate),
		Channel:          r.field(record, core.ColChannel),
		Fraction:         1,
	}

	unique := r.field(record, core.ColUnique)
	row.Unique = unique == "1" || strings.EqualFold(unique, "true")

	charge, err := strconv.Atoi(r.field(record, core.ColCharge))
	if err != nil {
		return core.FeatureRow{}, fmt.Errorf("invalid charge: %w", err)
	}
	row.Charge = charge

	intensity, err := strconv.ParseFloat(r.field(record, core.ColIntensity), 64)
	if err != nil {
		return core.FeatureRow{}, fmt.Errorf("invalid intensity: %w", err)
	}
	row.Intensity = intensity

	if r.hasFraction {
		if raw := r.field(record, core.ColFraction); raw != "" {
			fraction, err := strconv.Atoi(raw)
			if err != nil {
				return core.FeatureRow{}, fmt.Errorf("invalid fraction: %w", err)
			}
			row.Fraction = fraction
		}
	}

	return row, nil
}

func (r *Reader) field(record []string, column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
