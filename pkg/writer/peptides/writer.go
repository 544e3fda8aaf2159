// Package peptides writes the normalized peptide table as delimited text,
// appending sample after sample behind a single header.
package peptides

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"featurenorm/pkg/core"
)

// Writer appends peptide rows to a CSV artifact. The destination must not
// exist beforehand; a run never overwrites previous output.
type Writer struct {
	f           *os.File
	w           *csv.Writer
	wroteHeader bool
}

// NewWriter creates the output file, failing if it already exists.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating output: %w", err)
	}
	return &Writer{f: f, w: csv.NewWriter(f)}, nil
}

// WriteRows appends one sample's peptide rows, emitting the header before the
// first batch. Rows are flushed to disk before returning so a mid-run failure
// leaves all previously completed samples on disk.
func (w *Writer) WriteRows(rows []core.PeptideRow) error {
	if !w.wroteHeader {
		if err := w.w.Write(core.OutputHeader); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
		w.wroteHeader = true
	}
	for _, r := range rows {
		record := []string{
			r.ProteinGroup,
			r.CanonicalPeptide,
			r.SampleID,
			r.BioReplicate,
			r.Condition,
			strconv.FormatFloat(r.NormalizedIntensity, 'f', -1, 64),
		}
		if err := w.w.Write(record); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes remaining buffers and closes the artifact. Closing twice is
// harmless.
func (w *Writer) Close() error {
	if w.f == nil {
		return nil
	}
	w.w.Flush()
	flushErr := w.w.Error()
	closeErr := w.f.Close()
	w.f = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
