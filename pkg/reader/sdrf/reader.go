// Package sdrf reads experimental-design metadata from SDRF files, the
// tab-separated sample annotation format distributed with proteomics
// submissions.
package sdrf

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"featurenorm/pkg/core"
)

// Columns the design derivation needs, matched case-insensitively.
const (
	labelColumn     = "comment[label]"
	sourceColumn    = "source name"
	replicateColumn = "comment[technical replicate]"
)

// Design is the experiment description the pipeline needs: label scheme,
// channel indices, ordered sample names, and the technical-replicate count.
type Design struct {
	Scheme         core.Scheme
	Channels       map[string]int
	Samples        []string
	TechReplicates int
}

// Parse reads the design from an SDRF file.
func Parse(path string) (*Design, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening SDRF file: %w", err)
	}
	defer f.Close()

	d, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Read parses SDRF content from r. Samples are returned in first-seen order;
// labels and replicates are deduplicated.
func Read(r io.Reader) (*Design, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading SDRF header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, c := range []string{labelColumn, sourceColumn, replicateColumn} {
		if _, ok := index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("SDRF missing required columns: %s", strings.Join(missing, ", "))
	}

	var (
		labels     []string
		labelSeen  = make(map[string]bool)
		samples    []string
		sampleSeen = make(map[string]bool)
		replicates = make(map[string]bool)
	)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading SDRF rows: %w", err)
		}

		label := field(record, index[labelColumn])
		if label != "" && !labelSeen[label] {
			labelSeen[label] = true
			labels = append(labels, label)
		}
		sample := field(record, index[sourceColumn])
		if sample != "" && !sampleSeen[sample] {
			sampleSeen[sample] = true
			samples = append(samples, sample)
		}
		if rep := field(record, index[replicateColumn]); rep != "" {
			replicates[rep] = true
		}
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("SDRF carries no label annotations")
	}

	scheme, channels, err := core.ResolveLabelScheme(labels)
	if err != nil {
		return nil, err
	}
	return &Design{
		Scheme:         scheme,
		Channels:       channels,
		Samples:        samples,
		TechReplicates: len(replicates),
	}, nil
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
