package store

import (
	"database/sql"
	"fmt"
	"strings"

	"featurenorm/pkg/core"
)

// RowBatch is one streamed batch: the samples it covers and all of their
// feature rows.
type RowBatch struct {
	Samples []string
	Rows    []core.FeatureRow
}

// RowIter streams the dataset in contiguous sample batches. Each Next issues
// one IN-list query; only the current batch is held in memory.
type RowIter struct {
	store  *Store
	groups [][]string
	idx    int
	batch  *RowBatch
	err    error
}

// BatchBySample returns an iterator over groups of at most batchSize samples,
// in the store's deterministic sample order.
func (s *Store) BatchBySample(batchSize int) *RowIter {
	return &RowIter{store: s, groups: chunk(s.samples, batchSize)}
}

// Next advances to the next batch, reporting false when the iteration is
// exhausted or failed.
func (it *RowIter) Next() bool {
	if it.err != nil || it.idx >= len(it.groups) {
		return false
	}
	group := it.groups[it.idx]
	it.idx++
	rows, err := it.store.rowsForSamples(group)
	if err != nil {
		it.err = err
		return false
	}
	it.batch = &RowBatch{Samples: group, Rows: rows}
	return true
}

// Batch returns the batch loaded by the last successful Next.
func (it *RowIter) Batch() *RowBatch {
	return it.batch
}

// Err returns the first error encountered during iteration.
func (it *RowIter) Err() error {
	return it.err
}

func (s *Store) rowsForSamples(samples []string) ([]core.FeatureRow, error) {
	fraction := quoteIdent(core.ColFraction)
	if !s.hasFraction {
		fraction = "1 AS " + quoteIdent(core.ColFraction)
	}
	cols := []string{
		quoteIdent(core.ColSampleAccession),
		quoteIdent(core.ColProteinGroups),
		quoteIdent(core.ColPeptidoform),
		quoteIdent(core.ColSequence),
		quoteIdent(core.ColUnique),
		quoteIdent(core.ColCharge),
		quoteIdent(core.ColIntensity),
		quoteIdent(core.ColRun),
		quoteIdent(core.ColCondition),
		quoteIdent(core.ColBioReplicate),
		quoteIdent(core.ColChannel),
		fraction,
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IN (%s)`,
		strings.Join(cols, ", "), featureTable,
		quoteIdent(core.ColSampleAccession), placeholders(len(samples)))

	rows, err := s.db.Query(query, stringArgs(samples)...)
	if err != nil {
		return nil, fmt.Errorf("querying feature batch: %w", err)
	}
	defer rows.Close()

	var out []core.FeatureRow
	for rows.Next() {
		var (
			r                       core.FeatureRow
			pg, pep, seq, run, cond sql.NullString
			bio, channel            sql.NullString
			uniq                    any
			frac                    sql.NullInt64
		)
		err := rows.Scan(&r.SampleID, &pg, &pep, &seq, &uniq, &r.Charge,
			&r.Intensity, &run, &cond, &bio, &channel, &frac)
		if err != nil {
			return nil, fmt.Errorf("scanning feature batch: %w", err)
		}
		r.ProteinGroup = pg.String
		r.PeptideSequence = pep.String
		r.CanonicalPeptide = seq.String
		r.Unique = truthy(uniq)
		r.Run = run.String
		r.Condition = cond.String
		r.BioReplicate = bio.String
		r.Channel = channel.String
		r.Fraction = int(frac.Int64)
		if !frac.Valid {
			r.Fraction = 1
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// IntensityRow is the narrow projection the median-map builder consumes.
type IntensityRow struct {
	Condition string // empty when batching by sample
	SampleID  string
	Intensity float64
}

// IntensityBatch is one streamed batch of raw intensity observations together
// with the key values (samples or conditions) it covers.
type IntensityBatch struct {
	Keys []string
	Rows []IntensityRow
}

// IntensityIter streams (key, intensity) pairs in key batches. The key is the
// sample accession or the study condition depending on the constructor.
type IntensityIter struct {
	store       *Store
	byCondition bool
	batchSize   int
	groups      [][]string
	grouped     bool
	idx         int
	batch       *IntensityBatch
	err         error
}

// IntensitiesBySample streams raw intensities in batches of whole samples.
func (s *Store) IntensitiesBySample(batchSize int) *IntensityIter {
	return &IntensityIter{store: s, batchSize: batchSize}
}

// IntensitiesByCondition streams raw intensities in batches of whole study
// conditions, carrying the condition alongside each observation.
func (s *Store) IntensitiesByCondition(batchSize int) *IntensityIter {
	return &IntensityIter{store: s, byCondition: true, batchSize: batchSize}
}

// Next advances to the next batch, reporting false when the iteration is
// exhausted or failed.
func (it *IntensityIter) Next() bool {
	if it.err != nil {
		return false
	}
	if !it.grouped {
		keys := it.store.samples
		if it.byCondition {
			var err error
			if keys, err = it.store.Conditions(); err != nil {
				it.err = err
				return false
			}
		}
		it.groups = chunk(keys, it.batchSize)
		it.grouped = true
	}
	if it.idx >= len(it.groups) {
		return false
	}
	group := it.groups[it.idx]
	it.idx++
	rows, err := it.store.intensityRows(group, it.byCondition)
	if err != nil {
		it.err = err
		return false
	}
	it.batch = &IntensityBatch{Keys: group, Rows: rows}
	return true
}

// Batch returns the batch loaded by the last successful Next.
func (it *IntensityIter) Batch() *IntensityBatch {
	return it.batch
}

// Err returns the first error encountered during iteration.
func (it *IntensityIter) Err() error {
	return it.err
}

func (s *Store) intensityRows(keys []string, byCondition bool) ([]IntensityRow, error) {
	keyCol := core.ColSampleAccession
	cols := []string{quoteIdent(core.ColSampleAccession), quoteIdent(core.ColIntensity)}
	if byCondition {
		keyCol = core.ColCondition
		cols = append([]string{quoteIdent(core.ColCondition)}, cols...)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IN (%s)`,
		strings.Join(cols, ", "), featureTable,
		quoteIdent(keyCol), placeholders(len(keys)))

	rows, err := s.db.Query(query, stringArgs(keys)...)
	if err != nil {
		return nil, fmt.Errorf("querying intensity batch: %w", err)
	}
	defer rows.Close()

	var out []IntensityRow
	for rows.Next() {
		var (
			r         IntensityRow
			cond      sql.NullString
			sample    sql.NullString
			intensity sql.NullFloat64
		)
		if byCondition {
			err = rows.Scan(&cond, &sample, &intensity)
		} else {
			err = rows.Scan(&sample, &intensity)
		}
		if err != nil {
			return nil, fmt.Errorf("scanning intensity batch: %w", err)
		}
		if !sample.Valid || !intensity.Valid {
			continue
		}
		r.Condition = cond.String
		r.SampleID = sample.String
		r.Intensity = intensity.Float64
		out = append(out, r)
	}
	return out, rows.Err()
}

// truthy interprets the "unique" column, which arrives as BOOLEAN or INTEGER
// depending on the producer of the dataset.
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case int32:
		return x != 0
	case float64:
		return x != 0
	case []byte:
		return string(x) == "1" || strings.EqualFold(string(x), "true")
	case string:
		return x == "1" || strings.EqualFold(x, "true")
	}
	return false
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func chunk(values []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var groups [][]string
	for start := 0; start < len(values); start += size {
		end := min(start+size, len(values))
		groups = append(groups, values[start:end])
	}
	return groups
}
