// Package filter provides protein-level row exclusion: contaminant and decoy
// markers, user-supplied accession lists, and low-frequency peptide
// suppression.
package filter

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"featurenorm/pkg/core"
	"featurenorm/pkg/store"
)

// contaminantMarkers flag library entries that never represent sample
// proteins: known contaminants, entrapment sequences, and decoys.
var contaminantMarkers = []string{"CONTAMINANT", "ENTRAP", "DECOY"}

// Config holds the protein exclusion settings for one run.
type Config struct {
	RemoveContaminants bool     // drop groups matching contaminantMarkers
	ExclusionIDs       []string // additional identifiers to drop, matched as a regex alternation

	contaminantRe *regexp.Regexp
	exclusionRe   *regexp.Regexp
}

// NewConfig compiles the exclusion settings. The identifier list is joined
// into a single alternation, mirroring how exclusion lists are distributed
// (one identifier per line, matched as substrings).
func NewConfig(removeContaminants bool, ids []string) (*Config, error) {
	c := &Config{RemoveContaminants: removeContaminants, ExclusionIDs: ids}
	if removeContaminants {
		c.contaminantRe = regexp.MustCompile(strings.Join(contaminantMarkers, "|"))
	}
	if len(ids) > 0 {
		re, err := regexp.Compile(strings.Join(ids, "|"))
		if err != nil {
			return nil, fmt.Errorf("compiling exclusion identifiers: %w", err)
		}
		c.exclusionRe = re
	}
	return c, nil
}

// Active reports whether the config excludes anything at all.
func (c *Config) Active() bool {
	return c.contaminantRe != nil || c.exclusionRe != nil
}

// Excluded reports whether a protein group matches the contaminant markers or
// the exclusion list.
func (c *Config) Excluded(proteinGroup string) bool {
	if c.contaminantRe != nil && c.contaminantRe.MatchString(proteinGroup) {
		return true
	}
	if c.exclusionRe != nil && c.exclusionRe.MatchString(proteinGroup) {
		return true
	}
	return false
}

// LoadExclusionIDs reads one identifier per line, skipping blank lines.
func LoadExclusionIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening exclusion list: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading exclusion list: %w", err)
	}
	return ids, nil
}

// PeptideKey identifies a (representative accession, canonical peptide) pair.
type PeptideKey struct {
	Protein string
	Peptide string
}

// LowFrequencySet is the set of peptide pairs observed in too few samples to
// be trusted for quantification.
type LowFrequencySet map[PeptideKey]struct{}

// LowFrequencyThreshold is the fraction of all samples a pair must reach to
// be kept.
const LowFrequencyThreshold = 0.2

// BuildLowFrequencySet reduces dataset-wide observation counts to the
// exclusion set: pairs seen in fewer than LowFrequencyThreshold of all
// samples. The protein key is the representative accession of the stored
// group. Pairs whose group cannot be reduced are skipped and counted.
func BuildLowFrequencySet(counts []store.PeptideProteinCount, sampleCount int) (LowFrequencySet, int) {
	set := make(LowFrequencySet)
	skipped := 0
	cutoff := LowFrequencyThreshold * float64(sampleCount)
	for _, c := range counts {
		accession, ok := core.RepresentativeAccession(c.ProteinGroup)
		if !ok {
			skipped++
			continue
		}
		if float64(c.Samples) < cutoff {
			set[PeptideKey{Protein: accession, Peptide: c.Sequence}] = struct{}{}
		}
	}
	return set, skipped
}

// Contains reports whether the pair is excluded. The lookup is an exact match
// on the row's protein-group string. The set keys are single representative
// accessions, so a group of several accessions never matches.
func (s LowFrequencySet) Contains(proteinGroup, peptide string) bool {
	_, excluded := s[PeptideKey{Protein: proteinGroup, Peptide: peptide}]
	return excluded
}
