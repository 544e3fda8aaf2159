package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// modAnnotation matches a single bracketed or parenthesized modification
// annotation, e.g. "(Oxidation)" or "[UNIMOD:35]".
var modAnnotation = regexp.MustCompile(`[\(\[].*?[\)\]]`)

// CanonicalPeptide strips modification annotations and the "."/"-" separator
// characters from a peptidoform, leaving the plain amino acid sequence.
// The result is a fixed point: stripping an already canonical sequence
// returns it unchanged.
func CanonicalPeptide(sequence string) string {
	clean := modAnnotation.ReplaceAllString(sequence, "")
	clean = strings.ReplaceAll(clean, ".", "")
	return strings.ReplaceAll(clean, "-", "")
}

// ParseProteinGroup normalizes a ";"-joined accession list, reducing
// uniprot-style "db|accession|entry" identifiers to the bare accession.
// Identifiers whose pipe count does not match either shape are kept verbatim;
// the returned count reports how many such identifiers were seen so callers
// can log them.
func ParseProteinGroup(group string) (string, int) {
	parts := strings.Split(group, ";")
	malformed := 0
	for i, acc := range parts {
		switch strings.Count(acc, "|") {
		case 0:
			// already a bare accession
		case 2:
			parts[i] = strings.Split(acc, "|")[1]
		default:
			malformed++
		}
	}
	return strings.Join(parts, ";"), malformed
}

// RepresentativeAccession reduces a protein group to the single accession the
// low-frequency filter keys on: the accession field of the first listed
// identifier when it has uniprot shape, otherwise the first identifier
// verbatim. ok is false only for blank input.
func RepresentativeAccession(group string) (accession string, ok bool) {
	first := group
	if i := strings.IndexByte(group, ';'); i >= 0 {
		first = group[:i]
	}
	if first == "" {
		return "", false
	}
	if fields := strings.Split(first, "|"); len(fields) >= 2 {
		return fields[1], true
	}
	return first, true
}

// ReplicateParseError reports a run identifier whose technical-replicate
// token could not be parsed.
type ReplicateParseError struct {
	Run string
}

func (e *ReplicateParseError) Error() string {
	return fmt.Sprintf("run %q: cannot derive technical replicate: expected an integer after the first underscore", e.Run)
}

// TechReplicate derives the technical-replicate index from a run identifier.
// Runs are named "<label>_<replicate>[_<suffix>...]"; the second
// underscore-separated token is the replicate index.
func TechReplicate(run string) (int, error) {
	parts := strings.Split(run, "_")
	if len(parts) < 2 {
		return 0, &ReplicateParseError{Run: run}
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, &ReplicateParseError{Run: run}
	}
	return n, nil
}
