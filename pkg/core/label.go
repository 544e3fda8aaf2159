package core

import (
	"fmt"
	"strings"
)

// Scheme identifies the labeling strategy of an experiment.
type Scheme string

const (
	SchemeLFQ   Scheme = "LFQ"
	SchemeTMT   Scheme = "TMT"
	SchemeITRAQ Scheme = "ITRAQ"
)

// Channel index tables for the supported isobaric schemes. Indices are
// 1-based and follow the vendor channel ordering.
var (
	TMT16plex = map[string]int{
		"TMT126": 1, "TMT127N": 2, "TMT127C": 3, "TMT128N": 4,
		"TMT128C": 5, "TMT129N": 6, "TMT129C": 7, "TMT130N": 8,
		"TMT130C": 9, "TMT131N": 10, "TMT131C": 11, "TMT132N": 12,
		"TMT132C": 13, "TMT133N": 14, "TMT133C": 15, "TMT134N": 16,
	}

	TMT11plex = map[string]int{
		"TMT126": 1, "TMT127N": 2, "TMT127C": 3, "TMT128N": 4,
		"TMT128C": 5, "TMT129N": 6, "TMT129C": 7, "TMT130N": 8,
		"TMT130C": 9, "TMT131N": 10, "TMT131C": 11,
	}

	TMT10plex = map[string]int{
		"TMT126": 1, "TMT127N": 2, "TMT127C": 3, "TMT128N": 4,
		"TMT128C": 5, "TMT129N": 6, "TMT129C": 7, "TMT130N": 8,
		"TMT130C": 9, "TMT131": 10,
	}

	TMT6plex = map[string]int{
		"TMT126": 1, "TMT127": 2, "TMT128": 3,
		"TMT129": 4, "TMT130": 5, "TMT131": 6,
	}

	ITRAQ4plex = map[string]int{
		"ITRAQ114": 1, "ITRAQ115": 2, "ITRAQ116": 3, "ITRAQ117": 4,
	}

	ITRAQ8plex = map[string]int{
		"ITRAQ113": 1, "ITRAQ114": 2, "ITRAQ115": 3, "ITRAQ116": 4,
		"ITRAQ117": 5, "ITRAQ118": 6, "ITRAQ119": 7, "ITRAQ121": 8,
	}
)

// tmt16Markers are channels that only exist in the 16-plex kit. Their
// presence forces the 16-plex table even when fewer channels were used.
var tmt16Markers = []string{"TMT134N", "TMT133C", "TMT133N", "TMT132C", "TMT132N"}

// UnsupportedLabelSchemeError reports a label token set that matches none of
// the supported schemes.
type UnsupportedLabelSchemeError struct {
	Labels []string
}

func (e *UnsupportedLabelSchemeError) Error() string {
	return fmt.Sprintf("unsupported label scheme: only label-free, TMT, and ITRAQ experiments are supported (labels: %s)",
		strings.Join(e.Labels, ", "))
}

// ResolveLabelScheme classifies an experiment from its distinct label tokens
// and returns the channel index table for isobaric schemes. Label-free
// experiments carry a single token and get a nil table.
//
// TMT plex size is decided by token cardinality, with two overrides: any
// 16-plex-only channel forces the 16-plex table, and TMT131C forces at least
// the 11-plex table.
func ResolveLabelScheme(labels []string) (Scheme, map[string]int, error) {
	if len(labels) == 1 {
		return SchemeLFQ, nil, nil
	}
	switch {
	case anyTokenContains(labels, "TMT"):
		switch {
		case len(labels) > 11 || containsAny(labels, tmt16Markers):
			return SchemeTMT, TMT16plex, nil
		case len(labels) == 11 || containsAny(labels, []string{"TMT131C"}):
			return SchemeTMT, TMT11plex, nil
		case len(labels) > 6:
			return SchemeTMT, TMT10plex, nil
		default:
			return SchemeTMT, TMT6plex, nil
		}
	case anyTokenContains(labels, "ITRAQ"):
		if len(labels) > 4 {
			return SchemeITRAQ, ITRAQ8plex, nil
		}
		return SchemeITRAQ, ITRAQ4plex, nil
	}
	return "", nil, &UnsupportedLabelSchemeError{Labels: labels}
}

func anyTokenContains(labels []string, sub string) bool {
	for _, l := range labels {
		if strings.Contains(strings.ToUpper(l), sub) {
			return true
		}
	}
	return false
}

func containsAny(labels, wanted []string) bool {
	for _, l := range labels {
		for _, w := range wanted {
			if l == w {
				return true
			}
		}
	}
	return false
}
