// Package core provides the data model, label-scheme resolution, and
// identifier parsing shared by the feature normalization pipeline.
package core

// Column names of the on-disk feature table. Every backend exposes the
// dataset under these names regardless of storage format.
const (
	ColSampleAccession = "sample_accession"
	ColProteinGroups   = "pg_accessions"
	ColPeptidoform     = "peptidoform"
	ColSequence        = "sequence"
	ColUnique          = "unique"
	ColCharge          = "charge"
	ColIntensity       = "intensity"
	ColRun             = "run"
	ColCondition       = "condition"
	ColBioReplicate    = "biological_replicate"
	ColChannel         = "channel"
	ColFraction        = "fraction"
)

// RequiredColumns lists the columns every feature store must carry.
// ColFraction is optional; single-fraction datasets may omit it.
var RequiredColumns = []string{
	ColSampleAccession,
	ColProteinGroups,
	ColPeptidoform,
	ColSequence,
	ColUnique,
	ColCharge,
	ColIntensity,
	ColRun,
	ColCondition,
	ColBioReplicate,
	ColChannel,
}

// EmptyCondition marks rows that upstream tools could not assign to a study
// condition. Such rows never enter the pipeline.
const EmptyCondition = "Empty"

// FeatureRow is one quantified PSM feature as read from the store.
type FeatureRow struct {
	// Identification
	ProteinGroup     string // ";"-joined protein accessions
	PeptideSequence  string // peptidoform: sequence with modification annotations
	CanonicalPeptide string // sequence with annotations stripped
	Charge           int
	Unique           bool // peptide maps to a single protein group

	// Experimental design
	SampleID      string
	Condition     string
	BioReplicate  string
	Run           string
	TechReplicate int    // derived from Run, see TechReplicate
	Fraction      int    // 1 when the dataset carries no fractions
	Channel       string // reporter channel token, e.g. "TMT126"
	ChannelIndex  int    // 1-based scheme index after mapping, 0 for label-free

	// Quantification
	Intensity float64
}

// PeptideRow is one row of the normalized peptide table, the unit written to
// the output artifact.
type PeptideRow struct {
	ProteinGroup        string
	CanonicalPeptide    string
	SampleID            string
	BioReplicate        string
	Condition           string
	NormalizedIntensity float64
}

// OutputHeader is the column header of the peptide table, written once before
// the first appended sample.
var OutputHeader = []string{
	"ProteinGroup",
	"CanonicalPeptide",
	"SampleID",
	"BioReplicate",
	"Condition",
	"NormalizedIntensity",
}
