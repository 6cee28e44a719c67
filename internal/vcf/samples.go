// Package vcf provides VCF file parsing functionality.
package vcf

import "strings"

// FixedColumns is the number of per-variant columns preceding sample columns
// (CHROM POS ID REF ALT QUAL FILTER INFO FORMAT).
const FixedColumns = 9

// SampleIndex maps sample column positions to sample ids.
// Index 0 is the 10th tab-delimited column of a body line.
type SampleIndex struct {
	ids []string
}

// NewSampleIndex builds the index from the #CHROM column header line.
func NewSampleIndex(headerLine string) *SampleIndex {
	fields := splitColumns(headerLine)
	if len(fields) <= FixedColumns {
		return &SampleIndex{}
	}
	return &SampleIndex{ids: append([]string(nil), fields[FixedColumns:]...)}
}

// Len returns the number of samples.
func (s *SampleIndex) Len() int { return len(s.ids) }

// ID returns the sample id of sample column i.
func (s *SampleIndex) ID(i int) (string, bool) {
	if i < 0 || i >= len(s.ids) {
		return "", false
	}
	return s.ids[i], true
}

// IDs returns a copy of the sample ids in column order.
func (s *SampleIndex) IDs() []string {
	return append([]string(nil), s.ids...)
}

// Contains reports whether id is declared in the column header.
func (s *SampleIndex) Contains(id string) bool {
	for _, x := range s.ids {
		if x == id {
			return true
		}
	}
	return false
}

// splitColumns splits a line on tabs, treating runs of tabs as one delimiter.
func splitColumns(line string) []string {
	line = strings.TrimRight(line, "\r\n")
	return strings.FieldsFunc(line, func(r rune) bool { return r == '\t' })
}
