// Package vcf provides VCF file parsing functionality.
package vcf

import "encoding/json"

// Variant represents a single genomic variant from a VCF body line.
type Variant struct {
	Key                string                      `json:"key"`         // ID column, the store uniqueness key
	Names              []string                    `json:"names"`       // ID column split on commas
	Chromosome         int                         `json:"chromosome"`  // CHROM as an integer
	Position           string                      `json:"position"`    // POS as declared
	Filter             string                      `json:"filter"`      // FILTER
	ReferenceBase      string                      `json:"reference_base"`
	AlternateBases     []string                    `json:"alternate_bases"`
	AlternateStructure map[string]*FieldDescriptor `json:"alternate_structure"` // shared ALT snapshot, read-only
	Info               map[string]*InfoEntry       `json:"info"`
}

// InfoEntry is one INFO field of one variant: a private copy of the declared
// descriptor plus the coerced value.
type InfoEntry struct {
	Descriptor *FieldDescriptor
	Value      Value
}

// MarshalJSON encodes the entry as the descriptor's attributes merged with a
// "value" member.
func (e *InfoEntry) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Descriptor.Attributes)+1)
	for k, v := range e.Descriptor.Attributes {
		m[k] = v
	}
	m["value"] = e.Value
	return json.Marshal(m)
}

// Call is one genotype observation of a sample against a variant.
type Call struct {
	VariantKey string `json:"variant"`
	Phased     bool   `json:"phased"`
	Genotype   []int  `json:"genotype"`
}

// SampleCall pairs a call with the sample that owns it.
type SampleCall struct {
	SampleID string
	Call     Call
}
