// Package vcf provides VCF file parsing functionality.
package vcf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Body column positions.
const (
	colChrom  = 0
	colPos    = 1
	colID     = 2
	colRef    = 3
	colAlt    = 4
	colFilter = 6
	colInfo   = 7
)

// minBodyColumns is the number of columns a body line needs to yield a Variant.
const minBodyColumns = 8

// Record is the result of building one body line.
type Record struct {
	Line     int
	Variant  *Variant
	Calls    []SampleCall
	Warnings []error // per-field and per-column problems; the record is still usable
}

// Builder turns body lines into variants and calls using a frozen header.
// A Builder holds no mutable state and may be shared by workers.
type Builder struct {
	registry *Registry
	samples  *SampleIndex
	selected map[string]bool // nil means every sample
}

// NewBuilder creates a builder. The registry must be frozen.
func NewBuilder(reg *Registry, samples *SampleIndex) (*Builder, error) {
	if !reg.Frozen() {
		return nil, errors.New("vcf: builder requires a frozen registry")
	}
	return &Builder{registry: reg, samples: samples}, nil
}

// SetSampleFilter restricts call extraction to the given sample ids.
// An empty list selects every sample.
func (b *Builder) SetSampleFilter(ids []string) {
	if len(ids) == 0 {
		b.selected = nil
		return
	}
	b.selected = make(map[string]bool, len(ids))
	for _, id := range ids {
		b.selected[id] = true
	}
}

// Selected reports whether calls for sample id are extracted.
func (b *Builder) Selected(id string) bool {
	return b.selected == nil || b.selected[id]
}

// Build parses one body line. A returned error is always an
// ErrMalformedRecord *ParseError and means the whole line is skipped.
func (b *Builder) Build(lineNumber int, line string) (*Record, error) {
	fields := splitColumns(line)
	if len(fields) < minBodyColumns {
		return nil, &ParseError{
			Line:    lineNumber,
			Kind:    ErrMalformedRecord,
			Message: fmt.Sprintf("expected at least %d columns, found %d", minBodyColumns, len(fields)),
		}
	}

	chrom, err := strconv.Atoi(fields[colChrom])
	if err != nil {
		return nil, &ParseError{
			Line:    lineNumber,
			Kind:    ErrMalformedRecord,
			Field:   "CHROM",
			Message: fmt.Sprintf("invalid chromosome: %s", fields[colChrom]),
		}
	}

	rec := &Record{Line: lineNumber}
	v := &Variant{
		Key:                fields[colID],
		Names:              strings.Split(fields[colID], ","),
		Chromosome:         chrom,
		Position:           fields[colPos],
		Filter:             fields[colFilter],
		ReferenceBase:      fields[colRef],
		AlternateBases:     parseAlternates(fields[colAlt]),
		AlternateStructure: b.registry.AltStructure(),
		Info:               make(map[string]*InfoEntry),
	}
	b.parseInfo(rec, v, fields[colInfo])
	rec.Variant = v

	if len(fields) > FixedColumns {
		b.parseCalls(rec, v.Key, fields[FixedColumns:])
	}
	return rec, nil
}

// parseAlternates splits ALT on commas and unwraps symbolic <...> alleles.
func parseAlternates(alt string) []string {
	alleles := strings.Split(alt, ",")
	for i, a := range alleles {
		a = strings.TrimPrefix(a, "<")
		alleles[i] = strings.TrimSuffix(a, ">")
	}
	return alleles
}

func (b *Builder) parseInfo(rec *Record, v *Variant, info string) {
	if info == "." || info == "" {
		return
	}
	for _, kv := range strings.Split(info, ";") {
		if kv == "" {
			continue
		}
		key, raw, hasValue := strings.Cut(kv, "=")
		desc, ok := b.registry.LookupInfo(key)
		if !ok {
			rec.Warnings = append(rec.Warnings, &ParseError{
				Line:    rec.Line,
				Kind:    ErrUnknownFieldReference,
				Field:   key,
				Message: "INFO field not declared in header",
			})
			continue
		}

		value := FlagValue()
		if hasValue {
			var err error
			if value, err = Coerce(desc, raw); err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					pe.Line = rec.Line
				}
				rec.Warnings = append(rec.Warnings, err)
				continue
			}
		}
		v.Info[key] = &InfoEntry{Descriptor: desc.Clone(), Value: value}
	}
}

func (b *Builder) parseCalls(rec *Record, variantKey string, columns []string) {
	for i, col := range columns {
		sampleID, ok := b.samples.ID(i)
		if !ok {
			rec.Warnings = append(rec.Warnings, &ParseError{
				Line:    rec.Line,
				Kind:    ErrMalformedRecord,
				Message: fmt.Sprintf("%d sample columns, header declares %d", len(columns), b.samples.Len()),
			})
			return
		}
		if !b.Selected(sampleID) {
			continue
		}
		call, ok := ParseGenotype(col)
		if !ok {
			continue
		}
		call.VariantKey = variantKey
		rec.Calls = append(rec.Calls, SampleCall{SampleID: sampleID, Call: call})
	}
}

// ParseGenotype classifies a sample column. Only the GT subfield (text before
// the first ':') is considered. It must be digits separated by single '/' or
// '|' characters with at least two alleles; anything else, including missing
// alleles such as "./.", is a no-call and reports false.
func ParseGenotype(token string) (Call, bool) {
	gt, _, _ := strings.Cut(token, ":")
	if gt == "" {
		return Call{}, false
	}

	var (
		alleles []int
		phased  bool
		start   = 0
	)
	for i := 0; i <= len(gt); i++ {
		if i < len(gt) && gt[i] >= '0' && gt[i] <= '9' {
			continue
		}
		if i == start {
			return Call{}, false
		}
		n, err := strconv.Atoi(gt[start:i])
		if err != nil {
			return Call{}, false
		}
		alleles = append(alleles, n)
		if i == len(gt) {
			break
		}
		switch gt[i] {
		case '|':
			phased = true
		case '/':
		default:
			return Call{}, false
		}
		start = i + 1
	}
	if len(alleles) < 2 {
		return Call{}, false
	}
	return Call{Phased: phased, Genotype: alleles}, true
}
