// Package vcf provides VCF file parsing functionality.
package vcf

// LoadDirectives parses the INFO and ALT meta lines into reg.
// Other meta lines are ignored. The returned warnings are all
// ErrMalformedDirective parse errors; they never stop the load.
func LoadDirectives(reg *Registry, meta []Line) ([]error, error) {
	var warnings []error
	for _, l := range meta {
		key, rest, ok := SplitMetaLine(l.Text)
		if !ok {
			continue
		}
		cat := Category(key)
		if cat != CategoryInfo && cat != CategoryAlt {
			continue
		}
		descs, warns := ParseDirective(l.Number, rest)
		warnings = append(warnings, warns...)
		for _, d := range descs {
			if err := reg.Register(cat, d); err != nil {
				return warnings, err
			}
		}
	}
	return warnings, nil
}
