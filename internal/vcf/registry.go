// Package vcf provides VCF file parsing functionality.
package vcf

import "sort"

// Registry holds the INFO and ALT field descriptors declared in a header.
//
// It is filled single-threaded during the header phase and frozen before any
// body line is interpreted; after Freeze it is safe to share across goroutines.
type Registry struct {
	info   map[string]*FieldDescriptor
	alt    map[string]*FieldDescriptor
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		info: make(map[string]*FieldDescriptor),
		alt:  make(map[string]*FieldDescriptor),
	}
}

// RegisterInfo adds or replaces an INFO descriptor.
func (r *Registry) RegisterInfo(d *FieldDescriptor) error {
	return r.register(r.info, d)
}

// RegisterAlt adds or replaces an ALT descriptor.
func (r *Registry) RegisterAlt(d *FieldDescriptor) error {
	return r.register(r.alt, d)
}

// Register routes d into the namespace for cat. Unrecognized categories are
// ignored.
func (r *Registry) Register(cat Category, d *FieldDescriptor) error {
	switch cat {
	case CategoryInfo:
		return r.RegisterInfo(d)
	case CategoryAlt:
		return r.RegisterAlt(d)
	}
	return nil
}

func (r *Registry) register(m map[string]*FieldDescriptor, d *FieldDescriptor) error {
	if r.frozen {
		return ErrRegistryFrozen
	}
	m[d.ID] = d
	return nil
}

// LookupInfo returns the INFO descriptor for id.
func (r *Registry) LookupInfo(id string) (*FieldDescriptor, bool) {
	d, ok := r.info[id]
	return d, ok
}

// LookupAlt returns the ALT descriptor for id.
func (r *Registry) LookupAlt(id string) (*FieldDescriptor, bool) {
	d, ok := r.alt[id]
	return d, ok
}

// Freeze marks the registry read-only.
func (r *Registry) Freeze() { r.frozen = true }

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool { return r.frozen }

// AltStructure returns the ALT mapping shared by every variant of a session.
// Callers must not modify it.
func (r *Registry) AltStructure() map[string]*FieldDescriptor {
	return r.alt
}

// InfoIDs returns the declared INFO ids in sorted order.
func (r *Registry) InfoIDs() []string {
	ids := make([]string, 0, len(r.info))
	for id := range r.info {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of INFO and ALT descriptors.
func (r *Registry) Len() (info, alt int) {
	return len(r.info), len(r.alt)
}
