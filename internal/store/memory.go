package store

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/inodb/vcfload/internal/vcf"
)

// Compile-time contract assertion.
var _ Client = (*Memory)(nil)

type memorySample struct {
	calls    []vcf.Call
	variants map[string]bool
}

// Memory is an in-memory Client used for tests and dry runs.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]bool
	indexes     map[string]bool
	samples     map[string]*memorySample
	variants    map[string]*vcf.Variant
	closed      bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]bool),
		indexes:     make(map[string]bool),
		samples:     make(map[string]*memorySample),
		variants:    make(map[string]*vcf.Variant),
	}
}

func (m *Memory) check() error {
	if m.closed {
		return fmt.Errorf("memory store: closed")
	}
	return nil
}

func (m *Memory) CollectionExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return false, err
	}
	return m.collections[name], nil
}

func (m *Memory) CreateCollection(_ context.Context, name string) error {
	if name != Samples && name != Variants {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.collections[name] = true
	return nil
}

func (m *Memory) Collection(_ context.Context, name string) (CollectionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return CollectionInfo{}, err
	}
	if !m.collections[name] {
		return CollectionInfo{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	info := CollectionInfo{Name: name}
	switch name {
	case Samples:
		info.Documents = int64(len(m.samples))
	case Variants:
		info.Documents = int64(len(m.variants))
	}
	return info, nil
}

func (m *Memory) EnsureIndex(_ context.Context, collection, field string, unique bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.indexes[fmt.Sprintf("%s.%s.%t", collection, field, unique)] = true
	return nil
}

func (m *Memory) InsertSample(_ context.Context, id string) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	if _, ok := m.samples[id]; ok {
		return AlreadyExists, nil
	}
	m.samples[id] = &memorySample{variants: make(map[string]bool)}
	return Created, nil
}

func (m *Memory) InsertVariant(_ context.Context, v *vcf.Variant) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	if _, ok := m.variants[v.Key]; ok {
		return AlreadyExists, nil
	}
	m.variants[v.Key] = v
	return Created, nil
}

func (m *Memory) AppendCall(_ context.Context, sampleID string, call vcf.Call) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	s, ok := m.samples[sampleID]
	if !ok {
		return NotFound, nil
	}
	if s.variants[call.VariantKey] {
		return AlreadyExists, nil
	}
	s.variants[call.VariantKey] = true
	call.Genotype = slices.Clone(call.Genotype)
	s.calls = append(s.calls, call)
	return Appended, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns a copy of the calls recorded for a sample.
func (m *Memory) Calls(sampleID string) ([]vcf.Call, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.samples[sampleID]
	if !ok {
		return nil, false
	}
	return slices.Clone(s.calls), true
}

// Variant returns a stored variant by key.
func (m *Memory) Variant(key string) (*vcf.Variant, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.variants[key]
	return v, ok
}

// HasIndex reports whether EnsureIndex was called with these arguments.
func (m *Memory) HasIndex(collection, field string, unique bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexes[fmt.Sprintf("%s.%s.%t", collection, field, unique)]
}
