package duckdb

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vcfload/internal/store"
	"github.com/inodb/vcfload/internal/vcf"
)

func openInMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func acquireAll(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{store.Samples, store.Variants} {
		_, err := store.Acquire(ctx, s, name)
		require.NoError(t, err)
	}
}

func TestOpenClose(t *testing.T) {
	s := openInMemory(t)
	assert.NotNil(t, s.DB())
	assert.Empty(t, s.Path())
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "db.duckdb")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, path, s.Path())
	assert.FileExists(t, path)
}

func TestAcquireCollections(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	ok, err := s.CollectionExists(ctx, store.Samples)
	require.NoError(t, err)
	assert.False(t, ok)

	info, err := store.Acquire(ctx, s, store.Samples)
	require.NoError(t, err)
	assert.Equal(t, store.CollectionInfo{Name: store.Samples}, info)

	ok, err = s.CollectionExists(ctx, store.Samples)
	require.NoError(t, err)
	assert.True(t, ok)

	// CreateCollection is idempotent.
	require.NoError(t, s.CreateCollection(ctx, store.Samples))

	_, err = s.CollectionExists(ctx, "genes")
	assert.ErrorIs(t, err, store.ErrUnknownCollection)
	assert.ErrorIs(t, s.CreateCollection(ctx, "genes"), store.ErrUnknownCollection)
}

func TestInsertSampleIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)
	acquireAll(t, s)

	out, err := s.InsertSample(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, store.Created, out)

	out, err = s.InsertSample(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, store.AlreadyExists, out)

	info, err := s.Collection(ctx, store.Samples)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Documents)
}

func testVariant() *vcf.Variant {
	dp := vcf.NewFieldDescriptor("DP")
	dp.Set("Type", "Integer")
	dp.Set("Number", "1")
	return &vcf.Variant{
		Key:                "rs6054257",
		Names:              []string{"rs6054257"},
		Chromosome:         20,
		Position:           "14370",
		Filter:             "PASS",
		ReferenceBase:      "G",
		AlternateBases:     []string{"A", "DEL"},
		AlternateStructure: map[string]*vcf.FieldDescriptor{},
		Info: map[string]*vcf.InfoEntry{
			"DP": {Descriptor: dp, Value: vcf.Value{Type: vcf.Integer, Ints: []int64{14}}},
		},
	}
}

func TestInsertAndLookupVariant(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)
	acquireAll(t, s)

	out, err := s.InsertVariant(ctx, testVariant())
	require.NoError(t, err)
	assert.Equal(t, store.Created, out)

	out, err = s.InsertVariant(ctx, testVariant())
	require.NoError(t, err)
	assert.Equal(t, store.AlreadyExists, out)

	row, err := s.LookupVariant(ctx, "rs6054257")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 20, row.Chromosome)
	assert.Equal(t, "14370", row.Position)
	assert.Equal(t, "PASS", row.Filter)
	assert.Equal(t, "G", row.ReferenceBase)
	assert.Equal(t, []string{"rs6054257"}, row.Names)
	assert.Equal(t, []string{"A", "DEL"}, row.AlternateBases)
	require.Contains(t, row.Info, "DP")
	assert.Equal(t, "Integer", row.Info["DP"]["type"])
	assert.Equal(t, []any{float64(14)}, row.Info["DP"]["value"])

	missing, err := s.LookupVariant(ctx, "rs0")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInsertVariant_WideChromosome(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)
	acquireAll(t, s)

	v := testVariant()
	v.Chromosome = 3_000_000_000
	_, err := s.InsertVariant(ctx, v)
	require.NoError(t, err)

	row, err := s.LookupVariant(ctx, v.Key)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 3_000_000_000, row.Chromosome)
}

func TestInsertVariant_Rejected(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)
	acquireAll(t, s)

	v := testVariant()
	v.Info["AF"] = &vcf.InfoEntry{
		Descriptor: vcf.NewFieldDescriptor("AF"),
		Value:      vcf.Value{Type: vcf.Float, Floats: []float64{math.NaN()}},
	}
	_, err := s.InsertVariant(ctx, v)
	assert.ErrorIs(t, err, store.ErrRejected)

	row, err := s.LookupVariant(ctx, v.Key)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestAppendCall(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)
	acquireAll(t, s)

	call := vcf.Call{VariantKey: "rs1", Phased: true, Genotype: []int{0, 1}}

	out, err := s.AppendCall(ctx, "S1", call)
	require.NoError(t, err)
	assert.Equal(t, store.NotFound, out)

	_, err = s.InsertSample(ctx, "S1")
	require.NoError(t, err)

	out, err = s.AppendCall(ctx, "S1", call)
	require.NoError(t, err)
	assert.Equal(t, store.Appended, out)

	out, err = s.AppendCall(ctx, "S1", call)
	require.NoError(t, err)
	assert.Equal(t, store.AlreadyExists, out)

	second := vcf.Call{VariantKey: "rs2", Genotype: []int{1, 1}}
	out, err = s.AppendCall(ctx, "S1", second)
	require.NoError(t, err)
	assert.Equal(t, store.Appended, out)

	calls, err := s.Calls(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, []vcf.Call{call, second}, calls)

	none, err := s.Calls(ctx, "S2")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEnsureIndex(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)
	acquireAll(t, s)

	tests := []struct {
		name       string
		collection string
		field      string
		unique     bool
		wantErr    bool
	}{
		{"sample key", store.Samples, store.SampleKeyField, true, false},
		{"variant key", store.Variants, store.VariantKeyField, true, false},
		{"secondary", store.Variants, "chromosome", false, false},
		{"unknown field", store.Variants, "gene", false, true},
		{"unknown collection", "genes", "id", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.EnsureIndex(ctx, tt.collection, tt.field, tt.unique)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			// Idempotent.
			require.NoError(t, s.EnsureIndex(ctx, tt.collection, tt.field, tt.unique))
		})
	}
}

func TestRecordRun(t *testing.T) {
	ctx := context.Background()
	s := openInMemory(t)

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := store.RunRecord{
		RunID:    "run-1",
		Input:    store.FileFingerprint{Path: "in.vcf", Size: 42, ModTime: started.Add(-time.Hour)},
		State:    "completed",
		Variants: 3,
		Calls:    5,
		Started:  started,
		Finished: started.Add(time.Second),
	}
	require.NoError(t, s.RecordRun(ctx, r))

	r.State = "failed"
	require.NoError(t, s.RecordRun(ctx, r))

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].State)
	assert.Equal(t, int64(42), runs[0].Input.Size)
	assert.Equal(t, int64(5), runs[0].Calls)
	assert.True(t, runs[0].Started.Equal(started))
}
