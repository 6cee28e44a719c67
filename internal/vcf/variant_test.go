package vcf

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozenRegistry(t *testing.T, meta ...string) *Registry {
	t.Helper()
	reg := NewRegistry()
	lines := make([]Line, len(meta))
	for i, m := range meta {
		lines[i] = Line{Number: i + 1, Text: m}
	}
	warnings, err := LoadDirectives(reg, lines)
	require.NoError(t, err)
	require.Empty(t, warnings)
	reg.Freeze()
	return reg
}

func newTestBuilder(t *testing.T, samples ...string) *Builder {
	t.Helper()
	reg := frozenRegistry(t,
		`##INFO=<ID=AF,Number=A,Type=Float,Description="Allele Freq">`,
		`##INFO=<ID=DP,Number=1,Type=Integer,Description="Depth">`,
		`##INFO=<ID=DB,Number=0,Type=Flag,Description="dbSNP membership">`,
		`##INFO=<ID=AA,Number=1,Type=String,Description="Ancestral Allele">`,
		`##ALT=<ID=DEL,Description="Deletion">`,
	)
	header := "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT"
	for _, s := range samples {
		header += "\t" + s
	}
	b, err := NewBuilder(reg, NewSampleIndex(header))
	require.NoError(t, err)
	return b
}

func TestBuilder_RequiresFrozenRegistry(t *testing.T) {
	_, err := NewBuilder(NewRegistry(), NewSampleIndex(""))
	assert.Error(t, err)
}

func TestBuilder_VariantFields(t *testing.T) {
	b := newTestBuilder(t, "S1")

	rec, err := b.Build(10, "12\t25245351\trs1,rs2\tC\t<DEL>,A\t50\tPASS\tAF=0.5,0.25;DP=14;DB;AA=C\tGT\t0/1")
	require.NoError(t, err)
	require.Empty(t, rec.Warnings)

	v := rec.Variant
	assert.Equal(t, "rs1,rs2", v.Key)
	assert.Equal(t, []string{"rs1", "rs2"}, v.Names)
	assert.Equal(t, 12, v.Chromosome)
	assert.Equal(t, "25245351", v.Position)
	assert.Equal(t, "C", v.ReferenceBase)
	assert.Equal(t, []string{"DEL", "A"}, v.AlternateBases)
	assert.Equal(t, "PASS", v.Filter)
	assert.Contains(t, v.AlternateStructure, "DEL")

	require.Len(t, v.Info, 4)
	assert.Equal(t, []float64{0.5, 0.25}, v.Info["AF"].Value.Floats)
	assert.Equal(t, []int64{14}, v.Info["DP"].Value.Ints)
	assert.Equal(t, Flag, v.Info["DB"].Value.Type)
	assert.Equal(t, 0, v.Info["DB"].Value.Len())
	assert.Equal(t, []string{"C"}, v.Info["AA"].Value.Strings)
	assert.Equal(t, "Depth", v.Info["DP"].Descriptor.Description())
}

func TestBuilder_InfoDescriptorIsCopied(t *testing.T) {
	b := newTestBuilder(t)

	r1, err := b.Build(1, "1\t100\trs1\tA\tG\t.\tPASS\tDP=1")
	require.NoError(t, err)
	r2, err := b.Build(2, "1\t200\trs2\tA\tG\t.\tPASS\tDP=2")
	require.NoError(t, err)

	d1 := r1.Variant.Info["DP"].Descriptor
	d2 := r2.Variant.Info["DP"].Descriptor
	assert.NotSame(t, d1, d2)

	d1.Attributes["description"] = "mutated"
	registered, _ := b.registry.LookupInfo("DP")
	assert.Equal(t, "Depth", registered.Description())
	assert.Equal(t, "Depth", d2.Description())

	// ALT structure is shared, not copied.
	assert.Equal(t,
		r1.Variant.AlternateStructure["DEL"],
		r2.Variant.AlternateStructure["DEL"])
}

func TestBuilder_UnknownInfoField(t *testing.T) {
	b := newTestBuilder(t)

	rec, err := b.Build(3, "1\t100\trs1\tA\tG\t.\tPASS\tXX=1;DP=5")
	require.NoError(t, err)
	require.Len(t, rec.Warnings, 1)
	assert.ErrorIs(t, rec.Warnings[0], ErrUnknownFieldReference)
	assert.Contains(t, rec.Variant.Info, "DP")
	assert.NotContains(t, rec.Variant.Info, "XX")
}

func TestBuilder_MalformedValueDropsWholeField(t *testing.T) {
	b := newTestBuilder(t)

	rec, err := b.Build(4, "1\t100\trs1\tA\tG\t.\tPASS\tDP=1,x,3;AF=0.1")
	require.NoError(t, err)
	require.Len(t, rec.Warnings, 1)
	assert.ErrorIs(t, rec.Warnings[0], ErrMalformedValue)

	var pe *ParseError
	require.ErrorAs(t, rec.Warnings[0], &pe)
	assert.Equal(t, 4, pe.Line)
	assert.Equal(t, "DP", pe.Field)

	assert.NotContains(t, rec.Variant.Info, "DP")
	assert.Contains(t, rec.Variant.Info, "AF")
}

func TestBuilder_EmptyInfo(t *testing.T) {
	b := newTestBuilder(t)

	for _, info := range []string{".", "DP=1;;"} {
		rec, err := b.Build(1, "1\t100\trs1\tA\tG\t.\tPASS\t"+info)
		require.NoError(t, err)
		assert.Empty(t, rec.Warnings, info)
	}
}

func TestBuilder_MalformedRecord(t *testing.T) {
	b := newTestBuilder(t)

	tests := []struct {
		name string
		line string
	}{
		{"too few columns", "1\t100\trs1\tA\tG"},
		{"non-integer chromosome", "X\t100\trs1\tA\tG\t.\tPASS\tDP=1"},
		{"chr prefix", "chr1\t100\trs1\tA\tG\t.\tPASS\tDP=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := b.Build(7, tt.line)
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestBuilder_TabRuns(t *testing.T) {
	b := newTestBuilder(t, "S1")

	rec, err := b.Build(1, "1\t\t100\trs1\tA\t\tG\t.\tPASS\tDP=1\tGT\t\t1|0\r\n")
	require.NoError(t, err)
	assert.Equal(t, "100", rec.Variant.Position)
	assert.Equal(t, []string{"G"}, rec.Variant.AlternateBases)
	require.Len(t, rec.Calls, 1)
	assert.Equal(t, []int{1, 0}, rec.Calls[0].Call.Genotype)
}

func TestBuilder_Calls(t *testing.T) {
	b := newTestBuilder(t, "S1", "S2", "S3")

	rec, err := b.Build(1, "1\t100\trs9\tA\tG\t.\tPASS\tDP=1\tGT:DP\t0/1:12\t./.\t1|1")
	require.NoError(t, err)
	require.Len(t, rec.Calls, 2)

	assert.Equal(t, SampleCall{
		SampleID: "S1",
		Call:     Call{VariantKey: "rs9", Phased: false, Genotype: []int{0, 1}},
	}, rec.Calls[0])
	assert.Equal(t, SampleCall{
		SampleID: "S3",
		Call:     Call{VariantKey: "rs9", Phased: true, Genotype: []int{1, 1}},
	}, rec.Calls[1])
}

func TestBuilder_ExtraSampleColumns(t *testing.T) {
	b := newTestBuilder(t, "S1")

	rec, err := b.Build(1, "1\t100\trs9\tA\tG\t.\tPASS\tDP=1\tGT\t0/1\t1/1")
	require.NoError(t, err)
	require.Len(t, rec.Calls, 1)
	require.Len(t, rec.Warnings, 1)
	assert.ErrorIs(t, rec.Warnings[0], ErrMalformedRecord)
}

func TestBuilder_SampleFilter(t *testing.T) {
	b := newTestBuilder(t, "S1", "S2")
	b.SetSampleFilter([]string{"S2"})

	rec, err := b.Build(1, "1\t100\trs9\tA\tG\t.\tPASS\tDP=1\tGT\t0/1\t1/1")
	require.NoError(t, err)
	require.Len(t, rec.Calls, 1)
	assert.Equal(t, "S2", rec.Calls[0].SampleID)

	assert.True(t, b.Selected("S2"))
	assert.False(t, b.Selected("S1"))

	b.SetSampleFilter(nil)
	assert.True(t, b.Selected("S1"))
}

func TestParseGenotype(t *testing.T) {
	tests := []struct {
		token    string
		ok       bool
		phased   bool
		genotype []int
	}{
		{"0/1", true, false, []int{0, 1}},
		{"1|1", true, true, []int{1, 1}},
		{"10/2", true, false, []int{10, 2}},
		{"0/1/2", true, false, []int{0, 1, 2}},
		{"0|1:35:99", true, true, []int{0, 1}},
		{"./.", false, false, nil},
		{".|.", false, false, nil},
		{"0/.", false, false, nil},
		{"1", false, false, nil},
		{"0//1", false, false, nil},
		{"0/1/", false, false, nil},
		{"/1", false, false, nil},
		{"a/b", false, false, nil},
		{"", false, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			call, ok := ParseGenotype(tt.token)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.phased, call.Phased)
				assert.Equal(t, tt.genotype, call.Genotype)
			}
		})
	}
}

func TestVariant_JSON(t *testing.T) {
	b := newTestBuilder(t)

	rec, err := b.Build(1, "1\t100\trs1\tA\tG\t.\tPASS\tAF=0.5;DB")
	require.NoError(t, err)

	data, err := json.Marshal(rec.Variant)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "rs1", doc["key"])
	assert.Equal(t, float64(1), doc["chromosome"])

	info := doc["info"].(map[string]any)
	af := info["AF"].(map[string]any)
	assert.Equal(t, []any{0.5}, af["value"])
	assert.Equal(t, "Float", af["type"])
	assert.Equal(t, "Allele Freq", af["description"])
	assert.Equal(t, []any{}, info["DB"].(map[string]any)["value"])

	alt := doc["alternate_structure"].(map[string]any)
	assert.Equal(t, "Deletion", alt["DEL"].(map[string]any)["description"])
}
