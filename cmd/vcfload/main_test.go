package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleVCF = `##fileformat=VCFv4.1
##INFO=<ID=DP,Number=1,Type=Integer,Description="Total Depth">
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO	FORMAT	S1	S2
1	100	rs1	A	G	.	PASS	DP=10	GT	0/1	1|1
1	200	rs2	C	T	.	PASS	DP=5	GT	0/0	./.
`

// runCLI executes the CLI with an isolated home directory and fresh viper state.
func runCLI(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())

	var out, errOut bytes.Buffer
	code = execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.vcf")
	require.NoError(t, os.WriteFile(path, []byte(sampleVCF), 0644))
	return path
}

func TestIngest_Memory(t *testing.T) {
	code, stdout, stderr := runCLI(t, "--backend", "memory", "--log-level", "error", writeInput(t), "cohort", "2")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "state\tcompleted\n")
	assert.Contains(t, stdout, "database\tcohort\n")
	assert.Contains(t, stdout, "variants_written\t2\n")
	assert.Contains(t, stdout, "calls_written\t3\n")
	assert.Contains(t, stdout, "workers\t2\n")
}

func TestIngest_FileBackends(t *testing.T) {
	tests := []struct {
		backend string
		file    string
	}{
		{"duckdb", "cohort.duckdb"},
		{"bolt", "cohort.db"},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			dataDir := t.TempDir()
			code, stdout, stderr := runCLI(t, "--backend", tt.backend, "--data-dir", dataDir,
				"--log-level", "error", writeInput(t), "cohort")
			require.Equal(t, ExitSuccess, code, stderr)
			assert.Contains(t, stdout, "stored_variants\t2\n")
			assert.FileExists(t, filepath.Join(dataDir, tt.file))
		})
	}
}

func TestIngest_JSONSummary(t *testing.T) {
	code, stdout, stderr := runCLI(t, "--backend", "memory", "--log-level", "error", "-f", "json",
		"--samples", "S2", writeInput(t), "cohort")
	require.Equal(t, ExitSuccess, code, stderr)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "completed", got["state"])
	assert.Equal(t, float64(1), got["samples_created"])
	assert.Equal(t, float64(1), got["calls_written"])
}

func TestIngest_EnvConfig(t *testing.T) {
	t.Setenv("VCFLOAD_STORE_BACKEND", "memory")
	t.Setenv("VCFLOAD_LOG_LEVEL", "error")
	code, stdout, stderr := runCLI(t, writeInput(t), "cohort")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "state\tcompleted\n")
}

func TestIngest_ExitCodes(t *testing.T) {
	input := writeInput(t)
	missing := filepath.Join(t.TempDir(), "missing.vcf")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no arguments", nil, ExitUsage},
		{"one argument", []string{input}, ExitUsage},
		{"bad worker count", []string{"--backend", "memory", input, "cohort", "zero"}, ExitUsage},
		{"zero worker count", []string{"--backend", "memory", input, "cohort", "0"}, ExitUsage},
		{"unknown flag", []string{"--bogus", input, "cohort"}, ExitUsage},
		{"bad database name", []string{"--backend", "memory", input, "a/b"}, ExitUsage},
		{"bad output format", []string{"--backend", "memory", "-f", "xml", input, "cohort"}, ExitUsage},
		{"unknown backend", []string{"--backend", "mongo", "--log-level", "error", input, "cohort"}, ExitError},
		{"missing input", []string{"--backend", "memory", "--log-level", "error", missing, "cohort"}, ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, tt.want, code, stderr)
			if tt.want == ExitUsage {
				assert.Contains(t, stderr, "Usage:")
			}
		})
	}
}

func TestIngest_FailedRunPrintsSummary(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.vcf")
	code, stdout, _ := runCLI(t, "--backend", "memory", "--log-level", "error", missing, "cohort")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stdout, "state\tfailed\n")
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "--version")
	assert.Equal(t, ExitSuccess, code)
	assert.True(t, strings.HasPrefix(stdout, "vcfload version dev"))
}

func TestConfigSetGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	home := t.TempDir()
	t.Setenv("HOME", home)

	var out bytes.Buffer
	code := execute(context.Background(), []string{"config", "set", "store.backend", "bolt"}, &out, &out)
	require.Equal(t, ExitSuccess, code, out.String())
	assert.FileExists(t, filepath.Join(home, ".vcfload.yaml"))

	viper.Reset()
	out.Reset()
	code = execute(context.Background(), []string{"config", "get", "store.backend"}, &out, &out)
	require.Equal(t, ExitSuccess, code, out.String())
	assert.Equal(t, "bolt\n", out.String())

	viper.Reset()
	out.Reset()
	code = execute(context.Background(), []string{"config"}, &out, &out)
	require.Equal(t, ExitSuccess, code, out.String())
	assert.Contains(t, out.String(), "backend: bolt")
}

func TestLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := newLogger("debug", format)
		require.NoError(t, err)
		assert.NotNil(t, l)
	}
	_, err := newLogger("loud", "json")
	assert.Error(t, err)
	_, err = newLogger("info", "xml")
	assert.Error(t, err)
}
