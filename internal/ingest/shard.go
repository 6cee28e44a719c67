// Package ingest runs the parallel ingestion of a VCF body into a store.
package ingest

import "github.com/inodb/vcfload/internal/vcf"

// Shard is a contiguous run of body lines handled by one worker.
type Shard struct {
	Index int
	Lines []vcf.Line
}

// PlanShards splits lines into min(workers, len(lines)) contiguous shards
// whose sizes differ by at most one. Earlier shards take the remainder.
// workers < 1 is treated as 1; no lines yield no shards.
func PlanShards(lines []vcf.Line, workers int) []Shard {
	if workers < 1 {
		workers = 1
	}
	n := len(lines)
	if n == 0 {
		return nil
	}
	k := min(workers, n)
	base, extra := n/k, n%k

	shards := make([]Shard, 0, k)
	start := 0
	for i := range k {
		size := base
		if i < extra {
			size++
		}
		shards = append(shards, Shard{Index: i, Lines: lines[start : start+size : start+size]})
		start += size
	}
	return shards
}
