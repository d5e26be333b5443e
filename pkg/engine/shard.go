package engine

import (
	"github.com/plantpulse/plantpulse/internal/model"
)

// Shard is a contiguous slice of run groups assigned to one worker for one
// job, plus a share of the loose downtime-only rows.
type Shard struct {
	Index int
	Runs  []*model.ProductionRun
	Loose []*model.Record
}

// Plan partitions run groups into at most workerCount contiguous shards of
// size ceil(len/workerCount). Zero run groups yield zero shards: the
// orchestrator then completes the job immediately with an all-zero result.
// No shard is empty when groups exist; the last shard absorbs the remainder.
// Loose rows are dealt round-robin across the planned shards, which is safe
// because their aggregation is commutative.
func Plan(g Grouping, workerCount int) []Shard {
	if workerCount < 1 {
		workerCount = 1
	}

	runs := g.SortedRuns()
	if len(runs) == 0 {
		return nil
	}

	size := (len(runs) + workerCount - 1) / workerCount
	shards := make([]Shard, 0, workerCount)
	for start := 0; start < len(runs); start += size {
		end := start + size
		if end > len(runs) {
			end = len(runs)
		}
		shards = append(shards, Shard{
			Index: len(shards),
			Runs:  runs[start:end],
		})
	}

	for i, r := range g.Loose {
		s := &shards[i%len(shards)]
		s.Loose = append(s.Loose, r)
	}
	return shards
}
