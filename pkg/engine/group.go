package engine

import (
	"sort"

	"github.com/plantpulse/plantpulse/internal/model"
)

// Grouping is the output of the run grouper: the run groups plus the rows
// that belong to no run. Loose rows contribute downtime and per-day data but
// never production totals.
type Grouping struct {
	Runs  map[model.RunKey]*model.ProductionRun
	Loose []*model.Record
}

// Group clusters filtered records into production-run groups keyed by
// (runID, machine). Rows with an empty runID join no group. This grouping is
// what prevents double-counting quantity and planned minutes when a run has
// multiple downtime rows.
//
// Grouping is idempotent with respect to input order: the same record set
// yields the same groups however it is sorted, and group row order follows
// input order only within a run.
func Group(records []*model.Record) Grouping {
	g := Grouping{
		Runs: make(map[model.RunKey]*model.ProductionRun),
	}

	for _, r := range records {
		if !r.HasRun() {
			g.Loose = append(g.Loose, r)
			continue
		}

		key := model.RunKey{RunID: r.RunID, Machine: r.Machine}
		run, ok := g.Runs[key]
		if !ok {
			run = &model.ProductionRun{Key: key}
			g.Runs[key] = run
		}
		run.Rows = append(run.Rows, r)
	}
	return g
}

// SortedRuns returns the run groups in deterministic (runID, machine) order,
// so shard contents are stable for a given filtered set.
func (g Grouping) SortedRuns() []*model.ProductionRun {
	runs := make([]*model.ProductionRun, 0, len(g.Runs))
	for _, run := range g.Runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Key.RunID != runs[j].Key.RunID {
			return runs[i].Key.RunID < runs[j].Key.RunID
		}
		return runs[i].Key.Machine < runs[j].Key.Machine
	})
	return runs
}
