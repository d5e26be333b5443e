package engine

import (
	"time"

	"github.com/plantpulse/plantpulse/internal/model"
	"github.com/plantpulse/plantpulse/pkg/store"
)

// Filter returns the records matching criteria. Candidate rows are narrowed
// through the store's bitmap index first (OR within each selected set, AND
// across dimensions), then the surviving positions take the date-range scan.
// Pure and deterministic; the store is never mutated.
func Filter(st *store.Store, criteria model.FilterCriteria) []*model.Record {
	idx := st.Index()
	candidates := idx.All()

	if len(criteria.Machines) > 0 {
		candidates.And(idx.LookupAny(store.DimMachine, criteria.Machines))
	}
	if len(criteria.Shifts) > 0 {
		candidates.And(idx.LookupAny(store.DimShift, criteria.Shifts))
	}
	if criteria.Operator != "" {
		candidates.And(idx.Lookup(store.DimOperator, criteria.Operator))
	}
	if criteria.MachineGroup != "" {
		candidates.And(idx.Lookup(store.DimMachineGroup, criteria.MachineGroup))
	}

	start, end := dateBounds(criteria)

	matched := make([]*model.Record, 0, candidates.GetCardinality())
	records := st.Records()

	it := candidates.Iterator()
	for it.HasNext() {
		pos := it.Next()
		r := &records[pos]
		if !inRange(r.Date, start, end) {
			continue
		}
		matched = append(matched, r)
	}
	return matched
}

// Match reports whether a single record passes the criteria. Used by the
// drill-down path, which filters outside the bitmap index.
func Match(r *model.Record, criteria model.FilterCriteria) bool {
	start, end := dateBounds(criteria)
	if !inRange(r.Date, start, end) {
		return false
	}
	if len(criteria.Machines) > 0 && !contains(criteria.Machines, r.Machine) {
		return false
	}
	if len(criteria.Shifts) > 0 && !contains(criteria.Shifts, r.Shift) {
		return false
	}
	if criteria.Operator != "" && criteria.Operator != r.Operator {
		return false
	}
	if criteria.MachineGroup != "" && criteria.MachineGroup != r.MachineGroup {
		return false
	}
	return true
}

// dateBounds widens the criteria range to whole days:
// [start 00:00:00, end 23:59:59.999...] inclusive.
func dateBounds(criteria model.FilterCriteria) (time.Time, time.Time) {
	var start, end time.Time
	if !criteria.From.IsZero() {
		y, m, d := criteria.From.Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, criteria.From.Location())
	}
	if !criteria.To.IsZero() {
		y, m, d := criteria.To.Date()
		end = time.Date(y, m, d, 0, 0, 0, 0, criteria.To.Location()).AddDate(0, 0, 1)
	}
	return start, end
}

func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && !t.Before(end) {
		return false
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
