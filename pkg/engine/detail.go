package engine

import (
	"sort"

	"github.com/plantpulse/plantpulse/internal/model"
	"github.com/plantpulse/plantpulse/pkg/errors"
)

// MachineDetail is the drill-down view for one machine within a filter
// window.
type MachineDetail struct {
	Machine         string          `json:"machine"`
	Rows            []*model.Record `json:"rows"`
	TotalProduction int64           `json:"totalProduction"`
	TotalRuns       int64           `json:"totalRuns"`
	DowntimeMinutes int64           `json:"downtimeMinutes"`
	ByReason        []ReasonRow     `json:"byReason"`
	DailyProduction []CategoryValue `json:"dailyProduction"`
}

// ReasonDetail is the drill-down view for one downtime reason.
type ReasonDetail struct {
	Reason    string          `json:"reason"`
	Rows      []*model.Record `json:"rows"`
	Minutes   int64           `json:"minutes"`
	Frequency int64           `json:"frequency"`
	ByMachine []CategoryValue `json:"byMachine"`
}

// DrilldownMachine returns the detail view for one machine. The machine
// filter in the criteria is replaced by the requested machine; all other
// criteria apply unchanged.
func (e *Engine) DrilldownMachine(criteria model.FilterCriteria, machine string) (*MachineDetail, error) {
	e.mu.RLock()
	st := e.st
	e.mu.RUnlock()
	if st == nil {
		return nil, errors.New(errors.CodeDatasetNotReady, "no dataset loaded")
	}

	criteria.Machines = []string{machine}
	rows := Filter(st, criteria)
	grouping := Group(rows)

	d := &MachineDetail{Machine: machine, Rows: rows}
	byReason := make(map[string]ReasonTotals)
	daily := make(map[string]int64)

	for _, run := range grouping.SortedRuns() {
		rep := run.Representative()
		d.TotalProduction += rep.Quantity
		d.TotalRuns++
		daily[rep.Day()] += rep.Quantity
	}
	for _, r := range rows {
		if !r.HasIncident() {
			continue
		}
		d.DowntimeMinutes += r.DowntimeMinutes
		rt := byReason[r.DowntimeReason]
		rt.Minutes += r.DowntimeMinutes
		rt.Frequency++
		byReason[r.DowntimeReason] = rt
	}

	d.ByReason = reasonTable(byReason)
	d.DailyProduction = dayTable(daily)
	return d, nil
}

// DrilldownReason returns the detail view for one downtime reason within
// the filter window.
func (e *Engine) DrilldownReason(criteria model.FilterCriteria, reason string) (*ReasonDetail, error) {
	e.mu.RLock()
	st := e.st
	e.mu.RUnlock()
	if st == nil {
		return nil, errors.New(errors.CodeDatasetNotReady, "no dataset loaded")
	}

	d := &ReasonDetail{Reason: reason}
	byMachine := make(map[string]int64)

	for _, r := range Filter(st, criteria) {
		if !r.HasIncident() || r.DowntimeReason != reason {
			continue
		}
		d.Rows = append(d.Rows, r)
		d.Minutes += r.DowntimeMinutes
		d.Frequency++
		byMachine[r.Machine] += r.DowntimeMinutes
	}

	rows := make([]CategoryValue, 0, len(byMachine))
	for machine, mins := range byMachine {
		rows = append(rows, CategoryValue{Category: machine, Value: float64(mins)})
	}
	sortCategories(rows)
	d.ByMachine = rows
	return d, nil
}

// DowntimeSort selects the ordering of a top-N downtime view.
type DowntimeSort string

const (
	SortByMinutes   DowntimeSort = "minutes"
	SortByFrequency DowntimeSort = "frequency"
)

// TopDowntime returns the n largest downtime reasons from a final
// aggregate. n <= 0 returns all reasons. DowntimeByReason is already
// minutes-sorted, so SortByMinutes slices it directly; SortByFrequency
// reorders a copy by incident count.
func TopDowntime(final *FinalAggregate, n int, by DowntimeSort) []ReasonRow {
	rows := final.DowntimeByReason
	if by == SortByFrequency {
		rows = append([]ReasonRow(nil), rows...)
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].Frequency != rows[j].Frequency {
				return rows[i].Frequency > rows[j].Frequency
			}
			if rows[i].Minutes != rows[j].Minutes {
				return rows[i].Minutes > rows[j].Minutes
			}
			return rows[i].Reason < rows[j].Reason
		})
	}
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return rows
}

func dayTable(daily map[string]int64) []CategoryValue {
	rows := make([]CategoryValue, 0, len(daily))
	for day, qty := range daily {
		rows = append(rows, CategoryValue{Category: day, Value: float64(qty)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Category < rows[j].Category })
	return rows
}
