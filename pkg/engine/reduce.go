package engine

import (
	"math"
	"sort"
	"time"

	"github.com/plantpulse/plantpulse/internal/model"
)

// weeklyRolloverDays is the range span beyond which the extended analysis
// collapses the per-day production series into week buckets.
const weeklyRolloverDays = 90

// Reduce merges the partial aggregates of one completed job into the final
// KPI set and chart series. All merges are key-wise sums, so the result is
// independent of shard boundaries and arrival order. An empty partial list
// reduces to a well-defined all-zero result.
func Reduce(partials []*PartialAggregate, criteria model.FilterCriteria, mode model.GroupingMode) *FinalAggregate {
	merged := mergePartials(partials)

	final := &FinalAggregate{
		Criteria: criteria,
		Mode:     mode.String(),
	}

	final.KPIs = computeKPIs(merged)
	final.DowntimeByReason = reasonTable(merged.ByReason)
	final.ProductionByMachine = machineTable(merged.ByMachine)
	final.ProductionByOperator = operatorTable(merged.ByOperator)
	final.Summary = summarize(final.KPIs, final.DowntimeByReason)

	axis := dateAxis(merged, criteria)
	weekly := criteria.Extended && criteria.RangeDays() > weeklyRolloverDays
	final.Weekly = weekly
	final.DailyProduction = productionSeries(merged, axis, weekly)
	final.DailyTimeDistribution = timeDistributionSeries(merged, axis)

	return final
}

// mergePartials folds all partials into one. Safe for an empty list.
func mergePartials(partials []*PartialAggregate) *PartialAggregate {
	merged := newPartialAggregate(0, 0)

	for _, p := range partials {
		merged.Production += p.Production
		merged.PlannedMinutes += p.PlannedMinutes
		merged.DowntimeMinutes += p.DowntimeMinutes
		merged.Runs += p.Runs

		for reason, rt := range p.ByReason {
			agg := merged.ByReason[reason]
			agg.Minutes += rt.Minutes
			agg.Frequency += rt.Frequency
			merged.ByReason[reason] = agg
		}
		for machine, qty := range p.ByMachine {
			merged.ByMachine[machine] += qty
		}
		for op, ot := range p.ByOperator {
			agg := merged.ByOperator[op]
			agg.Production += ot.Production
			agg.Runs += ot.Runs
			merged.ByOperator[op] = agg
		}
		for key, qty := range p.DailyProduction {
			merged.DailyProduction[key] += qty
		}
		for day, mins := range p.DailyPlanned {
			merged.DailyPlanned[day] += mins
		}
		for day, mins := range p.DailyDowntime {
			merged.DailyDowntime[day] += mins
		}
		for key, mins := range p.DailyReason {
			merged.DailyReason[key] += mins
		}
	}
	return merged
}

func computeKPIs(m *PartialAggregate) KPIs {
	k := KPIs{
		TotalProduction:      m.Production,
		TotalDowntimeMinutes: m.DowntimeMinutes,
		TotalDowntimeHours:   float64(m.DowntimeMinutes) / 60,
		TotalPlannedMinutes:  m.PlannedMinutes,
		TotalRuns:            m.Runs,
	}

	k.RunTimeMinutes = k.TotalPlannedMinutes - float64(k.TotalDowntimeMinutes)

	if k.TotalPlannedMinutes > 0 {
		k.Availability = math.Max(0, k.RunTimeMinutes/k.TotalPlannedMinutes)
		if k.Availability > 1 {
			k.Availability = 1
		}
	}
	if k.TotalRuns > 0 {
		k.Efficiency = float64(k.TotalProduction) / float64(k.TotalRuns)
	}
	return k
}

func reasonTable(byReason map[string]ReasonTotals) []ReasonRow {
	rows := make([]ReasonRow, 0, len(byReason))
	for reason, rt := range byReason {
		rows = append(rows, ReasonRow{Reason: reason, Minutes: rt.Minutes, Frequency: rt.Frequency})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Minutes != rows[j].Minutes {
			return rows[i].Minutes > rows[j].Minutes
		}
		return rows[i].Reason < rows[j].Reason
	})
	return rows
}

func machineTable(byMachine map[string]int64) []CategoryValue {
	rows := make([]CategoryValue, 0, len(byMachine))
	for machine, qty := range byMachine {
		rows = append(rows, CategoryValue{Category: machine, Value: float64(qty)})
	}
	sortCategories(rows)
	return rows
}

// operatorTable derives each operator's average production per run.
func operatorTable(byOperator map[string]OperatorTotals) []CategoryValue {
	rows := make([]CategoryValue, 0, len(byOperator))
	for op, ot := range byOperator {
		avg := 0.0
		if ot.Runs > 0 {
			avg = float64(ot.Production) / float64(ot.Runs)
		}
		rows = append(rows, CategoryValue{Category: op, Value: avg})
	}
	sortCategories(rows)
	return rows
}

func sortCategories(rows []CategoryValue) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Value != rows[j].Value {
			return rows[i].Value > rows[j].Value
		}
		return rows[i].Category < rows[j].Category
	})
}

func summarize(k KPIs, reasons []ReasonRow) Summary {
	s := Summary{
		AvailabilityPercent: k.Availability * 100,
		TopReason:           "N/A",
	}
	if len(reasons) == 0 {
		return s
	}

	s.TopReason = reasons[0].Reason
	if k.TotalDowntimeMinutes > 0 {
		s.TopReasonPercent = float64(reasons[0].Minutes) / float64(k.TotalDowntimeMinutes) * 100
	}
	return s
}

// dateAxis builds the complete ordered day axis for the job. When the
// criteria carry a closed range the axis spans it fully; otherwise it spans
// the days observed in the merged data. Days with no activity stay on the
// axis and serialize as explicit zeros.
func dateAxis(m *PartialAggregate, criteria model.FilterCriteria) []string {
	var first, last time.Time

	if !criteria.From.IsZero() && !criteria.To.IsZero() {
		first, last = criteria.From, criteria.To
	} else {
		for _, day := range observedDays(m) {
			t, err := time.Parse(model.DayFormat, day)
			if err != nil {
				continue
			}
			if first.IsZero() || t.Before(first) {
				first = t
			}
			if last.IsZero() || t.After(last) {
				last = t
			}
		}
	}
	if first.IsZero() || last.IsZero() {
		return nil
	}

	first = truncateDay(first)
	last = truncateDay(last)

	var axis []string
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		axis = append(axis, d.Format(model.DayFormat))
	}
	return axis
}

func observedDays(m *PartialAggregate) []string {
	seen := make(map[string]struct{})
	for key := range m.DailyProduction {
		seen[key.Day] = struct{}{}
	}
	for day := range m.DailyPlanned {
		seen[day] = struct{}{}
	}
	for day := range m.DailyDowntime {
		seen[day] = struct{}{}
	}

	days := make([]string, 0, len(seen))
	for day := range seen {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// productionSeries serializes the per-day production map onto the axis.
// In total mode there is one series; in byShift/byMachine mode one series
// per observed sub-key. With the weekly rollup, days collapse into Monday
// week-start buckets first.
func productionSeries(m *PartialAggregate, axis []string, weekly bool) TimeSeries {
	buckets := m.DailyProduction
	if weekly {
		axis = weeklyAxis(axis)
		rolled := make(map[DayKey]int64, len(buckets))
		for key, qty := range buckets {
			rolled[DayKey{Day: weekStart(key.Day), Sub: key.Sub}] += qty
		}
		buckets = rolled
	}

	subs := make(map[string]struct{})
	for key := range buckets {
		subs[key.Sub] = struct{}{}
	}
	if len(subs) == 0 {
		subs[""] = struct{}{}
	}

	names := make([]string, 0, len(subs))
	for sub := range subs {
		names = append(names, sub)
	}
	sort.Strings(names)

	ts := TimeSeries{Categories: axis}
	for _, sub := range names {
		name := sub
		if name == "" {
			name = "Production"
		}
		data := make([]float64, len(axis))
		for i, day := range axis {
			data[i] = float64(buckets[DayKey{Day: day, Sub: sub}])
		}
		ts.Series = append(ts.Series, Series{Name: name, Data: data})
	}
	return ts
}

// timeDistributionSeries serializes per-day hours: one stacked series per
// downtime reason plus a closing "Production" series of planned-minus-
// downtime hours, floored at zero.
func timeDistributionSeries(m *PartialAggregate, axis []string) TimeSeries {
	reasons := make(map[string]int64)
	for key, mins := range m.DailyReason {
		reasons[key.Reason] += mins
	}

	names := make([]string, 0, len(reasons))
	for reason := range reasons {
		names = append(names, reason)
	}
	sort.Slice(names, func(i, j int) bool {
		if reasons[names[i]] != reasons[names[j]] {
			return reasons[names[i]] > reasons[names[j]]
		}
		return names[i] < names[j]
	})

	ts := TimeSeries{Categories: axis}
	for _, reason := range names {
		data := make([]float64, len(axis))
		for i, day := range axis {
			data[i] = roundHours(float64(m.DailyReason[DayReason{Day: day, Reason: reason}]))
		}
		ts.Series = append(ts.Series, Series{Name: reason, Data: data})
	}

	prod := make([]float64, len(axis))
	for i, day := range axis {
		mins := m.DailyPlanned[day] - float64(m.DailyDowntime[day])
		if mins < 0 {
			mins = 0
		}
		prod[i] = roundHours(mins)
	}
	ts.Series = append(ts.Series, Series{Name: "Production", Data: prod})

	return ts
}

func roundHours(minutes float64) float64 {
	return math.Round(minutes/60*10) / 10
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// weekStart maps a day key to the Monday opening its ISO week.
func weekStart(day string) string {
	t, err := time.Parse(model.DayFormat, day)
	if err != nil {
		return day
	}
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format(model.DayFormat)
}

// weeklyAxis collapses a daily axis into its distinct week-start days.
func weeklyAxis(axis []string) []string {
	seen := make(map[string]struct{})
	var weeks []string
	for _, day := range axis {
		w := weekStart(day)
		if _, ok := seen[w]; !ok {
			seen[w] = struct{}{}
			weeks = append(weeks, w)
		}
	}
	return weeks
}
