package engine

import (
	"github.com/plantpulse/plantpulse/internal/model"
)

// AggregateShard computes the partial aggregate of one shard. Pure and
// stateless: the same shard always yields the same output, which is what
// makes shard-level parallelism safe with no shared mutable state.
//
// Production figures (quantity, planned minutes, run count, per-machine and
// per-operator totals) come from one representative row per run; incident
// figures come from every row, qualifying a row as an incident only when it
// carries a reason and positive minutes.
func AggregateShard(shard Shard, mode model.GroupingMode) *PartialAggregate {
	p := newPartialAggregate(0, shard.Index)

	for _, run := range shard.Runs {
		rep := run.Representative()

		p.Production += run.Quantity()
		p.PlannedMinutes += run.PlannedMinutes()
		p.Runs++

		if rep.Machine != "" {
			p.ByMachine[rep.Machine] += run.Quantity()
		}
		if rep.Operator != "" {
			ops := p.ByOperator[rep.Operator]
			ops.Production += run.Quantity()
			ops.Runs++
			p.ByOperator[rep.Operator] = ops
		}

		p.DailyProduction[dayKeyFor(rep, mode)] += run.Quantity()
		p.DailyPlanned[rep.Day()] += run.PlannedMinutes()

		for _, row := range run.Rows {
			p.addIncident(row)
		}
	}

	// Rows with no run association contribute incidents only.
	for _, row := range shard.Loose {
		p.addIncident(row)
	}

	return p
}

func (p *PartialAggregate) addIncident(row *model.Record) {
	if !row.HasIncident() {
		return
	}

	p.DowntimeMinutes += row.DowntimeMinutes

	rt := p.ByReason[row.DowntimeReason]
	rt.Minutes += row.DowntimeMinutes
	rt.Frequency++ // one incident per qualifying row
	p.ByReason[row.DowntimeReason] = rt

	day := row.Day()
	p.DailyDowntime[day] += row.DowntimeMinutes
	p.DailyReason[DayReason{Day: day, Reason: row.DowntimeReason}] += row.DowntimeMinutes
}

func dayKeyFor(rep *model.Record, mode model.GroupingMode) DayKey {
	key := DayKey{Day: rep.Day()}
	switch mode {
	case model.GroupByShift:
		key.Sub = rep.Shift
	case model.GroupByMachine:
		key.Sub = rep.Machine
	}
	return key
}
