// Package engine implements the parallel map-reduce aggregation core:
// filtering, run-grouping, shard planning, concurrent partial aggregation,
// and reduction, coordinated by a job-tracking orchestrator.
package engine

import (
	"time"

	"github.com/plantpulse/plantpulse/internal/model"
)

// ReasonTotals accumulates one downtime reason.
type ReasonTotals struct {
	Minutes   int64 `json:"minutes"`
	Frequency int64 `json:"frequency"`
}

// OperatorTotals accumulates one operator's production.
type OperatorTotals struct {
	Production int64 `json:"production"`
	Runs       int64 `json:"runs"`
}

// DayKey addresses one point of the per-day production map. Sub is empty in
// total mode and carries the shift or machine otherwise.
type DayKey struct {
	Day string
	Sub string
}

// DayReason addresses one (day, reason) cell of the time-distribution map.
type DayReason struct {
	Day    string
	Reason string
}

// PartialAggregate is the output of aggregating one shard, prior to merging
// with other shards. Every field is a sum or a map-union, so partials merge
// commutatively and associatively regardless of shard boundaries.
type PartialAggregate struct {
	JobID int64
	Shard int

	Production      int64
	PlannedMinutes  float64
	DowntimeMinutes int64
	Runs            int64

	ByReason   map[string]ReasonTotals
	ByMachine  map[string]int64
	ByOperator map[string]OperatorTotals

	// DailyProduction holds production per (day, sub-key).
	DailyProduction map[DayKey]int64

	// DailyPlanned and DailyDowntime feed the per-day time distribution.
	// Planned minutes are attributed once per run on the run's day.
	DailyPlanned  map[string]float64
	DailyDowntime map[string]int64

	// DailyReason holds incident minutes per (day, reason).
	DailyReason map[DayReason]int64
}

func newPartialAggregate(jobID int64, shard int) *PartialAggregate {
	return &PartialAggregate{
		JobID:           jobID,
		Shard:           shard,
		ByReason:        make(map[string]ReasonTotals),
		ByMachine:       make(map[string]int64),
		ByOperator:      make(map[string]OperatorTotals),
		DailyProduction: make(map[DayKey]int64),
		DailyPlanned:    make(map[string]float64),
		DailyDowntime:   make(map[string]int64),
		DailyReason:     make(map[DayReason]int64),
	}
}

// KPIs is the reduced scalar metric set.
type KPIs struct {
	TotalProduction      int64   `json:"total_production"`
	TotalDowntimeMinutes int64   `json:"total_downtime_minutes"`
	TotalDowntimeHours   float64 `json:"total_downtime_hours"`
	TotalPlannedMinutes  float64 `json:"total_planned_minutes"`
	TotalRuns            int64   `json:"total_runs"`
	RunTimeMinutes       float64 `json:"run_time_minutes"`

	// Availability is the fraction of planned time not lost to downtime,
	// clamped to [0,1].
	Availability float64 `json:"availability"`

	// Efficiency is production output per production run.
	Efficiency float64 `json:"efficiency"`
}

// Summary is the management one-liner derived from KPIs and the downtime
// table.
type Summary struct {
	AvailabilityPercent float64 `json:"availability_percent"`
	TopReason           string  `json:"top_reason"`
	TopReasonPercent    float64 `json:"top_reason_percent"`
}

// ReasonRow is one row of the reduced downtime-by-reason table.
type ReasonRow struct {
	Reason    string `json:"reason"`
	Minutes   int64  `json:"minutes"`
	Frequency int64  `json:"frequency"`
}

// CategoryValue is one bar of a ranked category chart.
type CategoryValue struct {
	Category string  `json:"category"`
	Value    float64 `json:"value"`
}

// Series is one named line/stack of a chart.
type Series struct {
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

// TimeSeries is a chart-ready set of series aligned to one date axis.
// Every series has exactly len(Categories) points; days without activity
// carry an explicit 0, never a gap.
type TimeSeries struct {
	Categories []string `json:"categories"`
	Series     []Series `json:"series"`
}

// FinalAggregate is the engine's output artifact for one job, recomputed
// from scratch on every request.
type FinalAggregate struct {
	JobID           int64                `json:"job_id"`
	FilteredRecords int                  `json:"filtered_records"`
	Criteria        model.FilterCriteria `json:"criteria"`
	Mode            string               `json:"grouping_mode"`

	KPIs    KPIs    `json:"kpis"`
	Summary Summary `json:"summary"`

	DowntimeByReason     []ReasonRow     `json:"downtime_by_reason"`
	ProductionByMachine  []CategoryValue `json:"production_by_machine"`
	ProductionByOperator []CategoryValue `json:"production_by_operator"`

	DailyProduction       TimeSeries `json:"daily_production"`
	DailyTimeDistribution TimeSeries `json:"daily_time_distribution"`

	// Weekly is set when the extended rollup collapsed the production
	// series to week buckets.
	Weekly bool `json:"weekly"`

	Elapsed time.Duration `json:"elapsed"`
}

// ProgressEvent reports job progress at the fixed checkpoints.
type ProgressEvent struct {
	JobID   int64  `json:"job_id"`
	Percent int    `json:"percent"`
	Status  string `json:"status"`
}

// Result terminates a job's event stream: exactly one of Final or Err is set.
type Result struct {
	JobID int64           `json:"job_id"`
	Final *FinalAggregate `json:"final,omitempty"`
	Err   error           `json:"-"`
}
