// Package model defines core data structures for PlantPulse.
package model

import "time"

// DayFormat is the canonical key layout for per-day aggregation maps.
const DayFormat = "2006-01-02"

// Record is one row of the production/downtime export.
// Quantity and PlannedMinutes are denormalized: every row of a run repeats
// them, so they must be attributed to the run once, never once per row.
type Record struct {
	// Date is the calendar day of the row. Time-of-day is not meaningful.
	Date time.Time

	// Shift is the shift label (e.g. "Morning", "Night").
	Shift string

	// Machine is the machine identifier.
	Machine string

	// MachineGroup is the optional machine group; empty when unassigned.
	MachineGroup string

	// Operator is the optional operator surname; empty when unknown.
	Operator string

	// RunID identifies the production run this row belongs to.
	// Empty for pure downtime rows with no run association.
	RunID string

	// Quantity is the units produced by the run (repeated on every row).
	Quantity int64

	// PlannedMinutes is the run's scheduled duration (repeated on every row).
	PlannedMinutes float64

	// DowntimeMinutes is the minutes lost to this specific incident, 0 if
	// the row carries no incident.
	DowntimeMinutes int64

	// DowntimeReason is the incident description; empty when no incident.
	DowntimeReason string

	// IncidentCount is only meaningful when DowntimeReason is set.
	IncidentCount int64
}

// HasRun reports whether the row is associated with a production run.
func (r *Record) HasRun() bool {
	return r.RunID != ""
}

// HasIncident reports whether the row represents a countable downtime
// incident: a reason plus a positive duration.
func (r *Record) HasIncident() bool {
	return r.DowntimeReason != "" && r.DowntimeMinutes > 0
}

// Day returns the record's calendar day as a map key.
func (r *Record) Day() string {
	return r.Date.Format(DayFormat)
}

// RunKey identifies one production run: one scheduled execution on one machine.
type RunKey struct {
	RunID   string
	Machine string
}

// ProductionRun is the group of records sharing a RunKey. Quantity and
// PlannedMinutes are invariant within the group and read from the
// representative row.
type ProductionRun struct {
	Key  RunKey
	Rows []*Record
}

// Representative returns the run's defining row.
func (p *ProductionRun) Representative() *Record {
	return p.Rows[0]
}

// Quantity returns the run's produced units, counted once for the run.
func (p *ProductionRun) Quantity() int64 {
	return p.Representative().Quantity
}

// PlannedMinutes returns the run's scheduled duration, counted once.
func (p *ProductionRun) PlannedMinutes() float64 {
	return p.Representative().PlannedMinutes
}

// DowntimeMinutes sums incident minutes across all rows of the run.
func (p *ProductionRun) DowntimeMinutes() int64 {
	var total int64
	for _, row := range p.Rows {
		total += row.DowntimeMinutes
	}
	return total
}

// DatasetInfo summarizes a loaded dataset for callers populating filters.
type DatasetInfo struct {
	Version             string    `json:"version"`
	LoadedAt            time.Time `json:"loaded_at"`
	RecordCount         int       `json:"record_count"`
	DroppedRows         int       `json:"dropped_rows"`
	UniqueMachines      []string  `json:"unique_machines"`
	UniqueShifts        []string  `json:"unique_shifts"`
	UniqueMachineGroups []string  `json:"unique_machine_groups"`
	UniqueOperators     []string  `json:"unique_operators"`
}
