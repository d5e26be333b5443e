package model

import (
	"fmt"
	"time"
)

// FilterCriteria selects the subset of the dataset one analysis job runs
// over. Created by the caller on every interaction and snapshotted by the
// job; never mutated afterwards.
//
// Zero values widen: a zero From/To opens the date range on that side, empty
// Machines/Shifts pass every value, empty Operator/MachineGroup disable that
// dimension. Conditions are ANDed across dimensions and ORed within a set.
type FilterCriteria struct {
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	Machines     []string  `json:"machines"`
	Shifts       []string  `json:"shifts"`
	Operator     string    `json:"operator"`
	MachineGroup string    `json:"machine_group"`

	// Extended enables the weekly rollup of the per-day production series
	// when the range spans more than 90 days.
	Extended bool `json:"extended"`
}

// RangeDays returns the number of calendar days the range spans, 0 when the
// range is open on either side.
func (c FilterCriteria) RangeDays() int {
	if c.From.IsZero() || c.To.IsZero() {
		return 0
	}
	return int(c.To.Sub(c.From).Hours()/24) + 1
}

// Validate rejects criteria that cannot describe a dataset subset.
func (c FilterCriteria) Validate() error {
	if !c.From.IsZero() && !c.To.IsZero() && c.To.Before(c.From) {
		return fmt.Errorf("date range end %s precedes start %s",
			c.To.Format(DayFormat), c.From.Format(DayFormat))
	}
	return nil
}

// GroupingMode selects how the per-day production series is sub-keyed.
type GroupingMode int

const (
	// GroupTotal produces a single per-day production series.
	GroupTotal GroupingMode = iota

	// GroupByShift produces one sub-series per shift.
	GroupByShift

	// GroupByMachine produces one sub-series per machine.
	GroupByMachine
)

// String returns the wire name of the mode.
func (m GroupingMode) String() string {
	switch m {
	case GroupByShift:
		return "byShift"
	case GroupByMachine:
		return "byMachine"
	default:
		return "total"
	}
}

// ParseGroupingMode parses a wire name into a GroupingMode.
func ParseGroupingMode(s string) (GroupingMode, error) {
	switch s {
	case "", "total":
		return GroupTotal, nil
	case "byShift", "by_shift", "shift":
		return GroupByShift, nil
	case "byMachine", "by_machine", "machine":
		return GroupByMachine, nil
	default:
		return GroupTotal, fmt.Errorf("unknown grouping mode %q", s)
	}
}
