package engine

import (
	"testing"

	"github.com/plantpulse/plantpulse/internal/model"
)

func TestFilterDateRange(t *testing.T) {
	st := buildStore(t,
		rec("2024-01-01", "M", "A", "op1", "1", 1, 10, 0, ""),
		rec("2024-01-15", "M", "A", "op1", "2", 1, 10, 0, ""),
		rec("2024-02-01", "M", "A", "op1", "3", 1, 10, 0, ""),
	)

	got := Filter(st, model.FilterCriteria{
		From: day("2024-01-01"),
		To:   day("2024-01-31"),
	})
	if len(got) != 2 {
		t.Errorf("got %d records, want 2", len(got))
	}

	// Range bounds are inclusive on both days.
	got = Filter(st, model.FilterCriteria{
		From: day("2024-01-15"),
		To:   day("2024-01-15"),
	})
	if len(got) != 1 || got[0].RunID != "2" {
		t.Errorf("single-day range returned %d records", len(got))
	}
}

func TestFilterOpenRange(t *testing.T) {
	st := buildStore(t,
		rec("2024-01-01", "M", "A", "op1", "1", 1, 10, 0, ""),
		rec("2024-06-01", "M", "B", "op2", "2", 1, 10, 0, ""),
	)

	if got := Filter(st, model.FilterCriteria{}); len(got) != 2 {
		t.Errorf("open criteria returned %d records, want all 2", len(got))
	}
	if got := Filter(st, model.FilterCriteria{From: day("2024-03-01")}); len(got) != 1 {
		t.Errorf("open-ended from returned %d records, want 1", len(got))
	}
}

func TestFilterKeepsRowsWithoutDimensions(t *testing.T) {
	// Source files carry downtime-only rows whose machine, shift and
	// operator cells are blank. Empty criteria must still return them.
	st := buildStore(t,
		rec("2024-01-01", "M", "A", "op1", "1", 1, 10, 0, ""),
		model.Record{Date: day("2024-01-01"), DowntimeMinutes: 30, DowntimeReason: "Power"},
	)

	got := Filter(st, model.FilterCriteria{})
	if len(got) != 2 {
		t.Fatalf("open criteria returned %d records, want 2", len(got))
	}
	var down int64
	for _, r := range got {
		down += r.DowntimeMinutes
	}
	if down != 30 {
		t.Errorf("downtime minutes = %d, want 30", down)
	}

	if got := Filter(st, model.FilterCriteria{Machines: []string{"A"}}); len(got) != 1 {
		t.Errorf("machine filter returned %d records, want 1", len(got))
	}
}

func TestFilterDimensions(t *testing.T) {
	st := buildStore(t,
		rec("2024-01-01", "Morning", "A", "lopez", "1", 1, 10, 0, ""),
		rec("2024-01-01", "Night", "B", "garcia", "2", 1, 10, 0, ""),
		rec("2024-01-02", "Morning", "B", "lopez", "3", 1, 10, 0, ""),
	)

	tests := []struct {
		name     string
		criteria model.FilterCriteria
		want     int
	}{
		{"machine set ORs values", model.FilterCriteria{Machines: []string{"A", "B"}}, 3},
		{"single machine", model.FilterCriteria{Machines: []string{"A"}}, 1},
		{"shift", model.FilterCriteria{Shifts: []string{"Night"}}, 1},
		{"operator", model.FilterCriteria{Operator: "lopez"}, 2},
		{"dimensions AND", model.FilterCriteria{Machines: []string{"B"}, Operator: "lopez"}, 1},
		{"no match", model.FilterCriteria{Machines: []string{"Z"}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Filter(st, tt.criteria); len(got) != tt.want {
				t.Errorf("got %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFilterMachineGroup(t *testing.T) {
	st := buildStore(t,
		rec("2024-01-01", "M", "A", "op1", "1", 1, 10, 0, ""),
	)

	if got := Filter(st, model.FilterCriteria{MachineGroup: "G1"}); len(got) != 1 {
		t.Errorf("machine group filter returned %d, want 1", len(got))
	}
	if got := Filter(st, model.FilterCriteria{MachineGroup: "other"}); len(got) != 0 {
		t.Errorf("non-matching machine group returned %d, want 0", len(got))
	}
}

func TestMatchAgreesWithFilter(t *testing.T) {
	records := []model.Record{
		rec("2024-01-01", "Morning", "A", "lopez", "1", 1, 10, 0, ""),
		rec("2024-01-05", "Night", "B", "garcia", "2", 1, 10, 0, ""),
	}
	st := buildStore(t, records...)

	criteria := model.FilterCriteria{
		From:   day("2024-01-01"),
		To:     day("2024-01-03"),
		Shifts: []string{"Morning"},
	}

	filtered := Filter(st, criteria)
	matchCount := 0
	for i := range records {
		if Match(&records[i], criteria) {
			matchCount++
		}
	}
	if len(filtered) != matchCount {
		t.Errorf("Filter found %d, Match found %d", len(filtered), matchCount)
	}
}
