package engine

import (
	"testing"

	"github.com/plantpulse/plantpulse/internal/model"
)

func TestGroupByRunAndMachine(t *testing.T) {
	records := []model.Record{
		rec("2024-01-01", "M", "A", "op1", "1", 50, 480, 30, "Jam"),
		rec("2024-01-01", "M", "A", "op1", "1", 50, 480, 10, "Jam"),
		rec("2024-01-01", "M", "B", "op2", "1", 70, 480, 0, ""),
		rec("2024-01-02", "M", "A", "op1", "2", 20, 240, 0, ""),
	}

	g := Group(refs(records))

	if len(g.Runs) != 3 {
		t.Fatalf("got %d run groups, want 3", len(g.Runs))
	}

	// Same run id on different machines is two distinct runs.
	runA := g.Runs[model.RunKey{RunID: "1", Machine: "A"}]
	if runA == nil || len(runA.Rows) != 2 {
		t.Fatalf("run (1,A) = %+v, want 2 rows", runA)
	}
	runB := g.Runs[model.RunKey{RunID: "1", Machine: "B"}]
	if runB == nil || len(runB.Rows) != 1 {
		t.Fatalf("run (1,B) = %+v, want 1 row", runB)
	}

	if runA.Quantity() != 50 || runA.DowntimeMinutes() != 40 {
		t.Errorf("run (1,A) quantity=%d downtime=%d, want 50/40",
			runA.Quantity(), runA.DowntimeMinutes())
	}
}

func TestGroupLooseRows(t *testing.T) {
	records := []model.Record{
		rec("2024-01-01", "M", "A", "", "", 0, 0, 15, "Power cut"),
		rec("2024-01-01", "M", "A", "op1", "1", 50, 480, 0, ""),
	}

	g := Group(refs(records))

	if len(g.Runs) != 1 {
		t.Errorf("got %d run groups, want 1", len(g.Runs))
	}
	if len(g.Loose) != 1 {
		t.Fatalf("got %d loose rows, want 1", len(g.Loose))
	}
	if g.Loose[0].DowntimeReason != "Power cut" {
		t.Errorf("wrong loose row: %+v", g.Loose[0])
	}
}

// TestGroupIdempotent verifies grouping the same input twice yields the
// same structure.
func TestGroupIdempotent(t *testing.T) {
	records := []model.Record{
		rec("2024-01-01", "M", "A", "op1", "1", 50, 480, 30, "Jam"),
		rec("2024-01-02", "M", "B", "op2", "2", 20, 240, 0, ""),
	}

	g1 := Group(refs(records))
	g2 := Group(refs(records))

	r1 := g1.SortedRuns()
	r2 := g2.SortedRuns()
	if len(r1) != len(r2) {
		t.Fatalf("run counts differ: %d vs %d", len(r1), len(r2))
	}
	for i := range r1 {
		if r1[i].Key != r2[i].Key {
			t.Errorf("run %d keys differ: %v vs %v", i, r1[i].Key, r2[i].Key)
		}
	}
}

func TestSortedRunsDeterministic(t *testing.T) {
	records := []model.Record{
		rec("2024-01-01", "M", "B", "op1", "2", 1, 1, 0, ""),
		rec("2024-01-01", "M", "A", "op1", "2", 1, 1, 0, ""),
		rec("2024-01-01", "M", "A", "op1", "1", 1, 1, 0, ""),
	}

	runs := Group(refs(records)).SortedRuns()
	want := []model.RunKey{
		{RunID: "1", Machine: "A"},
		{RunID: "2", Machine: "A"},
		{RunID: "2", Machine: "B"},
	}
	for i, k := range want {
		if runs[i].Key != k {
			t.Errorf("runs[%d].Key = %v, want %v", i, runs[i].Key, k)
		}
	}
}
