package engine

import (
	"testing"
	"time"

	"github.com/plantpulse/plantpulse/internal/model"
	"github.com/plantpulse/plantpulse/pkg/store"
)

// rec builds one test record on the given day.
func rec(day, shift, machine, operator, runID string, qty int64, planned float64, down int64, reason string) model.Record {
	t, err := time.Parse(model.DayFormat, day)
	if err != nil {
		panic("bad test day: " + day)
	}
	return model.Record{
		Date:            t,
		Shift:           shift,
		Machine:         machine,
		MachineGroup:    "G1",
		Operator:        operator,
		RunID:           runID,
		Quantity:        qty,
		PlannedMinutes:  planned,
		DowntimeMinutes: down,
		DowntimeReason:  reason,
	}
}

// buildStore seals the records into a store, failing the test on error.
func buildStore(t *testing.T, records ...model.Record) *store.Store {
	t.Helper()
	st := store.New()
	for _, r := range records {
		if err := st.Append(r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	st.Seal()
	return st
}

// refs turns records into the pointer slice the pipeline stages take.
func refs(records []model.Record) []*model.Record {
	out := make([]*model.Record, len(records))
	for i := range records {
		out[i] = &records[i]
	}
	return out
}

// day parses a test day, panicking on typos.
func day(s string) time.Time {
	t, err := time.Parse(model.DayFormat, s)
	if err != nil {
		panic("bad test day: " + s)
	}
	return t
}
