package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/plantpulse/plantpulse/pkg/engine"
)

func sampleAggregate() *engine.FinalAggregate {
	return &engine.FinalAggregate{
		JobID: 7,
		KPIs: engine.KPIs{
			TotalProduction:      1200,
			TotalRuns:            4,
			TotalPlannedMinutes:  960,
			TotalDowntimeMinutes: 90,
			TotalDowntimeHours:   1.5,
			Availability:         0.90625,
			Efficiency:           300,
		},
		Summary: engine.Summary{TopReason: "Atasco", TopReasonPercent: 66.7},
		DowntimeByReason: []engine.ReasonRow{
			{Reason: "Atasco", Minutes: 60, Frequency: 3},
			{Reason: "Limpieza", Minutes: 30, Frequency: 1},
		},
		ProductionByMachine: []engine.CategoryValue{
			{Category: "EXT-01", Value: 800},
			{Category: "EXT-02", Value: 400},
		},
		ProductionByOperator: []engine.CategoryValue{
			{Category: "lopez", Value: 300},
		},
		DailyProduction: engine.TimeSeries{
			Categories: []string{"2024-03-01", "2024-03-02"},
			Series:     []engine.Series{{Name: "Production", Data: []float64{700, 500}}},
		},
		DailyTimeDistribution: engine.TimeSeries{
			Categories: []string{"2024-03-01", "2024-03-02"},
			Series: []engine.Series{
				{Name: "Atasco", Data: []float64{1, 0}},
				{Name: "Production", Data: []float64{7, 7.5}},
			},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleAggregate()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"total_production,1200",
		"availability,0.90625",
		"top_reason,Atasco",
		"Atasco,60,3",
		"EXT-01,800",
		"lopez,300",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// Blank lines separate the blocks.
	if !strings.Contains(out, "\n\nreason,minutes,frequency\n") {
		t.Errorf("downtime block header missing or not separated:\n%s", out)
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleAggregate()); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	// xlsx files are zip archives.
	if buf.Len() < 4 || buf.Bytes()[0] != 'P' || buf.Bytes()[1] != 'K' {
		t.Errorf("output does not look like an xlsx archive (%d bytes)", buf.Len())
	}
}
