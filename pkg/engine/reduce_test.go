package engine

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/plantpulse/plantpulse/internal/model"
)

// reduceWith shards the records with the given worker count, aggregates
// each shard, and reduces.
func reduceWith(records []model.Record, workers int, criteria model.FilterCriteria, mode model.GroupingMode) *FinalAggregate {
	grouping := Group(refs(records))
	shards := Plan(grouping, workers)
	partials := make([]*PartialAggregate, 0, len(shards))
	for _, sh := range shards {
		partials = append(partials, AggregateShard(sh, mode))
	}
	return Reduce(partials, criteria, mode)
}

// TestReduceShardInvariance verifies the final aggregate is identical for
// any worker count.
func TestReduceShardInvariance(t *testing.T) {
	var records []model.Record
	for i := 0; i < 23; i++ {
		day := fmt.Sprintf("2024-01-%02d", i%7+1)
		machine := string(rune('A' + i%3))
		reason := ""
		down := int64(0)
		if i%4 == 0 {
			reason = "Jam"
			down = int64(5 + i)
		}
		records = append(records,
			rec(day, "M", machine, "op1", fmt.Sprintf("r%d", i), int64(10+i), 60, down, reason))
	}
	// A few extra rows on existing runs, and some loose incidents.
	records = append(records,
		rec("2024-01-01", "M", "A", "op1", "r0", 10, 60, 7, "Blade"),
		rec("2024-01-02", "M", "A", "", "", 0, 0, 11, "Power"),
		rec("2024-01-03", "M", "B", "", "", 0, 0, 3, "Power"),
	)

	criteria := model.FilterCriteria{From: day("2024-01-01"), To: day("2024-01-07")}

	base := reduceWith(records, 1, criteria, model.GroupTotal)
	for _, workers := range []int{2, 3, 4, 7, 16} {
		got := reduceWith(records, workers, criteria, model.GroupTotal)

		if got.KPIs != base.KPIs {
			t.Errorf("workers=%d: KPIs differ\n got %+v\nwant %+v", workers, got.KPIs, base.KPIs)
		}
		if !reflect.DeepEqual(got.DowntimeByReason, base.DowntimeByReason) {
			t.Errorf("workers=%d: downtime tables differ", workers)
		}
		if !reflect.DeepEqual(got.ProductionByMachine, base.ProductionByMachine) {
			t.Errorf("workers=%d: machine tables differ", workers)
		}
		if !reflect.DeepEqual(got.DailyProduction, base.DailyProduction) {
			t.Errorf("workers=%d: daily production differs", workers)
		}
		if !reflect.DeepEqual(got.DailyTimeDistribution, base.DailyTimeDistribution) {
			t.Errorf("workers=%d: time distribution differs", workers)
		}
	}
}

// TestReduceAvailabilityBounds verifies availability stays in [0,1] even
// when downtime exceeds planned time.
func TestReduceAvailabilityBounds(t *testing.T) {
	final := reduceWith([]model.Record{
		rec("2024-01-01", "M", "A", "op1", "1", 10, 60, 500, "Breakdown"),
	}, 2, model.FilterCriteria{}, model.GroupTotal)

	if final.KPIs.Availability != 0 {
		t.Errorf("Availability = %f, want clamped 0", final.KPIs.Availability)
	}

	final = reduceWith([]model.Record{
		rec("2024-01-01", "M", "A", "op1", "1", 10, 60, 0, ""),
	}, 2, model.FilterCriteria{}, model.GroupTotal)

	if final.KPIs.Availability != 1 {
		t.Errorf("Availability = %f, want 1", final.KPIs.Availability)
	}
}

// TestReduceEmptyInput verifies the all-zero result with "N/A" top reason.
func TestReduceEmptyInput(t *testing.T) {
	final := Reduce(nil, model.FilterCriteria{}, model.GroupTotal)

	if final.KPIs != (KPIs{}) {
		t.Errorf("KPIs = %+v, want zero", final.KPIs)
	}
	if final.Summary.TopReason != "N/A" {
		t.Errorf("TopReason = %q, want N/A", final.Summary.TopReason)
	}
	if len(final.DowntimeByReason) != 0 {
		t.Errorf("DowntimeByReason = %v, want empty", final.DowntimeByReason)
	}
}

// TestReduceDateAxisComplete verifies days without activity appear on the
// axis with explicit zeros.
func TestReduceDateAxisComplete(t *testing.T) {
	criteria := model.FilterCriteria{From: day("2024-01-01"), To: day("2024-01-05")}
	final := reduceWith([]model.Record{
		rec("2024-01-02", "M", "A", "op1", "1", 10, 60, 0, ""),
		rec("2024-01-04", "M", "A", "op1", "2", 20, 60, 0, ""),
	}, 1, criteria, model.GroupTotal)

	wantAxis := []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"}
	if !reflect.DeepEqual(final.DailyProduction.Categories, wantAxis) {
		t.Fatalf("axis = %v, want %v", final.DailyProduction.Categories, wantAxis)
	}

	if len(final.DailyProduction.Series) != 1 {
		t.Fatalf("got %d series, want 1", len(final.DailyProduction.Series))
	}
	want := []float64{0, 10, 0, 20, 0}
	if !reflect.DeepEqual(final.DailyProduction.Series[0].Data, want) {
		t.Errorf("data = %v, want %v", final.DailyProduction.Series[0].Data, want)
	}

	// Every time-distribution series shares the axis length.
	for _, s := range final.DailyTimeDistribution.Series {
		if len(s.Data) != len(wantAxis) {
			t.Errorf("series %q has %d points, want %d", s.Name, len(s.Data), len(wantAxis))
		}
	}
}

// TestReduceOperatorAverage verifies the operator table carries average
// production per run.
func TestReduceOperatorAverage(t *testing.T) {
	final := reduceWith([]model.Record{
		rec("2024-01-01", "M", "A", "lopez", "1", 30, 60, 0, ""),
		rec("2024-01-02", "M", "A", "lopez", "2", 10, 60, 0, ""),
		rec("2024-01-01", "M", "B", "garcia", "3", 50, 60, 0, ""),
	}, 2, model.FilterCriteria{}, model.GroupTotal)

	got := map[string]float64{}
	for _, row := range final.ProductionByOperator {
		got[row.Category] = row.Value
	}
	if got["lopez"] != 20 {
		t.Errorf("lopez avg = %f, want 20", got["lopez"])
	}
	if got["garcia"] != 50 {
		t.Errorf("garcia avg = %f, want 50", got["garcia"])
	}
	// Sorted descending by value.
	if final.ProductionByOperator[0].Category != "garcia" {
		t.Errorf("table not sorted: %+v", final.ProductionByOperator)
	}
}

// TestReduceWeeklyRollup verifies extended long ranges collapse the
// production axis into Monday week buckets.
func TestReduceWeeklyRollup(t *testing.T) {
	criteria := model.FilterCriteria{
		From:     day("2024-01-01"),
		To:       day("2024-06-30"),
		Extended: true,
	}
	final := reduceWith([]model.Record{
		rec("2024-01-02", "M", "A", "op1", "1", 10, 60, 0, ""), // Tuesday
		rec("2024-01-03", "M", "A", "op1", "2", 20, 60, 0, ""), // Wednesday, same week
		rec("2024-02-14", "M", "A", "op1", "3", 5, 60, 0, ""),
	}, 3, criteria, model.GroupTotal)

	if !final.Weekly {
		t.Fatal("Weekly not set for extended 182-day range")
	}
	// 2024-01-01 is a Monday; the axis starts there.
	if final.DailyProduction.Categories[0] != "2024-01-01" {
		t.Errorf("first bucket = %s, want 2024-01-01", final.DailyProduction.Categories[0])
	}

	week1 := final.DailyProduction.Series[0].Data[0]
	if week1 != 30 {
		t.Errorf("week 1 production = %f, want 30", week1)
	}

	// 26 weeks span the range.
	if n := len(final.DailyProduction.Categories); n != 26 {
		t.Errorf("got %d week buckets, want 26", n)
	}
}

// TestReduceTimeDistributionFloor verifies production hours never go
// negative when downtime exceeds planned minutes.
func TestReduceTimeDistributionFloor(t *testing.T) {
	final := reduceWith([]model.Record{
		rec("2024-01-01", "M", "A", "op1", "1", 10, 60, 120, "Breakdown"),
	}, 1, model.FilterCriteria{}, model.GroupTotal)

	var prod *Series
	for i := range final.DailyTimeDistribution.Series {
		if final.DailyTimeDistribution.Series[i].Name == "Production" {
			prod = &final.DailyTimeDistribution.Series[i]
		}
	}
	if prod == nil {
		t.Fatal("no Production series")
	}
	for _, v := range prod.Data {
		if v < 0 {
			t.Errorf("production hours went negative: %v", prod.Data)
		}
	}

	breakdown := final.DailyTimeDistribution.Series[0]
	if breakdown.Name != "Breakdown" || math.Abs(breakdown.Data[0]-2.0) > 1e-9 {
		t.Errorf("breakdown series = %+v, want 2h on day 1", breakdown)
	}
}
