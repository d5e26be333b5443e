package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/plantpulse/plantpulse/pkg/engine"
	"github.com/plantpulse/plantpulse/pkg/errors"
)

// WriteCSV writes the aggregate as a flat CSV: a KPI block, then the
// downtime, machine, and operator tables separated by blank lines.
func WriteCSV(w io.Writer, final *engine.FinalAggregate) error {
	cw := csv.NewWriter(w)

	records := [][]string{
		{"metric", "value"},
		{"total_production", strconv.FormatInt(final.KPIs.TotalProduction, 10)},
		{"total_runs", strconv.FormatInt(final.KPIs.TotalRuns, 10)},
		{"total_planned_minutes", formatFloat(final.KPIs.TotalPlannedMinutes)},
		{"total_downtime_minutes", strconv.FormatInt(final.KPIs.TotalDowntimeMinutes, 10)},
		{"availability", formatFloat(final.KPIs.Availability)},
		{"efficiency", formatFloat(final.KPIs.Efficiency)},
		{"top_reason", final.Summary.TopReason},
		{},
		{"reason", "minutes", "frequency"},
	}
	for _, r := range final.DowntimeByReason {
		records = append(records, []string{
			r.Reason,
			strconv.FormatInt(r.Minutes, 10),
			strconv.FormatInt(r.Frequency, 10),
		})
	}

	records = append(records, []string{}, []string{"machine", "production"})
	for _, r := range final.ProductionByMachine {
		records = append(records, []string{r.Category, formatFloat(r.Value)})
	}

	records = append(records, []string{}, []string{"operator", "avg_production_per_run"})
	for _, r := range final.ProductionByOperator {
		records = append(records, []string{r.Category, formatFloat(r.Value)})
	}

	for _, rec := range records {
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(err, errors.CodeExportFailed, "failed to write csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to flush csv")
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
