// Package export writes final aggregates to XLSX and CSV files.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/plantpulse/plantpulse/pkg/engine"
	"github.com/plantpulse/plantpulse/pkg/errors"
)

// WriteXLSX writes the aggregate as a multi-sheet workbook: KPIs, downtime
// by reason, production by machine and operator, and the daily series.
func WriteXLSX(w io.Writer, final *engine.FinalAggregate) error {
	f := excelize.NewFile()
	defer f.Close()

	const kpiSheet = "KPIs"
	f.SetSheetName(f.GetSheetName(0), kpiSheet)

	kpiRows := [][]interface{}{
		{"Metric", "Value"},
		{"Total production", final.KPIs.TotalProduction},
		{"Total runs", final.KPIs.TotalRuns},
		{"Total planned minutes", final.KPIs.TotalPlannedMinutes},
		{"Total downtime minutes", final.KPIs.TotalDowntimeMinutes},
		{"Total downtime hours", final.KPIs.TotalDowntimeHours},
		{"Run time minutes", final.KPIs.RunTimeMinutes},
		{"Availability", final.KPIs.Availability},
		{"Efficiency", final.KPIs.Efficiency},
		{"Top downtime reason", final.Summary.TopReason},
	}
	if err := writeSheet(f, kpiSheet, kpiRows); err != nil {
		return err
	}

	reasonRows := [][]interface{}{{"Reason", "Minutes", "Frequency"}}
	for _, r := range final.DowntimeByReason {
		reasonRows = append(reasonRows, []interface{}{r.Reason, r.Minutes, r.Frequency})
	}
	if err := addSheet(f, "Downtime", reasonRows); err != nil {
		return err
	}

	machineRows := [][]interface{}{{"Machine", "Production"}}
	for _, r := range final.ProductionByMachine {
		machineRows = append(machineRows, []interface{}{r.Category, r.Value})
	}
	if err := addSheet(f, "Machines", machineRows); err != nil {
		return err
	}

	operatorRows := [][]interface{}{{"Operator", "Avg production per run"}}
	for _, r := range final.ProductionByOperator {
		operatorRows = append(operatorRows, []interface{}{r.Category, r.Value})
	}
	if err := addSheet(f, "Operators", operatorRows); err != nil {
		return err
	}

	if err := addSheet(f, "Daily production", seriesRows(final.DailyProduction)); err != nil {
		return err
	}
	if err := addSheet(f, "Time distribution", seriesRows(final.DailyTimeDistribution)); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to write workbook")
	}
	return nil
}

// seriesRows lays a TimeSeries out as one date column plus one column per
// series.
func seriesRows(ts engine.TimeSeries) [][]interface{} {
	header := []interface{}{"Date"}
	for _, s := range ts.Series {
		header = append(header, s.Name)
	}
	rows := [][]interface{}{header}

	for i, day := range ts.Categories {
		row := []interface{}{day}
		for _, s := range ts.Series {
			if i < len(s.Data) {
				row = append(row, s.Data[i])
			} else {
				row = append(row, 0.0)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func addSheet(f *excelize.File, name string, rows [][]interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return errors.Wrap(err, errors.CodeExportFailed, "failed to create sheet").
			WithContext("sheet", name)
	}
	return writeSheet(f, name, rows)
}

func writeSheet(f *excelize.File, name string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return errors.Wrap(err, errors.CodeExportFailed, "bad cell coordinates")
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return errors.Wrap(err, errors.CodeExportFailed, "failed to write row").
				WithContext("sheet", name).
				WithContext("row", fmt.Sprintf("%d", i+1))
		}
	}
	return nil
}
