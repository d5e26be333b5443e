package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/plantpulse/plantpulse/pkg/export"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run an analysis and export the results",
	Long: `Run a KPI analysis and write the results to an XLSX workbook or a
flat CSV. The format is inferred from the output extension.

Examples:
  plantpulse export -d production.csv -o report.xlsx --from 2024-01-01 --to 2024-01-31
  plantpulse export -d production.csv -o report.csv --machine A`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (.xlsx or .csv)")
	exportCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	eng, err := setupEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	criteria, mode, err := criteriaFromFlags()
	if err != nil {
		return err
	}

	final, err := eng.Analyze(ctx, criteria, mode)
	if err != nil {
		return err
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(exportOutput)) {
	case ".csv":
		err = export.WriteCSV(f, final)
	case ".xlsx":
		err = export.WriteXLSX(f, final)
	default:
		return fmt.Errorf("unsupported output format %q (use .xlsx or .csv)", filepath.Ext(exportOutput))
	}
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %s (%d records, %d runs)\n", exportOutput, final.FilteredRecords, final.KPIs.TotalRuns)
	return nil
}
