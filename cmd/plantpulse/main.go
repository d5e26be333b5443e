// PlantPulse - production and downtime KPI analysis for plant-floor data.
// Aggregates semicolon-delimited production CSV into availability,
// efficiency, and downtime KPIs using a parallel map-reduce engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/plantpulse/plantpulse/internal/model"
	"github.com/plantpulse/plantpulse/pkg/config"
	"github.com/plantpulse/plantpulse/pkg/engine"
	"github.com/plantpulse/plantpulse/pkg/ingest"
	"github.com/plantpulse/plantpulse/pkg/store"
	"github.com/plantpulse/plantpulse/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	datasetPath string
	verbose     bool

	// Filter flags
	fromFlag         string
	toFlag           string
	machinesFlag     []string
	shiftsFlag       []string
	operatorFlag     string
	machineGroupFlag string
	extendedFlag     bool
	modeFlag         string

	// Report flags
	topFlag          int
	downtimeSortFlag string

	// Engine flags
	workersFlag int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "plantpulse",
	Short: "PlantPulse - production and downtime KPI analysis",
	Long: `PlantPulse aggregates plant-floor production data into availability,
efficiency, and downtime KPIs.

Datasets are semicolon-delimited CSV exports; sources can be a local file,
stdin ("-"), or an s3:// URL.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a KPI analysis over a dataset",
	Long: `Load a dataset and compute the full KPI set for the given filter window.

Examples:
  plantpulse analyze -d production.csv --from 2024-01-01 --to 2024-01-31
  plantpulse analyze -d production.csv --machine A --machine B --mode byShift
  plantpulse analyze -d s3://plant-data/2024/export.csv --extended
  cat export.csv | plantpulse analyze -d -`,
	RunE: runAnalyze,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display information about a dataset",
	RunE:  runInfo,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&datasetPath, "dataset", "d", "", "Dataset path (file, '-' for stdin, or s3:// URL)")

	for _, cmd := range []*cobra.Command{analyzeCmd, exportCmd} {
		cmd.Flags().StringVar(&fromFlag, "from", "", "Range start (YYYY-MM-DD)")
		cmd.Flags().StringVar(&toFlag, "to", "", "Range end (YYYY-MM-DD)")
		cmd.Flags().StringArrayVar(&machinesFlag, "machine", nil, "Machine filter (repeatable)")
		cmd.Flags().StringArrayVar(&shiftsFlag, "shift", nil, "Shift filter (repeatable)")
		cmd.Flags().StringVar(&operatorFlag, "operator", "", "Operator filter")
		cmd.Flags().StringVar(&machineGroupFlag, "machine-group", "", "Machine group filter")
		cmd.Flags().BoolVar(&extendedFlag, "extended", false, "Allow ranges beyond 90 days (weekly rollup)")
		cmd.Flags().StringVar(&modeFlag, "mode", "total", "Grouping mode (total, byShift, byMachine)")
		cmd.Flags().IntVar(&workersFlag, "workers", 0, "Worker count (0 = one per CPU)")
	}

	analyzeCmd.Flags().IntVar(&topFlag, "top", 0, "Limit the downtime table to the top N reasons (0 = all)")
	analyzeCmd.Flags().StringVar(&downtimeSortFlag, "downtime-sort", "minutes", "Downtime table ordering (minutes, frequency)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(infoCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
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
	sortBy := engine.DowntimeSort(downtimeSortFlag)
	if sortBy != engine.SortByMinutes && sortBy != engine.SortByFrequency {
		return fmt.Errorf("invalid --downtime-sort %q (want minutes or frequency)", downtimeSortFlag)
	}

	_, progress, results, err := eng.ApplyFilters(ctx, criteria, mode)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		tui.TrackProgress(progress)
	}()

	res := <-results
	<-done
	if res.Err != nil {
		return res.Err
	}

	res.Final.DowntimeByReason = engine.TopDowntime(res.Final, topFlag, sortBy)
	tui.PrintReport(res.Final)
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	eng, err := setupEngine(ctx, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	info, _ := eng.Dataset()

	tui.PrintHeader(version)
	fmt.Printf("  Records:  %d\n", info.RecordCount)
	fmt.Printf("  Dropped:  %d\n", info.DroppedRows)
	fmt.Printf("  Version:  %s\n", info.Version)
	fmt.Printf("  Machines: %s\n", strings.Join(eng.DistinctValues(store.DimMachine), ", "))
	fmt.Printf("  Shifts:   %s\n", strings.Join(eng.DistinctValues(store.DimShift), ", "))
	fmt.Printf("  Groups:   %s\n", strings.Join(eng.DistinctValues(store.DimMachineGroup), ", "))
	return nil
}

// setupEngine builds the engine and loads the dataset named by flags or
// config.
func setupEngine(ctx context.Context, logger *zap.Logger) (*engine.Engine, error) {
	cfg := config.Global().Get()

	workers := cfg.Engine.Workers
	if workersFlag > 0 {
		workers = workersFlag
	}
	eng := engine.New(engine.Options{
		Workers:    workers,
		JobTimeout: cfg.Engine.JobTimeout,
		Logger:     logger,
	})

	path := datasetPath
	if path == "" {
		path = cfg.Dataset.Path
	}
	if path == "" {
		eng.Close()
		return nil, fmt.Errorf("no dataset: pass --dataset or set dataset.path in config")
	}

	if _, err := eng.LoadDataset(ctx, loaderFor(path, cfg, logger)); err != nil {
		eng.Close()
		return nil, err
	}
	return eng, nil
}

func loaderFor(path string, cfg *config.Config, logger *zap.Logger) engine.Loader {
	if ingest.IsS3URL(path) {
		return &ingest.S3Source{
			URL:       path,
			Region:    cfg.Dataset.S3Region,
			Delimiter: cfg.Dataset.DelimiterRune(),
			Logger:    logger,
		}
	}
	return &ingest.FileSource{
		Path:      path,
		Delimiter: cfg.Dataset.DelimiterRune(),
		Logger:    logger,
	}
}

func criteriaFromFlags() (model.FilterCriteria, model.GroupingMode, error) {
	var c model.FilterCriteria
	var err error

	if fromFlag != "" {
		c.From, err = time.Parse(model.DayFormat, fromFlag)
		if err != nil {
			return c, 0, fmt.Errorf("invalid --from: %w", err)
		}
	}
	if toFlag != "" {
		c.To, err = time.Parse(model.DayFormat, toFlag)
		if err != nil {
			return c, 0, fmt.Errorf("invalid --to: %w", err)
		}
	}
	c.Machines = machinesFlag
	c.Shifts = shiftsFlag
	c.Operator = operatorFlag
	c.MachineGroup = machineGroupFlag
	c.Extended = extendedFlag

	mode, err := model.ParseGroupingMode(modeFlag)
	if err != nil {
		return c, 0, err
	}
	return c, mode, nil
}

func buildLogger() *zap.Logger {
	var logger *zap.Logger
	var err error
	if verbose {
		logger, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		logger, err = cfg.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}
