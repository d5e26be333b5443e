package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/plantpulse/plantpulse/pkg/config"
	"github.com/plantpulse/plantpulse/pkg/engine"
	"github.com/plantpulse/plantpulse/pkg/ingest"
	"github.com/plantpulse/plantpulse/pkg/server"
	"github.com/plantpulse/plantpulse/pkg/telemetry"
	"github.com/plantpulse/plantpulse/pkg/watch"
)

var (
	servePort  int
	serveHost  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server.

The server provides:
  - Dataset upload and inspection
  - Analysis jobs with SSE progress streaming
  - Drill-down queries per machine and downtime reason
  - XLSX/CSV export downloads

Examples:
  plantpulse serve -d production.csv
  plantpulse serve -d production.csv --watch
  plantpulse serve --port 3000`,
	RunE: runServe,
}

func init() {
	cfg := config.Global().Get()

	serveCmd.Flags().IntVarP(&servePort, "port", "p", cfg.Server.Port, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHost, "host", cfg.Server.Host, "Host to bind to")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", cfg.Dataset.Watch, "Reload the dataset when the file changes")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	defer logger.Sync()

	cfg := config.Global().Get()
	cfg.Server.Host = serveHost
	cfg.Server.Port = servePort

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Telemetry.Enabled {
		otlpCfg := telemetry.DefaultOTLPConfig("plantpulse")
		otlpCfg.ServiceVersion = version
		if cfg.Telemetry.Endpoint != "" {
			otlpCfg.Endpoint = cfg.Telemetry.Endpoint
		}
		shutdown, err := telemetry.InitOTLP(otlpCfg)
		if err != nil {
			logger.Warn("telemetry disabled", zap.Error(err))
		} else {
			defer shutdown(context.Background())
		}
	}

	eng := engine.New(engine.Options{
		Workers:    cfg.Engine.Workers,
		JobTimeout: cfg.Engine.JobTimeout,
		Logger:     logger,
	})
	defer eng.Close()

	path := datasetPath
	if path == "" {
		path = cfg.Dataset.Path
	}
	if path != "" && path != "-" {
		if _, err := eng.LoadDataset(ctx, loaderFor(path, cfg, logger)); err != nil {
			return err
		}
	}

	srv := server.NewServer(eng, cfg.Server, cfg.Dataset, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if serveWatch && path != "" && path != "-" && !ingest.IsS3URL(path) {
		watcher, err := watch.NewWatcher()
		if err != nil {
			return err
		}
		watcher.OnChange = func(changed string) error {
			logger.Info("dataset changed, reloading", zap.String("path", changed))
			info, err := eng.LoadDataset(ctx, loaderFor(changed, cfg, logger))
			if err != nil {
				return err
			}
			srv.Broker().Publish(0, server.SSEEvent{
				Event: "dataset",
				Data:  info,
			})
			return nil
		}
		watcher.OnError = func(p string, err error) {
			logger.Warn("dataset watch error", zap.String("path", p), zap.Error(err))
		}
		if err := watcher.Watch(path); err != nil {
			return err
		}
		g.Go(func() error {
			err := watcher.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	fmt.Printf("PlantPulse server on http://%s:%d (Ctrl+C to stop)\n", serveHost, servePort)
	return g.Wait()
}
