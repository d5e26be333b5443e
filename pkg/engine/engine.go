package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/plantpulse/plantpulse/internal/model"
	"github.com/plantpulse/plantpulse/pkg/errors"
	"github.com/plantpulse/plantpulse/pkg/store"
)

const tracerName = "github.com/plantpulse/plantpulse/pkg/engine"

// Loader produces a sealed store from some dataset source.
type Loader interface {
	// Load reads, parses, and indexes the dataset.
	Load(ctx context.Context) (*store.Store, error)
	// Name describes the source for logs.
	Name() string
}

// Options configures an Engine.
type Options struct {
	// Workers is the aggregation pool size; zero means one per CPU.
	Workers int
	// JobTimeout bounds a single analysis job; zero means DefaultJobTimeout.
	JobTimeout time.Duration
	// Logger is the engine's structured logger; nil means no-op.
	Logger *zap.Logger
}

// Engine is the top-level facade: it owns the current dataset, the worker
// pool, and the orchestrator. Dataset replacement is atomic with respect
// to running jobs.
type Engine struct {
	opts   Options
	logger *zap.Logger
	pool   *WorkerPool
	orch   *Orchestrator

	mu sync.RWMutex
	st *store.Store
}

// New creates an Engine with the given options.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pool := NewWorkerPool(opts.Workers)
	return &Engine{
		opts:   opts,
		logger: logger,
		pool:   pool,
		orch:   NewOrchestrator(pool, opts.JobTimeout, logger),
	}
}

// LoadDataset loads a dataset through the loader and installs it as the
// current one. Jobs running against the previous dataset are canceled.
func (e *Engine) LoadDataset(ctx context.Context, loader Loader) (model.DatasetInfo, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "engine.LoadDataset")
	defer span.End()
	span.SetAttributes(attribute.String("source", loader.Name()))

	start := time.Now()
	st, err := loader.Load(ctx)
	if err != nil {
		return model.DatasetInfo{}, err
	}
	if !st.Sealed() {
		st.Seal()
	}

	e.orch.CancelAll()
	e.mu.Lock()
	e.st = st
	e.mu.Unlock()

	info := st.Info()
	span.SetAttributes(
		attribute.Int("records", info.RecordCount),
		attribute.Int("dropped", info.DroppedRows),
	)
	e.logger.Info("dataset loaded",
		zap.String("source", loader.Name()),
		zap.String("version", info.Version),
		zap.Int("records", info.RecordCount),
		zap.Int("dropped", info.DroppedRows),
		zap.Duration("elapsed", time.Since(start)))

	return info, nil
}

// Dataset returns info about the current dataset; ok is false before the
// first successful load.
func (e *Engine) Dataset() (model.DatasetInfo, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st == nil {
		return model.DatasetInfo{}, false
	}
	return e.st.Info(), true
}

// DistinctValues lists the distinct values of an indexed dimension in the
// current dataset, for populating filter choices.
func (e *Engine) DistinctValues(dim string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.st == nil {
		return nil
	}
	return e.st.Index().DistinctValues(dim)
}

// ApplyFilters starts an analysis job over the current dataset and returns
// its id plus the progress and result channels. The result channel receives
// exactly one Result; both channels close when the job finishes. A newer
// call supersedes any job still running.
func (e *Engine) ApplyFilters(ctx context.Context, criteria model.FilterCriteria, mode model.GroupingMode) (int64, <-chan ProgressEvent, <-chan Result, error) {
	e.mu.RLock()
	st := e.st
	e.mu.RUnlock()
	if st == nil {
		return 0, nil, nil, errors.New(errors.CodeDatasetNotReady, "no dataset loaded")
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "engine.ApplyFilters")
	span.SetAttributes(
		attribute.String("mode", mode.String()),
		attribute.Int("dataset_records", st.Len()),
	)

	id, progress, results := e.orch.Start(ctx, st, criteria, mode)
	span.SetAttributes(attribute.Int64("job_id", id))
	span.End()

	return id, progress, results, nil
}

// Analyze runs ApplyFilters synchronously, draining progress, and returns
// the final aggregate. Convenience for the CLI path.
func (e *Engine) Analyze(ctx context.Context, criteria model.FilterCriteria, mode model.GroupingMode) (*FinalAggregate, error) {
	_, progress, results, err := e.ApplyFilters(ctx, criteria, mode)
	if err != nil {
		return nil, err
	}
	go func() {
		for range progress {
		}
	}()
	res := <-results
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Final, nil
}

// Close cancels running jobs and stops the worker pool.
func (e *Engine) Close() {
	e.orch.CancelAll()
	e.pool.Close()
}
