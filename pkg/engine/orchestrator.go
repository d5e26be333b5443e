package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/plantpulse/plantpulse/internal/model"
	"github.com/plantpulse/plantpulse/pkg/errors"
	"github.com/plantpulse/plantpulse/pkg/store"
)

// JobState tracks a job through its lifecycle.
type JobState int32

const (
	JobCreated JobState = iota
	JobDispatching
	JobAwaitingPartials
	JobReducing
	JobCompleted
	JobFailed
)

// String returns the lowercase state name used in progress events and logs.
func (s JobState) String() string {
	switch s {
	case JobCreated:
		return "created"
	case JobDispatching:
		return "dispatching"
	case JobAwaitingPartials:
		return "aggregating"
	case JobReducing:
		return "reducing"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DefaultJobTimeout bounds a single analysis job.
const DefaultJobTimeout = 30 * time.Second

// Job is the orchestrator's record of one analysis request.
type Job struct {
	ID        int64
	StartedAt time.Time

	state        atomic.Int32
	cancel       context.CancelFunc
	supersededBy atomic.Int64
	done         atomic.Bool
}

// State returns the job's current state.
func (j *Job) State() JobState {
	return JobState(j.state.Load())
}

func (j *Job) setState(s JobState) {
	j.state.Store(int32(s))
}

// Orchestrator owns the worker pool and tracks jobs by id. Job ids are
// monotonically increasing; starting a new job cancels the previous
// still-running one, so at most one job makes progress at a time.
type Orchestrator struct {
	pool    *WorkerPool
	timeout time.Duration
	logger  *zap.Logger

	// aggregate computes one shard's partial; replaced in tests.
	aggregate func(Shard, model.GroupingMode) *PartialAggregate

	nextID atomic.Int64

	mu     sync.Mutex
	jobs   map[int64]*Job
	latest int64
}

// NewOrchestrator creates an orchestrator on top of the given pool.
// A zero timeout falls back to DefaultJobTimeout.
func NewOrchestrator(pool *WorkerPool, timeout time.Duration, logger *zap.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		pool:      pool,
		timeout:   timeout,
		logger:    logger,
		aggregate: AggregateShard,
		jobs:      make(map[int64]*Job),
	}
}

// Job returns the record for the given id, or nil.
func (o *Orchestrator) Job(id int64) *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.jobs[id]
}

// Start launches a new analysis job and returns its id together with the
// progress and result channels. The result channel receives exactly one
// Result and both channels are closed when the job finishes. Any prior
// running job is canceled and fails with CodeJobSuperseded.
func (o *Orchestrator) Start(ctx context.Context, st *store.Store, criteria model.FilterCriteria, mode model.GroupingMode) (int64, <-chan ProgressEvent, <-chan Result) {
	id := o.nextID.Add(1)
	jobCtx, cancel := context.WithTimeout(ctx, o.timeout)

	job := &Job{ID: id, StartedAt: time.Now(), cancel: cancel}
	job.setState(JobCreated)

	o.mu.Lock()
	if prev, ok := o.jobs[o.latest]; ok && !prev.done.Load() {
		prev.supersededBy.Store(id)
		prev.cancel()
	}
	// Finished jobs are only kept until the next request.
	for jid, j := range o.jobs {
		if j.done.Load() {
			delete(o.jobs, jid)
		}
	}
	o.jobs[id] = job
	o.latest = id
	o.mu.Unlock()

	progress := make(chan ProgressEvent, 32)
	results := make(chan Result, 1)

	go o.run(jobCtx, job, st, criteria, mode, progress, results)

	return id, progress, results
}

// CancelAll cancels every job still running. Used on shutdown and on
// dataset replacement.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, job := range o.jobs {
		if !job.done.Load() {
			job.cancel()
		}
	}
}

type shardOutcome struct {
	partial *PartialAggregate
	err     error
}

func (o *Orchestrator) run(ctx context.Context, job *Job, st *store.Store, criteria model.FilterCriteria, mode model.GroupingMode, progress chan<- ProgressEvent, results chan<- Result) {
	defer job.cancel()
	defer close(progress)
	defer close(results)

	start := time.Now()
	log := o.logger.With(zap.Int64("job_id", job.ID))

	fail := func(err error) {
		job.setState(JobFailed)
		job.done.Store(true)
		log.Warn("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		results <- Result{JobID: job.ID, Err: err}
	}

	if err := criteria.Validate(); err != nil {
		fail(errors.Wrap(err, errors.CodeInvalidCriteria, "invalid filter criteria"))
		return
	}
	if !st.Sealed() {
		fail(errors.New(errors.CodeDatasetNotReady, "dataset not loaded"))
		return
	}

	o.emit(progress, job, 5)

	records := Filter(st, criteria)
	grouping := Group(records)
	shards := Plan(grouping, o.pool.Workers())

	log.Debug("job planned",
		zap.Int("filtered", len(records)),
		zap.Int("runs", len(grouping.Runs)),
		zap.Int("loose", len(grouping.Loose)),
		zap.Int("shards", len(shards)))

	job.setState(JobDispatching)
	o.emit(progress, job, 15)

	// No run groups means nothing to dispatch. The result is the
	// well-defined zero aggregate over the requested range.
	if len(shards) == 0 {
		job.setState(JobReducing)
		o.emit(progress, job, 95)
		final := Reduce(nil, criteria, mode)
		final.JobID = job.ID
		final.FilteredRecords = len(records)
		final.Elapsed = time.Since(start)
		job.setState(JobCompleted)
		job.done.Store(true)
		o.emit(progress, job, 100)
		results <- Result{JobID: job.ID, Final: final}
		return
	}

	outcomes := make(chan shardOutcome, len(shards))
	for _, sh := range shards {
		sh := sh
		task := func() {
			defer func() {
				if r := recover(); r != nil {
					outcomes <- shardOutcome{err: errors.WorkerPanic(sh.Index, r)}
				}
			}()
			pa := o.aggregate(sh, mode)
			pa.JobID = job.ID
			outcomes <- shardOutcome{partial: pa}
		}
		if err := o.pool.Submit(ctx, task); err != nil {
			fail(o.mapContextErr(job, err))
			return
		}
	}

	job.setState(JobAwaitingPartials)

	expected := len(shards)
	partials := make([]*PartialAggregate, 0, expected)
	for len(partials) < expected {
		select {
		case <-ctx.Done():
			fail(o.mapContextErr(job, ctx.Err()))
			return
		case out := <-outcomes:
			if out.err != nil {
				fail(out.err)
				return
			}
			partials = append(partials, out.partial)
			o.emit(progress, job, 15+70*len(partials)/expected)
		}
	}

	o.emit(progress, job, 85)
	job.setState(JobReducing)
	o.emit(progress, job, 95)

	final := Reduce(partials, criteria, mode)
	final.JobID = job.ID
	final.FilteredRecords = len(records)
	final.Elapsed = time.Since(start)

	job.setState(JobCompleted)
	job.done.Store(true)
	o.emit(progress, job, 100)

	log.Info("job completed",
		zap.Int("filtered", final.FilteredRecords),
		zap.Int64("runs", final.KPIs.TotalRuns),
		zap.Duration("elapsed", final.Elapsed))

	results <- Result{JobID: job.ID, Final: final}
}

// emit publishes a progress checkpoint without blocking; a slow consumer
// loses intermediate checkpoints but never stalls the job.
func (o *Orchestrator) emit(progress chan<- ProgressEvent, job *Job, percent int) {
	ev := ProgressEvent{JobID: job.ID, Percent: percent, Status: job.State().String()}
	select {
	case progress <- ev:
	default:
	}
}

// mapContextErr translates a context error into the job's terminal error:
// superseded beats timeout beats plain cancellation.
func (o *Orchestrator) mapContextErr(job *Job, err error) error {
	if newer := job.supersededBy.Load(); newer != 0 {
		return errors.JobSuperseded(job.ID, newer)
	}
	if err == context.DeadlineExceeded {
		return errors.Wrap(err, errors.CodeTimeout, "job exceeded time budget").
			WithContext("timeout", o.timeout.String())
	}
	return errors.Wrap(err, errors.CodeCanceled, "job canceled")
}
