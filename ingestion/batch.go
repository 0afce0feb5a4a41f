package ingestion

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/ragpilot/core"
)

// Job is one document of a batch.
type Job struct {
	File    *core.UploadedFile
	Options *RunOptions // nil uses DefaultRunOptions
}

// JobResult is the outcome of one Job. Run is nil when the job was rejected
// before it started.
type JobResult struct {
	Job Job
	Run *core.PipelineRun
	Err error
}

// Batch ingests many documents through a Pipeline.
// Jobs targeting the same project run one after another in submission
// order; jobs for different projects run concurrently on a worker pool.
type Batch struct {
	pipeline *Pipeline
	pool     *ants.Pool
	progress *ProgressTracker
	logger   *slog.Logger
}

// BatchOption configures a Batch.
type BatchOption func(*Batch) error

// WithPoolSize sets the number of projects ingested concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) BatchOption {
	return func(b *Batch) error {
		if size < 1 {
			size = 1
		}
		if b.pool != nil {
			b.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		b.pool = pool
		return nil
	}
}

// WithProgress reports finished documents to tracker.
// The tracker is started and finished by Ingest.
func WithProgress(tracker *ProgressTracker) BatchOption {
	return func(b *Batch) error {
		b.progress = tracker
		return nil
	}
}

// WithBatchLogger sets a custom logger.
// Default is slog.Default().
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *Batch) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBatch creates a batch runner over pipeline.
func NewBatch(pipeline *Pipeline, opts ...BatchOption) (*Batch, error) {
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	b := &Batch{
		pipeline: pipeline,
		pool:     pool,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if optErr := opt(b); optErr != nil {
			b.Release()
			return nil, optErr
		}
	}
	b.logger = b.logger.With("component", "batch")
	return b, nil
}

// Ingest runs every job and returns one result per job, in input order.
// A failed job never stops the others. When ctx is cancelled, jobs that
// have not started are reported with the context error.
func (b *Batch) Ingest(ctx context.Context, jobs []Job) []JobResult {
	results := make([]JobResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	// Group job indexes per project, keeping submission order.
	order := make([]core.ProjectID, 0)
	groups := make(map[core.ProjectID][]int)
	for i, job := range jobs {
		results[i].Job = job
		var pid core.ProjectID
		if job.File != nil {
			pid = job.File.ProjectID
		}
		if _, ok := groups[pid]; !ok {
			order = append(order, pid)
		}
		groups[pid] = append(groups[pid], i)
	}

	if b.progress != nil {
		b.progress.Start()
		defer b.progress.Finish()
	}

	var wg sync.WaitGroup
	for _, pid := range order {
		indexes := groups[pid]
		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			for _, i := range indexes {
				b.runJob(ctx, &results[i])
			}
		})
		if err != nil {
			wg.Done()
			b.logger.Error("error submitting jobs", "project", pid, "err", err)
			for _, i := range indexes {
				results[i].Err = err
				b.done(false)
			}
		}
	}
	wg.Wait()

	return results
}

func (b *Batch) runJob(ctx context.Context, result *JobResult) {
	if err := ctx.Err(); err != nil {
		result.Err = err
		b.done(false)
		return
	}

	run, err := b.pipeline.Run(ctx, result.Job.File, result.Job.Options)
	result.Run = run
	result.Err = err
	if err != nil {
		name := ""
		if result.Job.File != nil {
			name = result.Job.File.Name
		}
		b.logger.Warn("document not ingested", "file", name, "err", err)
	}
	b.done(err == nil)
}

func (b *Batch) done(succeeded bool) {
	if b.progress != nil {
		b.progress.Done(succeeded)
	}
}

// Release releases the worker pool.
func (b *Batch) Release() {
	if b.pool != nil {
		b.pool.Release()
	}
}
