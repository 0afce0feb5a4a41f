package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/executor"
	"github.com/poiesic/ragpilot/gateway"
	"github.com/poiesic/ragpilot/storage"
)

const (
	// DefaultChunkSize is the chunk size used when none is given.
	DefaultChunkSize = 100

	// DefaultOverlapSize is the overlap used when no options are given.
	DefaultOverlapSize = 20
)

// Pipeline sequences upload, process and index for one document at a time
// per project.
type Pipeline struct {
	exec    executor.Executor
	journal storage.RunRepository
	monitor StageMonitor
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	inFlight map[core.ProjectID]string // project -> run ID
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithMonitor sets the monitor notified of every run.
func WithMonitor(monitor StageMonitor) Option {
	return func(p *Pipeline) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		p.monitor = monitor
		return nil
	}
}

// WithJournal records every terminal run in repo.
func WithJournal(repo storage.RunRepository) Option {
	return func(p *Pipeline) error {
		p.journal = repo
		return nil
	}
}

// WithClock replaces the time source used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		p.now = now
		return nil
	}
}

// NewPipeline creates a pipeline executing its effects through exec.
func NewPipeline(exec executor.Executor, opts ...Option) (*Pipeline, error) {
	if exec == nil {
		return nil, ErrExecutorRequired
	}

	p := &Pipeline{
		exec:     exec,
		monitor:  &noopMonitor{},
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default(),
		inFlight: make(map[core.ProjectID]string),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "pipeline")
	return p, nil
}

// RunOptions holds the per-run parameters.
type RunOptions struct {
	ChunkSize    int    // Zero means DefaultChunkSize
	OverlapSize  int    // Must be smaller than ChunkSize
	FileID       string // Restrict processing to one uploaded file
	ProcessReset bool   // Discard prior chunks before processing
	IndexReset   bool   // Clear the vector collection before indexing

	// Monitor replaces the pipeline monitor for this run when set.
	Monitor StageMonitor
}

// DefaultRunOptions returns the options used when Run receives nil.
func DefaultRunOptions() *RunOptions {
	return &RunOptions{
		ChunkSize:   DefaultChunkSize,
		OverlapSize: DefaultOverlapSize,
	}
}

// InFlight reports whether projectID has a run that has not reached a
// terminal stage.
func (p *Pipeline) InFlight(projectID core.ProjectID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[projectID]
	return ok
}

// Run takes file through upload, process and index and returns the
// terminal run.
//
// Validation failures return a *core.ValidationError and no run; no effect
// is issued. A second Run for a project whose previous run is still in
// flight returns ErrRunInProgress. A stage failure returns the run,
// stopped at Failed(stage), together with its *core.StageError.
func (p *Pipeline) Run(ctx context.Context, file *core.UploadedFile, opts *RunOptions) (*core.PipelineRun, error) {
	if opts == nil {
		opts = DefaultRunOptions()
	}
	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	if err := core.ValidateUpload(file); err != nil {
		return nil, err
	}
	if err := core.ValidateChunking(chunkSize, opts.OverlapSize); err != nil {
		return nil, err
	}

	run := core.NewPipelineRun(uuid.NewString(), file.ProjectID, file.Name)
	if !p.acquire(file.ProjectID, run.ID) {
		return nil, fmt.Errorf("%w: project %s", ErrRunInProgress, file.ProjectID)
	}
	defer p.release(file.ProjectID)

	monitor := p.monitor
	if opts.Monitor != nil {
		monitor = opts.Monitor
	}

	params := executor.ProcessParams{
		FileID:      opts.FileID,
		ChunkSize:   chunkSize,
		OverlapSize: opts.OverlapSize,
		Reset:       opts.ProcessReset,
	}

	logger := p.logger.With("run", run.ID, "project", file.ProjectID, "file", file.Name)
	exec := executor.Resolve(p.exec)
	run.Mock = executor.IsSimulated(exec)
	run.StartedAt = p.now()
	monitor.RunStarted(run)
	logger.Info("ingestion started", "mock", run.Mock, "bytes", file.Size())

	if err := run.Apply(core.EventStart); err != nil {
		return nil, err
	}

	for !run.Stage.IsTerminal() {
		stage := run.Stage.Kind
		monitor.StageStarted(run, stage)

		payload, err := execute(ctx, exec, stage, file, params, opts.IndexReset)
		if err != nil {
			stageErr := &core.StageError{
				Stage:   stage,
				Message: failureMessage(err),
				Status:  gateway.StatusOf(err),
				Cause:   err,
			}
			if applyErr := run.Apply(core.EventFailed); applyErr != nil {
				return run, applyErr
			}
			run.Err = stageErr
			monitor.StageFailed(run, stageErr)
			logger.Warn("stage failed", "stage", stage, "status", stageErr.Status, "err", err)
			break
		}

		result := &core.StageResult{Stage: stage, Payload: payload, CompletedAt: p.now()}
		run.Results[stage] = result
		monitor.StageCompleted(run, result)
		logger.Debug("stage completed", "stage", stage)

		if err := run.Apply(core.EventSucceeded); err != nil {
			return run, err
		}
	}

	run.FinishedAt = p.now()
	p.record(ctx, run, logger)
	monitor.RunFinished(run)

	if run.Err != nil {
		return run, run.Err
	}
	logger.Info("ingestion finished", "elapsed", run.FinishedAt.Sub(run.StartedAt))
	return run, nil
}

// execute performs the effect of a working stage.
func execute(ctx context.Context, exec executor.Executor, stage core.StageKind, file *core.UploadedFile,
	params executor.ProcessParams, indexReset bool) (map[string]any, error) {
	switch stage {
	case core.StageUploading:
		return exec.Upload(ctx, file)
	case core.StageProcessing:
		return exec.Process(ctx, file.ProjectID, params)
	case core.StageIndexing:
		return exec.PushIndex(ctx, file.ProjectID, indexReset)
	default:
		return nil, fmt.Errorf("%w: no effect for stage %s", core.ErrIllegalTransition, stage)
	}
}

// record writes the terminal run to the journal. Journal failures never
// affect the run outcome.
func (p *Pipeline) record(ctx context.Context, run *core.PipelineRun, logger *slog.Logger) {
	if p.journal == nil {
		return
	}
	// The journal entry is written even when the caller's context is done.
	if err := p.journal.AddRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("error recording run", "err", err)
	}
}

func (p *Pipeline) acquire(projectID core.ProjectID, runID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[projectID]; busy {
		return false
	}
	p.inFlight[projectID] = runID
	return true
}

func (p *Pipeline) release(projectID core.ProjectID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, projectID)
}

// failureMessage prefers the backend-provided message of a transport error.
func failureMessage(err error) string {
	var tErr *gateway.TransportError
	if errors.As(err, &tErr) && tErr.Message != "" {
		return tErr.Message
	}
	return err.Error()
}
