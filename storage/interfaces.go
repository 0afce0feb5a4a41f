package storage

import (
	"context"
	"time"

	"github.com/poiesic/ragpilot/core"
)

// RunRepository is the pipeline run journal.
// Implementations must be thread-safe and support concurrent access.
type RunRepository interface {
	// AddRun stores a run. A run with the same ID is replaced.
	// Returns ErrInvalidRun when the run has no ID or start time.
	AddRun(ctx context.Context, run *core.PipelineRun) error

	// GetRun retrieves a run by ID.
	// Returns ErrNotFound if the run doesn't exist.
	GetRun(ctx context.Context, id string) (*core.PipelineRun, error)

	// ListRuns returns up to limit runs, most recently started first.
	// A zero projectID lists the runs of every project. A limit <= 0
	// returns every matching run.
	ListRuns(ctx context.Context, projectID core.ProjectID, limit int) ([]*core.PipelineRun, error)

	// PruneRuns deletes the runs started before cutoff.
	// Returns the number of runs removed.
	PruneRuns(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases resources held by the repository.
	Close() error
}

// StateRepository persists the session state shared across invocations.
type StateRepository interface {
	// SaveSelection records the selected project. A zero id clears it.
	SaveSelection(ctx context.Context, selection *core.Selection) error

	// LoadSelection returns the saved selection, or nil when none exists.
	LoadSelection(ctx context.Context) (*core.Selection, error)
}
