// Package executor defines the effect boundary used by the ingestion
// pipeline and the query coordinator.
//
// Orchestration code is written once against Executor. The live
// implementation issues backend calls, the mock implementation returns
// synthetic results after a simulated delay, and Switch picks between them
// according to the mode controller. A run or a turn calls Resolve once and
// issues all of its calls to the executor it returns.
package executor

import (
	"context"

	"github.com/poiesic/ragpilot/core"
)

// ProcessParams are the chunking parameters of the process stage.
type ProcessParams struct {
	FileID      string // Restricts processing to one uploaded file when set
	ChunkSize   int
	OverlapSize int
	Reset       bool // Discard prior chunks of the project first
}

// Executor performs the network-bound effects of a run or a turn.
type Executor interface {
	// Upload transmits the file bytes for file.ProjectID.
	Upload(ctx context.Context, file *core.UploadedFile) (map[string]any, error)

	// Process chunks the uploaded files of a project.
	Process(ctx context.Context, projectID core.ProjectID, params ProcessParams) (map[string]any, error)

	// PushIndex embeds and indexes the chunks of a project. When reset is
	// true the vector collection is cleared first.
	PushIndex(ctx context.Context, projectID core.ProjectID, reset bool) (map[string]any, error)

	// Search returns up to limit chunks relevant to text.
	Search(ctx context.Context, projectID core.ProjectID, text string, limit int) ([]core.Chunk, error)

	// Answer generates an answer to text.
	Answer(ctx context.Context, projectID core.ProjectID, text string, limit int) (string, error)
}

// Simulator is implemented by executors that can report whether their next
// call will be simulated.
type Simulator interface {
	Simulated() bool
}

// IsSimulated reports whether e will simulate its next call.
// Executors that do not implement Simulator are assumed live.
func IsSimulated(e Executor) bool {
	if s, ok := e.(Simulator); ok {
		return s.Simulated()
	}
	return false
}

// Resolver is implemented by executors that dispatch to another executor.
type Resolver interface {
	Resolve() Executor
}

// Resolve returns the executor e dispatches to at this moment, or e itself.
func Resolve(e Executor) Executor {
	if r, ok := e.(Resolver); ok {
		return r.Resolve()
	}
	return e
}
