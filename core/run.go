package core

import (
	"fmt"
	"strings"
	"time"
)

// StageError records which pipeline stage failed and why.
type StageError struct {
	Stage   StageKind
	Message string
	Status  int   // HTTP status when the failure came from the backend
	Cause   error // Not persisted
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %s", strings.ToLower(e.Stage.String()), e.Message)
}

func (e *StageError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrStageFailure}
	}
	return []error{ErrStageFailure, e.Cause}
}

// PipelineRun is the per-invocation state of an upload -> process -> index run.
type PipelineRun struct {
	ID         string
	ProjectID  ProjectID
	FileName   string
	Stage      Stage
	Results    map[StageKind]*StageResult // Completed stages only
	Err        *StageError
	Mock       bool // Whether the run executed against simulated effects
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewPipelineRun creates a run in the Idle stage.
func NewPipelineRun(id string, projectID ProjectID, fileName string) *PipelineRun {
	return &PipelineRun{
		ID:        id,
		ProjectID: projectID,
		FileName:  fileName,
		Stage:     Idle(),
		Results:   make(map[StageKind]*StageResult, len(WorkingStages)),
	}
}

// Apply advances the run with ev. The run is left unchanged when the
// transition is illegal.
func (r *PipelineRun) Apply(ev Event) error {
	next, err := Transition(r.Stage, ev)
	if err != nil {
		return err
	}
	r.Stage = next
	return nil
}

// Result returns the retained result of a completed stage, or nil.
func (r *PipelineRun) Result(stage StageKind) *StageResult {
	return r.Results[stage]
}

// CompletedStages lists the stages that produced a result, in order.
func (r *PipelineRun) CompletedStages() []StageKind {
	completed := make([]StageKind, 0, len(WorkingStages))
	for _, stage := range WorkingStages {
		if _, ok := r.Results[stage]; ok {
			completed = append(completed, stage)
		}
	}
	return completed
}

// Succeeded reports whether all stages completed.
func (r *PipelineRun) Succeeded() bool {
	return r.Stage.Kind == StageDone
}

var stageVerbs = map[StageKind]string{
	StageUploading:  "uploaded",
	StageProcessing: "processed",
	StageIndexing:   "indexed",
}

// Summary describes the run outcome in one line.
func (r *PipelineRun) Summary() string {
	completed := r.CompletedStages()
	verbs := make([]string, 0, len(completed))
	for _, stage := range completed {
		verbs = append(verbs, stageVerbs[stage])
	}

	switch {
	case r.Succeeded():
		return fmt.Sprintf("File %q uploaded, processed, and indexed successfully", r.FileName)
	case r.Err != nil && len(verbs) == 0:
		return fmt.Sprintf("Failed to upload file %q: %s", r.FileName, r.Err.Message)
	case r.Err != nil:
		return fmt.Sprintf("File %q %s, but %s failed: %s", r.FileName, joinVerbs(verbs),
			stageNoun(r.Err.Stage), r.Err.Message)
	case len(verbs) > 0:
		return fmt.Sprintf("File %q %s", r.FileName, joinVerbs(verbs))
	default:
		return fmt.Sprintf("File %q pending", r.FileName)
	}
}

func joinVerbs(verbs []string) string {
	if len(verbs) <= 1 {
		return strings.Join(verbs, "")
	}
	return strings.Join(verbs[:len(verbs)-1], ", ") + " and " + verbs[len(verbs)-1]
}

func stageNoun(stage StageKind) string {
	switch stage {
	case StageUploading:
		return "upload"
	case StageProcessing:
		return "processing"
	case StageIndexing:
		return "indexing"
	default:
		return strings.ToLower(stage.String())
	}
}
