package ingestion

import "errors"

var (
	// ErrExecutorRequired is returned when an executor is not provided.
	ErrExecutorRequired = errors.New("executor required")

	// ErrPipelineRequired is returned when a pipeline is not provided.
	ErrPipelineRequired = errors.New("pipeline required")

	// ErrRunInProgress is returned when a run is started for a project that
	// already has one in flight.
	ErrRunInProgress = errors.New("a run is already in progress for this project")

	// ErrUnreadablePDF indicates a file that claims to be a PDF but cannot be parsed.
	ErrUnreadablePDF = errors.New("unreadable PDF document")
)
