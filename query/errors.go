package query

import "errors"

var (
	// ErrExecutorRequired is returned when an executor is not provided.
	ErrExecutorRequired = errors.New("executor required")

	// ErrAskInProgress is returned when a question is asked while another
	// is still outstanding.
	ErrAskInProgress = errors.New("a question is already being answered")

	// ErrStaleResult is returned when the coordinator was reset while the
	// question was outstanding. The result is discarded.
	ErrStaleResult = errors.New("result discarded after context change")

	// ErrQueryFailed marks a failed search or answer call.
	ErrQueryFailed = errors.New("query failed")
)
