package executor

import (
	"context"
	"errors"

	"github.com/poiesic/ragpilot/core"
)

// ErrExecutorRequired is returned when Switch is built without both executors.
var ErrExecutorRequired = errors.New("live and mock executors required")

// ModeSource reports the effective mode. Satisfied by *mode.Controller.
type ModeSource interface {
	IsEffectiveMock() bool
}

// Switch dispatches every call to the mock or the live executor according to
// the effective mode at the time of the call. In mock mode the live executor
// is never touched.
type Switch struct {
	mode ModeSource
	live Executor
	mock Executor
}

var _ Executor = (*Switch)(nil)
var _ Simulator = (*Switch)(nil)
var _ Resolver = (*Switch)(nil)

// NewSwitch creates a mode-aware executor.
func NewSwitch(mode ModeSource, live, mock Executor) (*Switch, error) {
	if mode == nil || live == nil || mock == nil {
		return nil, ErrExecutorRequired
	}
	return &Switch{mode: mode, live: live, mock: mock}, nil
}

// Simulated reports whether the next call goes to the mock executor.
func (s *Switch) Simulated() bool {
	return s.mode.IsEffectiveMock()
}

// Resolve returns the executor selected by the current mode. The choice
// does not follow later mode changes.
func (s *Switch) Resolve() Executor {
	return s.current()
}

func (s *Switch) current() Executor {
	if s.mode.IsEffectiveMock() {
		return s.mock
	}
	return s.live
}

func (s *Switch) Upload(ctx context.Context, file *core.UploadedFile) (map[string]any, error) {
	return s.current().Upload(ctx, file)
}

func (s *Switch) Process(ctx context.Context, projectID core.ProjectID, params ProcessParams) (map[string]any, error) {
	return s.current().Process(ctx, projectID, params)
}

func (s *Switch) PushIndex(ctx context.Context, projectID core.ProjectID, reset bool) (map[string]any, error) {
	return s.current().PushIndex(ctx, projectID, reset)
}

func (s *Switch) Search(ctx context.Context, projectID core.ProjectID, text string, limit int) ([]core.Chunk, error) {
	return s.current().Search(ctx, projectID, text, limit)
}

func (s *Switch) Answer(ctx context.Context, projectID core.ProjectID, text string, limit int) (string, error) {
	return s.current().Answer(ctx, projectID, text, limit)
}
