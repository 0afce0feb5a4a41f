// Package live implements executor.Executor over the backend gateway.
package live

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/executor"
	"github.com/poiesic/ragpilot/gateway"
)

// ErrGatewayRequired is returned when no gateway is supplied.
var ErrGatewayRequired = errors.New("gateway required")

// Gateway is the subset of *gateway.Client used by the live executor.
type Gateway interface {
	UploadFile(ctx context.Context, file *core.UploadedFile) (gateway.Payload, error)
	ProcessData(ctx context.Context, id core.ProjectID, in gateway.ProcessRequest) (gateway.Payload, error)
	PushIndex(ctx context.Context, id core.ProjectID, in gateway.PushRequest) (gateway.Payload, error)
	Search(ctx context.Context, id core.ProjectID, text string, limit int) ([]core.Chunk, error)
	Answer(ctx context.Context, id core.ProjectID, text string, limit int) (*gateway.Answer, error)
}

var _ Gateway = (*gateway.Client)(nil)

// Executor issues one backend call per operation.
type Executor struct {
	gw     Gateway
	logger *slog.Logger
}

var _ executor.Executor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// New creates a live executor.
func New(gw Gateway, opts ...Option) (*Executor, error) {
	if gw == nil {
		return nil, ErrGatewayRequired
	}
	e := &Executor{gw: gw, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "live-executor")
	return e, nil
}

// Simulated always reports false.
func (e *Executor) Simulated() bool {
	return false
}

func (e *Executor) Upload(ctx context.Context, file *core.UploadedFile) (map[string]any, error) {
	e.logger.Debug("uploading file", "project", file.ProjectID, "file", file.Name, "bytes", file.Size())
	return e.gw.UploadFile(ctx, file)
}

func (e *Executor) Process(ctx context.Context, projectID core.ProjectID, params executor.ProcessParams) (map[string]any, error) {
	req := gateway.ProcessRequest{
		ChunkSize:   params.ChunkSize,
		OverlapSize: params.OverlapSize,
		DoReset:     gateway.ResetFlag(params.Reset),
	}
	if params.FileID != "" {
		fileID := params.FileID
		req.FileID = &fileID
	}
	e.logger.Debug("processing project", "project", projectID, "chunk_size", params.ChunkSize, "overlap", params.OverlapSize)
	return e.gw.ProcessData(ctx, projectID, req)
}

func (e *Executor) PushIndex(ctx context.Context, projectID core.ProjectID, reset bool) (map[string]any, error) {
	e.logger.Debug("pushing index", "project", projectID, "reset", reset)
	return e.gw.PushIndex(ctx, projectID, gateway.PushRequest{DoReset: gateway.ResetFlag(reset)})
}

func (e *Executor) Search(ctx context.Context, projectID core.ProjectID, text string, limit int) ([]core.Chunk, error) {
	return e.gw.Search(ctx, projectID, text, limit)
}

func (e *Executor) Answer(ctx context.Context, projectID core.ProjectID, text string, limit int) (string, error) {
	answer, err := e.gw.Answer(ctx, projectID, text, limit)
	if err != nil {
		return "", err
	}
	return answer.Answer, nil
}
