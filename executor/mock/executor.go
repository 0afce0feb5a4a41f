package mock

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/executor"
)

// Delays are the simulated latencies per operation.
type Delays struct {
	Upload  time.Duration
	Process time.Duration
	Index   time.Duration
	Search  time.Duration
	Answer  time.Duration
}

// DefaultDelays mirrors the latencies of the demo front end.
func DefaultDelays() Delays {
	return Delays{
		Upload:  1000 * time.Millisecond,
		Process: 800 * time.Millisecond,
		Index:   800 * time.Millisecond,
		Search:  0,
		Answer:  1200 * time.Millisecond,
	}
}

// simulatedCorpusChars is the document length assumed when estimating how
// many chunks a simulated process stage produces.
const simulatedCorpusChars = 2000

const answerFormat = "This is a mock response to your question: %q. " +
	"In a real application, this would be generated by the RAG system."

// Executor is the simulated executor.
type Executor struct {
	// UploadFunc is called by Upload if set.
	UploadFunc func(ctx context.Context, file *core.UploadedFile) (map[string]any, error)

	// ProcessFunc is called by Process if set.
	ProcessFunc func(ctx context.Context, projectID core.ProjectID, params executor.ProcessParams) (map[string]any, error)

	// PushIndexFunc is called by PushIndex if set.
	PushIndexFunc func(ctx context.Context, projectID core.ProjectID, reset bool) (map[string]any, error)

	// SearchFunc is called by Search if set.
	SearchFunc func(ctx context.Context, projectID core.ProjectID, text string, limit int) ([]core.Chunk, error)

	// AnswerFunc is called by Answer if set.
	AnswerFunc func(ctx context.Context, projectID core.ProjectID, text string, limit int) (string, error)

	delays Delays
	model  llms.Model
	logger *slog.Logger

	mu       sync.Mutex
	calls    []string
	inserted map[core.ProjectID]int
}

var _ executor.Executor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithDelays overrides the simulated latencies.
func WithDelays(d Delays) Option {
	return func(e *Executor) {
		e.delays = d
	}
}

// WithoutDelay disables every simulated latency.
func WithoutDelay() Option {
	return WithDelays(Delays{})
}

// WithModel generates answers with model instead of the canned reply.
// The prompt carries the question and the canned context chunks.
func WithModel(model llms.Model) Option {
	return func(e *Executor) {
		e.model = model
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates a simulated executor with DefaultDelays.
// Note: Returns concrete type to allow test assertions.
func New(opts ...Option) *Executor {
	e := &Executor{
		delays:   DefaultDelays(),
		logger:   slog.Default(),
		inserted: make(map[core.ProjectID]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "mock-executor")
	return e
}

// Simulated always reports true.
func (e *Executor) Simulated() bool {
	return true
}

func (e *Executor) Upload(ctx context.Context, file *core.UploadedFile) (map[string]any, error) {
	e.record("upload")
	if err := sleep(ctx, e.delays.Upload); err != nil {
		return nil, err
	}
	if e.UploadFunc != nil {
		return e.UploadFunc(ctx, file)
	}

	return map[string]any{
		"signal":    "file_upload_success",
		"file_id":   uuid.NewString()[:8] + "_" + file.Name,
		"file_name": file.Name,
		"size":      file.Size(),
		"pages":     file.Pages,
		"simulated": true,
	}, nil
}

func (e *Executor) Process(ctx context.Context, projectID core.ProjectID, params executor.ProcessParams) (map[string]any, error) {
	e.record("process")
	if err := sleep(ctx, e.delays.Process); err != nil {
		return nil, err
	}
	if e.ProcessFunc != nil {
		return e.ProcessFunc(ctx, projectID, params)
	}

	chunks := estimateChunks(params.ChunkSize, params.OverlapSize)
	e.mu.Lock()
	if params.Reset {
		e.inserted[projectID] = chunks
	} else {
		e.inserted[projectID] += chunks
	}
	e.mu.Unlock()

	return map[string]any{
		"signal":          "processing_success",
		"inserted_chunks": chunks,
		"processed_files": 1,
		"simulated":       true,
	}, nil
}

func (e *Executor) PushIndex(ctx context.Context, projectID core.ProjectID, reset bool) (map[string]any, error) {
	e.record("push_index")
	if err := sleep(ctx, e.delays.Index); err != nil {
		return nil, err
	}
	if e.PushIndexFunc != nil {
		return e.PushIndexFunc(ctx, projectID, reset)
	}

	e.mu.Lock()
	count := e.inserted[projectID]
	e.mu.Unlock()

	return map[string]any{
		"signal":               "insert_into_vectordb_success",
		"inserted_items_count": count,
		"reset":                reset,
		"simulated":            true,
	}, nil
}

func (e *Executor) Search(ctx context.Context, projectID core.ProjectID, text string, limit int) ([]core.Chunk, error) {
	e.record("search")
	if err := sleep(ctx, e.delays.Search); err != nil {
		return nil, err
	}
	if e.SearchFunc != nil {
		return e.SearchFunc(ctx, projectID, text, limit)
	}
	return CannedChunks(limit), nil
}

func (e *Executor) Answer(ctx context.Context, projectID core.ProjectID, text string, limit int) (string, error) {
	e.record("answer")
	if err := sleep(ctx, e.delays.Answer); err != nil {
		return "", err
	}
	if e.AnswerFunc != nil {
		return e.AnswerFunc(ctx, projectID, text, limit)
	}
	if e.model == nil {
		return fmt.Sprintf(answerFormat, text), nil
	}

	answer, err := llms.GenerateFromSinglePrompt(ctx, e.model, buildPrompt(text, CannedChunks(limit)))
	if err != nil {
		e.logger.Warn("mock model failed", "project", projectID, "err", err)
		return "", err
	}
	return answer, nil
}

// Indexed returns the simulated chunk count of a project.
func (e *Executor) Indexed(projectID core.ProjectID) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inserted[projectID]
}

// CallCount returns the number of times any method was called.
func (e *Executor) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// Calls returns the invoked operations in order.
func (e *Executor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Reset clears the call log, the simulated index state and every override.
func (e *Executor) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = nil
	e.inserted = make(map[core.ProjectID]int)
	e.UploadFunc = nil
	e.ProcessFunc = nil
	e.PushIndexFunc = nil
	e.SearchFunc = nil
	e.AnswerFunc = nil
}

func (e *Executor) record(op string) {
	e.mu.Lock()
	e.calls = append(e.calls, op)
	e.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func estimateChunks(chunkSize, overlap int) int {
	step := chunkSize - overlap
	if step <= 0 {
		return 1
	}
	n := simulatedCorpusChars / step
	if n < 1 {
		n = 1
	}
	return n
}

func buildPrompt(question string, chunks []core.Chunk) string {
	var sb strings.Builder
	sb.WriteString("Answer the question using only the documents below.\n\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "## Document %d\n%s\n\n", i+1, c.Text)
	}
	sb.WriteString("## Question\n")
	sb.WriteString(question)
	return sb.String()
}
