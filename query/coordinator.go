package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/executor"
)

// DefaultApology is the assistant turn appended when a question fails.
const DefaultApology = "Sorry, an error occurred while generating the answer."

// Result is the outcome of one question.
type Result struct {
	ProjectID core.ProjectID
	Question  string
	Answer    string       // The apology when the question failed
	Chunks    []core.Chunk // Retrieved chunks in backend order, for attribution
}

// Coordinator composes search and answer into a single conversational turn
// and keeps the session transcript.
type Coordinator struct {
	exec     executor.Executor
	notifier *Notifier
	apology  string
	now      func() time.Time
	logger   *slog.Logger

	busy atomic.Bool

	mu      sync.Mutex
	active  core.ProjectID
	history *memory.ChatMessageHistory
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithNotifier publishes failure detail on n.
// Default is a notifier of DefaultNotifierSize.
func WithNotifier(n *Notifier) Option {
	return func(c *Coordinator) error {
		if n == nil {
			return fmt.Errorf("notifier cannot be nil")
		}
		c.notifier = n
		return nil
	}
}

// WithApology replaces the assistant turn appended on failure.
func WithApology(text string) Option {
	return func(c *Coordinator) error {
		if text == "" {
			return fmt.Errorf("apology cannot be empty")
		}
		c.apology = text
		return nil
	}
}

// NewCoordinator creates a coordinator issuing its calls through exec.
func NewCoordinator(exec executor.Executor, opts ...Option) (*Coordinator, error) {
	if exec == nil {
		return nil, ErrExecutorRequired
	}

	c := &Coordinator{
		exec:     exec,
		notifier: NewNotifier(DefaultNotifierSize),
		apology:  DefaultApology,
		now:      time.Now,
		logger:   slog.Default(),
		history:  memory.NewChatMessageHistory(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "coordinator")
	return c, nil
}

// Notifier returns the channel carrying failure detail.
func (c *Coordinator) Notifier() *Notifier {
	return c.notifier
}

// Busy reports whether a question is outstanding.
func (c *Coordinator) Busy() bool {
	return c.busy.Load()
}

// Ask answers question for projectID using up to topK chunks.
//
// The user turn is appended before any call is issued. Search always
// precedes Answer and both are awaited before exactly one assistant turn
// is appended. On failure the assistant turn is the apology, the detail is
// published on the notifier and the returned Result still carries any
// chunks retrieved before the failure.
//
// The conversation belongs to one project at a time. Asking about another
// project starts a new conversation. If the active project is no longer
// projectID when a call resolves, the outcome is discarded and
// ErrStaleResult is returned.
func (c *Coordinator) Ask(ctx context.Context, projectID core.ProjectID, question string, topK int) (*Result, error) {
	if err := core.ValidateProjectID(projectID); err != nil {
		return nil, err
	}
	question, err := core.ValidateQuestion(question)
	if err != nil {
		return nil, err
	}
	if err := core.ValidateTopK(topK); err != nil {
		return nil, err
	}

	if !c.busy.CompareAndSwap(false, true) {
		return nil, ErrAskInProgress
	}
	defer c.busy.Store(false)

	c.SetProject(projectID)
	if err := c.appendTurn(ctx, projectID, core.RoleUser, question); err != nil {
		return nil, err
	}

	result := &Result{ProjectID: projectID, Question: question}
	logger := c.logger.With("project", projectID)
	exec := executor.Resolve(c.exec)

	chunks, err := exec.Search(ctx, projectID, question, topK)
	if err != nil {
		return c.fail(ctx, result, "search", err, logger)
	}
	result.Chunks = chunks

	answer, err := exec.Answer(ctx, projectID, question, topK)
	if err != nil {
		return c.fail(ctx, result, "answer", err, logger)
	}
	result.Answer = answer

	if err := c.appendTurn(ctx, projectID, core.RoleAssistant, answer); err != nil {
		return nil, err
	}
	logger.Debug("question answered", "chunks", len(chunks))
	return result, nil
}

func (c *Coordinator) fail(ctx context.Context, result *Result, op string, cause error,
	logger *slog.Logger) (*Result, error) {
	if c.ActiveProject() != result.ProjectID {
		return nil, ErrStaleResult
	}

	logger.Warn("query failed", "op", op, "err", cause)
	c.notifier.Publish(Notification{ProjectID: result.ProjectID, Op: op, Err: cause, At: c.now()})

	result.Answer = c.apology
	if err := c.appendTurn(ctx, result.ProjectID, core.RoleAssistant, c.apology); err != nil {
		return nil, err
	}
	return result, fmt.Errorf("%w: %s: %w", ErrQueryFailed, op, cause)
}

// appendTurn adds a turn unless projectID is no longer active.
func (c *Coordinator) appendTurn(ctx context.Context, projectID core.ProjectID, role core.Role, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != projectID {
		return ErrStaleResult
	}
	// The history is in memory; its methods only fail on a cancelled context.
	addCtx := context.WithoutCancel(ctx)
	if role == core.RoleUser {
		return c.history.AddUserMessage(addCtx, text)
	}
	return c.history.AddAIMessage(addCtx, text)
}

// SetProject makes projectID the active project. Changing project clears
// the transcript, and outstanding questions about any other project are
// discarded when they resolve.
func (c *Coordinator) SetProject(projectID core.ProjectID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == projectID {
		return
	}
	c.active = projectID
	c.clear()
}

// ActiveProject returns the project the transcript belongs to.
func (c *Coordinator) ActiveProject() core.ProjectID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Reset clears the transcript and keeps the active project.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
}

func (c *Coordinator) clear() {
	if err := c.history.Clear(context.Background()); err != nil {
		c.logger.Error("error clearing transcript", "err", err)
	}
}

// Transcript returns the conversation so far, oldest turn first.
func (c *Coordinator) Transcript() []core.ChatTurn {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages, err := c.history.Messages(context.Background())
	if err != nil {
		c.logger.Error("error reading transcript", "err", err)
		return nil
	}

	turns := make([]core.ChatTurn, 0, len(messages))
	for _, msg := range messages {
		role := core.RoleAssistant
		if msg.GetType() == llms.ChatMessageTypeHuman {
			role = core.RoleUser
		}
		turns = append(turns, core.ChatTurn{Role: role, Content: msg.GetContent()})
	}
	return turns
}
