// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ragpilot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/poiesic/ragpilot/config"
	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/executor"
	"github.com/poiesic/ragpilot/executor/live"
	"github.com/poiesic/ragpilot/executor/mock"
	"github.com/poiesic/ragpilot/gateway"
	"github.com/poiesic/ragpilot/ingestion"
	"github.com/poiesic/ragpilot/mode"
	"github.com/poiesic/ragpilot/query"
	"github.com/poiesic/ragpilot/storage"
	"github.com/poiesic/ragpilot/storage/badger"
)

// DefaultProjectDelay is the simulated latency of project operations.
const DefaultProjectDelay = 800 * time.Millisecond

// DemoProjects returns the projects listed while the backend is simulated.
func DemoProjects() []core.Project {
	return []core.Project{
		{ID: 1, Name: "Demo Project 1"},
		{ID: 2, Name: "Demo Project 2"},
	}
}

// Session is the working context of one client: its backend, its execution
// mode, the selected project and the conversation held against it.
type Session struct {
	cfg         *config.Config
	backend     *badger.Backend
	runs        storage.RunRepository
	state       storage.StateRepository
	client      *gateway.Client
	mode        *mode.Controller
	mock        *mock.Executor
	exec        *executor.Switch
	pipeline    *ingestion.Pipeline
	coordinator *query.Coordinator
	delay       time.Duration
	logger      *slog.Logger

	mu       sync.RWMutex
	projects []core.Project
	selected core.Project
	closed   bool
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	logger    *slog.Logger
	delay     time.Duration
	mockOpts  []mock.Option
	monitor   ingestion.StageMonitor
	notifier  *query.Notifier
	transport http.RoundTripper
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) SessionOption {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// WithProjectDelay overrides the simulated latency of project operations.
func WithProjectDelay(d time.Duration) SessionOption {
	return func(o *sessionOptions) {
		o.delay = d
	}
}

// WithMockOptions configures the simulated executor.
func WithMockOptions(opts ...mock.Option) SessionOption {
	return func(o *sessionOptions) {
		o.mockOpts = append(o.mockOpts, opts...)
	}
}

// WithMonitor observes every ingestion run of the session.
func WithMonitor(monitor ingestion.StageMonitor) SessionOption {
	return func(o *sessionOptions) {
		o.monitor = monitor
	}
}

// WithNotifier routes query failure details to n.
func WithNotifier(n *query.Notifier) SessionOption {
	return func(o *sessionOptions) {
		o.notifier = n
	}
}

// WithTransport replaces the HTTP transport of the backend client.
func WithTransport(rt http.RoundTripper) SessionOption {
	return func(o *sessionOptions) {
		o.transport = rt
	}
}

// NewSession opens the run journal and wires the gateway, the mode
// controller, both executors, the ingestion pipeline and the query
// coordinator. The journal lives in memory when cfg.Journal.Path is empty.
// A selection saved by an earlier session is restored.
func NewSession(cfg *config.Config, opts ...SessionOption) (*Session, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &sessionOptions{delay: DefaultProjectDelay}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := badger.OpenBackend(cfg.Journal.Path, cfg.Journal.Path == "")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	s, err := wire(cfg, backend, options, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}

	selection, err := s.state.LoadSelection(context.Background())
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("load selection: %w", err)
	}
	if selection != nil {
		s.selected = core.Project{ID: selection.ProjectID, Name: selection.ProjectName}
		s.coordinator.SetProject(selection.ProjectID)
	}

	s.logger.Info("session opened", "endpoint", s.client.Config().Endpoint(),
		"mode", s.mode.Snapshot().String(), "journal", cfg.Journal.Path, "project", s.selected.ID)
	return s, nil
}

func wire(cfg *config.Config, backend *badger.Backend, options *sessionOptions, logger *slog.Logger) (*Session, error) {
	gwOpts := []gateway.Option{gateway.WithLogger(logger)}
	if options.transport != nil {
		gwOpts = append(gwOpts, gateway.WithTransport(options.transport))
	}
	client, err := gateway.NewClient(cfg.Gateway(), gwOpts...)
	if err != nil {
		return nil, err
	}

	controller := mode.NewController(mode.WithMock(cfg.Mock), mode.WithLogger(logger))

	liveExec, err := live.New(client, live.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	mockOpts := []mock.Option{mock.WithLogger(logger)}
	if cfg.Model.Enabled() {
		model, err := openai.New(
			openai.WithBaseURL(cfg.Model.BaseURL),
			openai.WithToken(cfg.Model.Token),
			openai.WithModel(cfg.Model.Name),
		)
		if err != nil {
			return nil, fmt.Errorf("create answer model: %w", err)
		}
		mockOpts = append(mockOpts, mock.WithModel(model))
	}
	mockExec := mock.New(append(mockOpts, options.mockOpts...)...)

	exec, err := executor.NewSwitch(controller, liveExec, mockExec)
	if err != nil {
		return nil, err
	}

	runs := badger.NewRunRepository(backend)
	pipeline, err := ingestion.NewPipeline(exec,
		ingestion.WithLogger(logger),
		ingestion.WithMonitor(options.monitor),
		ingestion.WithJournal(runs),
	)
	if err != nil {
		return nil, err
	}

	queryOpts := []query.Option{query.WithLogger(logger)}
	if options.notifier != nil {
		queryOpts = append(queryOpts, query.WithNotifier(options.notifier))
	}
	coordinator, err := query.NewCoordinator(exec, queryOpts...)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:         cfg,
		backend:     backend,
		runs:        runs,
		state:       badger.NewStateRepository(backend),
		client:      client,
		mode:        controller,
		mock:        mockExec,
		exec:        exec,
		pipeline:    pipeline,
		coordinator: coordinator,
		delay:       options.delay,
		logger:      logger.With("component", "session"),
	}, nil
}

// Close releases the journal. Calling Close more than once is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.runs.Close(); err != nil {
		s.logger.Warn("closing run journal", "err", err)
	}
	return s.backend.Close()
}

// Config returns the configuration the session was opened with.
func (s *Session) Config() *config.Config {
	return s.cfg
}

// Mode returns the current execution mode.
func (s *Session) Mode() mode.State {
	return s.mode.Snapshot()
}

// SetMock sets the user mock toggle. An active fallback stays active.
func (s *Session) SetMock(enabled bool) {
	s.mode.SetUserMock(enabled)
}

// Notifier returns the surface query failures are published on.
func (s *Session) Notifier() *query.Notifier {
	return s.coordinator.Notifier()
}

// Welcome identifies the backend. Nothing is sent while simulated.
func (s *Session) Welcome(ctx context.Context) (*gateway.Welcome, error) {
	if s.mode.IsEffectiveMock() {
		return &gateway.Welcome{AppName: "mini-rag", AppVersion: "simulated"}, nil
	}
	return s.client.Welcome(ctx)
}

// ListProjects refreshes and returns the project list.
//
// While simulated the demo projects are returned after the project delay.
// A failed or malformed live listing also yields the demo projects and
// switches the session to simulated execution for good. A cancelled or
// expired ctx is returned as is and leaves the mode alone.
func (s *Session) ListProjects(ctx context.Context) ([]core.Project, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var projects []core.Project
	if s.mode.IsEffectiveMock() {
		if err := sleep(ctx, s.delay); err != nil {
			return nil, err
		}
		projects = DemoProjects()
	} else {
		listed, err := s.client.ListProjects(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			s.logger.Warn("listing projects failed, using demo projects", "err", err)
			s.mode.ReportLiveFailure(mode.ScopeProjects)
			listed = DemoProjects()
		}
		projects = listed
	}

	s.mu.Lock()
	s.projects = projects
	s.mu.Unlock()
	return append([]core.Project(nil), projects...), nil
}

// Projects returns the project list as last refreshed.
func (s *Session) Projects() []core.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Project(nil), s.projects...)
}

// CreateProject creates a project, appends it to the list and selects it.
// While simulated the new project is numbered after the known ones.
func (s *Session) CreateProject(ctx context.Context, name string) (core.Project, error) {
	if err := s.checkOpen(); err != nil {
		return core.Project{}, err
	}
	name, err := core.ValidateProjectName(name)
	if err != nil {
		return core.Project{}, err
	}

	var project core.Project
	if s.mode.IsEffectiveMock() {
		if err := sleep(ctx, s.delay); err != nil {
			return core.Project{}, err
		}
		s.mu.RLock()
		project = core.Project{ID: core.ProjectID(len(s.projects) + 1), Name: name}
		s.mu.RUnlock()
	} else {
		project, err = s.client.CreateProject(ctx, name)
		if err != nil {
			return core.Project{}, err
		}
	}

	s.mu.Lock()
	s.projects = append(s.projects, project)
	s.mu.Unlock()

	if err := s.SelectProject(ctx, project); err != nil {
		return project, err
	}
	s.logger.Info("project created", "project", project.ID, "name", project.Name)
	return project, nil
}

// GetProject fetches one project. While simulated it is looked up in the
// project list.
func (s *Session) GetProject(ctx context.Context, id core.ProjectID) (core.Project, error) {
	if err := core.ValidateProjectID(id); err != nil {
		return core.Project{}, err
	}
	if s.mode.IsEffectiveMock() {
		if p, ok := s.lookup(id); ok {
			return p, nil
		}
		return core.Project{ID: id}, nil
	}
	return s.client.GetProject(ctx, id)
}

// RenameProject renames a project and updates the local list.
func (s *Session) RenameProject(ctx context.Context, id core.ProjectID, name string) error {
	if err := core.ValidateProjectID(id); err != nil {
		return err
	}
	name, err := core.ValidateProjectName(name)
	if err != nil {
		return err
	}
	if s.mode.IsEffectiveMock() {
		if err := sleep(ctx, s.delay); err != nil {
			return err
		}
	} else if err := s.client.RenameProject(ctx, id, name); err != nil {
		return err
	}

	s.mu.Lock()
	for i := range s.projects {
		if s.projects[i].ID == id {
			s.projects[i].Name = name
		}
	}
	renamedSelected := s.selected.ID == id
	if renamedSelected {
		s.selected.Name = name
	}
	s.mu.Unlock()

	if renamedSelected {
		return s.saveSelection(ctx, core.Project{ID: id, Name: name})
	}
	return nil
}

// SelectProject makes project the active context. Switching to another
// project clears the transcript. Outstanding results are discarded if their
// project is not the selected one when they arrive.
// The selection is saved for the next session.
func (s *Session) SelectProject(ctx context.Context, project core.Project) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := core.ValidateProjectID(project.ID); err != nil {
		return err
	}
	if project.Name == "" {
		if known, ok := s.lookup(project.ID); ok {
			project.Name = known.Name
		}
	}

	s.mu.Lock()
	changed := s.selected.ID != project.ID
	s.selected = project
	s.mu.Unlock()

	s.coordinator.SetProject(project.ID)
	if changed {
		s.logger.Debug("project selected", "project", project.ID)
	}
	return s.saveSelection(ctx, project)
}

// Selected returns the active project, or the zero Project.
func (s *Session) Selected() core.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// LoadDocument reads a document from disk for the selected project.
func (s *Session) LoadDocument(path string) (*core.UploadedFile, error) {
	return ingestion.LoadDocument(path, s.Selected().ID)
}

// Ingest runs the upload, process and index stages for file against the
// selected project. When another project is selected by the time the run
// finishes the run is still journaled but ErrStaleResult is returned in its
// place.
func (s *Session) Ingest(ctx context.Context, file *core.UploadedFile, opts *ingestion.RunOptions) (*core.PipelineRun, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	selected := s.Selected()
	if file != nil {
		staged := *file
		staged.ProjectID = selected.ID
		file = &staged
	}

	run, err := s.pipeline.Run(ctx, file, opts)
	if s.Selected().ID != selected.ID {
		s.logger.Debug("discarding ingestion result", "project", selected.ID)
		return nil, fmt.Errorf("%w: ingestion for project %s", ErrStaleResult, selected.ID)
	}
	return run, err
}

// NewBatch returns a batch ingester sized by the configured worker count.
// Jobs name their own project; the selection is not consulted.
// The caller must Release the batch.
func (s *Session) NewBatch(opts ...ingestion.BatchOption) (*ingestion.Batch, error) {
	opts = append([]ingestion.BatchOption{
		ingestion.WithPoolSize(s.cfg.Ingest.Workers),
		ingestion.WithBatchLogger(s.logger),
	}, opts...)
	return ingestion.NewBatch(s.pipeline, opts...)
}

// RunOptions returns the ingestion options configured for the session.
func (s *Session) RunOptions() *ingestion.RunOptions {
	opts := ingestion.DefaultRunOptions()
	opts.ChunkSize = s.cfg.Ingest.ChunkSize
	opts.OverlapSize = s.cfg.Ingest.OverlapSize
	return opts
}

// Ask runs one conversational turn against the selected project.
func (s *Session) Ask(ctx context.Context, question string, topK int) (*query.Result, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.coordinator.Ask(ctx, s.Selected().ID, question, topK)
}

// Retriever returns a langchaingo retriever over the index of the selected
// project. It follows the execution mode at the time of each search.
func (s *Session) Retriever(topK int) (*query.Retriever, error) {
	return query.NewRetriever(s.exec, s.Selected().ID, topK)
}

// Search retrieves up to topK documents about text from the selected
// project, best first. The transcript is left untouched.
func (s *Session) Search(ctx context.Context, text string, topK int) ([]schema.Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	selected := s.Selected()
	retriever, err := query.NewRetriever(executor.Resolve(s.exec), selected.ID, topK)
	if err != nil {
		return nil, err
	}

	docs, err := retriever.GetRelevantDocuments(ctx, text)
	if s.Selected().ID != selected.ID {
		return nil, fmt.Errorf("%w: search for project %s", ErrStaleResult, selected.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("search project %s: %w", selected.ID, err)
	}
	return docs, nil
}

// Answer asks for a generated answer to text from the selected project.
// The transcript is left untouched.
func (s *Session) Answer(ctx context.Context, text string, topK int) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	selected := s.Selected()
	if err := core.ValidateProjectID(selected.ID); err != nil {
		return "", err
	}
	text, err := core.ValidateQuestion(text)
	if err != nil {
		return "", err
	}
	if err := core.ValidateTopK(topK); err != nil {
		return "", err
	}

	answer, err := s.exec.Answer(ctx, selected.ID, text, topK)
	if s.Selected().ID != selected.ID {
		return "", fmt.Errorf("%w: answer for project %s", ErrStaleResult, selected.ID)
	}
	if err != nil {
		return "", fmt.Errorf("answer project %s: %w", selected.ID, err)
	}
	return answer, nil
}

// Transcript returns the conversation with the selected project.
func (s *Session) Transcript() []core.ChatTurn {
	return s.coordinator.Transcript()
}

// IndexInfo describes the vector collection of a project.
func (s *Session) IndexInfo(ctx context.Context, id core.ProjectID) (gateway.Payload, error) {
	if err := core.ValidateProjectID(id); err != nil {
		return nil, err
	}
	if s.mode.IsEffectiveMock() {
		return gateway.Payload{
			"signal": "vectordb_collection_retrieved",
			"collection_info": map[string]any{
				"points_count": s.mock.Indexed(id),
			},
			"simulated": true,
		}, nil
	}
	return s.client.IndexInfo(ctx, id)
}

// Runs lists journaled runs, most recent first. A zero id lists every project.
func (s *Session) Runs(ctx context.Context, id core.ProjectID, limit int) ([]*core.PipelineRun, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.runs.ListRuns(ctx, id, limit)
}

// PruneRuns drops journaled runs older than the configured retention.
// A zero retention keeps everything.
func (s *Session) PruneRuns(ctx context.Context, now time.Time) (int, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	retention := s.cfg.Journal.Retention.Duration
	if retention <= 0 {
		return 0, nil
	}
	removed, err := s.runs.PruneRuns(ctx, now.Add(-retention))
	if err != nil {
		return 0, err
	}
	s.logger.Info("pruned run journal", "removed", removed, "retention", retention)
	return removed, nil
}

func (s *Session) lookup(id core.ProjectID) (core.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.projects {
		if p.ID == id {
			return p, true
		}
	}
	return core.Project{}, false
}

func (s *Session) saveSelection(ctx context.Context, project core.Project) error {
	err := s.state.SaveSelection(ctx, &core.Selection{ProjectID: project.ID, ProjectName: project.Name})
	if err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

func (s *Session) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
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
