package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/executor"
	"github.com/poiesic/ragpilot/executor/mock"
	"github.com/poiesic/ragpilot/gateway"
	"github.com/poiesic/ragpilot/storage"
	"github.com/poiesic/ragpilot/storage/badger"
)

func testFile(projectID core.ProjectID) *core.UploadedFile {
	return &core.UploadedFile{
		ProjectID: projectID,
		Name:      "guide.pdf",
		MimeType:  core.MimeTypePDF,
		Data:      []byte("%PDF-1.4 test"),
		Pages:     2,
	}
}

func newTestPipeline(t *testing.T, exec executor.Executor, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(exec, opts...)
	require.NoError(t, err)
	return p
}

// recordingMonitor captures every callback as a string event.
type recordingMonitor struct {
	mu     sync.Mutex
	events []string
}

func (m *recordingMonitor) add(event string) {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
}

func (m *recordingMonitor) RunStarted(run *core.PipelineRun) {
	m.add("run:" + run.Stage.String())
}

func (m *recordingMonitor) StageStarted(_ *core.PipelineRun, stage core.StageKind) {
	m.add("start:" + stage.String())
}

func (m *recordingMonitor) StageCompleted(_ *core.PipelineRun, result *core.StageResult) {
	m.add("done:" + result.Stage.String())
}

func (m *recordingMonitor) StageFailed(_ *core.PipelineRun, err *core.StageError) {
	m.add("fail:" + err.Stage.String())
}

func (m *recordingMonitor) RunFinished(run *core.PipelineRun) {
	m.add("end:" + run.Stage.String())
}

func TestNewPipeline_RequiresExecutor(t *testing.T) {
	_, err := NewPipeline(nil)
	assert.ErrorIs(t, err, ErrExecutorRequired)

	_, err = NewPipeline(mock.New(), WithClock(nil))
	assert.Error(t, err)
}

func TestPipeline_RunSuccess(t *testing.T) {
	exec := mock.New(mock.WithoutDelay())
	monitor := &recordingMonitor{}
	p := newTestPipeline(t, exec, WithMonitor(monitor))

	run, err := p.Run(context.Background(), testFile(7), nil)
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, core.StageDone, run.Stage.Kind)
	assert.True(t, run.Succeeded())
	assert.True(t, run.Mock)
	assert.Nil(t, run.Err)
	assert.Equal(t, core.WorkingStages, run.CompletedStages())
	assert.Equal(t, []string{"upload", "process", "push_index"}, exec.Calls())
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
	assert.Equal(t, "guide.pdf", run.Result(core.StageUploading).Payload["file_name"])
	assert.Equal(t, `File "guide.pdf" uploaded, processed, and indexed successfully`, run.Summary())

	assert.Equal(t, []string{
		"run:Idle",
		"start:Uploading", "done:Uploading",
		"start:Processing", "done:Processing",
		"start:Indexing", "done:Indexing",
		"end:Done",
	}, monitor.events)
	assert.False(t, p.InFlight(7))
}

func TestPipeline_RunParameters(t *testing.T) {
	exec := mock.New(mock.WithoutDelay())
	var gotParams executor.ProcessParams
	var gotReset bool
	exec.ProcessFunc = func(_ context.Context, _ core.ProjectID, params executor.ProcessParams) (map[string]any, error) {
		gotParams = params
		return map[string]any{"inserted_chunks": 3}, nil
	}
	exec.PushIndexFunc = func(_ context.Context, _ core.ProjectID, reset bool) (map[string]any, error) {
		gotReset = reset
		return map[string]any{}, nil
	}
	p := newTestPipeline(t, exec)

	tests := []struct {
		name       string
		opts       *RunOptions
		wantParams executor.ProcessParams
		wantReset  bool
	}{
		{
			name:       "nil options use defaults",
			opts:       nil,
			wantParams: executor.ProcessParams{ChunkSize: 100, OverlapSize: 20},
		},
		{
			name:       "zero chunk size uses default",
			opts:       &RunOptions{OverlapSize: 10},
			wantParams: executor.ProcessParams{ChunkSize: 100, OverlapSize: 10},
		},
		{
			name:       "explicit",
			opts:       &RunOptions{ChunkSize: 500, OverlapSize: 50, FileID: "abc_guide.pdf", ProcessReset: true, IndexReset: true},
			wantParams: executor.ProcessParams{FileID: "abc_guide.pdf", ChunkSize: 500, OverlapSize: 50, Reset: true},
			wantReset:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Run(context.Background(), testFile(1), tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.wantParams, gotParams)
			assert.Equal(t, tt.wantReset, gotReset)
		})
	}
}

func TestPipeline_ProcessFailureKeepsUpload(t *testing.T) {
	exec := mock.New(mock.WithoutDelay())
	exec.ProcessFunc = func(context.Context, core.ProjectID, executor.ProcessParams) (map[string]any, error) {
		return nil, &gateway.TransportError{
			Op:      "process",
			Status:  500,
			Message: "chunking failed",
		}
	}
	monitor := &recordingMonitor{}
	p := newTestPipeline(t, exec, WithMonitor(monitor))

	run, err := p.Run(context.Background(), testFile(3), nil)
	require.Error(t, err)
	require.NotNil(t, run, "the run is returned with the failure")

	var stageErr *core.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, core.StageProcessing, stageErr.Stage)
	assert.Equal(t, 500, stageErr.Status)
	assert.Equal(t, "chunking failed", stageErr.Message)
	assert.ErrorIs(t, err, core.ErrStageFailure)
	assert.ErrorIs(t, err, gateway.ErrTransport)

	assert.Equal(t, core.Failed(core.StageProcessing), run.Stage)
	assert.Same(t, stageErr, run.Err)
	assert.Equal(t, []core.StageKind{core.StageUploading}, run.CompletedStages())
	assert.NotNil(t, run.Result(core.StageUploading), "upload result retained")
	assert.Equal(t, []string{"upload", "process"}, exec.Calls(), "indexing never called")
	assert.Equal(t, `File "guide.pdf" uploaded, but processing failed: chunking failed`, run.Summary())

	assert.Equal(t, []string{
		"run:Idle",
		"start:Uploading", "done:Uploading",
		"start:Processing", "fail:Processing",
		"end:Failed(Processing)",
	}, monitor.events)
}

func TestPipeline_FailureAtEachStage(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name      string
		failAt    core.StageKind
		wantCalls []string
		completed []core.StageKind
	}{
		{"upload", core.StageUploading, []string{"upload"}, []core.StageKind{}},
		{"process", core.StageProcessing, []string{"upload", "process"}, []core.StageKind{core.StageUploading}},
		{"index", core.StageIndexing, []string{"upload", "process", "push_index"},
			[]core.StageKind{core.StageUploading, core.StageProcessing}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := mock.New(mock.WithoutDelay())
			switch tt.failAt {
			case core.StageUploading:
				exec.UploadFunc = func(context.Context, *core.UploadedFile) (map[string]any, error) { return nil, boom }
			case core.StageProcessing:
				exec.ProcessFunc = func(context.Context, core.ProjectID, executor.ProcessParams) (map[string]any, error) {
					return nil, boom
				}
			case core.StageIndexing:
				exec.PushIndexFunc = func(context.Context, core.ProjectID, bool) (map[string]any, error) { return nil, boom }
			}
			p := newTestPipeline(t, exec)

			run, err := p.Run(context.Background(), testFile(1), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, core.Failed(tt.failAt), run.Stage)
			assert.Equal(t, tt.completed, run.CompletedStages())
			assert.Equal(t, tt.wantCalls, exec.Calls())
			assert.Equal(t, "boom", run.Err.Message)
			assert.Zero(t, run.Err.Status, "not a transport failure")
		})
	}
}

func TestPipeline_ValidationIssuesNoCalls(t *testing.T) {
	tests := []struct {
		name    string
		file    *core.UploadedFile
		opts    *RunOptions
		wantErr error
	}{
		{"nil file", nil, nil, core.ErrEmptyFile},
		{"no project", testFile(0), nil, core.ErrNoProject},
		{"not pdf", &core.UploadedFile{ProjectID: 1, Name: "a.txt", MimeType: "text/plain", Data: []byte("x")}, nil, core.ErrNotPDF},
		{"empty", &core.UploadedFile{ProjectID: 1, Name: "a.pdf", MimeType: core.MimeTypePDF}, nil, core.ErrEmptyFile},
		{"negative chunk", testFile(1), &RunOptions{ChunkSize: -1}, core.ErrInvalidChunking},
		{"overlap too large", testFile(1), &RunOptions{ChunkSize: 50, OverlapSize: 50}, core.ErrInvalidChunking},
		{"negative overlap", testFile(1), &RunOptions{ChunkSize: 50, OverlapSize: -1}, core.ErrInvalidChunking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := mock.New(mock.WithoutDelay())
			monitor := &recordingMonitor{}
			p := newTestPipeline(t, exec, WithMonitor(monitor))

			run, err := p.Run(context.Background(), tt.file, tt.opts)
			assert.Nil(t, run)
			assert.ErrorIs(t, err, core.ErrValidation)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, exec.CallCount())
			assert.Empty(t, monitor.events)
		})
	}
}

func TestPipeline_OneRunPerProject(t *testing.T) {
	exec := mock.New(mock.WithoutDelay())
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	exec.UploadFunc = func(_ context.Context, file *core.UploadedFile) (map[string]any, error) {
		if file.ProjectID == 1 {
			once.Do(func() { close(entered) })
			<-release
		}
		return map[string]any{}, nil
	}
	p := newTestPipeline(t, exec)

	done := make(chan error, 1)
	go func() {
		_, err := p.Run(context.Background(), testFile(1), nil)
		done <- err
	}()
	<-entered
	assert.True(t, p.InFlight(1))

	run, err := p.Run(context.Background(), testFile(1), nil)
	assert.Nil(t, run)
	assert.ErrorIs(t, err, ErrRunInProgress)

	// Another project is unaffected.
	run, err = p.Run(context.Background(), testFile(2), nil)
	require.NoError(t, err)
	assert.True(t, run.Succeeded())

	close(release)
	require.NoError(t, <-done)
	assert.False(t, p.InFlight(1))

	_, err = p.Run(context.Background(), testFile(1), nil)
	assert.NoError(t, err, "slot released after the terminal stage")
}

func TestPipeline_Cancellation(t *testing.T) {
	exec := mock.New(mock.WithDelays(mock.Delays{Upload: time.Hour}))
	p := newTestPipeline(t, exec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := p.Run(ctx, testFile(1), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.Failed(core.StageUploading), run.Stage)
}

func TestPipeline_Journal(t *testing.T) {
	runs, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	exec := mock.New(mock.WithoutDelay())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	p := newTestPipeline(t, exec, WithJournal(runs), WithClock(clock))

	ok, err := p.Run(context.Background(), testFile(4), nil)
	require.NoError(t, err)

	exec.PushIndexFunc = func(context.Context, core.ProjectID, bool) (map[string]any, error) {
		return nil, &gateway.TransportError{Status: 503, Message: "vector store unavailable"}
	}
	failed, err := p.Run(context.Background(), testFile(4), nil)
	require.Error(t, err)

	listed, err := runs.ListRuns(context.Background(), 4, 0)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, failed.ID, listed[0].ID, "most recent first")
	assert.Equal(t, ok.ID, listed[1].ID)

	got := listed[0]
	assert.Equal(t, core.Failed(core.StageIndexing), got.Stage)
	require.NotNil(t, got.Err)
	assert.Equal(t, 503, got.Err.Status)
	assert.Equal(t, "vector store unavailable", got.Err.Message)
	assert.Len(t, got.CompletedStages(), 2)
	assert.True(t, got.Mock)
}

// failingJournal rejects every write.
type failingJournal struct {
	storage.RunRepository
}

func (failingJournal) AddRun(context.Context, *core.PipelineRun) error {
	return storage.ErrStorageClosed
}

func TestPipeline_JournalFailureIgnored(t *testing.T) {
	p := newTestPipeline(t, mock.New(mock.WithoutDelay()), WithJournal(failingJournal{}))

	run, err := p.Run(context.Background(), testFile(1), nil)
	require.NoError(t, err)
	assert.True(t, run.Succeeded())
}

func TestPipeline_RunMonitorOverride(t *testing.T) {
	global := &recordingMonitor{}
	p := newTestPipeline(t, mock.New(mock.WithoutDelay()), WithMonitor(global))

	var seen []core.Stage
	opts := DefaultRunOptions()
	opts.Monitor = MonitorFunc(func(run *core.PipelineRun) {
		seen = append(seen, run.Stage)
	})

	_, err := p.Run(context.Background(), testFile(1), opts)
	require.NoError(t, err)
	assert.Empty(t, global.events)
	assert.Equal(t, []core.Stage{
		{Kind: core.StageUploading},
		{Kind: core.StageProcessing},
		{Kind: core.StageIndexing},
		{Kind: core.StageDone},
	}, seen)
}
