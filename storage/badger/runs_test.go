package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/storage"
)

func newTestRuns(t *testing.T) storage.RunRepository {
	t.Helper()
	runs, _, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return runs
}

func testRun(id string, projectID core.ProjectID, startedAt time.Time) *core.PipelineRun {
	run := core.NewPipelineRun(id, projectID, id+".pdf")
	run.Stage = core.Failed(core.StageProcessing)
	run.StartedAt = startedAt
	run.FinishedAt = startedAt.Add(time.Second)
	run.Results[core.StageUploading] = &core.StageResult{
		Stage:       core.StageUploading,
		Payload:     map[string]any{"file_id": id},
		CompletedAt: startedAt,
	}
	run.Err = &core.StageError{Stage: core.StageProcessing, Message: "boom", Status: 500}
	return run
}

func TestRunRepository_AddGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRuns(t)
	base := time.Now().UTC().Truncate(time.Microsecond)

	run := testRun("r1", 3, base)
	require.NoError(t, repo.AddRun(ctx, run))

	got, err := repo.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, run, got)
	require.NotNil(t, got.Result(core.StageUploading), "partial results survive the journal")

	_, err = repo.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunRepository_AddInvalid(t *testing.T) {
	repo := newTestRuns(t)

	err := repo.AddRun(context.Background(), core.NewPipelineRun("r1", 1, "a.pdf"))
	assert.ErrorIs(t, err, storage.ErrInvalidRun, "start time required")

	err = repo.AddRun(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrInvalidRun)
}

func TestRunRepository_ListRuns(t *testing.T) {
	ctx := context.Background()
	repo := newTestRuns(t)
	base := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, repo.AddRun(ctx, testRun("a", 1, base)))
	require.NoError(t, repo.AddRun(ctx, testRun("b", 2, base.Add(time.Second))))
	require.NoError(t, repo.AddRun(ctx, testRun("c", 1, base.Add(2*time.Second))))
	require.NoError(t, repo.AddRun(ctx, testRun("d", 10, base.Add(3*time.Second))))

	ids := func(runs []*core.PipelineRun) []string {
		out := make([]string, 0, len(runs))
		for _, r := range runs {
			out = append(out, r.ID)
		}
		return out
	}

	tests := []struct {
		name    string
		project core.ProjectID
		limit   int
		want    []string
	}{
		{"all projects", 0, 0, []string{"d", "c", "b", "a"}},
		{"all projects limited", 0, 2, []string{"d", "c"}},
		{"single project", 1, 0, []string{"c", "a"}},
		{"single project limited", 1, 1, []string{"c"}},
		{"project without runs", 5, 0, []string{}},
		{"no prefix bleed", 10, 0, []string{"d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := repo.ListRuns(ctx, tt.project, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(runs))
		})
	}
}

func TestRunRepository_Replace(t *testing.T) {
	ctx := context.Background()
	repo := newTestRuns(t)
	base := time.Now().UTC().Truncate(time.Microsecond)

	run := testRun("r1", 1, base)
	require.NoError(t, repo.AddRun(ctx, run))

	moved := testRun("r1", 2, base.Add(time.Minute))
	require.NoError(t, repo.AddRun(ctx, moved))

	runs, err := repo.ListRuns(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "old index entry removed")

	runs, err = repo.ListRuns(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, core.ProjectID(2), runs[0].ProjectID)
}

func TestRunRepository_PruneRuns(t *testing.T) {
	ctx := context.Background()
	repo := newTestRuns(t)
	base := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, repo.AddRun(ctx, testRun("old1", 1, base.Add(-48*time.Hour))))
	require.NoError(t, repo.AddRun(ctx, testRun("old2", 2, base.Add(-25*time.Hour))))
	require.NoError(t, repo.AddRun(ctx, testRun("new", 1, base)))

	removed, err := repo.PruneRuns(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	runs, err := repo.ListRuns(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)

	_, err = repo.GetRun(ctx, "old1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	removed, err = repo.PruneRuns(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRunRepository_Closed(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	repo := NewRunRepository(backend)
	require.NoError(t, backend.Close())

	_, err = repo.GetRun(context.Background(), "x")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
