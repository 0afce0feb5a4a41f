package executor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragpilot/core"
	"github.com/poiesic/ragpilot/executor"
	"github.com/poiesic/ragpilot/executor/mock"
	"github.com/poiesic/ragpilot/mode"
)

func TestNewSwitch_RequiresAll(t *testing.T) {
	_, err := executor.NewSwitch(nil, mock.New(), mock.New())
	assert.ErrorIs(t, err, executor.ErrExecutorRequired)

	_, err = executor.NewSwitch(mode.NewController(), nil, mock.New())
	assert.ErrorIs(t, err, executor.ErrExecutorRequired)
}

func TestSwitch_Dispatch(t *testing.T) {
	ctrl := mode.NewController()
	live := mock.New(mock.WithoutDelay())
	sim := mock.New(mock.WithoutDelay())

	sw, err := executor.NewSwitch(ctrl, live, sim)
	require.NoError(t, err)

	file := &core.UploadedFile{ProjectID: 1, Name: "a.pdf", Data: []byte("x")}

	_, err = sw.Upload(t.Context(), file)
	require.NoError(t, err)
	assert.False(t, executor.IsSimulated(sw))
	assert.Equal(t, 1, live.CallCount())
	assert.Equal(t, 0, sim.CallCount())

	ctrl.SetUserMock(true)
	assert.True(t, executor.IsSimulated(sw))
	_, err = sw.Process(t.Context(), 1, executor.ProcessParams{ChunkSize: 100})
	require.NoError(t, err)
	_, err = sw.PushIndex(t.Context(), 1, false)
	require.NoError(t, err)
	_, err = sw.Search(t.Context(), 1, "q", 3)
	require.NoError(t, err)
	_, err = sw.Answer(t.Context(), 1, "q", 3)
	require.NoError(t, err)

	assert.Equal(t, 1, live.CallCount(), "live executor untouched in mock mode")
	assert.Equal(t, []string{"process", "push_index", "search", "answer"}, sim.Calls())
}

func TestSwitch_FallbackRoutesToMock(t *testing.T) {
	ctrl := mode.NewController()
	live := mock.New(mock.WithoutDelay())
	sim := mock.New(mock.WithoutDelay())
	sw, err := executor.NewSwitch(ctrl, live, sim)
	require.NoError(t, err)

	ctrl.ReportLiveFailure(mode.ScopeProjects)
	ctrl.SetUserMock(false)

	_, err = sw.Search(t.Context(), 1, "q", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, live.CallCount())
	assert.Equal(t, 1, sim.CallCount())
}

func TestSwitch_Resolve(t *testing.T) {
	ctrl := mode.NewController()
	live := mock.New(mock.WithoutDelay())
	sim := mock.New(mock.WithoutDelay())
	sw, err := executor.NewSwitch(ctrl, live, sim)
	require.NoError(t, err)

	resolved := executor.Resolve(sw)
	assert.Same(t, live, resolved)

	ctrl.SetUserMock(true)
	_, err = resolved.Search(t.Context(), 1, "q", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, live.CallCount(), "a resolved executor ignores later mode changes")
	assert.Same(t, sim, executor.Resolve(sw))
	assert.Same(t, sim, executor.Resolve(sim), "plain executors resolve to themselves")
}
