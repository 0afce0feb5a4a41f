package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_HappyPath(t *testing.T) {
	stage := Idle()

	events := []struct {
		ev   Event
		want Stage
	}{
		{EventStart, Stage{Kind: StageUploading}},
		{EventSucceeded, Stage{Kind: StageProcessing}},
		{EventSucceeded, Stage{Kind: StageIndexing}},
		{EventSucceeded, Stage{Kind: StageDone}},
	}

	for _, step := range events {
		next, err := Transition(stage, step.ev)
		require.NoError(t, err)
		assert.Equal(t, step.want, next)
		stage = next
	}
	assert.True(t, stage.IsTerminal())
}

func TestTransition_FailureAtEachStage(t *testing.T) {
	for _, kind := range WorkingStages {
		t.Run(kind.String(), func(t *testing.T) {
			next, err := Transition(Stage{Kind: kind}, EventFailed)
			require.NoError(t, err)
			assert.Equal(t, Failed(kind), next)
			assert.True(t, next.IsTerminal())
		})
	}
}

func TestTransition_IllegalPairs(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		ev    Event
	}{
		{"idle cannot succeed", Idle(), EventSucceeded},
		{"idle cannot fail", Idle(), EventFailed},
		{"uploading cannot restart", Stage{Kind: StageUploading}, EventStart},
		{"processing cannot restart", Stage{Kind: StageProcessing}, EventStart},
		{"done is terminal", Stage{Kind: StageDone}, EventSucceeded},
		{"done cannot fail", Stage{Kind: StageDone}, EventFailed},
		{"failed is terminal", Failed(StageProcessing), EventStart},
		{"failed cannot succeed", Failed(StageIndexing), EventSucceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Transition(tt.stage, tt.ev)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIllegalTransition)
			assert.Equal(t, tt.stage, next, "stage must be unchanged on illegal transition")
		})
	}
}

func TestTransition_NeverMovesBackwards(t *testing.T) {
	all := []Stage{
		Idle(),
		{Kind: StageUploading},
		{Kind: StageProcessing},
		{Kind: StageIndexing},
		{Kind: StageDone},
		Failed(StageUploading),
		Failed(StageProcessing),
		Failed(StageIndexing),
	}
	for _, stage := range all {
		for _, ev := range []Event{EventStart, EventSucceeded, EventFailed} {
			next, err := Transition(stage, ev)
			if err != nil {
				continue
			}
			if next.Kind == StageFailed {
				assert.Equal(t, stage.Kind, next.At)
				continue
			}
			assert.Greater(t, next.Kind, stage.Kind, "%s + %s", stage, ev)
		}
	}
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "Idle", Idle().String())
	assert.Equal(t, "Indexing", Stage{Kind: StageIndexing}.String())
	assert.Equal(t, "Failed(Processing)", Failed(StageProcessing).String())
}
