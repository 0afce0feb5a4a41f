package ingestion

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Basic(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 3, 1)

	tracker.Start()
	tracker.Done(true)
	tracker.Done(false)
	tracker.Done(true)

	assert.Greater(t, tracker.Elapsed(), time.Duration(0))
	finished, failed := tracker.Counts()
	assert.Equal(t, 3, finished)
	assert.Equal(t, 1, failed)

	output := buf.String()
	assert.Contains(t, output, "3/3")
	assert.Contains(t, output, "100.0%")
	assert.Contains(t, output, "1 failed")
}

func TestProgressTracker_ReportInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 10, 5)
	tracker.Start()

	for i := 0; i < 4; i++ {
		tracker.Done(true)
	}
	assert.Equal(t, "", buf.String(), "should not print under interval")

	tracker.Done(true)
	assert.Contains(t, buf.String(), "5/10")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 4, 10)

	tracker.Start()
	tracker.Done(true)
	tracker.Finish()

	output := buf.String()
	assert.Contains(t, output, "1/4", "finish reports the actual count")
	assert.Contains(t, output, "\n")
}

func TestProgressTracker_CapsAtTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 1, 1)

	tracker.Start()
	tracker.Done(true)
	tracker.Done(true)

	finished, _ := tracker.Counts()
	assert.Equal(t, 1, finished)
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 5, 0)

	tracker.Done(true)
	tracker.Finish()

	assert.Equal(t, "", buf.String(), "should have no output when not started")
	assert.Zero(t, tracker.Elapsed())
}
