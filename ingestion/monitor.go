package ingestion

import "github.com/poiesic/ragpilot/core"

// StageMonitor observes the progress of pipeline runs.
// Callbacks are invoked synchronously from the goroutine executing the run.
type StageMonitor interface {
	RunStarted(run *core.PipelineRun)
	StageStarted(run *core.PipelineRun, stage core.StageKind)
	StageCompleted(run *core.PipelineRun, result *core.StageResult)
	StageFailed(run *core.PipelineRun, err *core.StageError)
	RunFinished(run *core.PipelineRun)
}

// noopMonitor is a no-op implementation of StageMonitor
type noopMonitor struct{}

var _ StageMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) RunStarted(_ *core.PipelineRun)                          {}
func (n *noopMonitor) StageStarted(_ *core.PipelineRun, _ core.StageKind)      {}
func (n *noopMonitor) StageCompleted(_ *core.PipelineRun, _ *core.StageResult) {}
func (n *noopMonitor) StageFailed(_ *core.PipelineRun, _ *core.StageError)     {}
func (n *noopMonitor) RunFinished(_ *core.PipelineRun)                         {}

// MonitorFunc adapts a function to StageMonitor. The function receives the
// run each time it enters a working stage and once more when it reaches a
// terminal stage.
type MonitorFunc func(run *core.PipelineRun)

var _ StageMonitor = MonitorFunc(nil)

func (f MonitorFunc) RunStarted(_ *core.PipelineRun)                          {}
func (f MonitorFunc) StageStarted(run *core.PipelineRun, _ core.StageKind)    { f(run) }
func (f MonitorFunc) StageCompleted(_ *core.PipelineRun, _ *core.StageResult) {}
func (f MonitorFunc) StageFailed(_ *core.PipelineRun, _ *core.StageError)     {}
func (f MonitorFunc) RunFinished(run *core.PipelineRun)                       { f(run) }
