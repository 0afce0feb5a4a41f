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

package core

import "fmt"

// StageKind enumerates the pipeline stages in execution order.
type StageKind uint8

const (
	StageIdle StageKind = iota
	StageUploading
	StageProcessing
	StageIndexing
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageIdle:       "Idle",
	StageUploading:  "Uploading",
	StageProcessing: "Processing",
	StageIndexing:   "Indexing",
	StageDone:       "Done",
	StageFailed:     "Failed",
}

func (k StageKind) String() string {
	if int(k) < len(stageNames) {
		return stageNames[k]
	}
	return fmt.Sprintf("StageKind(%d)", uint8(k))
}

// IsWorking reports whether the kind is one of the three network-bound stages.
func (k StageKind) IsWorking() bool {
	return k == StageUploading || k == StageProcessing || k == StageIndexing
}

// WorkingStages lists the network-bound stages in order.
var WorkingStages = []StageKind{StageUploading, StageProcessing, StageIndexing}

// Stage is the state of a pipeline run. At is only meaningful when
// Kind is StageFailed and names the stage that failed.
type Stage struct {
	Kind StageKind
	At   StageKind
}

// Idle is the initial stage of every run.
func Idle() Stage {
	return Stage{Kind: StageIdle}
}

// Failed returns the terminal failure stage for the given working stage.
func Failed(at StageKind) Stage {
	return Stage{Kind: StageFailed, At: at}
}

// IsTerminal reports whether no further transition is possible.
func (s Stage) IsTerminal() bool {
	return s.Kind == StageDone || s.Kind == StageFailed
}

func (s Stage) String() string {
	if s.Kind == StageFailed {
		return "Failed(" + s.At.String() + ")"
	}
	return s.Kind.String()
}

// Event drives a stage transition.
type Event uint8

const (
	EventStart Event = iota + 1
	EventSucceeded
	EventFailed
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("Event(%d)", uint8(e))
	}
}

// Transition computes the next stage. It has no side effects.
//
//	Idle        + start     -> Uploading
//	Uploading   + succeeded -> Processing
//	Processing  + succeeded -> Indexing
//	Indexing    + succeeded -> Done
//	<working>   + failed    -> Failed(<working>)
//
// Every other combination returns ErrIllegalTransition.
func Transition(current Stage, ev Event) (Stage, error) {
	switch {
	case current.Kind == StageIdle && ev == EventStart:
		return Stage{Kind: StageUploading}, nil
	case current.Kind.IsWorking() && ev == EventSucceeded:
		return Stage{Kind: current.Kind + 1}, nil
	case current.Kind.IsWorking() && ev == EventFailed:
		return Failed(current.Kind), nil
	}
	return current, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, ev, current)
}
