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

import "errors"

var (
	// ErrValidation marks a client-side precondition violation.
	// No network call is attempted when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrNoProject indicates no project is selected.
	ErrNoProject = errors.New("no project selected")

	// ErrNotPDF indicates the uploaded file is not a PDF document.
	ErrNotPDF = errors.New("only PDF files are supported")

	// ErrEmptyFile indicates the uploaded file has no content.
	ErrEmptyFile = errors.New("file is empty")

	// ErrEmptyQuestion indicates the question is blank after trimming.
	ErrEmptyQuestion = errors.New("question cannot be empty")

	// ErrInvalidTopK indicates a non-positive result limit.
	ErrInvalidTopK = errors.New("top-k must be a positive integer")

	// ErrInvalidChunking indicates chunk or overlap sizes are unusable.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrEmptyProjectName indicates a blank project name.
	ErrEmptyProjectName = errors.New("project name cannot be empty")

	// ErrStageFailure marks a pipeline run that stopped at a stage.
	ErrStageFailure = errors.New("pipeline stage failed")

	// ErrIllegalTransition indicates an event that the current stage cannot accept.
	ErrIllegalTransition = errors.New("illegal stage transition")
)

// ValidationError is returned for precondition violations.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return ErrValidation.Error() + ": " + e.Err.Error()
	}
	return ErrValidation.Error() + ": " + e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}
