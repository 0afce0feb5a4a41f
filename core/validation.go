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

import (
	"fmt"
	"strings"
)

// ValidateProjectID checks that a project is selected.
func ValidateProjectID(id ProjectID) error {
	if id.IsZero() {
		return &ValidationError{Field: "project", Err: ErrNoProject}
	}
	return nil
}

// ValidateUpload checks the upload preconditions: a selected project,
// non-empty content and a PDF mime type.
func ValidateUpload(file *UploadedFile) error {
	if file == nil {
		return &ValidationError{Field: "file", Err: ErrEmptyFile}
	}
	if err := ValidateProjectID(file.ProjectID); err != nil {
		return err
	}
	if len(file.Data) == 0 {
		return &ValidationError{Field: "file", Err: ErrEmptyFile}
	}
	if file.MimeType != MimeTypePDF {
		return &ValidationError{Field: "file", Err: fmt.Errorf("%w: got %q", ErrNotPDF, file.MimeType)}
	}
	return nil
}

// ValidateChunking checks processing parameters.
// Overlap must be smaller than the chunk size.
func ValidateChunking(chunkSize, overlapSize int) error {
	if chunkSize <= 0 {
		return &ValidationError{Field: "chunk_size", Err: fmt.Errorf("%w: chunk size %d", ErrInvalidChunking, chunkSize)}
	}
	if overlapSize < 0 || overlapSize >= chunkSize {
		return &ValidationError{Field: "overlap_size", Err: fmt.Errorf("%w: overlap %d with chunk size %d",
			ErrInvalidChunking, overlapSize, chunkSize)}
	}
	return nil
}

// ValidateQuestion trims the question and checks it is not blank.
// Returns the trimmed text.
func ValidateQuestion(question string) (string, error) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return "", &ValidationError{Field: "question", Err: ErrEmptyQuestion}
	}
	return trimmed, nil
}

// ValidateTopK checks that the result limit is positive.
// No upper bound is enforced here.
func ValidateTopK(topK int) error {
	if topK <= 0 {
		return &ValidationError{Field: "top_k", Err: fmt.Errorf("%w: %d", ErrInvalidTopK, topK)}
	}
	return nil
}

// ValidateProjectName trims the name and checks it is not blank.
func ValidateProjectName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", &ValidationError{Field: "name", Err: ErrEmptyProjectName}
	}
	return trimmed, nil
}
