package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUpload(t *testing.T) {
	valid := func() *UploadedFile {
		return &UploadedFile{
			ProjectID: 7,
			Name:      "doc.pdf",
			MimeType:  MimeTypePDF,
			Data:      []byte("%PDF-1.4"),
		}
	}

	t.Run("valid file", func(t *testing.T) {
		assert.NoError(t, ValidateUpload(valid()))
	})

	tests := []struct {
		name    string
		mutate  func(f *UploadedFile)
		wantErr error
	}{
		{"no project", func(f *UploadedFile) { f.ProjectID = 0 }, ErrNoProject},
		{"not a pdf", func(f *UploadedFile) { f.MimeType = "text/plain" }, ErrNotPDF},
		{"empty mime", func(f *UploadedFile) { f.MimeType = "" }, ErrNotPDF},
		{"empty data", func(f *UploadedFile) { f.Data = nil }, ErrEmptyFile},
		{"empty data without mime", func(f *UploadedFile) { f.Data, f.MimeType = nil, "" }, ErrEmptyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := valid()
			tt.mutate(f)
			err := ValidateUpload(f)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.ErrorIs(t, err, tt.wantErr)

			var vErr *ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}

	t.Run("nil file", func(t *testing.T) {
		assert.ErrorIs(t, ValidateUpload(nil), ErrValidation)
	})
}

func TestValidateChunking(t *testing.T) {
	tests := []struct {
		name    string
		chunk   int
		overlap int
		wantErr bool
	}{
		{"defaults", 100, 20, false},
		{"zero overlap", 100, 0, false},
		{"zero chunk", 0, 0, true},
		{"negative overlap", 100, -1, true},
		{"overlap equals chunk", 50, 50, true},
		{"overlap exceeds chunk", 50, 60, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunking(tt.chunk, tt.overlap)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidChunking)
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateQuestion(t *testing.T) {
	q, err := ValidateQuestion("  what is RAG?  ")
	require.NoError(t, err)
	assert.Equal(t, "what is RAG?", q)

	_, err = ValidateQuestion(" \t\n ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestValidateTopK(t *testing.T) {
	assert.NoError(t, ValidateTopK(1))
	assert.NoError(t, ValidateTopK(50), "no upper clamp")
	assert.ErrorIs(t, ValidateTopK(0), ErrInvalidTopK)
	assert.ErrorIs(t, ValidateTopK(-3), ErrInvalidTopK)
}

func TestValidateProjectName(t *testing.T) {
	name, err := ValidateProjectName(" Demo ")
	require.NoError(t, err)
	assert.Equal(t, "Demo", name)

	_, err = ValidateProjectName("   ")
	assert.ErrorIs(t, err, ErrEmptyProjectName)
}

func TestValidationError_Message(t *testing.T) {
	err := ValidateProjectID(0)
	assert.Equal(t, "validation failed: project: no project selected", err.Error())
}
