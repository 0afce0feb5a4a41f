package ingestion

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/poiesic/ragpilot/core"
)

// LoadDocument reads the file at path and stages it for upload to projectID.
//
// The mime type is sniffed from content rather than taken from the file
// extension. Files sniffed as PDF are opened to count their pages; a PDF
// that cannot be parsed is rejected with ErrUnreadablePDF. Files of any
// other type are returned as-is so that validation reports the mime type.
func LoadDocument(path string, projectID core.ProjectID) (*core.UploadedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}
	return NewDocument(filepath.Base(path), data, projectID)
}

// NewDocument stages in-memory content named name for upload to projectID.
func NewDocument(name string, data []byte, projectID core.ProjectID) (*core.UploadedFile, error) {
	file := &core.UploadedFile{
		ProjectID: projectID,
		Name:      name,
		Data:      data,
	}
	if len(data) == 0 {
		return file, nil
	}

	mtype := mimetype.Detect(data)
	file.MimeType = mtype.String()
	if !mtype.Is(core.MimeTypePDF) {
		return file, nil
	}
	// mimetype reports parameters for some types; the backend expects the bare type.
	file.MimeType = core.MimeTypePDF

	pages, err := countPages(data)
	if err != nil {
		return nil, &core.ValidationError{Field: "file", Err: fmt.Errorf("%w: %s: %w", ErrUnreadablePDF, name, err)}
	}
	file.Pages = pages
	return file, nil
}

// countPages opens data as a PDF. The parser panics on some malformed
// cross-reference tables, so panics are reported as errors.
func countPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}
