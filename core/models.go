package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID identifies a retrieved chunk.
type ID uint64

// IDFromContent derives a stable ID from chunk text.
// Used when the backend does not assign chunk identifiers.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ProjectID is the server-assigned project identifier.
// The zero value means no project is selected.
type ProjectID int64

// IsZero reports whether no project is set.
func (id ProjectID) IsZero() bool {
	return id <= 0
}

func (id ProjectID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseProjectID parses a decimal project identifier.
func ParseProjectID(s string) (ProjectID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ProjectID(v), nil
}

// Project is a backend project. Created server side, read via listing.
type Project struct {
	ID   ProjectID
	Name string
}

// DisplayName returns the project name, falling back to "Project <id>".
func (p Project) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return "Project " + p.ID.String()
}

// MimeTypePDF is the only document type accepted for upload.
const MimeTypePDF = "application/pdf"

// UploadedFile is a document staged for a single ingestion run.
// It is never persisted client side.
type UploadedFile struct {
	ProjectID ProjectID
	Name      string
	MimeType  string
	Data      []byte
	Pages     int // Page count when known (0 otherwise)
}

// Size returns the file size in bytes.
func (f *UploadedFile) Size() int {
	return len(f.Data)
}

// ChunkMetadata carries source attribution for a retrieved chunk.
type ChunkMetadata struct {
	Source string
	Page   *int
}

// Chunk is a text fragment returned by semantic search.
// Chunks keep the order the backend returned them in.
type Chunk struct {
	ID       ID
	Text     string
	Score    float64 // Relevance in [0,1]
	Metadata ChunkMetadata
}

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one entry of a session transcript.
type ChatTurn struct {
	Role    Role
	Content string
}

// StageResult is the retained outcome of a completed pipeline stage.
type StageResult struct {
	Stage       StageKind
	Payload     map[string]any // Backend (or synthetic) response body
	CompletedAt time.Time
}

// Selection is the persisted working context of a session.
type Selection struct {
	ProjectID   ProjectID
	ProjectName string
	UpdatedAt   time.Time
}
