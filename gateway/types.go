package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/poiesic/ragpilot/core"
)

// Payload is a backend-defined JSON object passed through untouched.
type Payload = map[string]any

// Welcome is the backend identification returned by GET /.
type Welcome struct {
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
}

// ResetFlag is a boolean sent as 0 or 1, the encoding the backend expects.
type ResetFlag bool

// MarshalJSON encodes the flag as 0 or 1.
func (f ResetFlag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// UnmarshalJSON accepts 0/1 and true/false.
func (f *ResetFlag) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "1", "true":
		*f = true
	case "0", "false", "null":
		*f = false
	default:
		return fmt.Errorf("invalid reset flag %s", data)
	}
	return nil
}

// ProcessRequest is the body of POST /data/process/{projectId}.
type ProcessRequest struct {
	FileID      *string   `json:"file_id,omitempty"`
	ChunkSize   int       `json:"chunk_size"`
	OverlapSize int       `json:"overlap_size"`
	DoReset     ResetFlag `json:"do_reset"`
}

// PushRequest is the body of POST /nlp/index/push/{projectId}.
type PushRequest struct {
	DoReset ResetFlag `json:"do_reset"`
}

// QueryRequest is the body of the search and answer operations.
type QueryRequest struct {
	Text  string `json:"text"`
	Limit int    `json:"limit"`
}

// Answer is the decoded body of POST /nlp/index/answer/{projectId}.
type Answer struct {
	Answer      string          `json:"answer"`
	FullPrompt  string          `json:"full_prompt,omitempty"`
	ChatHistory json.RawMessage `json:"chat_history,omitempty"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type listProjectsResponse struct {
	Projects []json.RawMessage `json:"projects"`
}

type createProjectResponse struct {
	Project json.RawMessage `json:"project"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

type searchHit struct {
	ID       json.RawMessage `json:"id,omitempty"`
	Text     string          `json:"text"`
	Content  string          `json:"content"`
	Score    float64         `json:"score"`
	Metadata *hitMetadata    `json:"metadata,omitempty"`
}

type hitMetadata struct {
	Source string   `json:"source"`
	Page   *float64 `json:"page"`
}

// toChunk converts a search hit. Text falls back to content; the ID falls
// back to a content hash when the backend does not provide a numeric one.
func (h searchHit) toChunk() core.Chunk {
	text := h.Text
	if text == "" {
		text = h.Content
	}

	chunk := core.Chunk{
		ID:    parseChunkID(h.ID, text),
		Text:  text,
		Score: h.Score,
	}
	if h.Metadata != nil {
		chunk.Metadata.Source = h.Metadata.Source
		if h.Metadata.Page != nil {
			page := int(*h.Metadata.Page)
			chunk.Metadata.Page = &page
		}
	}
	return chunk
}

func parseChunkID(raw json.RawMessage, text string) core.ID {
	if len(raw) > 0 {
		s := string(bytes.Trim(bytes.TrimSpace(raw), `"`))
		if v, err := strconv.ParseUint(s, 10, 64); err == nil && v != 0 {
			return core.ID(v)
		}
	}
	return core.IDFromContent(text)
}

// decodeProject accepts either {"id":..,"name":..} or a bare id (number or
// numeric string). The reference backend lists bare ids.
func decodeProject(raw json.RawMessage) (core.Project, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return core.Project{}, fmt.Errorf("%w: empty project entry", ErrMalformedResponse)
	}

	if raw[0] == '{' {
		var obj struct {
			ID        json.RawMessage `json:"id"`
			ProjectID json.RawMessage `json:"project_id"`
			Name      string          `json:"name"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return core.Project{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
		idRaw := obj.ID
		if len(idRaw) == 0 {
			idRaw = obj.ProjectID
		}
		id, err := parseProjectID(idRaw)
		if err != nil {
			return core.Project{}, err
		}
		return core.Project{ID: id, Name: obj.Name}, nil
	}

	id, err := parseProjectID(raw)
	if err != nil {
		return core.Project{}, err
	}
	return core.Project{ID: id}, nil
}

func parseProjectID(raw json.RawMessage) (core.ProjectID, error) {
	s := string(bytes.Trim(bytes.TrimSpace(raw), `"`))
	id, err := core.ParseProjectID(s)
	if err != nil || id.IsZero() {
		return 0, fmt.Errorf("%w: invalid project id %s", ErrMalformedResponse, raw)
	}
	return id, nil
}
