package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport marks every network or HTTP status failure.
	ErrTransport = errors.New("backend request failed")

	// ErrRedirectRetried marks a create-project call that was answered with
	// 307 and replayed against the trailing-slash path. Internal only.
	ErrRedirectRetried = errors.New("create project redirected, retried with trailing slash")

	// ErrMalformedResponse indicates a 2xx body that does not match the contract.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// TransportError describes a failed backend call.
type TransportError struct {
	Op      string          // Gateway operation, e.g. "upload"
	Method  string          // HTTP method
	Path    string          // Request path relative to the base path
	Status  int             // HTTP status, 0 when no response was received
	Message string          // Human readable message
	Payload json.RawMessage // Raw backend error body when present
	Err     error           // Underlying cause for network failures
}

func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return tErr.Status
	}
	return 0
}

// errorMessage extracts a message from a backend error body.
// Precedence: detail, then signal, then the HTTP status text.
func errorMessage(status int, body []byte) string {
	var payload map[string]any
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		if msg := stringField(payload["detail"]); msg != "" {
			return msg
		}
		if msg := stringField(payload["signal"]); msg != "" {
			return msg
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("unexpected status %d", status)
}

func stringField(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		// FastAPI validation errors carry a list under "detail"
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func rawPayload(body []byte) json.RawMessage {
	if len(body) == 0 || !json.Valid(body) {
		return nil
	}
	cp := make([]byte, len(body))
	copy(cp, body)
	return cp
}
