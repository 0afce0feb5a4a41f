package ragpilot

import (
	"errors"

	"github.com/poiesic/ragpilot/query"
)

var (
	// ErrConfigRequired is returned when a session is opened without configuration.
	ErrConfigRequired = errors.New("configuration required")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrStaleResult marks a result that arrived after the active project
	// changed. It is the same sentinel the query coordinator returns.
	ErrStaleResult = query.ErrStaleResult
)
