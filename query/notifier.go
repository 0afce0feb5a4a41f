package query

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/poiesic/ragpilot/core"
)

// DefaultNotifierSize is the buffer size of a notifier created with a
// non-positive size.
const DefaultNotifierSize = 16

// Notification carries the detail of a failed query.
type Notification struct {
	ProjectID core.ProjectID
	Op        string // "search" or "answer"
	Err       error
	At        time.Time
}

func (n Notification) String() string {
	return fmt.Sprintf("%s failed for project %s: %v", n.Op, n.ProjectID, n.Err)
}

// Notifier is a bounded, dismissible channel of failure notifications.
// Publishing never blocks; notifications are dropped when the buffer is full.
type Notifier struct {
	ch      chan Notification
	dropped atomic.Int64
}

// NewNotifier creates a notifier buffering up to size notifications.
func NewNotifier(size int) *Notifier {
	if size <= 0 {
		size = DefaultNotifierSize
	}
	return &Notifier{ch: make(chan Notification, size)}
}

// Publish queues n. It reports false when n was dropped.
func (n *Notifier) Publish(note Notification) bool {
	select {
	case n.ch <- note:
		return true
	default:
		n.dropped.Add(1)
		return false
	}
}

// C returns the receive side of the notifier.
func (n *Notifier) C() <-chan Notification {
	return n.ch
}

// Drain removes and returns every queued notification, oldest first.
func (n *Notifier) Drain() []Notification {
	var out []Notification
	for {
		select {
		case note := <-n.ch:
			out = append(out, note)
		default:
			return out
		}
	}
}

// Dismiss discards every queued notification and returns how many there were.
func (n *Notifier) Dismiss() int {
	return len(n.Drain())
}

// Dropped returns the number of notifications lost to a full buffer.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}
