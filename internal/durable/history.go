package durable

import (
	"sync"
	"time"
)

// Event is one entry of an instance's execution history.
type Event struct {
	Task    string
	Kind    EventKind
	Attempt uint64
	At      time.Time
}

// EventKind classifies history events.
type EventKind string

const (
	EventScheduled EventKind = "scheduled"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// History counts the events of one orchestrator instance.
// Only the most recent events are retained for inspection.
type History struct {
	mu        sync.Mutex
	threshold int
	length    int
	recent    []Event
}

const historyRetained = 64

// NewHistory creates an empty history that suggests a restart after threshold events.
func NewHistory(threshold int) *History {
	return &History{threshold: threshold}
}

// Record appends an event.
func (h *History) Record(e Event) {
	if h == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if e.At.IsZero() {
		e.At = time.Now()
	}

	h.length++
	h.recent = append(h.recent, e)

	if len(h.recent) > historyRetained {
		h.recent = h.recent[len(h.recent)-historyRetained:]
	}
}

// Len returns the number of recorded events.
func (h *History) Len() int {
	if h == nil {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.length
}

// Recent returns a copy of the latest events.
func (h *History) Recent() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, len(h.recent))
	copy(out, h.recent)

	return out
}

// ContinueAsNewSuggested reports whether the instance should restart with a fresh history.
func (h *History) ContinueAsNewSuggested() bool {
	if h == nil || h.threshold <= 0 {
		return false
	}

	return h.Len() >= h.threshold
}
