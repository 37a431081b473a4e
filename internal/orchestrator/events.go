package orchestrator

import (
	"sync"
	"time"

	"docforge/internal/domain/pipeline"
)

// Stage names used in events and metrics.
const (
	StageExtract      = "extract"
	StageDocument     = "document"
	StageArchitecture = "architecture"
	StageHandoff      = "handoff"
)

// EventType names a progress event.
type EventType string

const (
	EventExtracted      EventType = "extracted"
	EventUnitDocumented EventType = "unit_documented"
	EventHandoffStarted EventType = "handoff_started"
	EventHandoffRetry   EventType = "handoff_retry"
	EventCompleted      EventType = "completed"
	EventFailed         EventType = "failed"
)

// Event is one progress notification for a run.
type Event struct {
	Type      EventType       `json:"type"`
	RunID     string          `json:"run_id"`
	Timestamp time.Time       `json:"timestamp"`
	Stage     string          `json:"stage,omitempty"`
	Unit      string          `json:"unit,omitempty"`
	Units     []string        `json:"units,omitempty"`
	Index     int             `json:"index,omitempty"`
	Completed int             `json:"completed,omitempty"`
	Total     int             `json:"total,omitempty"`
	Status    pipeline.Status `json:"status,omitempty"`
	Attempt   int             `json:"attempt,omitempty"`
	Delay     string          `json:"delay,omitempty"`
	Error     string          `json:"error,omitempty"`
	Report    *Report         `json:"report,omitempty"`
}

// Terminal reports whether no events follow this one.
func (e Event) Terminal() bool {
	return e.Type == EventCompleted || e.Type == EventFailed
}

type emitter struct {
	runID string
	fn    func(Event)
	mu    sync.Mutex
}

func newEmitter(runID string, fn func(Event)) *emitter {
	return &emitter{runID: runID, fn: fn}
}

func (e *emitter) send(event Event) {
	if e.fn == nil {
		return
	}
	event.RunID = e.runID
	event.Timestamp = time.Now().UTC()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fn(event)
}
