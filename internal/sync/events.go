package sync

import (
	"time"

	"github.com/kimhsiao/memonexus/contentsync/internal/models"
)

// EventType identifies a sync event.
type EventType string

const (
	EventSyncStarted        EventType = "sync.started"
	EventSyncCompleted      EventType = "sync.completed"
	EventOperationSucceeded EventType = "sync.operation_succeeded"
	EventOperationFailed    EventType = "sync.failed"
)

// SyncEvent is delivered to the EventHandler during a pass.
type SyncEvent struct {
	Type        EventType            `json:"type"`
	Timestamp   time.Time            `json:"timestamp"`
	OperationID string               `json:"operation_id,omitempty"`
	Kind        models.OperationKind `json:"kind,omitempty"`
	ContentID   string               `json:"content_id,omitempty"`
	PublicID    string               `json:"public_id,omitempty"`
	Dropped     bool                 `json:"dropped,omitempty"`
	Message     string               `json:"message,omitempty"`
	Summary     *SyncSummary         `json:"summary,omitempty"`
}

// EventHandler receives sync events. Handlers are called synchronously from
// the pass and must not block.
type EventHandler interface {
	OnSyncEvent(event SyncEvent)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(event SyncEvent)

// OnSyncEvent calls f(event).
func (f EventHandlerFunc) OnSyncEvent(event SyncEvent) {
	f(event)
}
