package downloader

import "github.com/tinoosan/quip/internal/data"

// Event represents a state change or progress update from a downloader.
//
// Download is a snapshot taken when the event was emitted and is safe to keep.
// For status events (Start, Paused, Cancelled, Complete, Failed) the
// reconciler persists it as is; Progress events may be coalesced.
type Event struct {
	ID       string
	Type     EventType
	Download *data.Download
	// Err is set on Failed events.
	Err error
}

// EventType defines the set of events that downloaders may emit.
type EventType string

const (
	EventStart     EventType = "Start"
	EventPaused    EventType = "Paused"
	EventCancelled EventType = "Cancelled"
	EventComplete  EventType = "Complete"
	EventFailed    EventType = "Failed"
	EventProgress  EventType = "Progress"
	// EventDeleted asks the store to drop the download once every earlier
	// event for it has been applied.
	EventDeleted EventType = "Deleted"
)
