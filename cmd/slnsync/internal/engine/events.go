package engine

import (
	"github.com/albertocavalcante/slnsync/cmd/slnsync/internal/watch"
)

// EventKind classifies engine notifications.
type EventKind int

const (
	// EventChange reports a file change accepted by the detector.
	EventChange EventKind = iota + 1
	// EventUpdating reports that generation starts. Modules is empty for a
	// full pass.
	EventUpdating
	// EventWritten reports an artifact written to disk.
	EventWritten
	// EventUnchanged reports how many artifacts were already current.
	EventUnchanged
	// EventError reports a failure that did not stop the engine.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventChange:
		return "change"
	case EventUpdating:
		return "updating"
	case EventWritten:
		return "written"
	case EventUnchanged:
		return "unchanged"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered to the host after engine activity.
type Event struct {
	Kind EventKind

	// Path is the changed file (EventChange) or artifact (EventWritten).
	Path string

	// Change is set for EventChange.
	Change watch.ChangeKind

	// Modules lists the modules being regenerated (EventUpdating).
	Modules []string

	// Count is set for EventUnchanged.
	Count int

	// Err is set for EventError.
	Err error
}

// Notifier receives engine events. Implementations must not block and must
// not call back into the engine.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

// Notify calls f.
func (f NotifierFunc) Notify(ev Event) {
	f(ev)
}

// Multi fans events out to several notifiers.
type Multi []Notifier

// Notify delivers ev to every notifier in order.
func (m Multi) Notify(ev Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ev)
		}
	}
}
