// Package notify provides the outbound notification boundary of fabdrive.
//
// The core engine publishes an Event on every device lifecycle transition and
// every accepted settings update. Publication is fire-and-forget: no delivery
// guarantee is required, and a slow or absent consumer never blocks the engine.
package notify

// EventUpdate is the event name published for device snapshot updates.
const EventUpdate = "update"

// EventTrace is the event name of transport observability events, carrying
// sent/received line pairs.
const EventTrace = "trace"

// Event is one published notification.
type Event struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Notifier publishes events to the outside world.
//
// Publish must not block and must swallow delivery failures; callers treat it
// as fire-and-forget.
type Notifier interface {
	Publish(ev Event)
}

// Nop is a Notifier that discards every event.
type Nop struct{}

var _ Notifier = Nop{}

func (Nop) Publish(Event) {}

// Multi fans one Publish out to several notifiers.
func Multi(notifiers ...Notifier) Notifier {
	return multi(notifiers)
}

type multi []Notifier

func (m multi) Publish(ev Event) {
	for _, n := range m {
		if n != nil {
			n.Publish(ev)
		}
	}
}
