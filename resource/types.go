package resource

// Handle is an opaque reference to a resource in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// TypeID tags a resource with the kind of value it holds. Capabilities pick
// their own IDs; 0 means untyped.
type TypeID uint32

// EventType identifies a registry lifecycle event.
type EventType uint8

const (
	EventRegistered EventType = iota
	EventReplaced
	EventRemoved
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventReplaced:
		return "replaced"
	case EventRemoved:
		return "removed"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event represents a registry lifecycle event.
type Event struct {
	Value  any
	Name   string
	Handle Handle
	TypeID TypeID
	Type   EventType
}

// Observer receives notifications about registry lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnResourceEvent calls f(e).
func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by resource values that need cleanup
// when their handle is removed or the table is closed.
type Dropper interface {
	Drop()
}
