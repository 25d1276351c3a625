package reqgate

// Observer receives registry lifecycle events. Implementations must be safe
// for concurrent use; they are called outside the registry lock.
type Observer interface {
	On(eventData EventData)
}

// Event represents a registry event type.
type Event int

const (
	// EventStart is emitted when a request is registered and handed to the
	// transport.
	EventStart Event = iota
	// EventSettle is emitted when the transport returned, successfully or not.
	EventSettle
	// EventCancel is emitted when a pending entry is cancelled.
	EventCancel
	// EventDuplicate is emitted when an incoming request is rejected because
	// its key is already in flight.
	EventDuplicate
	// EventShare is emitted when an incoming request joins an existing flight
	// instead of starting a new one.
	EventShare
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventSettle:
		return "settle"
	case EventCancel:
		return "cancel"
	case EventDuplicate:
		return "duplicate"
	case EventShare:
		return "share"
	}
	return "unknown"
}

// EventData carries the details of a registry event. Reason is set for
// EventCancel and EventDuplicate only.
type EventData struct {
	Event  Event
	Key    Key
	Scope  Scope
	Reason CancelReason
}
