package presence

// eventPresence is the only event type the hub emits.
const eventPresence = "presence"

// Event is the JSON message broadcast when a user connects or disconnects.
type Event struct {
	Event        string `json:"event"`
	Name         string `json:"name"`
	CurrentCount int64  `json:"currentCount"`
	Connected    bool   `json:"connected"`
}

func newEvent(name string, count int64, connected bool) Event {
	return Event{
		Event:        eventPresence,
		Name:         name,
		CurrentCount: count,
		Connected:    connected,
	}
}
