package bus

import "time"

// Event is a domain event published on the bus. Kind is a dot-separated
// name whose leading segments act as the namespace ("chat.message",
// "transport.status_changed", ...).
type Event struct {
	Kind    string
	At      time.Time
	Payload any
}
