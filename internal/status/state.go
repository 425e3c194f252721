package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/glasschat/internal/bus"
)

// State represents a channel connection state.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"

	// AuthFailing is the excursion taken while a connect attempt is
	// blocked on an expired or rejected credential.
	AuthFailing State = "AUTH_FAILING"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Connected, AuthFailing, Disconnected},
	Connected:    {Disconnected, Connecting},
	AuthFailing:  {Connecting, Disconnected},
}

// Machine tracks and enforces connection state transitions for one
// namespace channel.
type Machine struct {
	mu        sync.RWMutex
	namespace string
	current   State
	bus       *bus.Bus
}

// NewMachine creates a state machine for the given namespace, starting
// in Disconnected.
func NewMachine(namespace string, b *bus.Bus) *Machine {
	return &Machine{
		namespace: namespace,
		current:   Disconnected,
		bus:       b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if the
// transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind: "transport.status_changed",
			At:   time.Now(),
			Payload: StatusChange{
				Namespace: m.namespace,
				From:      from,
				To:        to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	Namespace string
	From      State
	To        State
}
