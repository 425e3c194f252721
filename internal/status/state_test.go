package status

import (
	"testing"

	"github.com/matheus3301/glasschat/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine("/chat", nil)
	if m.Current() != Disconnected {
		t.Errorf("initial state = %s, want DISCONNECTED", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connecting, AuthFailing},
		{Connecting, Disconnected},
		{Connected, Disconnected},
		{Connected, Connecting},
		{AuthFailing, Connecting},
		{AuthFailing, Disconnected},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine("/chat", nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine("/chat", nil)
	if err := m.Transition(Connected); err == nil {
		t.Error("Transition(DISCONNECTED -> CONNECTED) should fail")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("transport.", 10)
	defer unsub()

	m := NewMachine("/chat", b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != "transport.status_changed" {
		t.Errorf("event kind = %q, want transport.status_changed", evt.Kind)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.Namespace != "/chat" {
		t.Errorf("namespace = %q, want /chat", change.Namespace)
	}
	if change.From != Disconnected || change.To != Connecting {
		t.Errorf("change = %v -> %v, want DISCONNECTED -> CONNECTING", change.From, change.To)
	}
}

// TestAuthFailingRequiresConnecting verifies that a channel cannot jump
// from AUTH_FAILING straight to CONNECTED; the refreshed credential must
// go through a new connect attempt.
func TestAuthFailingRequiresConnecting(t *testing.T) {
	m := NewMachine("/chat", nil)
	walkTo(t, m, AuthFailing)

	if err := m.Transition(Connected); err == nil {
		t.Fatal("Transition(AUTH_FAILING -> CONNECTED) should fail; must go through CONNECTING first")
	}
	if m.Current() != AuthFailing {
		t.Errorf("state = %s, want AUTH_FAILING (should not have changed)", m.Current())
	}

	if err := m.Transition(Connecting); err != nil {
		t.Fatalf("AUTH_FAILING -> CONNECTING: %v", err)
	}
	if err := m.Transition(Connected); err != nil {
		t.Fatalf("CONNECTING -> CONNECTED: %v", err)
	}
}

// TestReconnectCycle verifies the lifecycle across a dropped connection:
// CONNECTED → DISCONNECTED → CONNECTING → CONNECTED.
func TestReconnectCycle(t *testing.T) {
	m := NewMachine("/chat", nil)
	walkTo(t, m, Connected)

	steps := []State{Disconnected, Connecting, Connected}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Connected {
		t.Errorf("final state = %s, want CONNECTED", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Disconnected: {},
		Connecting:   {Connecting},
		Connected:    {Connecting, Connected},
		AuthFailing:  {Connecting, AuthFailing},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
