package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/glasschat/internal/store"
	"go.uber.org/zap"
)

type captureSender struct {
	mu   sync.Mutex
	sent []store.TypingPayload
}

func (c *captureSender) Send(namespace, event string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, payload.(store.TypingPayload))
}

func (c *captureSender) snapshot() []store.TypingPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.TypingPayload(nil), c.sent...)
}

func newTestNotifier(s Sender, throttle, quiet time.Duration) *Notifier {
	return NewNotifier(s, func() string { return "me" }, throttle, quiet, zap.NewNop())
}

func TestStartThrottled(t *testing.T) {
	cs := &captureSender{}
	n := newTestNotifier(cs, 100*time.Millisecond, time.Minute)

	for i := 0; i < 5; i++ {
		n.Keystroke("c1")
	}

	sent := cs.snapshot()
	if len(sent) != 1 {
		t.Fatalf("sent %d signals, want 1 throttled start", len(sent))
	}
	if !sent[0].IsTyping || sent[0].ConversationID != "c1" || sent[0].UserID != "me" {
		t.Fatalf("unexpected payload: %+v", sent[0])
	}

	time.Sleep(120 * time.Millisecond)
	n.Keystroke("c1")
	if got := len(cs.snapshot()); got != 2 {
		t.Fatalf("sent %d signals after throttle window, want 2", got)
	}
}

func TestStopDebouncedAfterQuiet(t *testing.T) {
	cs := &captureSender{}
	n := newTestNotifier(cs, time.Minute, 60*time.Millisecond)

	n.Keystroke("c1")
	time.Sleep(30 * time.Millisecond)
	n.Keystroke("c1") // pushes the stop out

	time.Sleep(40 * time.Millisecond)
	// Quiet window from the first keystroke has passed but not from the
	// second; stop must not have fired yet.
	for _, p := range cs.snapshot() {
		if !p.IsTyping {
			t.Fatal("stop fired before the quiet window elapsed")
		}
	}

	time.Sleep(60 * time.Millisecond)
	sent := cs.snapshot()
	last := sent[len(sent)-1]
	if last.IsTyping {
		t.Fatalf("expected trailing stop, got %+v", sent)
	}
}

func TestFlushEmitsStopImmediately(t *testing.T) {
	cs := &captureSender{}
	n := newTestNotifier(cs, time.Minute, time.Minute)

	n.Keystroke("c1")
	n.Flush("c1")

	sent := cs.snapshot()
	if len(sent) != 2 || sent[1].IsTyping {
		t.Fatalf("expected start then stop, got %+v", sent)
	}

	// Flush with nothing pending sends nothing.
	n.Flush("c1")
	if got := len(cs.snapshot()); got != 2 {
		t.Fatalf("idle flush sent a signal: %d", got)
	}

	// A fresh keystroke after flush starts a new window immediately.
	n.Keystroke("c1")
	sent = cs.snapshot()
	if len(sent) != 3 || !sent[2].IsTyping {
		t.Fatalf("expected new start after flush, got %+v", sent)
	}
}

func TestConversationsIndependent(t *testing.T) {
	cs := &captureSender{}
	n := newTestNotifier(cs, time.Minute, time.Minute)

	n.Keystroke("c1")
	n.Keystroke("c2")

	sent := cs.snapshot()
	if len(sent) != 2 {
		t.Fatalf("sent %d starts, want one per conversation", len(sent))
	}
	if sent[0].ConversationID == sent[1].ConversationID {
		t.Fatalf("both starts addressed %s", sent[0].ConversationID)
	}
}
