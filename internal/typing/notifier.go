package typing

import (
	"sync"
	"time"

	"github.com/matheus3301/glasschat/internal/gateway"
	"github.com/matheus3301/glasschat/internal/store"
	"github.com/matheus3301/glasschat/internal/transport"
	"go.uber.org/zap"
)

// Sender is the slice of the transport service the notifier needs.
type Sender interface {
	Send(namespace, event string, payload any)
}

// Notifier translates keystrokes into typing signals. Starts are
// throttled so at most one goes out per throttle window; the stop is
// debounced until the keyboard has been quiet for the quiet window.
type Notifier struct {
	sender   Sender
	userID   func() string
	throttle time.Duration
	quiet    time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	lastStart map[string]time.Time
	stopTimer map[string]*time.Timer
}

// NewNotifier creates a notifier. userID supplies the sender identity
// stamped on outgoing signals.
func NewNotifier(sender Sender, userID func() string, throttle, quiet time.Duration, logger *zap.Logger) *Notifier {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}
	if quiet <= 0 {
		quiet = 3 * time.Second
	}
	return &Notifier{
		sender:    sender,
		userID:    userID,
		throttle:  throttle,
		quiet:     quiet,
		logger:    logger,
		lastStart: make(map[string]time.Time),
		stopTimer: make(map[string]*time.Timer),
	}
}

// Keystroke records typing activity in a conversation. The first call
// per throttle window emits a typing-start; every call pushes the
// debounced typing-stop further out.
func (n *Notifier) Keystroke(conversationID string) {
	n.mu.Lock()
	now := time.Now()
	start := now.Sub(n.lastStart[conversationID]) >= n.throttle
	if start {
		n.lastStart[conversationID] = now
	}
	if t, ok := n.stopTimer[conversationID]; ok {
		t.Stop()
	}
	n.stopTimer[conversationID] = time.AfterFunc(n.quiet, func() {
		n.stop(conversationID)
	})
	n.mu.Unlock()

	if start {
		n.send(conversationID, true)
	}
}

// Flush cancels the pending stop and emits it immediately. Called when
// a message is sent so the peer's indicator clears right away.
func (n *Notifier) Flush(conversationID string) {
	n.mu.Lock()
	t, ok := n.stopTimer[conversationID]
	if ok {
		t.Stop()
		delete(n.stopTimer, conversationID)
	}
	delete(n.lastStart, conversationID)
	n.mu.Unlock()

	if ok {
		n.send(conversationID, false)
	}
}

func (n *Notifier) stop(conversationID string) {
	n.mu.Lock()
	delete(n.stopTimer, conversationID)
	delete(n.lastStart, conversationID)
	n.mu.Unlock()
	n.send(conversationID, false)
}

func (n *Notifier) send(conversationID string, isTyping bool) {
	n.sender.Send(transport.NamespaceChat, gateway.EventTyping, store.TypingPayload{
		ConversationID: conversationID,
		UserID:         n.userID(),
		IsTyping:       isTyping,
	})
}
