package store

import (
	"context"

	"github.com/matheus3301/glasschat/internal/bus"
	"github.com/matheus3301/glasschat/internal/status"
	"github.com/matheus3301/glasschat/internal/transport"
	"go.uber.org/zap"
)

// Engine feeds the store from the bus. It subscribes to the decoded
// gateway events and to transport state changes and applies them; the
// gateway handler never calls the store directly.
type Engine struct {
	st     *Store
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a stopped engine.
func NewEngine(st *Store, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		st:     st,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to bus events and processes them until Stop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	chatCh, unsubChat := e.bus.Subscribe("chat.", 256)
	transportCh, unsubTransport := e.bus.Subscribe("transport.", 64)
	contactCh, unsubContact := e.bus.Subscribe("contact.", 64)

	go func() {
		defer unsubChat()
		defer unsubTransport()
		defer unsubContact()
		for {
			select {
			case evt := <-chatCh:
				e.handleChat(evt)
			case evt := <-transportCh:
				e.handleTransport(evt)
			case evt := <-contactCh:
				e.handleContact(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleChat(evt bus.Event) {
	switch evt.Kind {
	case "chat.message":
		msg, ok := evt.Payload.(*Message)
		if !ok {
			return
		}
		e.st.ReceiveMessage(*msg)
	case "chat.typing":
		p, ok := evt.Payload.(TypingPayload)
		if !ok {
			return
		}
		// Own signals are fanned back by the room; only peers matter.
		if p.UserID == e.st.identity.CurrentUserID() {
			return
		}
		e.st.SetTypingUser(p)
	case "chat.user_status":
		p, ok := evt.Payload.(UserStatusPayload)
		if !ok {
			return
		}
		e.st.SetUserStatus(p)
	case "chat.exception":
		msg, _ := evt.Payload.(string)
		e.logger.Warn("gateway rejected an operation", zap.String("message", msg))
	}
}

func (e *Engine) handleTransport(evt bus.Event) {
	if evt.Kind != "transport.status_changed" {
		return
	}
	sc, ok := evt.Payload.(status.StatusChange)
	if !ok {
		return
	}
	if sc.Namespace != transport.NamespaceChat {
		return
	}
	e.st.SetConnected(sc.To == status.Connected)
}

func (e *Engine) handleContact(evt bus.Event) {
	switch evt.Kind {
	case "contact.request_accepted", "contact.friend_removed":
		// The contact graph changed under the inbox; resync it.
		e.st.RefetchInbox()
	case "contact.request_received":
		e.logger.Info("contact request received")
	}
}
