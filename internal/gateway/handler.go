package gateway

import (
	"encoding/json"

	"github.com/matheus3301/glasschat/internal/bus"
	"github.com/matheus3301/glasschat/internal/store"
	"github.com/matheus3301/glasschat/internal/transport"
	"go.uber.org/zap"
)

// Listener is the slice of the transport service the handler needs.
type Listener interface {
	On(namespace, event string, fn func(json.RawMessage)) func()
}

// Handler decodes pushes arriving on the chat namespace and republishes
// them as typed domain events on the bus. It does NOT touch the store
// directly — the sync engine subscribes to the bus independently.
type Handler struct {
	svc    Listener
	bus    *bus.Bus
	logger *zap.Logger

	unsubs []func()
}

// NewHandler creates an unregistered handler.
func NewHandler(svc Listener, b *bus.Bus, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, bus: b, logger: logger}
}

// Register attaches the listeners. Listeners are registered once per
// process; they survive reconnects because channels are long-lived.
func (h *Handler) Register() {
	h.listen(EventNewMessage, h.onNewMessage)
	h.listen(EventUserTyping, h.onUserTyping)
	h.listen(EventUserStatus, h.onUserStatus)
	h.listen(EventException, h.onException)
	h.listen(EventContactRequestReceived, h.onContact("contact.request_received"))
	h.listen(EventContactRequestAccepted, h.onContact("contact.request_accepted"))
	h.listen(EventFriendRemoved, h.onContact("contact.friend_removed"))
}

// Unregister detaches every listener Register added.
func (h *Handler) Unregister() {
	for _, unsub := range h.unsubs {
		unsub()
	}
	h.unsubs = nil
}

func (h *Handler) listen(event string, fn func(json.RawMessage)) {
	h.unsubs = append(h.unsubs, h.svc.On(transport.NamespaceChat, event, fn))
}

func (h *Handler) onNewMessage(data json.RawMessage) {
	var msg store.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("malformed new_message dropped", zap.Error(err))
		return
	}
	h.bus.Emit("chat.message", &msg)
}

func (h *Handler) onUserTyping(data json.RawMessage) {
	var p store.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.logger.Warn("malformed user_typing dropped", zap.Error(err))
		return
	}
	h.bus.Emit("chat.typing", p)
}

func (h *Handler) onUserStatus(data json.RawMessage) {
	var p store.UserStatusPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.logger.Warn("malformed user_status dropped", zap.Error(err))
		return
	}
	h.bus.Emit("chat.user_status", p)
}

func (h *Handler) onException(data json.RawMessage) {
	var p ExceptionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.logger.Warn("malformed exception dropped", zap.Error(err))
		return
	}
	h.logger.Warn("gateway exception", zap.String("message", p.First()))
	h.bus.Emit("chat.exception", p.First())
}

func (h *Handler) onContact(kind string) func(json.RawMessage) {
	return func(data json.RawMessage) {
		var evt ContactEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			h.logger.Warn("malformed contact event dropped", zap.String("kind", kind), zap.Error(err))
			return
		}
		h.bus.Emit(kind, evt)
	}
}
