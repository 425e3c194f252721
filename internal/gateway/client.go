package gateway

import (
	"context"

	"github.com/matheus3301/glasschat/internal/store"
	"github.com/matheus3301/glasschat/internal/transport"
)

// Transport is the slice of the transport service the client needs.
type Transport interface {
	Send(namespace, event string, payload any)
	Emit(ctx context.Context, namespace, event string, payload any) (transport.Response, error)
}

// Client issues client-to-server operations on the chat namespace. It
// implements store.Gateway.
type Client struct {
	tp Transport
}

// NewClient wraps the transport.
func NewClient(tp Transport) *Client {
	return &Client{tp: tp}
}

// JoinRoom subscribes to a conversation's pushes.
func (c *Client) JoinRoom(ctx context.Context, conversationID string) error {
	_, err := c.tp.Emit(ctx, transport.NamespaceChat, EventJoinRoom, RoomPayload{ConversationID: conversationID})
	return err
}

// LeaveRoom unsubscribes from a conversation's pushes.
func (c *Client) LeaveRoom(ctx context.Context, conversationID string) error {
	_, err := c.tp.Emit(ctx, transport.NamespaceChat, EventLeaveRoom, RoomPayload{ConversationID: conversationID})
	return err
}

// outgoingMessage is the send_message wire shape. The correlation id
// rides along so the server echo can be matched to the optimistic entry.
type outgoingMessage struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Kind           string `json:"type"`
	TempID         string `json:"tempId"`
}

// SendMessage delivers a message and waits for the acknowledgement.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string, kind store.MessageKind, correlationID string) error {
	_, err := c.tp.Emit(ctx, transport.NamespaceChat, EventSendMessage, outgoingMessage{
		ConversationID: conversationID,
		Content:        content,
		Kind:           string(kind),
		TempID:         correlationID,
	})
	return err
}
