package store

import "time"

// ConversationKind distinguishes direct chats from groups.
type ConversationKind string

const (
	ConversationDirect ConversationKind = "DIRECT"
	ConversationGroup  ConversationKind = "GROUP"
)

// MessageKind is the message content type.
type MessageKind string

const (
	MessageText   MessageKind = "TEXT"
	MessageImage  MessageKind = "IMAGE"
	MessageFile   MessageKind = "FILE"
	MessageSystem MessageKind = "SYSTEM"
)

// MessageStatus tracks delivery of a message.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusRead    MessageStatus = "read"
	StatusFailed  MessageStatus = "failed"
)

// Conversation is one inbox entry.
type Conversation struct {
	ID            string           `json:"id"`
	Name          string           `json:"name,omitempty"`
	Avatar        string           `json:"avatar,omitempty"`
	LastMessage   string           `json:"lastMessage,omitempty"`
	LastMessageAt time.Time        `json:"lastMessageAt,omitzero"`
	UnreadCount   int              `json:"unreadCount,omitempty"`
	Kind          ConversationKind `json:"type"`
	IsOnline      bool             `json:"isOnline,omitempty"`
	PartnerID     string           `json:"partnerId,omitempty"`
}

// Message is one entry in a conversation's message list. ID holds the
// client correlation id until the server echo re-keys it.
type Message struct {
	ID             string        `json:"id"`
	TempID         string        `json:"tempId,omitempty"`
	ConversationID string        `json:"conversationId"`
	SenderID       string        `json:"senderId"`
	Content        string        `json:"content"`
	Kind           MessageKind   `json:"type"`
	CreatedAt      time.Time     `json:"createdAt"`
	Status         MessageStatus `json:"status,omitempty"`
}

// PageMeta is the pagination cursor returned by list endpoints.
type PageMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// SendMessagePayload is the input to SendMessage.
type SendMessagePayload struct {
	ConversationID string      `json:"conversationId"`
	Content        string      `json:"content"`
	Kind           MessageKind `json:"type,omitempty"`
}

// TypingPayload is the typing signal exchanged with the gateway.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// UserStatusPayload is a presence change for one user.
type UserStatusPayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"isOnline"`
}
