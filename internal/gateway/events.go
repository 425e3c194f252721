package gateway

import "encoding/json"

// Gateway event names on the chat namespace.
const (
	// Client -> server.
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"

	// Server -> client.
	EventNewMessage = "new_message"
	EventUserTyping = "user_typing"
	EventUserStatus = "user_status"
	EventException  = "exception"

	EventContactRequestReceived = "contact.request_received"
	EventContactRequestAccepted = "contact.request_accepted"
	EventFriendRemoved          = "contact.friend_removed"
)

// RoomPayload addresses join_room / leave_room events.
type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// ContactEvent carries the counterpart of a contact-graph change.
type ContactEvent struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

// ExceptionPayload is the gateway's error push. The message field is a
// string for single errors and an array when validation produces several.
type ExceptionPayload struct {
	Status  string      `json:"status"`
	Message messageList `json:"message"`
}

// First returns the leading message, or "" when none were sent.
func (p ExceptionPayload) First() string {
	if len(p.Message) == 0 {
		return ""
	}
	return p.Message[0]
}

type messageList []string

func (m *messageList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*m = messageList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*m = messageList(many)
	return nil
}
