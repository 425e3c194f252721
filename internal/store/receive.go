package store

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ReceiveMessage applies a gateway push. Echoes of own sends replace
// the optimistic entry in place (matched by id or correlation id); peer
// messages append. The owning conversation gets a fresh preview, moves
// to the front of the inbox, and its unread count grows unless it is
// the open conversation. A push for a conversation the inbox does not
// know yet triggers a single inbox refetch.
func (s *Store) ReceiveMessage(msg Message) {
	if msg.Status == "" {
		msg.Status = StatusRead
	}

	s.mu.Lock()
	list := s.messages[msg.ConversationID]
	replaced := false
	for i := range list {
		if list[i].ID == msg.ID || (msg.TempID != "" && list[i].TempID == msg.TempID) {
			correlationID := list[i].TempID
			list[i] = msg
			if list[i].TempID == "" {
				list[i].TempID = correlationID
			}
			list[i].Status = StatusRead
			replaced = true
			break
		}
	}
	if !replaced {
		s.messages[msg.ConversationID] = append(list, msg)
	}

	// The sender stopped typing by definition.
	s.clearTypingLocked(msg.ConversationID, msg.SenderID)

	known := false
	for i := range s.conversations {
		if s.conversations[i].ID != msg.ConversationID {
			continue
		}
		known = true
		c := &s.conversations[i]
		c.LastMessage = preview(msg)
		c.LastMessageAt = msg.CreatedAt
		if s.active == msg.ConversationID {
			c.UnreadCount = 0
		} else {
			c.UnreadCount++
		}
		if i > 0 {
			moved := s.conversations[i]
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			s.conversations = append([]Conversation{moved}, s.conversations...)
		}
		break
	}
	var snapshot []Conversation
	if known {
		snapshot = s.snapshotLocked()
	}
	refetch := !known && !s.refetching
	if refetch {
		s.refetching = true
	}
	s.mu.Unlock()

	if known {
		s.publishSnapshot(snapshot)
		return
	}
	if refetch {
		go s.refetchInbox()
	}
}

// RefetchInbox reloads the first inbox page in the background, with at
// most one refetch in flight.
func (s *Store) RefetchInbox() {
	s.mu.Lock()
	if s.refetching {
		s.mu.Unlock()
		return
	}
	s.refetching = true
	s.mu.Unlock()
	go s.refetchInbox()
}

func (s *Store) refetchInbox() {
	defer func() {
		s.mu.Lock()
		s.refetching = false
		s.mu.Unlock()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.FetchInbox(ctx, 1, ""); err != nil {
		s.logger.Warn("inbox refetch failed", zap.Error(err))
	}
}

func preview(msg Message) string {
	switch msg.Kind {
	case MessageImage:
		return "[image]"
	case MessageFile:
		return "[file]"
	case MessageSystem:
		return "[system]"
	default:
		return msg.Content
	}
}

// SetTypingUser applies a typing signal from a peer. A start arms (or
// re-arms) the expiry timer so a lost stop cannot strand the indicator.
func (s *Store) SetTypingUser(p TypingPayload) {
	if p.ConversationID == "" || p.UserID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !p.IsTyping {
		s.clearTypingLocked(p.ConversationID, p.UserID)
		return
	}

	m := s.typing[p.ConversationID]
	if m == nil {
		m = make(map[string]*time.Timer)
		s.typing[p.ConversationID] = m
	}
	if t, ok := m[p.UserID]; ok {
		t.Stop()
	}
	conversationID, userID := p.ConversationID, p.UserID
	m[userID] = time.AfterFunc(s.opts.TypingExpiry, func() {
		s.mu.Lock()
		s.clearTypingLocked(conversationID, userID)
		s.mu.Unlock()
	})
}

func (s *Store) clearTypingLocked(conversationID, userID string) {
	m := s.typing[conversationID]
	if m == nil {
		return
	}
	if t, ok := m[userID]; ok {
		t.Stop()
		delete(m, userID)
	}
	if len(m) == 0 {
		delete(s.typing, conversationID)
	}
}

// SetUserStatus applies a presence change to every direct conversation
// with that user. Presence is transient and never persisted.
func (s *Store) SetUserStatus(p UserStatusPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if s.conversations[i].PartnerID == p.UserID {
			s.conversations[i].IsOnline = p.IsOnline
		}
	}
	for i := range s.tempConversations {
		if s.tempConversations[i].PartnerID == p.UserID {
			s.tempConversations[i].IsOnline = p.IsOnline
		}
	}
}
