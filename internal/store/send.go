package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendMessage appends an optimistic entry and delivers it through the
// gateway. The entry starts in status sending and settles to sent on
// acknowledgement or failed on rejection/timeout; SendMessage returns
// after the settlement. The returned correlation id identifies the
// entry until the server echo re-keys it.
func (s *Store) SendMessage(ctx context.Context, p SendMessagePayload) string {
	kind := p.Kind
	if kind == "" {
		kind = MessageText
	}
	tempID := uuid.NewString()
	msg := Message{
		ID:             tempID,
		TempID:         tempID,
		ConversationID: p.ConversationID,
		SenderID:       s.identity.CurrentUserID(),
		Content:        p.Content,
		Kind:           kind,
		CreatedAt:      time.Now(),
		Status:         StatusSending,
	}

	s.mu.Lock()
	s.messages[p.ConversationID] = append(s.messages[p.ConversationID], msg)
	s.mu.Unlock()

	if s.flusher != nil {
		s.flusher.Flush(p.ConversationID)
	}

	s.deliver(ctx, p.ConversationID, tempID, p.Content, kind)
	return tempID
}

// ResendMessage retries a failed entry, reusing its correlation id so a
// delayed echo of the first attempt still reconciles against it. A
// no-op unless the entry exists and is failed.
func (s *Store) ResendMessage(ctx context.Context, conversationID, correlationID string) {
	s.mu.Lock()
	var content string
	var kind MessageKind
	found := false
	list := s.messages[conversationID]
	for i := range list {
		if list[i].TempID == correlationID {
			if list[i].Status != StatusFailed {
				s.mu.Unlock()
				return
			}
			list[i].Status = StatusSending
			content = list[i].Content
			kind = list[i].Kind
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return
	}

	s.deliver(ctx, conversationID, correlationID, content, kind)
}

// RemoveFailedMessage discards a failed entry. Entries in any other
// status are kept.
func (s *Store) RemoveFailedMessage(conversationID, correlationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[conversationID]
	for i := range list {
		if list[i].TempID == correlationID && list[i].Status == StatusFailed {
			s.messages[conversationID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (s *Store) deliver(ctx context.Context, conversationID, correlationID, content string, kind MessageKind) {
	err := s.gw.SendMessage(ctx, conversationID, content, kind, correlationID)
	settled := StatusSent
	if err != nil {
		settled = StatusFailed
		s.logger.Warn("message delivery failed",
			zap.String("conversation_id", conversationID),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
	}
	s.settleDelivery(conversationID, correlationID, settled)
}

// settleDelivery records the delivery outcome. The server echo may have
// already replaced the entry, in which case read is final and a late
// acknowledgement must not regress it.
func (s *Store) settleDelivery(conversationID, correlationID string, settled MessageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[conversationID]
	for i := range list {
		if list[i].TempID == correlationID {
			if list[i].Status == StatusRead {
				return
			}
			list[i].Status = settled
			return
		}
	}
}
