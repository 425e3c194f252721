package store

import (
	"context"
	"fmt"
)

// FetchMessages loads one page of a conversation's history. The API
// returns newest-first; the store keeps chronological order, so page 1
// replaces the list and later pages prepend older entries not already
// present. A fetch already in flight for the conversation drops the
// call; so does paging past the last known page.
func (s *Store) FetchMessages(ctx context.Context, conversationID string, page int) error {
	s.mu.Lock()
	if s.loadingMessages[conversationID] {
		s.mu.Unlock()
		return nil
	}
	if page > 1 {
		if meta, ok := s.messagesMeta[conversationID]; ok && page > meta.TotalPages {
			s.mu.Unlock()
			return nil
		}
	}
	s.loadingMessages[conversationID] = true
	limit := s.opts.MessageLimit
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.loadingMessages, conversationID)
		s.mu.Unlock()
	}()

	msgs, meta, err := s.api.Messages(ctx, conversationID, page, limit)
	if err != nil {
		return fmt.Errorf("fetch messages page %d of %s: %w", page, conversationID, err)
	}

	// Newest-first from the API, oldest-first in the store.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	s.mu.Lock()
	if page <= 1 {
		s.messages[conversationID] = msgs
	} else {
		existing := s.messages[conversationID]
		seen := make(map[string]struct{}, len(existing))
		for _, m := range existing {
			seen[m.ID] = struct{}{}
		}
		older := make([]Message, 0, len(msgs))
		for _, m := range msgs {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			older = append(older, m)
		}
		s.messages[conversationID] = append(older, existing...)
	}
	s.messagesMeta[conversationID] = meta
	s.mu.Unlock()
	return nil
}
