package store

import (
	"context"
	"fmt"
)

// FetchInbox loads one page of the conversation list. With a search
// term the results land in the transient search bucket; otherwise they
// merge into the durable inbox. Page 1 replaces the target list, later
// pages append entries not already present. Concurrent fetches against
// the same bucket are dropped, not queued.
func (s *Store) FetchInbox(ctx context.Context, page int, search string) error {
	searching := search != ""

	s.mu.Lock()
	if searching {
		if s.loadingSearch {
			s.mu.Unlock()
			return nil
		}
		s.loadingSearch = true
	} else {
		if s.loadingInbox {
			s.mu.Unlock()
			return nil
		}
		s.loadingInbox = true
	}
	limit := s.opts.InboxLimit
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if searching {
			s.loadingSearch = false
		} else {
			s.loadingInbox = false
		}
		s.mu.Unlock()
	}()

	convs, meta, err := s.api.Inbox(ctx, page, limit, search)
	if err != nil {
		return fmt.Errorf("fetch inbox page %d: %w", page, err)
	}

	s.mu.Lock()
	if searching {
		s.tempConversations = mergePage(s.tempConversations, convs, page)
		s.mu.Unlock()
		return nil
	}
	s.conversations = mergePage(s.conversations, convs, page)
	s.inboxMeta = &meta
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.publishSnapshot(snapshot)
	return nil
}

// mergePage applies one page to a list: page 1 replaces it wholesale,
// later pages append only ids not already present. Re-fetching a page
// is therefore idempotent.
func mergePage(existing, incoming []Conversation, page int) []Conversation {
	if page <= 1 {
		return incoming
	}
	seen := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		seen[c.ID] = struct{}{}
	}
	out := existing
	for _, c := range incoming {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		out = append(out, c)
	}
	return out
}

// CreateDirectChat creates (or resolves) the direct conversation with
// receiverID, inserts it at the front of the inbox if new, and opens it.
func (s *Store) CreateDirectChat(ctx context.Context, receiverID string) (*Conversation, error) {
	conv, err := s.api.CreateDirectChat(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("create direct chat: %w", err)
	}

	s.mu.Lock()
	exists := false
	for _, c := range s.conversations {
		if c.ID == conv.ID {
			exists = true
			break
		}
	}
	var snapshot []Conversation
	if !exists {
		s.conversations = append([]Conversation{*conv}, s.conversations...)
		snapshot = s.snapshotLocked()
	}
	s.mu.Unlock()

	if snapshot != nil {
		s.publishSnapshot(snapshot)
	}
	s.SetActiveConversation(conv.ID)
	return conv, nil
}
