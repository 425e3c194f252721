package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/matheus3301/glasschat/internal/bus"
	"go.uber.org/zap"
)

// API is the REST surface the store pulls pages from.
type API interface {
	Inbox(ctx context.Context, page, limit int, search string) ([]Conversation, PageMeta, error)
	Messages(ctx context.Context, conversationID string, page, limit int) ([]Message, PageMeta, error)
	CreateDirectChat(ctx context.Context, receiverID string) (*Conversation, error)
	MarkAsRead(ctx context.Context, conversationID string) error
}

// Gateway is the realtime surface the store pushes through. Implemented
// by the gateway client over the chat namespace.
type Gateway interface {
	JoinRoom(ctx context.Context, conversationID string) error
	LeaveRoom(ctx context.Context, conversationID string) error
	SendMessage(ctx context.Context, conversationID, content string, kind MessageKind, correlationID string) error
}

// Identity resolves the local user, used to tell own echoes from peer
// messages.
type Identity interface {
	CurrentUserID() string
}

// TypingFlusher clears the outbound typing indicator when a message is
// sent. Implemented by the typing notifier; may be nil.
type TypingFlusher interface {
	Flush(conversationID string)
}

// Options tunes the store.
type Options struct {
	InboxLimit   int
	MessageLimit int
	TypingExpiry time.Duration
}

func (o *Options) withDefaults() {
	if o.InboxLimit <= 0 {
		o.InboxLimit = 20
	}
	if o.MessageLimit <= 0 {
		o.MessageLimit = 30
	}
	if o.TypingExpiry <= 0 {
		o.TypingExpiry = 5 * time.Second
	}
}

// Store is the client-side authority on conversations and messages. It
// merges REST pages with realtime pushes, reconciles optimistic sends
// against their server echoes, and keeps unread counts and typing
// indicators consistent. All methods are safe for concurrent use.
type Store struct {
	api      API
	gw       Gateway
	identity Identity
	flusher  TypingFlusher
	bus      *bus.Bus
	logger   *zap.Logger
	opts     Options

	mu                sync.Mutex
	conversations     []Conversation
	tempConversations []Conversation
	messages          map[string][]Message
	messagesMeta      map[string]PageMeta
	inboxMeta         *PageMeta
	active            string
	connected         bool
	typing            map[string]map[string]*time.Timer
	loadingInbox      bool
	loadingSearch     bool
	loadingMessages   map[string]bool
	refetching        bool

	hydrated    chan struct{}
	hydrateOnce sync.Once
}

// New creates an empty store. flusher may be nil.
func New(api API, gw Gateway, identity Identity, flusher TypingFlusher, b *bus.Bus, logger *zap.Logger, opts Options) *Store {
	opts.withDefaults()
	return &Store{
		api:             api,
		gw:              gw,
		identity:        identity,
		flusher:         flusher,
		bus:             b,
		logger:          logger,
		opts:            opts,
		messages:        make(map[string][]Message),
		messagesMeta:    make(map[string]PageMeta),
		typing:          make(map[string]map[string]*time.Timer),
		loadingMessages: make(map[string]bool),
		hydrated:        make(chan struct{}),
	}
}

// Hydrate seeds the inbox from the persisted snapshot. Only applied
// when nothing fresher has loaded yet; always signals Hydrated.
func (s *Store) Hydrate(convs []Conversation) {
	s.mu.Lock()
	if len(s.conversations) == 0 {
		s.conversations = convs
	}
	s.mu.Unlock()
	s.hydrateOnce.Do(func() { close(s.hydrated) })
}

// Hydrated is closed once the persisted snapshot has been applied.
func (s *Store) Hydrated() <-chan struct{} { return s.hydrated }

// SetConnected records the realtime link state. Reconnecting while a
// conversation is open re-joins its room so pushes resume.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	active := s.active
	s.mu.Unlock()

	if connected && active != "" {
		s.joinRoom(active)
	}
}

// Connected reports the realtime link state.
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// ActiveConversation returns the open conversation id, or "".
func (s *Store) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActiveConversation opens a conversation ("" closes the current
// one): the previous room is left, the new one joined, its unread count
// cleared and its messages marked read server-side. Re-opening the
// already-open conversation is a no-op.
func (s *Store) SetActiveConversation(conversationID string) {
	s.mu.Lock()
	prev := s.active
	if prev == conversationID {
		s.mu.Unlock()
		return
	}
	s.active = conversationID
	connected := s.connected
	var snapshot []Conversation
	if conversationID != "" {
		for i := range s.conversations {
			if s.conversations[i].ID == conversationID && s.conversations[i].UnreadCount != 0 {
				s.conversations[i].UnreadCount = 0
				snapshot = s.snapshotLocked()
			}
		}
	}
	s.mu.Unlock()

	if connected {
		if prev != "" {
			s.leaveRoom(prev)
		}
		if conversationID != "" {
			s.joinRoom(conversationID)
		}
	}
	if conversationID != "" {
		s.markAsRead(conversationID)
	}
	if snapshot != nil {
		s.publishSnapshot(snapshot)
	}
}

// Conversations returns the inbox in display order.
func (s *Store) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Conversation(nil), s.conversations...)
}

// SearchResults returns the transient search bucket.
func (s *Store) SearchResults() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Conversation(nil), s.tempConversations...)
}

// ResetSearchResults discards the search bucket; the durable inbox is
// untouched.
func (s *Store) ResetSearchResults() {
	s.mu.Lock()
	s.tempConversations = nil
	s.mu.Unlock()
}

// Messages returns a conversation's loaded history in chronological
// order.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages[conversationID]...)
}

// InboxMeta returns the last pagination cursor of the durable inbox.
func (s *Store) InboxMeta() (PageMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inboxMeta == nil {
		return PageMeta{}, false
	}
	return *s.inboxMeta, true
}

// MessagesMeta returns the pagination cursor of one conversation's
// history.
func (s *Store) MessagesMeta(conversationID string) (PageMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.messagesMeta[conversationID]
	return meta, ok
}

// TypingUsers lists the peers currently typing in a conversation.
func (s *Store) TypingUsers(conversationID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.typing[conversationID]))
	for u := range s.typing[conversationID] {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func (s *Store) snapshotLocked() []Conversation {
	return append([]Conversation(nil), s.conversations...)
}

func (s *Store) publishSnapshot(convs []Conversation) {
	s.bus.Emit("state.conversations_changed", convs)
}

func (s *Store) joinRoom(conversationID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.gw.JoinRoom(ctx, conversationID); err != nil {
			s.logger.Warn("join room failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}()
}

func (s *Store) leaveRoom(conversationID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.gw.LeaveRoom(ctx, conversationID); err != nil {
			s.logger.Debug("leave room failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}()
}

func (s *Store) markAsRead(conversationID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.api.MarkAsRead(ctx, conversationID); err != nil {
			s.logger.Warn("mark as read failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}()
}
