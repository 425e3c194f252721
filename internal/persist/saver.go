package persist

import (
	"context"

	"github.com/matheus3301/glasschat/internal/auth"
	"github.com/matheus3301/glasschat/internal/bus"
	"github.com/matheus3301/glasschat/internal/store"
	"go.uber.org/zap"
)

// Saver is the single writer to state.db. It subscribes to snapshot and
// credential events on the bus and persists them as they arrive.
type Saver struct {
	db     *DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSaver creates a stopped saver.
func NewSaver(db *DB, b *bus.Bus, logger *zap.Logger) *Saver {
	return &Saver{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to persistence-relevant events on the bus.
func (s *Saver) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	stateCh, unsubState := s.bus.Subscribe("state.", 256)
	authCh, unsubAuth := s.bus.Subscribe("auth.", 64)

	go func() {
		defer close(s.done)
		defer unsubState()
		defer unsubAuth()
		for {
			select {
			case evt := <-stateCh:
				s.handleState(evt)
			case evt := <-authCh:
				s.handleAuth(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the saver and waits for the in-flight write to finish.
func (s *Saver) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Saver) handleState(evt bus.Event) {
	switch evt.Kind {
	case "state.conversations_changed":
		convs, ok := evt.Payload.([]store.Conversation)
		if !ok {
			return
		}
		if err := s.db.ReplaceConversations(convs); err != nil {
			s.logger.Error("failed to persist inbox snapshot", zap.Error(err), zap.Int("count", len(convs)))
		}
	}
}

func (s *Saver) handleAuth(evt bus.Event) {
	switch evt.Kind {
	case "auth.credential_changed":
		acct, ok := evt.Payload.(auth.Account)
		if !ok {
			return
		}
		if err := s.db.SaveAccount(acct); err != nil {
			s.logger.Error("failed to persist account", zap.Error(err))
		}
	case "auth.logged_out":
		if err := s.db.DeleteAccount(); err != nil {
			s.logger.Error("failed to delete persisted account", zap.Error(err))
		}
	}
}
