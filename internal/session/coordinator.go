package session

import (
	"context"
	"encoding/json"

	"github.com/matheus3301/glasschat/internal/auth"
	"github.com/matheus3301/glasschat/internal/bus"
	"github.com/matheus3301/glasschat/internal/transport"
	"go.uber.org/zap"
)

// Transport is the slice of the transport service the coordinator
// drives.
type Transport interface {
	ConnectAll(ctx context.Context, token string)
	DisconnectAll()
	Connect(ctx context.Context, namespace string)
	Namespaces() []string
	On(namespace, event string, fn func(json.RawMessage)) func()
}

// Auth is the credential authority the coordinator leans on.
type Auth interface {
	Refresh(ctx context.Context) (string, error)
	Logout()
}

// Coordinator ties credential lifecycle to channel lifecycle: a live
// credential keeps every channel connected, logout tears them down, a
// server-initiated disconnect reconnects immediately, and an
// authentication failure on connect goes through one refresh before
// giving up the session.
type Coordinator struct {
	tp     Transport
	auth   Auth
	bus    *bus.Bus
	logger *zap.Logger

	cancel context.CancelFunc
	unsubs []func()
}

// NewCoordinator creates a stopped coordinator.
func NewCoordinator(tp Transport, a Auth, b *bus.Bus, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		tp:     tp,
		auth:   a,
		bus:    b,
		logger: logger,
	}
}

// Start registers the lifecycle listeners. Each listener is registered
// exactly once per process; Stop removes them all, so no credential
// change can stack duplicates.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	ch, unsub := c.bus.Subscribe("auth.", 64)
	c.unsubs = append(c.unsubs, unsub)
	go func() {
		for {
			select {
			case evt := <-ch:
				c.handleAuth(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()

	for _, ns := range c.tp.Namespaces() {
		ns := ns
		c.unsubs = append(c.unsubs,
			c.tp.On(ns, transport.EventDisconnect, func(data json.RawMessage) {
				c.onDisconnect(ctx, ns, data)
			}),
			c.tp.On(ns, transport.EventConnectError, func(data json.RawMessage) {
				c.onConnectError(ctx, ns, data)
			}),
		)
	}
}

// Stop deregisters every listener and halts event processing.
func (c *Coordinator) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

func (c *Coordinator) handleAuth(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case "auth.credential_changed":
		acct, ok := evt.Payload.(auth.Account)
		if !ok || acct.Token == "" {
			return
		}
		c.logger.Info("credential available, connecting channels")
		c.tp.ConnectAll(ctx, acct.Token)
	case "auth.logged_out":
		c.logger.Info("logged out, disconnecting channels")
		c.tp.DisconnectAll()
	}
}

func (c *Coordinator) onDisconnect(ctx context.Context, namespace string, data json.RawMessage) {
	var p transport.DisconnectPayload
	_ = json.Unmarshal(data, &p)
	if p.Reason != transport.ReasonServerDisconnect {
		return
	}
	// The server hung up on purpose; the channel itself will not retry.
	c.logger.Info("server closed channel, reconnecting", zap.String("namespace", namespace))
	c.tp.Connect(ctx, namespace)
}

func (c *Coordinator) onConnectError(ctx context.Context, namespace string, data json.RawMessage) {
	var p transport.ConnectErrorPayload
	_ = json.Unmarshal(data, &p)
	if !transport.IsAuthFailure(p.Message) {
		return
	}
	c.logger.Warn("channel rejected credential, refreshing",
		zap.String("namespace", namespace),
		zap.String("message", p.Message))
	if _, err := c.auth.Refresh(ctx); err != nil {
		// A credential the server rejects and cannot be renewed ends
		// the session.
		c.logger.Warn("refresh failed, ending session", zap.Error(err))
		c.auth.Logout()
	}
	// On success the credential change fans back through handleAuth and
	// reconnects with the fresh token.
}
