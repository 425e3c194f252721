package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/glasschat/internal/bus"
	"github.com/matheus3301/glasschat/internal/status"
	"go.uber.org/zap"
)

// Known namespaces. Each gets its own independently connectable channel.
const (
	NamespaceChat = "/chat"
	NamespaceBase = "/"
)

// Options configures a Service.
type Options struct {
	// SocketURL is the base URL; the namespace path is appended under /ws.
	SocketURL string

	// Namespaces lists the channels to create. Defaults to chat + base.
	Namespaces []string

	// Dialer defaults to WebsocketDialer.
	Dialer Dialer

	// AckTimeout bounds every acknowledged emit. Defaults to 5s.
	AckTimeout time.Duration

	// RetryAttempts and RetryDelay configure the channel-owned reconnect
	// backoff. Default 5 attempts, 1s base delay.
	RetryAttempts int
	RetryDelay    time.Duration
}

// Service provides uniform access to the namespace channels. Channels
// are created once here and live for the process lifetime.
type Service struct {
	channels   map[string]*Channel
	order      []string
	ackTimeout time.Duration
	logger     *zap.Logger
}

// NewService creates the channel registry.
func NewService(opts Options, b *bus.Bus, logger *zap.Logger) *Service {
	if opts.Dialer == nil {
		opts.Dialer = WebsocketDialer{}
	}
	if len(opts.Namespaces) == 0 {
		opts.Namespaces = []string{NamespaceChat, NamespaceBase}
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 5 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	s := &Service{
		channels:   make(map[string]*Channel),
		ackTimeout: opts.AckTimeout,
		logger:     logger,
	}
	for _, ns := range opts.Namespaces {
		url := strings.TrimSuffix(opts.SocketURL, "/") + "/ws" + ns
		machine := status.NewMachine(ns, b)
		s.channels[ns] = NewChannel(ns, url, opts.Dialer, machine, opts.RetryAttempts, opts.RetryDelay, logger)
		s.order = append(s.order, ns)
	}
	return s
}

// channel looks up a namespace. Unknown namespaces are a programming
// error and panic.
func (s *Service) channel(namespace string) *Channel {
	ch, ok := s.channels[namespace]
	if !ok {
		panic(fmt.Sprintf("transport: namespace %q is not registered", namespace))
	}
	return ch
}

// ConnectAll attaches the credential to every channel and connects the
// ones not already connected. Connection errors surface asynchronously
// via channel events.
func (s *Service) ConnectAll(ctx context.Context, token string) {
	for _, ns := range s.order {
		ch := s.channels[ns]
		ch.SetToken(token)
		if !ch.IsConnected() {
			ch.Connect(ctx)
		}
	}
}

// Connect connects a single namespace.
func (s *Service) Connect(ctx context.Context, namespace string) {
	s.channel(namespace).Connect(ctx)
}

// DisconnectAll disconnects every connected channel. Idempotent.
func (s *Service) DisconnectAll() {
	for _, ns := range s.order {
		s.channels[ns].Disconnect()
	}
}

// SetToken updates the credential on every channel without forcing a
// reconnect; in-flight retry loops pick it up on their next attempt.
func (s *Service) SetToken(token string) {
	for _, ns := range s.order {
		s.channels[ns].SetToken(token)
	}
}

// Send emits a fire-and-forget event; a silent no-op when the channel is
// not connected.
func (s *Service) Send(namespace, event string, payload any) {
	s.channel(namespace).Send(event, payload)
}

// Emit sends an event requiring acknowledgement, racing the ack against
// the configured timeout.
func (s *Service) Emit(ctx context.Context, namespace, event string, payload any) (Response, error) {
	return s.channel(namespace).Emit(ctx, event, payload, s.ackTimeout)
}

// On registers an event listener; the returned function deregisters it.
func (s *Service) On(namespace, event string, fn func(json.RawMessage)) func() {
	return s.channel(namespace).On(event, fn)
}

// Once registers a one-shot event listener.
func (s *Service) Once(namespace, event string, fn func(json.RawMessage)) {
	s.channel(namespace).Once(event, fn)
}

// IsConnected reports the connection state of one namespace.
func (s *Service) IsConnected(namespace string) bool {
	return s.channel(namespace).IsConnected()
}

// Namespaces returns the registered namespace identifiers.
func (s *Service) Namespaces() []string {
	return append([]string(nil), s.order...)
}

// Channels returns every registered channel.
func (s *Service) Channels() []*Channel {
	out := make([]*Channel, 0, len(s.order))
	for _, ns := range s.order {
		out = append(out, s.channels[ns])
	}
	return out
}
