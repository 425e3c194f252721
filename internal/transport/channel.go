package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/glasschat/internal/status"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by Emit when the channel has no live
// connection. Events are never queued for later delivery.
var ErrNotConnected = errors.New("channel not connected")

// Synthetic lifecycle events dispatched through the same listener
// mechanism as server events.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

// ReasonServerDisconnect marks a disconnect initiated by the server. The
// channel does not retry these on its own; the lifecycle coordinator
// decides whether to reconnect.
const ReasonServerDisconnect = "io server disconnect"

const reasonClientDisconnect = "io client disconnect"

// DisconnectPayload is the data attached to a synthetic disconnect event.
type DisconnectPayload struct {
	Reason string `json:"reason"`
}

// ConnectErrorPayload is the data attached to a synthetic connect_error event.
type ConnectErrorPayload struct {
	Message string `json:"message"`
}

// Conn is one established duplex connection.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error

	// CloseInitiatedByPeer reports whether the error returned from Read
	// represents a clean close from the remote end.
	CloseInitiatedByPeer(err error) bool
}

// Dialer establishes namespace connections.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (Conn, error)
}

// Channel is a single named duplex connection. It is created once per
// namespace at service construction and lives until teardown; connects
// and disconnects only change its connection state.
type Channel struct {
	namespace string
	url       string
	dialer    Dialer
	machine   *status.Machine
	logger    *zap.Logger

	retryAttempts int
	retryDelay    time.Duration

	mu       sync.Mutex
	conn     Conn
	token    string
	gen      int
	manual   bool
	handlers map[string]map[int]func(json.RawMessage)
	nextSub  int
	pending  map[uint64]chan Response
	nextAck  uint64

	writeMu sync.Mutex
}

// NewChannel creates a disconnected channel for one namespace.
func NewChannel(namespace, url string, dialer Dialer, machine *status.Machine, attempts int, delay time.Duration, logger *zap.Logger) *Channel {
	return &Channel{
		namespace:     namespace,
		url:           url,
		dialer:        dialer,
		machine:       machine,
		logger:        logger,
		retryAttempts: attempts,
		retryDelay:    delay,
		handlers:      make(map[string]map[int]func(json.RawMessage)),
		pending:       make(map[uint64]chan Response),
	}
}

// Namespace returns the channel's namespace identifier.
func (c *Channel) Namespace() string { return c.namespace }

// State returns the current connection state.
func (c *Channel) State() status.State { return c.machine.Current() }

// IsConnected reports whether the channel has a live connection.
func (c *Channel) IsConnected() bool { return c.machine.Current() == status.Connected }

// SetToken updates the credential used on the next connection attempt.
// A retry loop already in flight picks the new token up on its next
// attempt.
func (c *Channel) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Connect initiates a connection attempt in the background. Errors are
// reported asynchronously through connect_error events, never returned.
// A no-op when already connected or connecting.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	c.manual = false
	c.mu.Unlock()

	if err := c.machine.Transition(status.Connecting); err != nil {
		return
	}
	go c.connectLoop(ctx)
}

func (c *Channel) connectLoop(ctx context.Context) {
	for attempt := 0; ; attempt++ {
		c.mu.Lock()
		token := c.token
		manual := c.manual
		c.mu.Unlock()
		if manual || ctx.Err() != nil {
			_ = c.machine.Transition(status.Disconnected)
			return
		}

		conn, err := c.dialer.Dial(ctx, c.url, token)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.gen++
			gen := c.gen
			c.mu.Unlock()

			_ = c.machine.Transition(status.Connected)
			c.logger.Info("channel connected", zap.String("namespace", c.namespace))
			c.dispatch(EventConnect, nil)
			go c.readLoop(ctx, conn, gen)
			return
		}

		c.logger.Warn("channel connect failed",
			zap.String("namespace", c.namespace),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if IsAuthFailure(err.Error()) {
			_ = c.machine.Transition(status.AuthFailing)
		}
		c.dispatch(EventConnectError, mustJSON(ConnectErrorPayload{Message: err.Error()}))

		if attempt+1 >= c.retryAttempts {
			_ = c.machine.Transition(status.Disconnected)
			c.dispatch(EventDisconnect, mustJSON(DisconnectPayload{Reason: "reconnect attempts exhausted"}))
			return
		}

		select {
		case <-time.After(c.retryDelay << attempt):
		case <-ctx.Done():
			_ = c.machine.Transition(status.Disconnected)
			return
		}
		// Back from the auth excursion before the next dial.
		if c.machine.Current() == status.AuthFailing {
			_ = c.machine.Transition(status.Connecting)
		}
	}
}

func (c *Channel) readLoop(ctx context.Context, conn Conn, gen int) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			c.handleReadError(ctx, conn, gen, err)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Warn("malformed frame dropped", zap.String("namespace", c.namespace), zap.Error(err))
			continue
		}

		switch f.Type {
		case frameEvent:
			c.dispatch(f.Event, f.Data)
		case frameAck:
			c.settleAck(f.ID, f.Data)
		}
	}
}

func (c *Channel) handleReadError(ctx context.Context, conn Conn, gen int, err error) {
	c.mu.Lock()
	stale := gen != c.gen
	manual := c.manual
	if !stale {
		c.conn = nil
	}
	c.mu.Unlock()
	if stale || manual {
		return
	}

	reason := err.Error()
	if conn.CloseInitiatedByPeer(err) {
		reason = ReasonServerDisconnect
	}
	_ = c.machine.Transition(status.Disconnected)
	c.logger.Warn("channel disconnected",
		zap.String("namespace", c.namespace),
		zap.String("reason", reason))
	c.dispatch(EventDisconnect, mustJSON(DisconnectPayload{Reason: reason}))

	// Built-in retry for unexpected drops. Server-initiated disconnects
	// are left to the lifecycle coordinator.
	if reason != ReasonServerDisconnect {
		c.Connect(ctx)
	}
}

// Disconnect closes the connection if one is live. Idempotent.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.manual = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	_ = conn.Close()
	_ = c.machine.Transition(status.Disconnected)
	c.dispatch(EventDisconnect, mustJSON(DisconnectPayload{Reason: reasonClientDisconnect}))
}

// Send emits a fire-and-forget event. Silently dropped when the channel
// is not connected.
func (c *Channel) Send(event string, payload any) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || !c.IsConnected() {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("send payload marshal failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := c.write(frame{Type: frameEvent, Event: event, Data: data}); err != nil {
		c.logger.Warn("send failed", zap.String("event", event), zap.Error(err))
	}
}

// Emit sends an event requiring acknowledgement and waits for the ack,
// bounded by timeout. The first settlement wins: an ack arriving after
// the timeout is dropped without side effects.
func (c *Channel) Emit(ctx context.Context, event string, payload any, timeout time.Duration) (Response, error) {
	c.mu.Lock()
	if c.conn == nil || c.machine.Current() != status.Connected {
		c.mu.Unlock()
		return Response{}, fmt.Errorf("emit %q on %s: %w", event, c.namespace, ErrNotConnected)
	}
	c.nextAck++
	id := c.nextAck
	ackCh := make(chan Response, 1)
	c.pending[id] = ackCh
	c.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		c.dropPending(id)
		return Response{}, fmt.Errorf("marshal %q payload: %w", event, err)
	}
	if err := c.write(frame{Type: frameEvent, ID: id, Event: event, Data: data}); err != nil {
		c.dropPending(id)
		return Response{}, fmt.Errorf("write %q: %w", event, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-ackCh:
		if !resp.OK() {
			return resp, resp.Err()
		}
		return resp, nil
	case <-timer.C:
		c.dropPending(id)
		return Response{}, fmt.Errorf("emit %q: ack timed out after %s", event, timeout)
	case <-ctx.Done():
		c.dropPending(id)
		return Response{}, ctx.Err()
	}
}

func (c *Channel) settleAck(id uint64, data json.RawMessage) {
	c.mu.Lock()
	ackCh, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		// Late ack after timeout; the emit already settled.
		c.logger.Debug("late ack dropped", zap.Uint64("id", id))
		return
	}
	ackCh <- decodeAck(data)
}

func (c *Channel) dropPending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// On registers a listener for the given event. The returned function
// deregisters exactly this listener.
func (c *Channel) On(event string, fn func(json.RawMessage)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]func(json.RawMessage))
	}
	c.nextSub++
	id := c.nextSub
	c.handlers[event][id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

// Once registers a listener removed after its first invocation.
func (c *Channel) Once(event string, fn func(json.RawMessage)) {
	var once sync.Once
	var unsub func()
	unsub = c.On(event, func(data json.RawMessage) {
		once.Do(func() {
			unsub()
			fn(data)
		})
	})
}

func (c *Channel) dispatch(event string, data json.RawMessage) {
	c.mu.Lock()
	fns := make([]func(json.RawMessage), 0, len(c.handlers[event]))
	for _, fn := range c.handlers[event] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}

func (c *Channel) write(f frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.Write(ctx, data)
}

// IsAuthFailure matches the authentication-failure signatures the server
// and middleware produce on rejected credentials.
func IsAuthFailure(msg string) bool {
	for _, sig := range []string{"Unauthorized", "token missing", "Authentication", "jwt expired"} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

func mustJSON(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
