package ws

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"

	"tradedesk/pkg/core"
)

// ErrNotConnected is returned by writes while the socket is not open.
var ErrNotConnected = core.ErrNotConnected

// Handler receives the socket lifecycle. All callbacks for one connection
// are invoked from its read loop, so they never run concurrently with each other.
type Handler interface {
	OnOpen()
	OnClose(err error)
	OnMessage(data []byte)
	// OnError reports dial failures from the redial loop.
	OnError(err error)
}

// Config holds configuration options for the shared websocket.
type Config struct {
	// URL is the websocket server endpoint to connect to.
	URL string
	// ReconnectEnabled makes the client redial after an unexpected close.
	ReconnectEnabled bool
	// ReconnectBaseWait is the first redial delay.
	ReconnectBaseWait time.Duration
	// ReconnectMaxWait caps the redial delay.
	ReconnectMaxWait time.Duration
	// DialTimeout bounds a single redial attempt.
	DialTimeout time.Duration
}

// Client owns one gws connection at a time and forwards its events to a Handler.
type Client struct {
	config  Config
	state   *State
	conn    *gws.Conn
	events  *eventHandler
	handler Handler
	logger  zerolog.Logger

	mu            sync.RWMutex
	connectedChan chan struct{}
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

type eventHandler struct {
	client *Client
}

// NewClient creates a websocket client that reports to handler.
// Default values are applied for any zero-valued configuration fields.
func NewClient(config Config, handler Handler) *Client {
	if config.ReconnectBaseWait == 0 {
		config.ReconnectBaseWait = 1 * time.Second
	}
	if config.ReconnectMaxWait == 0 {
		config.ReconnectMaxWait = 30 * time.Second
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 10 * time.Second
	}

	client := &Client{
		config:        config,
		state:         &State{},
		handler:       handler,
		connectedChan: make(chan struct{}),
		stopChan:      make(chan struct{}),
		logger:        zerolog.Nop(),
	}
	client.state.Store(StateDisconnected)
	client.events = &eventHandler{client: client}
	return client
}

// SetLogger configures the logger for the websocket client.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

func (h *eventHandler) OnOpen(socket *gws.Conn) {
	h.client.state.Store(StateConnected)

	h.client.mu.Lock()
	select {
	case <-h.client.connectedChan:
	default:
		close(h.client.connectedChan)
	}
	h.client.mu.Unlock()

	h.client.logger.Info().
		Str("url", h.client.config.URL).
		Msg("websocket connected")

	h.client.handler.OnOpen()
}

func (h *eventHandler) OnClose(socket *gws.Conn, err error) {
	c := h.client
	c.state.Transition(StateDisconnected, StateConnected, StateConnecting)

	c.mu.Lock()
	c.connectedChan = make(chan struct{})
	c.mu.Unlock()

	c.logger.Warn().
		Err(err).
		Str("url", c.config.URL).
		Msg("websocket disconnected")

	c.handler.OnClose(err)

	if c.config.ReconnectEnabled {
		select {
		case <-c.stopChan:
			return
		default:
			go c.attemptReconnect()
		}
	}
}

func (h *eventHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (h *eventHandler) OnPong(socket *gws.Conn, payload []byte) {}

func (h *eventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	raw := message.Bytes()
	if len(raw) == 0 {
		return
	}
	// the pooled buffer is released on Close; decoded replies may outlive it
	data := append([]byte(nil), raw...)

	h.client.logger.Debug().Str("data", string(data)).Msg("received websocket message")
	h.client.handler.OnMessage(data)
}

// Connect dials the configured URL and waits until the socket is open.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.Transition(StateConnecting, StateDisconnected, StateReconnecting) {
		current := c.state.Load()
		if current == StateConnected {
			return nil
		}
		return fmt.Errorf("invalid state for connect: %s", current)
	}

	socket, _, err := gws.NewClient(c.events, c.clientOption())
	if err != nil {
		c.state.Store(StateDisconnected)
		return fmt.Errorf("connect websocket: %w", err)
	}

	c.mu.Lock()
	c.conn = socket
	connected := c.connectedChan
	c.mu.Unlock()

	c.wg.Go(func() {
		socket.ReadLoop()
	})

	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		_ = socket.NetConn().Close()
		c.state.Store(StateDisconnected)
		return ctx.Err()
	case <-c.stopChan:
		_ = socket.NetConn().Close()
		c.state.Store(StateClosed)
		return fmt.Errorf("client stopped")
	}
}

func (c *Client) clientOption() *gws.ClientOption {
	timeout := c.config.DialTimeout
	return &gws.ClientOption{
		Addr:             c.config.URL,
		HandshakeTimeout: timeout,
		NewDialer: func() (gws.Dialer, error) {
			return &net.Dialer{Timeout: timeout}, nil
		},
	}
}

// Close shuts the socket down for good. The handler still sees OnClose
// if a connection was open.
func (c *Client) Close() error {
	if !c.state.Transition(StateClosed, StateConnected, StateConnecting, StateReconnecting, StateDisconnected) {
		return nil
	}

	close(c.stopChan)

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.NetConn().Close()
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// State returns the current connection state of the websocket.
func (c *Client) State() ConnState {
	return c.state.Load()
}

// IsConnected reports whether a frame written now would reach the socket.
func (c *Client) IsConnected() bool {
	return c.state.Load() == StateConnected
}

// WriteMessage sends one text frame. It fails with ErrNotConnected instead
// of buffering when the socket is not open.
func (c *Client) WriteMessage(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || c.state.Load() != StateConnected {
		return ErrNotConnected
	}

	return c.conn.WriteMessage(gws.OpcodeText, data)
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.ReconnectBaseWait
	b.MaxInterval = c.config.ReconnectMaxWait
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (c *Client) attemptReconnect() {
	if !c.state.Transition(StateReconnecting, StateDisconnected) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	attempt := 0
	redial := func() error {
		attempt++
		dialCtx, dialCancel := context.WithTimeout(ctx, c.config.DialTimeout)
		defer dialCancel()
		if err := c.Connect(dialCtx); err != nil {
			if c.state.Load() == StateClosed {
				return backoff.Permanent(err)
			}
			c.state.Store(StateReconnecting)
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Error().Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("reconnect failed")
		c.handler.OnError(err)
	}

	if err := backoff.RetryNotify(redial, backoff.WithContext(c.newBackOff(), ctx), notify); err != nil {
		c.logger.Debug().Err(err).Msg("reconnect loop stopped")
		return
	}
	c.logger.Info().Int("attempt", attempt).Msg("reconnected successfully")
}
