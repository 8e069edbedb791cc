package bitmex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	httpclient "tradedesk/internal/http"
	"tradedesk/internal/keyring"
	"tradedesk/internal/ws"
	"tradedesk/pkg/core"
)

// Registry indexes accounts by key and owns the shared stream and REST client.
type Registry struct {
	config       *core.Config
	logger       zerolog.Logger
	now          func() time.Time
	newTransport TransportFactory

	manager   *Manager
	transport Transport
	rest      *httpclient.Client

	mu       sync.RWMutex
	accounts map[string]*Account
	order    []string
	closed   bool

	events emitter
}

// New builds a Registry for config. The shared stream is not dialled until Open.
func New(config *core.Config, opts ...Option) (*Registry, error) {
	if config == nil {
		config = core.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r := &Registry{
		config:   config,
		logger:   zerolog.Nop(),
		now:      time.Now,
		accounts: make(map[string]*Account),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Level(config.Level())

	rest, err := httpclient.NewClient(&httpclient.Config{
		BaseURL: config.RESTURL,
		Timeout: config.Timeout,
	}, r.logger.With().Str("component", "rest").Logger())
	if err != nil {
		return nil, fmt.Errorf("create rest client: %w", err)
	}
	r.rest = rest

	r.manager = newManager(r, config.KeepaliveInterval, r.logger)
	if r.newTransport == nil {
		r.newTransport = r.websocketTransport
	}
	r.transport = r.newTransport(r.manager)
	r.manager.transport = r.transport

	return r, nil
}

func (r *Registry) websocketTransport(m *Manager) Transport {
	client := ws.NewClient(ws.Config{
		URL:               r.config.StreamURL,
		ReconnectEnabled:  r.config.Reconnect,
		ReconnectBaseWait: r.config.ReconnectBaseWait,
		ReconnectMaxWait:  r.config.ReconnectMaxWait,
		DialTimeout:       r.config.Timeout,
	}, m)
	client.SetLogger(r.logger.With().Str("component", "ws").Logger())
	return client
}

// Open dials the shared stream. Every registered account is announced once
// the socket opens, and again after every reopen.
func (r *Registry) Open(ctx context.Context) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return core.ErrClientClosed
	}

	r.logger.Info().Str("url", r.config.StreamURL).Msg("opening stream")
	if err := r.transport.Connect(ctx); err != nil {
		exErr := core.WrapError(sourceStream, core.ErrorTypeTransport, err).WithCode(string(core.ErrCodeWebsocket))
		r.events.emit(Event{Type: EventError, Err: exErr})
		return exErr
	}
	return nil
}

// Close tears down the shared stream and the REST client.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := r.transport.Close()
	r.manager.stopKeepalive()
	if restErr := r.rest.Close(); err == nil {
		err = restErr
	}
	return err
}

// Register returns the account for key, creating and connecting it if it is
// new. An empty key registers an anonymous account under a random key; its
// secret is ignored.
func (r *Registry) Register(key, secret string) *Account {
	if key == "" {
		key = uuid.NewString()
		secret = ""
	}

	r.mu.Lock()
	if acct, ok := r.accounts[key]; ok {
		r.mu.Unlock()
		return acct
	}
	acct := newAccount(r, keyring.New(key, secret))
	r.accounts[key] = acct
	r.order = append(r.order, key)
	r.mu.Unlock()

	acct.logger.Info().Bool("authenticated", acct.Authenticated()).Msg("account registered")
	acct.Connect()
	return acct
}

// Account looks up a registered account by key.
func (r *Registry) Account(id string) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	return acct, ok
}

// List returns every account in registration order.
func (r *Registry) List() []*Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]*Account, 0, len(r.order))
	for _, key := range r.order {
		accounts = append(accounts, r.accounts[key])
	}
	return accounts
}

// On registers l for events of type t from every account and the transport.
func (r *Registry) On(t EventType, l Listener) {
	r.events.on(t, l)
}

// OnAny registers l for every event.
func (r *Registry) OnAny(l Listener) {
	r.events.onAny(l)
}

// Config returns the registry's configuration.
func (r *Registry) Config() *core.Config {
	return r.config
}
