package bitmex

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradedesk/internal/keyring"
	"tradedesk/pkg/protocol"
)

// Account is one identity multiplexed over the shared stream. Anonymous
// accounts carry a generated key and no secret and can only read public data.
type Account struct {
	key      *keyring.APIKey
	registry *Registry
	logger   zerolog.Logger

	mu      sync.RWMutex
	streams map[string]*Stream
	order   []string

	events emitter
}

func newAccount(registry *Registry, key *keyring.APIKey) *Account {
	return &Account{
		key:      key,
		registry: registry,
		logger:   registry.logger.With().Str("account", keyring.MaskKey(key.Key)).Logger(),
		streams:  make(map[string]*Stream),
	}
}

// Key returns the account's identity key.
func (a *Account) Key() string {
	return a.key.Key
}

// Authenticated reports whether the account has both a key and a secret.
func (a *Account) Authenticated() bool {
	return a.key.CanSign()
}

func (a *Account) send(cmd protocol.Command) {
	a.registry.manager.Send(a.key.Key, cmd)
}

// Connect announces the account, authenticates it when credentials are
// present and resubscribes every channel it holds. It runs on Register and on
// every transport open; call it directly only after Disconnect.
func (a *Account) Connect() {
	a.send(protocol.Announce{})

	if a.key.CanSign() {
		expires := keyring.Expires(a.registry.now(), a.registry.config.SignatureTTL)
		a.send(protocol.Auth{
			Key:       a.key.Key,
			Expires:   expires,
			Signature: keyring.RealtimeSignature(a.key.Secret, expires),
		})
	}

	a.send(protocol.Subscribe{Channels: a.Channels()})
}

// Disconnect removes this account from the shared socket. Other accounts and
// the socket itself are unaffected.
func (a *Account) Disconnect() {
	a.send(protocol.Disconnect{})
}

// Subscribe requests channels and returns their Streams in the same order.
// Streams are created once per channel key; repeated calls return the same values.
func (a *Account) Subscribe(channels ...string) []*Stream {
	if len(channels) == 0 {
		return nil
	}
	a.send(protocol.Subscribe{Channels: append([]string(nil), channels...)})
	return a.streamsFor(channels)
}

// SubscribeOne is Subscribe for a single channel.
func (a *Account) SubscribeOne(channel string) *Stream {
	return a.Subscribe(channel)[0]
}

// Unsubscribe drops channels. The Streams are kept and returned; they simply
// stop receiving data.
func (a *Account) Unsubscribe(channels ...string) []*Stream {
	if len(channels) == 0 {
		return nil
	}
	a.send(protocol.Unsubscribe{Channels: append([]string(nil), channels...)})
	return a.streamsFor(channels)
}

// AutoCancel arms the exchange's dead-man's switch: all open orders are
// cancelled unless another AutoCancel arrives within timeout. It is not
// renewed automatically. A zero timeout disarms the switch.
func (a *Account) AutoCancel(timeout time.Duration) {
	a.send(protocol.AutoCancel{Timeout: timeout})
}

func (a *Account) streamsFor(channels []string) []*Stream {
	a.mu.Lock()
	defer a.mu.Unlock()

	streams := make([]*Stream, 0, len(channels))
	for _, channel := range channels {
		s, ok := a.streams[channel]
		if !ok {
			s = newStream(a, channel)
			a.streams[channel] = s
			a.order = append(a.order, channel)
			a.logger.Debug().Str("channel", channel).Msg("stream created")
		}
		streams = append(streams, s)
	}
	return streams
}

// Stream looks up a stream by channel key.
func (a *Account) Stream(channel string) (*Stream, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.streams[channel]
	return s, ok
}

// streamsNamed returns the existing streams among channels, skipping unknown keys.
func (a *Account) streamsNamed(channels ...string) []*Stream {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var streams []*Stream
	for _, channel := range channels {
		if s, ok := a.streams[channel]; ok {
			streams = append(streams, s)
		}
	}
	return streams
}

// Streams returns every stream in creation order.
func (a *Account) Streams() []*Stream {
	a.mu.RLock()
	defer a.mu.RUnlock()

	streams := make([]*Stream, 0, len(a.order))
	for _, channel := range a.order {
		streams = append(streams, a.streams[channel])
	}
	return streams
}

// Channels returns every held channel key in creation order.
func (a *Account) Channels() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string{}, a.order...)
}

// On registers l for events of type t on this account, including those
// routed to its streams.
func (a *Account) On(t EventType, l Listener) {
	a.events.on(t, l)
}

// OnAny registers l for every event on this account.
func (a *Account) OnAny(l Listener) {
	a.events.onAny(l)
}

// Get sends a signed GET to /api/v1/<path>. Query strings belong in path;
// body is usually nil.
func (a *Account) Get(ctx context.Context, path string, body any) (*Result, error) {
	return a.request(ctx, http.MethodGet, path, body)
}

// Post sends a signed POST. A slice body is wrapped as {"orders": body}.
func (a *Account) Post(ctx context.Context, path string, body any) (*Result, error) {
	return a.request(ctx, http.MethodPost, path, body)
}

// Put sends a signed PUT.
func (a *Account) Put(ctx context.Context, path string, body any) (*Result, error) {
	return a.request(ctx, http.MethodPut, path, body)
}

// Delete sends a signed DELETE; body may be nil.
func (a *Account) Delete(ctx context.Context, path string, body any) (*Result, error) {
	return a.request(ctx, http.MethodDelete, path, body)
}
