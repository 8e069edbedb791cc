package bitmex

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/pkg/core"
	"tradedesk/pkg/protocol"
)

var fixedNow = time.Unix(1700000000, 0)

type fakeTransport struct {
	manager *Manager

	mu        sync.Mutex
	connected bool
	dialErr   error
	sent      []string
	pings     int
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.dialErr != nil {
		return f.dialErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	f.manager.OnOpen()
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	was := f.connected
	f.connected = false
	f.mu.Unlock()
	if was {
		f.manager.OnClose(nil)
	}
	return nil
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if string(data) == string(protocol.Ping) {
		f.pings++
	}
	if !f.connected {
		return errors.New("not connected")
	}
	if string(data) != string(protocol.Ping) {
		f.sent = append(f.sent, string(data))
	}
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func newTestRegistry(t *testing.T, config *core.Config) (*Registry, *fakeTransport) {
	t.Helper()
	if config == nil {
		config = core.DefaultConfig().WithKeepalive(time.Hour)
	}
	fake := &fakeTransport{}
	reg, err := New(config,
		WithClock(func() time.Time { return fixedNow }),
		WithTransport(func(m *Manager) Transport {
			fake.manager = m
			return fake
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg, fake
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count(t EventType) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func TestNew_InvalidConfig(t *testing.T) {
	config := core.DefaultConfig()
	config.StreamURL = ""

	_, err := New(config)
	assert.Error(t, err)
}

func TestNew_DefaultTransport(t *testing.T) {
	reg, err := New(nil)
	require.NoError(t, err)
	defer reg.Close()

	assert.NotNil(t, reg.transport)
	assert.False(t, reg.transport.IsConnected())
	assert.Equal(t, core.ProductionStreamURL, reg.Config().StreamURL)
}

func TestRegistry_Register(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	anon := reg.Register("", "ignored")
	assert.NotEmpty(t, anon.Key())
	assert.False(t, anon.Authenticated())

	acct := reg.Register("K", "S")
	assert.True(t, acct.Authenticated())
	assert.Same(t, acct, reg.Register("K", "other"))

	found, ok := reg.Account("K")
	require.True(t, ok)
	assert.Same(t, acct, found)

	_, ok = reg.Account("missing")
	assert.False(t, ok)

	assert.Equal(t, []*Account{anon, acct}, reg.List())
}

func TestRegistry_AnonymousKeysAreUnique(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	a := reg.Register("", "")
	b := reg.Register("", "")
	assert.NotEqual(t, a.Key(), b.Key())
	assert.Len(t, reg.List(), 2)
}

func TestRegistry_OpenAfterClose(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	require.NoError(t, reg.Close())
	assert.ErrorIs(t, reg.Open(context.Background()), core.ErrClientClosed)
	assert.NoError(t, reg.Close())
}

func TestRegistry_OpenFailureEmitsTransportError(t *testing.T) {
	reg, fake := newTestRegistry(t, nil)
	fake.dialErr = errors.New("connection refused")

	rec := &recorder{}
	reg.On(EventError, rec.listen)

	err := reg.Open(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsTransportError(err))

	events := rec.all()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Account)
	assert.True(t, core.IsTransportError(events[0].Err))
}

func TestRegistry_CommandsDroppedWhileClosed(t *testing.T) {
	reg, fake := newTestRegistry(t, nil)

	acct := reg.Register("", "")
	acct.Subscribe("trade:XBTUSD")
	acct.AutoCancel(time.Minute)

	assert.Empty(t, fake.frames())

	require.NoError(t, reg.Open(context.Background()))
	assert.Equal(t, []string{
		`[1,"` + acct.Key() + `","` + acct.Key() + `"]`,
		`[0,"` + acct.Key() + `","` + acct.Key() + `",{"op":"subscribe","args":["trade:XBTUSD"]}]`,
	}, fake.frames())
}
