package stream

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/pkg/bitmex"
	"tradedesk/pkg/core"
)

type loopback struct {
	manager   *bitmex.Manager
	connected bool
}

func (l *loopback) Connect(ctx context.Context) error {
	l.connected = true
	l.manager.OnOpen()
	return nil
}

func (l *loopback) Close() error                   { l.connected = false; return nil }
func (l *loopback) WriteMessage(data []byte) error { return nil }
func (l *loopback) IsConnected() bool              { return l.connected }

func newAccount(t *testing.T) (*bitmex.Account, *bitmex.Manager) {
	t.Helper()
	lb := &loopback{}
	reg, err := bitmex.New(core.DefaultConfig().WithKeepalive(time.Hour),
		bitmex.WithTransport(func(m *bitmex.Manager) bitmex.Transport {
			lb.manager = m
			return lb
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	require.NoError(t, reg.Open(context.Background()))
	return reg.Register("K", ""), lb.manager
}

func TestTradeFeed(t *testing.T) {
	acct, m := newAccount(t)
	feed := NewTradeFeed(acct.SubscribeOne("trade:XBTUSD"), DefaultConfig())
	defer feed.Close()

	m.OnMessage([]byte(`[0,"K","K",{"table":"trade","action":"insert","data":[` +
		`{"timestamp":"2024-01-01T00:00:00.000Z","symbol":"XBTUSD","side":"Buy","size":10,"price":43250.5,"trdMatchID":"a"},` +
		`{"timestamp":"2024-01-01T00:00:01.000Z","symbol":"XBTUSD","side":"Sell","size":3,"price":43250,"trdMatchID":"b"}]}]`))

	require.Len(t, feed.Trades(), 2)
	first := <-feed.Trades()
	second := <-feed.Trades()

	assert.Equal(t, "a", first.MatchID)
	assert.Equal(t, core.SideBuy, first.Side)
	want, _, _ := apd.NewFromString("43250.5")
	assert.Equal(t, 0, first.Price.Cmp(want))
	assert.Equal(t, core.SideSell, second.Side)
	assert.Equal(t, int64(3), second.Size)
}

func TestQuoteFeed(t *testing.T) {
	acct, m := newAccount(t)
	feed := NewQuoteFeed(acct.SubscribeOne("quote:XBTUSD"), DefaultConfig())
	defer feed.Close()

	m.OnMessage([]byte(`[0,"K","K",{"table":"quote","action":"insert","data":[` +
		`{"timestamp":"2024-01-01T00:00:00.000Z","symbol":"XBTUSD","bidSize":5,"bidPrice":100,"askPrice":100.5,"askSize":7}]}]`))

	require.Len(t, feed.Quotes(), 1)
	q := <-feed.Quotes()
	spread, err := q.Spread()
	require.NoError(t, err)
	assert.Equal(t, "0.5", spread.String())
}

func TestFeed_BufferFullDropsRows(t *testing.T) {
	acct, m := newAccount(t)
	config := DefaultConfig()
	config.BufferSize = 1
	feed := NewTradeFeed(acct.SubscribeOne("trade:XBTUSD"), config)

	m.OnMessage([]byte(`[0,"K","K",{"table":"trade","action":"insert","data":[` +
		`{"symbol":"XBTUSD","side":"Buy","size":1,"price":1,"trdMatchID":"a"},` +
		`{"symbol":"XBTUSD","side":"Buy","size":1,"price":1,"trdMatchID":"b"},` +
		`{"symbol":"XBTUSD","side":"Buy","size":1,"price":1,"trdMatchID":"c"}]}]`))

	assert.Equal(t, uint64(2), feed.Dropped())
	assert.Equal(t, "a", (<-feed.Trades()).MatchID)

	feed.Close()
	feed.Close()
	_, open := <-feed.Trades()
	assert.False(t, open)
}

func TestFeed_Errors(t *testing.T) {
	acct, m := newAccount(t)
	feed := NewTradeFeed(acct.SubscribeOne("trade:XBTUSD"), DefaultConfig())
	defer feed.Close()

	m.OnMessage([]byte(`[0,"K","K",{"table":"trade","action":"insert","data":[{"symbol":"XBTUSD","side":"Up","size":1,"price":1}]}]`))

	select {
	case err := <-feed.Errors():
		assert.Contains(t, err.Error(), "unknown side")
	default:
		t.Fatal("expected decode error")
	}

	m.OnMessage([]byte(`[0,"K","K",{"status":400,"error":"Unknown symbol","request":{"op":"subscribe","args":["trade:XBTUSD"]}}]`))

	select {
	case err := <-feed.Errors():
		assert.True(t, core.IsStreamError(err))
	default:
		t.Fatal("expected stream error")
	}
	assert.Empty(t, feed.Trades())
}

func TestFeed_ClosedFeedIgnoresRows(t *testing.T) {
	acct, m := newAccount(t)
	feed := NewTradeFeed(acct.SubscribeOne("trade:XBTUSD"), DefaultConfig())
	feed.Close()

	assert.NotPanics(t, func() {
		m.OnMessage([]byte(`[0,"K","K",{"table":"trade","action":"insert","data":[{"symbol":"XBTUSD","side":"Buy","size":1,"price":1}]}]`))
	})
}
