package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedesk/pkg/bitmex"
	"tradedesk/pkg/core"
)

type call struct {
	method string
	path   string
	body   string
}

type fakeClient struct {
	mu       sync.Mutex
	calls    []call
	response string
	err      error
}

func (f *fakeClient) do(method, path string, body any) (*bitmex.Result, error) {
	data, _ := sonic.Marshal(body)
	f.mu.Lock()
	f.calls = append(f.calls, call{method: method, path: path, body: string(data)})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &bitmex.Result{StatusCode: 200, Body: []byte(f.response)}, nil
}

func (f *fakeClient) Post(ctx context.Context, path string, body any) (*bitmex.Result, error) {
	return f.do("POST", path, body)
}

func (f *fakeClient) Put(ctx context.Context, path string, body any) (*bitmex.Result, error) {
	return f.do("PUT", path, body)
}

func (f *fakeClient) Delete(ctx context.Context, path string, body any) (*bitmex.Result, error) {
	return f.do("DELETE", path, body)
}

func (f *fakeClient) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

const placedOrder = `{"orderID":"o-1","clOrdID":"my-1","symbol":"XBTUSD","side":"Buy","ordType":"Limit","timeInForce":"GoodTillCancel","price":43250.5,"orderQty":100,"leavesQty":100,"cumQty":0,"ordStatus":"New","timestamp":"2024-01-01T00:00:00.000Z"}`

func limitBuy(t *testing.T) *Request {
	t.Helper()
	req, err := NewBuilder("XBTUSD").Buy().Price("43250.5").Quantity(100).ClOrdID("my-1").Build()
	require.NoError(t, err)
	return req
}

func TestManager_Place(t *testing.T) {
	client := &fakeClient{response: placedOrder}
	m := NewManager(client)

	o, err := m.Place(context.Background(), limitBuy(t))
	require.NoError(t, err)

	assert.Equal(t, "POST", client.last().method)
	assert.Equal(t, "order", client.last().path)
	assert.JSONEq(t, `{"symbol":"XBTUSD","side":"Buy","orderQty":100,"ordType":"Limit","price":43250.5,"clOrdID":"my-1"}`, client.last().body)

	assert.Equal(t, "o-1", o.OrderID)
	assert.Equal(t, StatusNew, o.Status)
	assert.Equal(t, core.SideBuy, o.Side)
	assert.Equal(t, "43250.5", o.Price.String())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), o.UpdatedAt)

	byClient, ok := m.OrderByClientID("my-1")
	require.True(t, ok)
	assert.Equal(t, "o-1", byClient.OrderID)
	assert.Len(t, m.OpenOrders(), 1)
}

func TestManager_PlaceErrors(t *testing.T) {
	m := NewManager(&fakeClient{err: errors.New("boom")})

	_, err := m.Place(context.Background(), nil)
	assert.Error(t, err)

	_, err = m.Place(context.Background(), &Request{Symbol: "XBTUSD"})
	assert.ErrorContains(t, err, "order validation")

	_, err = m.Place(context.Background(), limitBuy(t))
	assert.ErrorContains(t, err, "boom")

	m = NewManager(&fakeClient{response: `[]`})
	_, err = m.Place(context.Background(), limitBuy(t))
	assert.ErrorContains(t, err, "no orders")
}

func TestManager_PlaceBulk(t *testing.T) {
	client := &fakeClient{response: `[{"orderID":"a","ordStatus":"New","symbol":"XBTUSD"},{"orderID":"b","ordStatus":"New","symbol":"XBTUSD"}]`}
	m := NewManager(client)

	sell, err := NewBuilder("XBTUSD").Sell().Price("43300").Quantity(50).Build()
	require.NoError(t, err)

	orders, err := m.PlaceBulk(context.Background(), []*Request{limitBuy(t), sell})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "order/bulk", client.last().path)
	var sent []map[string]any
	require.NoError(t, sonic.Unmarshal([]byte(client.last().body), &sent))
	assert.Len(t, sent, 2)

	_, err = m.PlaceBulk(context.Background(), nil)
	assert.Error(t, err)
}

func TestManager_AmendAndCancel(t *testing.T) {
	client := &fakeClient{response: placedOrder}
	m := NewManager(client)
	_, err := m.Place(context.Background(), limitBuy(t))
	require.NoError(t, err)

	client.response = `{"orderID":"o-1","price":43260,"orderQty":80,"leavesQty":80}`
	amended, err := m.Amend(context.Background(), Amendment{OrderID: "o-1", OrderQty: 80, Price: "43260"})
	require.NoError(t, err)
	assert.Equal(t, "PUT", client.last().method)
	assert.JSONEq(t, `{"orderID":"o-1","orderQty":80,"price":43260}`, client.last().body)
	assert.Equal(t, int64(80), amended.OrderQty)
	assert.Equal(t, "XBTUSD", amended.Symbol)

	client.response = `[{"orderID":"o-1","ordStatus":"Canceled","leavesQty":0}]`
	canceled, err := m.Cancel(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, "DELETE", client.last().method)
	assert.JSONEq(t, `{"orderID":["o-1"]}`, client.last().body)
	assert.Equal(t, StatusCanceled, canceled[0].Status)
	assert.Empty(t, m.OpenOrders())

	_, err = m.Cancel(context.Background(), "o-1")
	assert.ErrorContains(t, err, "terminal state")
	_, err = m.Amend(context.Background(), Amendment{OrderID: "o-1", OrderQty: 1})
	assert.ErrorContains(t, err, "terminal state")
}

func TestManager_CancelAll(t *testing.T) {
	client := &fakeClient{response: `[{"orderID":"x","ordStatus":"Canceled"}]`}
	m := NewManager(client)

	orders, err := m.CancelAll(context.Background(), "XBTUSD")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	assert.Equal(t, "order/all", client.last().path)
	assert.JSONEq(t, `{"symbol":"XBTUSD"}`, client.last().body)
}

func TestManager_CancelAllNothingOpen(t *testing.T) {
	client := &fakeClient{response: `[]`}
	m := NewManager(client)

	orders, err := m.CancelAll(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, orders)

	orders, err = m.Cancel(context.Background(), "gone")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, m.Orders(Filter{}))
}

func TestManager_Filter(t *testing.T) {
	client := &fakeClient{response: `[
		{"orderID":"a","symbol":"XBTUSD","side":"Buy","ordStatus":"New","timestamp":"2024-01-01T00:00:01.000Z"},
		{"orderID":"b","symbol":"ETHUSD","side":"Sell","ordStatus":"Filled","timestamp":"2024-01-01T00:00:02.000Z"},
		{"orderID":"c","symbol":"XBTUSD","side":"Sell","ordStatus":"PartiallyFilled","timestamp":"2024-01-01T00:00:03.000Z"}]`}
	m := NewManager(client)
	_, err := m.CancelAll(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "null", client.last().body)

	ids := func(orders []*Order) []string {
		out := make([]string, 0, len(orders))
		for _, o := range orders {
			out = append(out, o.OrderID)
		}
		return out
	}

	assert.Equal(t, []string{"a", "b", "c"}, ids(m.Orders(Filter{})))
	assert.Equal(t, []string{"a", "c"}, ids(m.Orders(Filter{Symbol: "XBTUSD"})))
	assert.Equal(t, []string{"b", "c"}, ids(m.Orders(Filter{Side: core.SideSell})))
	assert.Equal(t, []string{"b"}, ids(m.Orders(Filter{Status: StatusFilled})))
	assert.Equal(t, []string{"a", "c"}, ids(m.OpenOrders()))
}

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

func TestManager_TrackOrderStream(t *testing.T) {
	lb := &loopback{}
	reg, err := bitmex.New(core.DefaultConfig().WithKeepalive(time.Hour),
		bitmex.WithTransport(func(m *bitmex.Manager) bitmex.Transport {
			lb.manager = m
			return lb
		}))
	require.NoError(t, err)
	defer reg.Close()
	require.NoError(t, reg.Open(context.Background()))

	acct := reg.Register("K", "S")
	m := NewManager(acct)
	m.Track(acct.SubscribeOne("order"))

	ctx, cancel := context.WithCancel(context.Background())
	updates := m.SubscribeOrders(ctx)

	lb.manager.OnMessage([]byte(`[0,"K","K",{"table":"order","action":"partial","keys":["orderID"],"data":[` + placedOrder + `]}]`))
	lb.manager.OnMessage([]byte(`[0,"K","K",{"table":"order","action":"update","data":[{"orderID":"o-1","ordStatus":"PartiallyFilled","leavesQty":40,"cumQty":60}]}]`))

	o, ok := m.Order("o-1")
	require.True(t, ok)
	assert.Equal(t, StatusPartiallyFilled, o.Status)
	assert.Equal(t, int64(40), o.LeavesQty)
	assert.Equal(t, int64(60), o.CumQty)
	assert.Equal(t, "43250.5", o.Price.String())

	require.Len(t, updates, 2)
	first := <-updates
	assert.Equal(t, StatusNew, first.Status)

	lb.manager.OnMessage([]byte(`[0,"K","K",{"table":"order","action":"delete","data":[{"orderID":"o-1"}]}]`))
	_, ok = m.Order("o-1")
	assert.False(t, ok)
	_, ok = m.OrderByClientID("my-1")
	assert.False(t, ok)

	cancel()
	assert.Eventually(t, func() bool {
		for {
			select {
			case _, open := <-updates:
				if !open {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
}
