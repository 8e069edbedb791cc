package order

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"tradedesk/pkg/bitmex"
	"tradedesk/pkg/core"
)

// Client is the signed REST surface the Manager needs. *bitmex.Account implements it.
type Client interface {
	Post(ctx context.Context, path string, body any) (*bitmex.Result, error)
	Put(ctx context.Context, path string, body any) (*bitmex.Result, error)
	Delete(ctx context.Context, path string, body any) (*bitmex.Result, error)
}

type orderSubscriber struct {
	orderCh chan *Order
}

// Manager places, amends and cancels orders for one account and keeps a
// local copy of their state. REST responses and "order" stream updates are
// merged into the same records.
type Manager struct {
	client Client
	logger zerolog.Logger

	mu        sync.RWMutex
	orders    map[string]*Order
	clientIDs map[string]string

	subscribersMu sync.RWMutex
	subscribers   []orderSubscriber
}

// NewManager creates an order manager that sends requests through client.
func NewManager(client Client) *Manager {
	return &Manager{
		client:    client,
		logger:    zerolog.Nop(),
		orders:    make(map[string]*Order),
		clientIDs: make(map[string]string),
	}
}

func (m *Manager) SetLogger(logger zerolog.Logger) {
	m.logger = logger
}

// Place submits one order and starts tracking it.
func (m *Manager) Place(ctx context.Context, req *Request) (*Order, error) {
	if req == nil {
		return nil, fmt.Errorf("order request is required")
	}
	if err := validateRequest(req); err != nil {
		return nil, fmt.Errorf("order validation: %w", err)
	}

	result, err := m.client.Post(ctx, "order", req.Body())
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	o, err := m.applyOne(result)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	return o, nil
}

// PlaceBulk submits several orders in one request.
func (m *Manager) PlaceBulk(ctx context.Context, reqs []*Request) ([]*Order, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("at least one order request is required")
	}

	bodies := make([]map[string]any, 0, len(reqs))
	for i, req := range reqs {
		if err := validateRequest(req); err != nil {
			return nil, fmt.Errorf("order %d validation: %w", i, err)
		}
		bodies = append(bodies, req.Body())
	}

	result, err := m.client.Post(ctx, "order/bulk", bodies)
	if err != nil {
		return nil, fmt.Errorf("place bulk orders: %w", err)
	}
	return m.applyResult(result)
}

// Amendment changes an open order. Zero fields are left untouched.
type Amendment struct {
	OrderID  string
	OrderQty int64
	Price    string
	StopPx   string
}

// Amend modifies an open order.
func (m *Manager) Amend(ctx context.Context, amend Amendment) (*Order, error) {
	if amend.OrderID == "" {
		return nil, fmt.Errorf("order ID is required")
	}
	if existing, ok := m.Order(amend.OrderID); ok && existing.Status.IsTerminal() {
		return nil, fmt.Errorf("cannot amend order in terminal state: %s", existing.Status)
	}

	body := map[string]any{"orderID": amend.OrderID}
	if amend.OrderQty > 0 {
		body["orderQty"] = amend.OrderQty
	}
	if amend.Price != "" {
		body["price"] = json.Number(amend.Price)
	}
	if amend.StopPx != "" {
		body["stopPx"] = json.Number(amend.StopPx)
	}

	result, err := m.client.Put(ctx, "order", body)
	if err != nil {
		return nil, fmt.Errorf("amend order: %w", err)
	}
	o, err := m.applyOne(result)
	if err != nil {
		return nil, fmt.Errorf("amend order: %w", err)
	}
	return o, nil
}

// Cancel cancels orders by exchange ID.
func (m *Manager) Cancel(ctx context.Context, orderIDs ...string) ([]*Order, error) {
	if len(orderIDs) == 0 {
		return nil, fmt.Errorf("order ID is required")
	}
	for _, id := range orderIDs {
		if existing, ok := m.Order(id); ok && existing.Status.IsTerminal() {
			return nil, fmt.Errorf("cannot cancel order %s in terminal state: %s", id, existing.Status)
		}
	}

	result, err := m.client.Delete(ctx, "order", map[string]any{"orderID": orderIDs})
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	return m.applyResult(result)
}

// CancelAll cancels every open order, or only those for symbol when it is set.
func (m *Manager) CancelAll(ctx context.Context, symbol string) ([]*Order, error) {
	var body map[string]any
	if symbol != "" {
		body = map[string]any{"symbol": symbol}
	}

	result, err := m.client.Delete(ctx, "order/all", body)
	if err != nil {
		return nil, fmt.Errorf("cancel all orders: %w", err)
	}
	return m.applyResult(result)
}

// Track merges the updates of an account's "order" stream into the local
// records. It only registers listeners; the caller subscribes the stream.
func (m *Manager) Track(s *bitmex.Stream) {
	s.On(bitmex.EventMessage, func(ev bitmex.Event) {
		rows, err := decodeRows(ev.Message.Data)
		if err != nil {
			m.logger.Error().Err(err).Str("action", ev.Message.Action).Msg("decode order rows")
			return
		}
		if ev.Message.Action == "delete" {
			m.forget(rows)
			return
		}
		m.apply(rows)
	})
}

func (m *Manager) applyResult(result *bitmex.Result) ([]*Order, error) {
	body := result.Body
	if len(body) > 0 && body[0] == '{' {
		body = append(append([]byte{'['}, body...), ']')
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	return m.apply(rows), nil
}

// applyOne is applyResult for endpoints that answer with exactly one order.
func (m *Manager) applyOne(result *bitmex.Result) (*Order, error) {
	orders, err := m.applyResult(result)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("response contains no orders")
	}
	return orders[0], nil
}

func (m *Manager) apply(rows []orderRow) []*Order {
	updated := make([]*Order, 0, len(rows))

	m.mu.Lock()
	for i := range rows {
		row := &rows[i]
		if row.OrderID == "" {
			continue
		}
		o, ok := m.orders[row.OrderID]
		if !ok {
			o = &Order{OrderID: row.OrderID}
			m.orders[row.OrderID] = o
		}
		if err := row.merge(o); err != nil {
			m.logger.Warn().Err(err).Str("order_id", row.OrderID).Msg("merge order update")
		}
		if o.UpdatedAt.IsZero() {
			o.UpdatedAt = time.Now()
		}
		if o.ClOrdID != "" {
			m.clientIDs[o.ClOrdID] = o.OrderID
		}
		updated = append(updated, o.clone())
	}
	m.mu.Unlock()

	for _, o := range updated {
		m.notify(o)
	}
	return updated
}

func (m *Manager) forget(rows []orderRow) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range rows {
		if o, ok := m.orders[row.OrderID]; ok {
			delete(m.clientIDs, o.ClOrdID)
			delete(m.orders, row.OrderID)
		}
	}
}

// Order returns a copy of a tracked order by exchange ID.
func (m *Manager) Order(orderID string) (*Order, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, false
	}
	return o.clone(), true
}

// OrderByClientID returns a copy of a tracked order by its clOrdID.
func (m *Manager) OrderByClientID(clOrdID string) (*Order, bool) {
	m.mu.RLock()
	orderID, ok := m.clientIDs[clOrdID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.Order(orderID)
}

// Orders returns copies of every tracked order matching filter, oldest update first.
func (m *Manager) Orders(filter Filter) []*Order {
	m.mu.RLock()
	result := make([]*Order, 0, len(m.orders))
	for _, o := range m.orders {
		if filter.Matches(o) {
			result = append(result, o.clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].OrderID < result[j].OrderID
		}
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	return result
}

// OpenOrders returns every tracked order that is not in a terminal state.
func (m *Manager) OpenOrders() []*Order {
	return m.Orders(Filter{OpenOnly: true})
}

// SubscribeOrders returns a channel of order updates. It is closed when
// ctx is cancelled. Updates are dropped when the subscriber falls 100 behind.
func (m *Manager) SubscribeOrders(ctx context.Context) <-chan *Order {
	sub := orderSubscriber{orderCh: make(chan *Order, 100)}

	m.subscribersMu.Lock()
	m.subscribers = append(m.subscribers, sub)
	m.subscribersMu.Unlock()

	go func() {
		<-ctx.Done()
		m.removeSubscriber(sub)
	}()

	return sub.orderCh
}

func (m *Manager) removeSubscriber(sub orderSubscriber) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()

	for i, s := range m.subscribers {
		if s.orderCh == sub.orderCh {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(sub.orderCh)
			return
		}
	}
}

func (m *Manager) notify(o *Order) {
	m.subscribersMu.RLock()
	defer m.subscribersMu.RUnlock()

	for _, sub := range m.subscribers {
		select {
		case sub.orderCh <- o:
		default:
			m.logger.Warn().Str("order_id", o.OrderID).Msg("order subscriber channel full, update dropped")
		}
	}
}

// Filter selects orders. Zero fields match everything.
type Filter struct {
	Symbol   string
	Side     core.OrderSide
	Status   Status
	OpenOnly bool
}

// Matches returns true if the order satisfies all non-zero filter criteria.
func (f *Filter) Matches(o *Order) bool {
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.Side != core.SideUnknown && o.Side != f.Side {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.OpenOnly && o.Status.IsTerminal() {
		return false
	}
	return true
}

// orderRow is one order as sent by REST and the "order" table. Updates
// carry only the changed fields, hence the pointers.
type orderRow struct {
	OrderID     string       `json:"orderID"`
	ClOrdID     *string      `json:"clOrdID"`
	Symbol      *string      `json:"symbol"`
	Side        *string      `json:"side"`
	OrdType     *string      `json:"ordType"`
	TimeInForce *string      `json:"timeInForce"`
	Price       *json.Number `json:"price"`
	StopPx      *json.Number `json:"stopPx"`
	OrderQty    *int64       `json:"orderQty"`
	LeavesQty   *int64       `json:"leavesQty"`
	CumQty      *int64       `json:"cumQty"`
	OrdStatus   *string      `json:"ordStatus"`
	Text        *string      `json:"text"`
	Timestamp   *string      `json:"timestamp"`
}

func decodeRows(data []byte) ([]orderRow, error) {
	var rows []orderRow
	if err := sonic.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return rows, nil
}

func (r *orderRow) merge(o *Order) error {
	if r.ClOrdID != nil {
		o.ClOrdID = *r.ClOrdID
	}
	if r.Symbol != nil {
		o.Symbol = *r.Symbol
	}
	if r.Side != nil && *r.Side != "" {
		side, err := core.ParseSide(*r.Side)
		if err != nil {
			return err
		}
		o.Side = side
	}
	if r.OrdType != nil {
		o.Type = Type(*r.OrdType)
	}
	if r.TimeInForce != nil {
		o.TimeInForce = TimeInForce(*r.TimeInForce)
	}
	if r.Price != nil && *r.Price != "" {
		if _, _, err := o.Price.SetString(r.Price.String()); err != nil {
			return fmt.Errorf("price: %w", err)
		}
	}
	if r.StopPx != nil && *r.StopPx != "" {
		if _, _, err := o.StopPx.SetString(r.StopPx.String()); err != nil {
			return fmt.Errorf("stopPx: %w", err)
		}
	}
	if r.OrderQty != nil {
		o.OrderQty = *r.OrderQty
	}
	if r.LeavesQty != nil {
		o.LeavesQty = *r.LeavesQty
	}
	if r.CumQty != nil {
		o.CumQty = *r.CumQty
	}
	if r.OrdStatus != nil {
		o.Status = Status(*r.OrdStatus)
	}
	if r.Text != nil {
		o.Text = *r.Text
	}
	if r.Timestamp != nil {
		if ts, err := time.Parse(time.RFC3339Nano, *r.Timestamp); err == nil {
			o.UpdatedAt = ts
		}
	}
	return nil
}
