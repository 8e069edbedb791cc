// Package order builds order requests and tracks order state for one
// account, over its signed REST calls and its "order" stream.
package order

import (
	"time"

	"github.com/cockroachdb/apd/v3"

	"tradedesk/pkg/core"
)

// Type is the exchange ordType.
type Type string

const (
	TypeMarket    Type = "Market"
	TypeLimit     Type = "Limit"
	TypeStop      Type = "Stop"
	TypeStopLimit Type = "StopLimit"
)

// needsPrice reports whether orders of this type carry a limit price.
func (t Type) needsPrice() bool {
	return t == TypeLimit || t == TypeStopLimit
}

// needsStop reports whether orders of this type carry a trigger price.
func (t Type) needsStop() bool {
	return t == TypeStop || t == TypeStopLimit
}

// TimeInForce is the exchange timeInForce.
type TimeInForce string

const (
	GTC TimeInForce = "GoodTillCancel"
	IOC TimeInForce = "ImmediateOrCancel"
	FOK TimeInForce = "FillOrKill"
)

// Status is the exchange ordStatus.
type Status string

const (
	StatusNew             Status = "New"
	StatusPartiallyFilled Status = "PartiallyFilled"
	StatusFilled          Status = "Filled"
	StatusCanceled        Status = "Canceled"
	StatusRejected        Status = "Rejected"
)

// IsTerminal reports whether no further fills or amendments can happen.
func (s Status) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected
}

// Order is the locally tracked state of one exchange order.
type Order struct {
	OrderID     string
	ClOrdID     string
	Symbol      string
	Side        core.OrderSide
	Type        Type
	TimeInForce TimeInForce
	Price       apd.Decimal
	StopPx      apd.Decimal
	OrderQty    int64
	LeavesQty   int64
	CumQty      int64
	Status      Status
	Text        string
	UpdatedAt   time.Time
}

func (o *Order) clone() *Order {
	c := &Order{
		OrderID:     o.OrderID,
		ClOrdID:     o.ClOrdID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Type:        o.Type,
		TimeInForce: o.TimeInForce,
		OrderQty:    o.OrderQty,
		LeavesQty:   o.LeavesQty,
		CumQty:      o.CumQty,
		Status:      o.Status,
		Text:        o.Text,
		UpdatedAt:   o.UpdatedAt,
	}
	c.Price.Set(&o.Price)
	c.StopPx.Set(&o.StopPx)
	return c
}
