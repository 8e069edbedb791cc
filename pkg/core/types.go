package core

import (
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
)

// OrderSide is the aggressor side of a trade or the side of an order.
type OrderSide int

const (
	SideUnknown OrderSide = iota
	SideBuy
	SideSell
)

// String returns the exchange spelling, "Buy" or "Sell".
func (s OrderSide) String() string {
	switch s {
	case SideBuy:
		return "Buy"
	case SideSell:
		return "Sell"
	default:
		return ""
	}
}

// ParseSide accepts "Buy"/"Sell" in any of the casings the exchange and users send.
func ParseSide(s string) (OrderSide, error) {
	switch s {
	case "Buy", "BUY", "buy":
		return SideBuy, nil
	case "Sell", "SELL", "sell":
		return SideSell, nil
	default:
		return SideUnknown, fmt.Errorf("unknown side %q", s)
	}
}

// Trade is one row of the "trade" table.
type Trade struct {
	Timestamp time.Time
	Symbol    string
	Side      OrderSide
	Size      int64
	Price     apd.Decimal
	// MatchID is the exchange's trdMatchID.
	MatchID string
}

// Quote is one row of the "quote" table.
type Quote struct {
	Timestamp time.Time
	Symbol    string
	BidSize   int64
	BidPrice  apd.Decimal
	AskPrice  apd.Decimal
	AskSize   int64
}

// Spread returns AskPrice - BidPrice.
func (q *Quote) Spread() (apd.Decimal, error) {
	var d apd.Decimal
	if _, err := apd.BaseContext.WithPrecision(34).Sub(&d, &q.AskPrice, &q.BidPrice); err != nil {
		return d, err
	}
	return d, nil
}
