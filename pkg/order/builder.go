package order

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"tradedesk/pkg/core"
)

// Request is a validated new-order request.
type Request struct {
	Symbol      string
	Side        core.OrderSide
	Type        Type
	TimeInForce TimeInForce
	OrderQty    int64
	Price       apd.Decimal
	StopPx      apd.Decimal
	ClOrdID     string
	ExecInst    string
	Text        string
}

// Body returns the JSON body for POST /order. Prices are encoded as JSON
// numbers with their exact decimal digits.
func (r *Request) Body() map[string]any {
	body := map[string]any{
		"symbol":   r.Symbol,
		"side":     r.Side.String(),
		"orderQty": r.OrderQty,
		"ordType":  string(r.Type),
	}
	if r.Type.needsPrice() {
		body["price"] = json.Number(r.Price.String())
	}
	if r.Type.needsStop() {
		body["stopPx"] = json.Number(r.StopPx.String())
	}
	if r.TimeInForce != "" {
		body["timeInForce"] = string(r.TimeInForce)
	}
	if r.ClOrdID != "" {
		body["clOrdID"] = r.ClOrdID
	}
	if r.ExecInst != "" {
		body["execInst"] = r.ExecInst
	}
	if r.Text != "" {
		body["text"] = r.Text
	}
	return body
}

// Builder provides a fluent interface for constructing order requests.
// It keeps the first parse error and reports it on Build.
//
// Example:
//
//	req, err := order.NewBuilder("XBTUSD").
//	    Buy().
//	    Limit().
//	    Price("43250.5").
//	    Quantity(100).
//	    Build()
type Builder struct {
	req *Request
	err error
}

// NewBuilder creates a builder for symbol. Orders default to Limit.
func NewBuilder(symbol string) *Builder {
	return &Builder{req: &Request{Symbol: symbol, Type: TypeLimit}}
}

func (b *Builder) Side(side core.OrderSide) *Builder {
	b.req.Side = side
	return b
}

func (b *Builder) Buy() *Builder {
	return b.Side(core.SideBuy)
}

func (b *Builder) Sell() *Builder {
	return b.Side(core.SideSell)
}

func (b *Builder) Type(t Type) *Builder {
	b.req.Type = t
	return b
}

func (b *Builder) Market() *Builder {
	return b.Type(TypeMarket)
}

func (b *Builder) Limit() *Builder {
	return b.Type(TypeLimit)
}

// Price sets the limit price from its decimal string.
func (b *Builder) Price(price string) *Builder {
	if b.err != nil {
		return b
	}
	if _, _, err := b.req.Price.SetString(price); err != nil {
		b.err = fmt.Errorf("parse price: %w", err)
	}
	return b
}

func (b *Builder) PriceDecimal(price *apd.Decimal) *Builder {
	b.req.Price.Set(price)
	return b
}

// Stop sets the trigger price from its decimal string.
func (b *Builder) Stop(stopPx string) *Builder {
	if b.err != nil {
		return b
	}
	if _, _, err := b.req.StopPx.SetString(stopPx); err != nil {
		b.err = fmt.Errorf("parse stop price: %w", err)
	}
	return b
}

// Quantity sets orderQty in contracts.
func (b *Builder) Quantity(qty int64) *Builder {
	b.req.OrderQty = qty
	return b
}

func (b *Builder) TimeInForce(tif TimeInForce) *Builder {
	b.req.TimeInForce = tif
	return b
}

func (b *Builder) GTC() *Builder {
	return b.TimeInForce(GTC)
}

func (b *Builder) IOC() *Builder {
	return b.TimeInForce(IOC)
}

func (b *Builder) FOK() *Builder {
	return b.TimeInForce(FOK)
}

// PostOnly adds the ParticipateDoNotInitiate exec instruction.
func (b *Builder) PostOnly() *Builder {
	return b.execInst("ParticipateDoNotInitiate")
}

// ReduceOnly adds the ReduceOnly exec instruction.
func (b *Builder) ReduceOnly() *Builder {
	return b.execInst("ReduceOnly")
}

func (b *Builder) execInst(inst string) *Builder {
	if b.req.ExecInst == "" {
		b.req.ExecInst = inst
	} else {
		b.req.ExecInst += "," + inst
	}
	return b
}

// ClOrdID sets a client-assigned identifier for order tracking.
func (b *Builder) ClOrdID(id string) *Builder {
	b.req.ClOrdID = id
	return b
}

func (b *Builder) Text(text string) *Builder {
	b.req.Text = text
	return b
}

// Build validates and returns the request.
func (b *Builder) Build() (*Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := validateRequest(b.req); err != nil {
		return nil, err
	}
	return b.req, nil
}

func validateRequest(req *Request) error {
	if req.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if req.Side != core.SideBuy && req.Side != core.SideSell {
		return fmt.Errorf("invalid order side")
	}

	if req.OrderQty <= 0 {
		return fmt.Errorf("quantity must be positive")
	}

	switch req.Type {
	case TypeMarket, TypeLimit, TypeStop, TypeStopLimit:
	default:
		return fmt.Errorf("invalid order type %q", req.Type)
	}

	if req.Type.needsPrice() && (req.Price.IsZero() || req.Price.Negative) {
		return fmt.Errorf("price must be positive for %s orders", req.Type)
	}

	if req.Type.needsStop() && (req.StopPx.IsZero() || req.StopPx.Negative) {
		return fmt.Errorf("stop price must be positive for %s orders", req.Type)
	}

	if req.Type == TypeMarket && req.TimeInForce == GTC {
		return fmt.Errorf("market orders cannot be GoodTillCancel")
	}

	return nil
}
