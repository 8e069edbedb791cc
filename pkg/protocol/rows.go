package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"tradedesk/pkg/core"
)

// Table names with typed row decoders.
const (
	TableTrade = "trade"
	TableQuote = "quote"
)

type tradeRow struct {
	Timestamp  string      `json:"timestamp"`
	Symbol     string      `json:"symbol"`
	Side       string      `json:"side"`
	Size       int64       `json:"size"`
	Price      json.Number `json:"price"`
	TrdMatchID string      `json:"trdMatchID"`
}

type quoteRow struct {
	Timestamp string      `json:"timestamp"`
	Symbol    string      `json:"symbol"`
	BidSize   int64       `json:"bidSize"`
	BidPrice  json.Number `json:"bidPrice"`
	AskPrice  json.Number `json:"askPrice"`
	AskSize   int64       `json:"askSize"`
}

// DecodeTrades converts the rows of a "trade" table message.
func DecodeTrades(m *DataMessage) ([]core.Trade, error) {
	if m.Table != TableTrade {
		return nil, fmt.Errorf("decode trades: table is %q", m.Table)
	}
	var rows []tradeRow
	if err := m.DecodeData(&rows); err != nil {
		return nil, err
	}

	trades := make([]core.Trade, 0, len(rows))
	for _, row := range rows {
		t := core.Trade{
			Timestamp: parseTime(row.Timestamp),
			Symbol:    row.Symbol,
			Size:      row.Size,
			MatchID:   row.TrdMatchID,
		}
		if row.Side != "" {
			side, err := core.ParseSide(row.Side)
			if err != nil {
				return nil, fmt.Errorf("trade %s: %w", row.TrdMatchID, err)
			}
			t.Side = side
		}
		if err := parseDecimal(&t.Price, row.Price); err != nil {
			return nil, fmt.Errorf("trade %s price: %w", row.TrdMatchID, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// DecodeQuotes converts the rows of a "quote" table message. Missing prices stay zero.
func DecodeQuotes(m *DataMessage) ([]core.Quote, error) {
	if m.Table != TableQuote {
		return nil, fmt.Errorf("decode quotes: table is %q", m.Table)
	}
	var rows []quoteRow
	if err := m.DecodeData(&rows); err != nil {
		return nil, err
	}

	quotes := make([]core.Quote, 0, len(rows))
	for _, row := range rows {
		q := core.Quote{
			Timestamp: parseTime(row.Timestamp),
			Symbol:    row.Symbol,
			BidSize:   row.BidSize,
			AskSize:   row.AskSize,
		}
		if err := parseDecimal(&q.BidPrice, row.BidPrice); err != nil {
			return nil, fmt.Errorf("quote %s bid: %w", row.Symbol, err)
		}
		if err := parseDecimal(&q.AskPrice, row.AskPrice); err != nil {
			return nil, fmt.Errorf("quote %s ask: %w", row.Symbol, err)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func parseDecimal(d *apd.Decimal, n json.Number) error {
	if n == "" {
		return nil
	}
	_, _, err := d.SetString(n.String())
	return err
}
