package stream

import (
	"tradedesk/pkg/bitmex"
	"tradedesk/pkg/core"
	"tradedesk/pkg/protocol"
)

// TradeFeed delivers the rows of a "trade:<symbol>" stream.
type TradeFeed struct {
	feed *feed[core.Trade]
}

// NewTradeFeed attaches a feed to s. The stream does not need to be
// subscribed yet; rows flow once it is.
func NewTradeFeed(s *bitmex.Stream, config Config) *TradeFeed {
	return &TradeFeed{feed: newFeed(s, config, decodeTrades)}
}

func decodeTrades(ev bitmex.Event) ([]core.Trade, error) {
	return protocol.DecodeTrades(ev.Message)
}

// Trades returns the trade channel. It is closed by Close.
func (f *TradeFeed) Trades() <-chan core.Trade {
	return f.feed.dataCh
}

// Errors returns decode and stream errors. Only the latest unread error is kept.
func (f *TradeFeed) Errors() <-chan error {
	return f.feed.errCh
}

// Dropped returns how many trades were discarded because the buffer was full.
func (f *TradeFeed) Dropped() uint64 {
	return f.feed.dropped.Load()
}

// Close stops delivery and closes both channels.
func (f *TradeFeed) Close() {
	f.feed.close()
}
