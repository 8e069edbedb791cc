package stream

import (
	"tradedesk/pkg/bitmex"
	"tradedesk/pkg/core"
	"tradedesk/pkg/protocol"
)

// QuoteFeed delivers top-of-book rows of a "quote:<symbol>" stream.
type QuoteFeed struct {
	feed *feed[core.Quote]
}

func NewQuoteFeed(s *bitmex.Stream, config Config) *QuoteFeed {
	return &QuoteFeed{feed: newFeed(s, config, decodeQuotes)}
}

func decodeQuotes(ev bitmex.Event) ([]core.Quote, error) {
	return protocol.DecodeQuotes(ev.Message)
}

func (f *QuoteFeed) Quotes() <-chan core.Quote {
	return f.feed.dataCh
}

func (f *QuoteFeed) Errors() <-chan error {
	return f.feed.errCh
}

func (f *QuoteFeed) Dropped() uint64 {
	return f.feed.dropped.Load()
}

func (f *QuoteFeed) Close() {
	f.feed.close()
}
