// Package bitmex multiplexes any number of accounts over one realtime
// connection to the exchange and signs their REST calls.
//
// A Registry owns the shared socket. Accounts are registered by API key
// (or anonymously) and subscribe to channels, each represented by a Stream.
// Every inbound event is delivered to the Stream, then its Account, then the
// Registry:
//
//	reg, _ := bitmex.New(core.DefaultConfig())
//	_ = reg.Open(ctx)
//	acct := reg.Register("", "")
//	acct.SubscribeOne("trade:XBTUSD").On(bitmex.EventMessage, func(ev bitmex.Event) {
//		trades, _ := protocol.DecodeTrades(ev.Message)
//		...
//	})
//
// Commands issued while the socket is down are dropped. When it reopens,
// every account is announced, re-authenticated and resubscribed.
package bitmex
