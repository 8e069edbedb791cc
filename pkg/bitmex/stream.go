package bitmex

// Stream is one channel subscription within an Account, identified by its
// channel key ("trade:XBTUSD", "chat:1", "order"). Streams are created on
// first Subscribe or Unsubscribe and never removed.
type Stream struct {
	channel string
	account *Account
	events  emitter
}

func newStream(account *Account, channel string) *Stream {
	return &Stream{channel: channel, account: account}
}

// Channel returns the channel key.
func (s *Stream) Channel() string {
	return s.channel
}

// Account returns the owning account.
func (s *Stream) Account() *Account {
	return s.account
}

// On registers l for events of type t routed to this stream.
func (s *Stream) On(t EventType, l Listener) {
	s.events.on(t, l)
}

// OnAny registers l for every event routed to this stream.
func (s *Stream) OnAny(l Listener) {
	s.events.onAny(l)
}
