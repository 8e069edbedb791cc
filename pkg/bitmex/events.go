package bitmex

import (
	"sync"
	"time"

	"tradedesk/pkg/protocol"
)

// EventType identifies a notification delivered to Stream, Account and Registry listeners.
type EventType int

const (
	EventConnect EventType = iota
	EventDisconnect
	EventAuth
	EventSubscribe
	EventUnsubscribe
	EventMessage
	EventError
	EventAutoCancel
	EventAutoCancelStop
)

var eventNames = [...]string{
	"connect",
	"disconnect",
	"auth",
	"subscribe",
	"unsubscribe",
	"message",
	"error",
	"autoCancel",
	"autoCancelStop",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[t]
}

// SourceREST marks events produced by REST calls rather than the stream.
const SourceREST = "REST"

// Event is one notification. The same value is handed to the Stream, its
// Account and the Registry, so listeners at every scope see the full context.
type Event struct {
	Type EventType
	// Account is nil for transport-level Registry events.
	Account *Account
	// Stream is nil for account-level and REST events.
	Stream *Stream
	// Source is SourceREST for REST results and errors, empty otherwise.
	Source string

	Message    *protocol.DataMessage
	Result     *Result
	CancelTime time.Time
	Err        error
}

// Listener receives events. Stream listeners run on the socket's read loop
// and must not block; REST listeners run on the caller's goroutine.
type Listener func(Event)

type emitter struct {
	mu     sync.RWMutex
	byType map[EventType][]Listener
	all    []Listener
}

func (e *emitter) on(t EventType, l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byType == nil {
		e.byType = make(map[EventType][]Listener)
	}
	e.byType[t] = append(e.byType[t], l)
}

func (e *emitter) onAny(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, l)
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	listeners := make([]Listener, 0, len(e.byType[ev.Type])+len(e.all))
	listeners = append(listeners, e.byType[ev.Type]...)
	listeners = append(listeners, e.all...)
	e.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
