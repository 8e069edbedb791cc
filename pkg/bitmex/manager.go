package bitmex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradedesk/internal/keyring"
	"tradedesk/pkg/core"
	"tradedesk/pkg/protocol"
)

const sourceStream = "stream"

// Transport is the shared socket under the Manager. The default is a gws
// client that redials with backoff; the Manager only reacts to its open and
// close callbacks.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	WriteMessage(data []byte) error
	IsConnected() bool
}

// TransportFactory builds the Transport that reports its lifecycle to m.
type TransportFactory func(m *Manager) Transport

// Manager owns keepalive pacing, re-announcement on open, disconnect
// fan-out on close and routing of inbound frames.
type Manager struct {
	registry  *Registry
	transport Transport
	interval  time.Duration
	logger    zerolog.Logger

	mu    sync.Mutex
	timer *time.Timer
	alive bool
}

func newManager(registry *Registry, interval time.Duration, logger zerolog.Logger) *Manager {
	return &Manager{
		registry: registry,
		interval: interval,
		logger:   logger.With().Str("component", "manager").Logger(),
	}
}

// Send encodes cmd for the account and writes it if the socket is open.
// Otherwise the command is dropped; nothing is queued or retried.
func (m *Manager) Send(accountKey string, cmd protocol.Command) {
	if !m.transport.IsConnected() {
		m.logger.Debug().
			Str("account", keyring.MaskKey(accountKey)).
			Str("frame", cmd.FrameType().String()).
			Msg("socket closed, command dropped")
		return
	}

	data, err := protocol.Encode(accountKey, cmd)
	if err != nil {
		m.logger.Error().Err(err).Msg("encode command")
		return
	}

	if err := m.transport.WriteMessage(data); err != nil {
		m.logger.Warn().Err(err).
			Str("account", keyring.MaskKey(accountKey)).
			Msg("write command")
		return
	}
	m.logger.Debug().Str("data", string(data)).Msg("sent")
}

// OnOpen replays every account's connect sequence and starts the keepalive.
func (m *Manager) OnOpen() {
	m.startKeepalive()
	m.registry.events.emit(Event{Type: EventConnect})

	for _, acct := range m.registry.List() {
		acct.Connect()
	}
}

// OnClose synthesizes one disconnect per account, one for the registry,
// and stops the keepalive.
func (m *Manager) OnClose(err error) {
	m.stopKeepalive()

	for _, acct := range m.registry.List() {
		ev := Event{Type: EventDisconnect, Account: acct, Err: err}
		for _, s := range acct.Streams() {
			ev.Stream = s
			s.events.emit(ev)
		}
		ev.Stream = nil
		acct.events.emit(ev)
	}
	m.registry.events.emit(Event{Type: EventDisconnect, Err: err})
}

// OnError surfaces transport failures, such as a failed redial, as registry errors.
func (m *Manager) OnError(err error) {
	m.registry.events.emit(Event{
		Type: EventError,
		Err:  core.WrapError(sourceStream, core.ErrorTypeTransport, err).WithCode(string(core.ErrCodeWebsocket)),
	})
}

// OnMessage decodes one inbound frame and routes it. Any frame, including
// the pong, resets the keepalive.
func (m *Manager) OnMessage(data []byte) {
	m.resetKeepalive()

	if protocol.IsPong(data) {
		return
	}

	frame, err := protocol.Decode(data)
	if err != nil {
		m.logger.Error().Err(err).Str("data", string(data)).Msg("decode frame")
		m.registry.events.emit(Event{
			Type: EventError,
			Err:  core.WrapError(sourceStream, core.ErrorTypeDecode, err).WithRaw(string(data)),
		})
		return
	}

	acct, ok := m.registry.Account(frame.Account)
	if !ok {
		m.logger.Warn().
			Str("account", keyring.MaskKey(frame.Account)).
			Msg("frame for unknown account dropped")
		return
	}

	m.route(acct, frame.Reply)
}

func (m *Manager) route(acct *Account, reply protocol.Reply) {
	switch r := reply.(type) {
	case protocol.ConnectAck:
		acct.logger.Info().Str("version", r.Version).Msg("account connected")
		m.dispatch(acct, nil, Event{Type: EventConnect})

	case protocol.AuthAck:
		acct.logger.Info().Msg("account authenticated")
		m.dispatch(acct, nil, Event{Type: EventAuth})

	case protocol.SubscribeAck:
		m.dispatchAck(acct, r.Channel, EventSubscribe)

	case protocol.UnsubscribeAck:
		m.dispatchAck(acct, r.Channel, EventUnsubscribe)

	case *protocol.DataMessage:
		m.routeData(acct, r)

	case protocol.AutoCancelAck:
		if r.Active {
			m.dispatch(acct, nil, Event{Type: EventAutoCancel, CancelTime: r.CancelTime})
		} else {
			m.dispatch(acct, nil, Event{Type: EventAutoCancelStop})
		}

	case protocol.StreamError:
		source := acct.Key()
		if len(r.Args) > 0 {
			source = r.Args[0]
		}
		exErr := core.NewExchangeError(source, core.ErrorTypeStream, r.Status, r.Message).WithRaw(r)
		acct.logger.Warn().Err(exErr).Str("op", r.Op).Msg("stream error")
		m.dispatch(acct, acct.streamsNamed(r.Args...), Event{Type: EventError, Err: exErr})

	case protocol.ForcedDisconnect:
		acct.logger.Warn().Msg("account disconnected by server")
		m.dispatch(acct, acct.Streams(), Event{Type: EventDisconnect})

	default:
		acct.logger.Debug().Msgf("unrecognized reply %T dropped", reply)
	}
}

func (m *Manager) routeData(acct *Account, msg *protocol.DataMessage) {
	if s, ok := acct.Stream(msg.Table); ok {
		m.dispatch(acct, []*Stream{s}, Event{Type: EventMessage, Message: msg})
		return
	}

	key, ok := msg.CompositeKey()
	if ok {
		if s, found := acct.Stream(key); found {
			m.dispatch(acct, []*Stream{s}, Event{Type: EventMessage, Message: msg})
			return
		}
	}

	cause := fmt.Errorf("%w: table %q action %q", core.ErrUnroutable, msg.Table, msg.Action)
	if ok {
		cause = fmt.Errorf("%w (tried %q)", cause, key)
	}
	exErr := core.WrapError(acct.Key(), core.ErrorTypeUnroutable, cause).WithRaw(msg)
	acct.logger.Error().Err(exErr).Msg("unroutable message dropped")
	m.dispatch(acct, nil, Event{Type: EventError, Err: exErr, Message: msg})
}

// dispatchAck delivers a subscription ack to its stream. Acks for channels
// the account never asked for are dropped.
func (m *Manager) dispatchAck(acct *Account, channel string, t EventType) {
	streams := acct.streamsNamed(channel)
	if len(streams) == 0 {
		acct.logger.Debug().Str("channel", channel).Str("event", t.String()).Msg("ack for unknown stream dropped")
		return
	}
	m.dispatch(acct, streams, Event{Type: t})
}

// dispatch delivers ev to each stream, then once to the account and once
// to the registry. Account and registry see Stream set only when exactly
// one stream was targeted.
func (m *Manager) dispatch(acct *Account, streams []*Stream, ev Event) {
	ev.Account = acct
	for _, s := range streams {
		ev.Stream = s
		s.events.emit(ev)
	}

	ev.Stream = nil
	if len(streams) == 1 {
		ev.Stream = streams[0]
	}
	acct.events.emit(ev)
	m.registry.events.emit(ev)
}

func (m *Manager) startKeepalive() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.alive = true
	if m.timer != nil {
		m.timer.Reset(m.interval)
		return
	}
	m.timer = time.AfterFunc(m.interval, m.probe)
}

func (m *Manager) resetKeepalive() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.alive && m.timer != nil {
		m.timer.Reset(m.interval)
	}
}

func (m *Manager) stopKeepalive() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.alive = false
	if m.timer != nil {
		m.timer.Stop()
	}
}

// probe writes one ping and re-arms. A missing pong is not treated as a
// dead socket; only the transport's close callback ends the connection.
func (m *Manager) probe() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.alive {
		return
	}
	if err := m.transport.WriteMessage(protocol.Ping); err != nil {
		m.logger.Debug().Err(err).Msg("keepalive probe")
	}
	m.timer.Reset(m.interval)
}
