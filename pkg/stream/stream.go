// Package stream turns the table updates of a bitmex.Stream into typed
// channel feeds.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"tradedesk/pkg/bitmex"
)

// Config holds options shared by every feed.
type Config struct {
	// BufferSize is the capacity of the data channel. Rows arriving while
	// the buffer is full are dropped and counted.
	BufferSize int
	Logger     zerolog.Logger
}

// DefaultConfig returns a Config with a 100 row buffer and no logging.
func DefaultConfig() Config {
	return Config{
		BufferSize: 100,
		Logger:     zerolog.Nop(),
	}
}

// feed is the subscription shared by the typed feeds. The stream's read
// loop is the only writer, so sends never block it.
type feed[T any] struct {
	channel string
	logger  zerolog.Logger

	mu      sync.Mutex
	dataCh  chan T
	errCh   chan error
	closed  bool
	dropped atomic.Uint64
}

func newFeed[T any](s *bitmex.Stream, config Config, decode func(bitmex.Event) ([]T, error)) *feed[T] {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}

	f := &feed[T]{
		channel: s.Channel(),
		logger:  config.Logger.With().Str("channel", s.Channel()).Logger(),
		dataCh:  make(chan T, config.BufferSize),
		errCh:   make(chan error, 1),
	}

	s.On(bitmex.EventMessage, func(ev bitmex.Event) {
		rows, err := decode(ev)
		if err != nil {
			f.fail(err)
			return
		}
		f.push(rows)
	})
	s.On(bitmex.EventError, func(ev bitmex.Event) {
		f.fail(ev.Err)
	})
	return f
}

func (f *feed[T]) push(rows []T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	for _, row := range rows {
		select {
		case f.dataCh <- row:
		default:
			if f.dropped.Add(1) == 1 {
				f.logger.Warn().Msg("feed buffer full, dropping rows")
			}
		}
	}
}

func (f *feed[T]) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	select {
	case f.errCh <- err:
	default:
		f.logger.Debug().Err(err).Msg("feed error dropped")
	}
}

func (f *feed[T]) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.dataCh)
	close(f.errCh)
}
