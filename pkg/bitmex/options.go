package bitmex

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger shared by the registry, its accounts and transports.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithTransport replaces the default websocket transport.
func WithTransport(factory TransportFactory) Option {
	return func(r *Registry) {
		r.newTransport = factory
	}
}

// WithClock replaces time.Now for signature expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}
