package core

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	ProductionStreamURL = "wss://www.bitmex.com/realtimemd"
	ProductionRESTURL   = "https://www.bitmex.com"
	TestnetStreamURL    = "wss://testnet.bitmex.com/realtimemd"
	TestnetRESTURL      = "https://testnet.bitmex.com"

	// APIPrefix is prepended to every REST path and is part of the signed path.
	APIPrefix = "/api/v1/"
)

// Config contains the options for a trading desk client: the shared
// multiplexed stream, the signed REST endpoint and logging.
type Config struct {
	StreamURL string `json:"stream_url" validate:"required,url"`
	RESTURL   string `json:"rest_url" validate:"required,url"`

	// KeepaliveInterval paces the "ping" probe on the shared stream.
	KeepaliveInterval time.Duration `json:"keepalive_interval" validate:"min=1ms"`
	// SignatureTTL is added to the current time to build api-expires.
	SignatureTTL time.Duration `json:"signature_ttl" validate:"min=1s"`
	// Timeout is the maximum duration for REST requests.
	Timeout time.Duration `json:"timeout" validate:"min=1ms"`

	Reconnect         bool          `json:"reconnect"`
	ReconnectBaseWait time.Duration `json:"reconnect_base_wait" validate:"min=0"`
	ReconnectMaxWait  time.Duration `json:"reconnect_max_wait" validate:"min=0"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config for the production exchange:
// 10s keepalive, 60s signature lifetime, 10s REST timeout and
// transport redial between 1s and 30s.
func DefaultConfig() *Config {
	return &Config{
		StreamURL:         ProductionStreamURL,
		RESTURL:           ProductionRESTURL,
		KeepaliveInterval: 10 * time.Second,
		SignatureTTL:      60 * time.Second,
		Timeout:           10 * time.Second,
		Reconnect:         true,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  30 * time.Second,
		LogLevel:          "info",
	}
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.ReconnectMaxWait < c.ReconnectBaseWait {
		return errors.New("ReconnectMaxWait must not be less than ReconnectBaseWait")
	}
	return nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() zerolog.Level {
	if c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// WithTestnet points both endpoints at the exchange's testnet.
func (c *Config) WithTestnet() *Config {
	c.StreamURL = TestnetStreamURL
	c.RESTURL = TestnetRESTURL
	return c
}

// WithEndpoints overrides the stream and REST endpoints and returns the config for chaining.
func (c *Config) WithEndpoints(streamURL, restURL string) *Config {
	c.StreamURL = streamURL
	c.RESTURL = restURL
	return c
}

// WithKeepalive sets the probe interval and returns the config for chaining.
func (c *Config) WithKeepalive(interval time.Duration) *Config {
	c.KeepaliveInterval = interval
	return c
}

// WithTimeout sets the REST timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}

// WithReconnect configures transport redial and returns the config for chaining.
func (c *Config) WithReconnect(enabled bool, base, max time.Duration) *Config {
	c.Reconnect = enabled
	c.ReconnectBaseWait = base
	c.ReconnectMaxWait = max
	return c
}
