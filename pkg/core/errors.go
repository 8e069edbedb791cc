package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType is the failure category of an ExchangeError.
type ErrorType int

const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeTransport indicates no response arrived: dial, write or read failure.
	ErrorTypeTransport
	// ErrorTypeNonJSON indicates a response body that is not JSON, usually an HTML error page.
	ErrorTypeNonJSON
	// ErrorTypeAPI indicates a JSON REST response carrying an "error" field.
	ErrorTypeAPI
	// ErrorTypeStream indicates a {status, error} reply on the realtime stream.
	ErrorTypeStream
	// ErrorTypeUnroutable indicates a data frame that matched no known stream.
	ErrorTypeUnroutable
	// ErrorTypeDecode indicates a frame or body that could not be decoded.
	ErrorTypeDecode
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransport:
		return "TRANSPORT"
	case ErrorTypeNonJSON:
		return "NON_JSON"
	case ErrorTypeAPI:
		return "API"
	case ErrorTypeStream:
		return "STREAM"
	case ErrorTypeUnroutable:
		return "UNROUTABLE"
	case ErrorTypeDecode:
		return "DECODE"
	default:
		return "UNKNOWN"
	}
}

var (
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrNotConnected is returned when the shared stream is not open.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrNoCredentials is returned when a signed operation runs on an anonymous account.
	ErrNoCredentials = errors.New("no credentials configured")
	// ErrUnroutable is wrapped by every ErrorTypeUnroutable error.
	ErrUnroutable = errors.New("cannot identify stream")
)

// ExchangeError is the structured error surfaced by REST calls and stream replies.
type ExchangeError struct {
	Type ErrorType `json:"type"`
	// Source is "REST" for HTTP calls or the channel key for stream errors.
	Source     string `json:"source"`
	StatusCode int    `json:"status_code"`
	// Code is the exchange error name, e.g. "ValidationError".
	Code    string `json:"code"`
	Message string `json:"message"`
	// RawError holds the undecoded body or reply for debugging.
	RawError  any       `json:"raw_error,omitempty"`
	Err       error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (%d/%s): %s",
			e.Source, e.Type, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (%d): %s",
		e.Source, e.Type, e.StatusCode, e.Message)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// WithCode sets the exchange error name and returns e.
func (e *ExchangeError) WithCode(code string) *ExchangeError {
	e.Code = code
	return e
}

// WithRaw attaches the undecoded payload and returns e.
func (e *ExchangeError) WithRaw(raw any) *ExchangeError {
	e.RawError = raw
	return e
}

// NewExchangeError creates an ExchangeError stamped with the current time.
func NewExchangeError(source string, errorType ErrorType, statusCode int, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Timestamp:  time.Now(),
	}
}

// WrapError creates an ExchangeError around cause, keeping it reachable through errors.Is.
func WrapError(source string, errorType ErrorType, cause error) *ExchangeError {
	e := NewExchangeError(source, errorType, 0, cause.Error())
	e.Err = cause
	return e
}

func errorTypeOf(err error) (ErrorType, bool) {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Type, true
	}
	return ErrorTypeUnknown, false
}

// IsTransportError reports whether no response was received at all.
func IsTransportError(err error) bool {
	t, ok := errorTypeOf(err)
	return ok && t == ErrorTypeTransport
}

// IsNonJSONError reports whether the server answered with a non-JSON body.
func IsNonJSONError(err error) bool {
	t, ok := errorTypeOf(err)
	return ok && t == ErrorTypeNonJSON
}

// IsAPIError reports whether the exchange answered with a JSON error object.
func IsAPIError(err error) bool {
	t, ok := errorTypeOf(err)
	return ok && t == ErrorTypeAPI
}

// IsStreamError reports whether the error came from a {status, error} stream reply.
func IsStreamError(err error) bool {
	t, ok := errorTypeOf(err)
	return ok && t == ErrorTypeStream
}

// IsUnroutableError reports whether a data frame could not be matched to a stream.
func IsUnroutableError(err error) bool {
	t, ok := errorTypeOf(err)
	return ok && t == ErrorTypeUnroutable
}
