package core

import "errors"

// ErrorCode is an exchange error name as reported in {"error":{"name":...}}.
type ErrorCode string

const (
	ErrCodeHTTP       ErrorCode = "HTTPError"
	ErrCodeValidation ErrorCode = "ValidationError"
	ErrCodeWebsocket  ErrorCode = "WebsocketError"
	ErrCodeRateLimit  ErrorCode = "RateLimitError"
	ErrCodeNotFound   ErrorCode = "NotFoundError"
)

// IsErrorCode reports whether err is an ExchangeError named code.
func IsErrorCode(err error, code ErrorCode) bool {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return ErrorCode(exErr.Code) == code
	}
	return false
}
