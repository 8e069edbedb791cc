package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		name      string
		errorType ErrorType
		want      string
	}{
		{"unknown", ErrorTypeUnknown, "UNKNOWN"},
		{"transport", ErrorTypeTransport, "TRANSPORT"},
		{"non_json", ErrorTypeNonJSON, "NON_JSON"},
		{"api", ErrorTypeAPI, "API"},
		{"stream", ErrorTypeStream, "STREAM"},
		{"unroutable", ErrorTypeUnroutable, "UNROUTABLE"},
		{"decode", ErrorTypeDecode, "DECODE"},
		{"out_of_range", ErrorType(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.errorType.String())
		})
	}
}

func TestExchangeError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ExchangeError
		want string
	}{
		{
			name: "without_code",
			err:  NewExchangeError("REST", ErrorTypeNonJSON, 502, "<html>bad gateway</html>"),
			want: "[REST] NON_JSON (502): <html>bad gateway</html>",
		},
		{
			name: "with_code",
			err:  NewExchangeError("REST", ErrorTypeAPI, 400, "Invalid orderQty").WithCode("ValidationError"),
			want: "[REST] API (400/ValidationError): Invalid orderQty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestNewExchangeError(t *testing.T) {
	err := NewExchangeError("trade:XBTUSD", ErrorTypeStream, 400, "Unknown table")

	assert.Equal(t, "trade:XBTUSD", err.Source)
	assert.Equal(t, ErrorTypeStream, err.Type)
	assert.Equal(t, 400, err.StatusCode)
	assert.Equal(t, "Unknown table", err.Message)
	assert.False(t, err.Timestamp.IsZero())
}

func TestWrapError(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError("REST", ErrorTypeTransport, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connection refused", err.Message)
	assert.True(t, IsTransportError(fmt.Errorf("get order: %w", err)))
}

func TestErrorPredicates(t *testing.T) {
	transport := WrapError("REST", ErrorTypeTransport, errors.New("eof"))
	api := NewExchangeError("REST", ErrorTypeAPI, 400, "bad")
	html := NewExchangeError("REST", ErrorTypeNonJSON, 503, "<html>")
	stream := NewExchangeError("chat", ErrorTypeStream, 400, "bad")
	unroutable := WrapError("chat", ErrorTypeUnroutable, ErrUnroutable)

	assert.True(t, IsTransportError(transport))
	assert.False(t, IsTransportError(api))
	assert.False(t, IsTransportError(nil))

	assert.True(t, IsAPIError(api))
	assert.False(t, IsAPIError(html))

	assert.True(t, IsNonJSONError(html))
	assert.False(t, IsNonJSONError(api))

	assert.True(t, IsStreamError(stream))
	assert.False(t, IsStreamError(errors.New("plain")))

	assert.True(t, IsUnroutableError(unroutable))
	assert.ErrorIs(t, unroutable, ErrUnroutable)
}

func TestIsErrorCode(t *testing.T) {
	err := NewExchangeError("REST", ErrorTypeAPI, 400, "bad").WithCode(string(ErrCodeValidation))

	assert.True(t, IsErrorCode(err, ErrCodeValidation))
	assert.False(t, IsErrorCode(err, ErrCodeHTTP))
	assert.False(t, IsErrorCode(errors.New("plain"), ErrCodeValidation))
}
