package bitmex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/bytedance/sonic"

	httpclient "tradedesk/internal/http"
	"tradedesk/internal/keyring"
	"tradedesk/pkg/core"
)

// Result is a successful REST response.
type Result struct {
	StatusCode int
	Body       []byte
	// Header carries the rate-limit counters among others.
	Header http.Header
	// Data is the body decoded into generic JSON values.
	Data any
}

// Unmarshal decodes the body into v.
func (r *Result) Unmarshal(v any) error {
	return sonic.Unmarshal(r.Body, v)
}

type apiErrorBody struct {
	Error json.RawMessage `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Name    string `json:"name"`
}

func (a *Account) request(ctx context.Context, method, path string, body any) (*Result, error) {
	payload, err := encodeBody(body)
	if err != nil {
		return nil, a.restFailed(core.WrapError(SourceREST, core.ErrorTypeDecode, err))
	}

	fullPath := core.APIPrefix + strings.TrimPrefix(path, "/")
	var headers map[string]string
	if a.key.CanSign() {
		expires := keyring.Expires(a.registry.now(), a.registry.config.SignatureTTL)
		headers = a.key.Headers(method, fullPath, expires, string(payload))
	}

	resp, err := a.registry.rest.Do(ctx, &httpclient.Request{
		Method:  method,
		Path:    fullPath,
		Body:    payload,
		Headers: headers,
	})
	if err != nil {
		return nil, a.restFailed(core.WrapError(SourceREST, core.ErrorTypeTransport, err))
	}

	result, exErr := parseResponse(resp)
	if exErr != nil {
		return nil, a.restFailed(exErr)
	}

	a.logger.Debug().
		Str("method", method).
		Str("path", fullPath).
		Int("status", resp.StatusCode).
		Msg("rest call succeeded")
	a.restEvent(Event{Type: EventMessage, Result: result})
	return result, nil
}

func (a *Account) restFailed(exErr *core.ExchangeError) error {
	a.logger.Error().Err(exErr).Msg("rest call failed")
	a.restEvent(Event{Type: EventError, Err: exErr})
	return exErr
}

func (a *Account) restEvent(ev Event) {
	ev.Account = a
	ev.Source = SourceREST
	a.events.emit(ev)
	a.registry.events.emit(ev)
}

// encodeBody returns the exact bytes to send and sign. Byte slices and
// strings pass through; any other slice is wrapped as {"orders": body}.
func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	}

	if kind := reflect.TypeOf(body).Kind(); kind == reflect.Slice || kind == reflect.Array {
		body = map[string]any{"orders": body}
	}
	data, err := sonic.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}
	return data, nil
}

func parseResponse(resp *httpclient.Response) (*Result, *core.ExchangeError) {
	trimmed := bytes.TrimSpace(resp.Body)
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return nil, core.NewExchangeError(SourceREST, core.ErrorTypeNonJSON, resp.StatusCode, string(resp.Body)).
			WithRaw(string(resp.Body))
	}

	result := &Result{StatusCode: resp.StatusCode, Body: resp.Body, Header: resp.Header}
	if len(trimmed) == 0 {
		if !resp.IsSuccess() {
			return nil, core.NewExchangeError(SourceREST, core.ErrorTypeAPI, resp.StatusCode, http.StatusText(resp.StatusCode)).
				WithCode(string(statusErrorCode(resp.StatusCode)))
		}
		return result, nil
	}

	if err := sonic.Unmarshal(trimmed, &result.Data); err != nil {
		exErr := core.WrapError(SourceREST, core.ErrorTypeNonJSON, err).WithRaw(string(resp.Body))
		exErr.StatusCode = resp.StatusCode
		return nil, exErr
	}

	if obj, ok := result.Data.(map[string]any); ok {
		if e, hasError := obj["error"]; hasError && e != nil {
			return nil, apiError(resp, trimmed, result.Data)
		}
	}
	return result, nil
}

func apiError(resp *httpclient.Response, body []byte, data any) *core.ExchangeError {
	var envelope apiErrorBody
	_ = sonic.Unmarshal(body, &envelope)

	var detail apiErrorDetail
	if err := sonic.Unmarshal(envelope.Error, &detail); err != nil {
		var message string
		if sonic.Unmarshal(envelope.Error, &message) == nil {
			detail.Message = message
		} else {
			detail.Message = string(envelope.Error)
		}
	}

	code := detail.Name
	if code == "" {
		code = string(statusErrorCode(resp.StatusCode))
	}
	return core.NewExchangeError(SourceREST, core.ErrorTypeAPI, resp.StatusCode, detail.Message).
		WithCode(code).
		WithRaw(data)
}

// statusErrorCode names an error the exchange left unnamed.
func statusErrorCode(status int) core.ErrorCode {
	switch status {
	case http.StatusNotFound:
		return core.ErrCodeNotFound
	case http.StatusTooManyRequests:
		return core.ErrCodeRateLimit
	default:
		return core.ErrCodeHTTP
	}
}
