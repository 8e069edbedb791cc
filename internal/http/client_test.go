package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(&Config{BaseURL: url, Timeout: 2 * time.Second}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClient_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{"missing_base_url", &Config{Timeout: time.Second}},
		{"bad_base_url", &Config{BaseURL: "nope", Timeout: time.Second}},
		{"zero_timeout", &Config{BaseURL: "https://www.bitmex.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.config, zerolog.Nop())
			assert.Error(t, err)
		})
	}
}

func TestClient_Do_SendsBodyAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/order", r.URL.Path)
		assert.Equal(t, "K", r.Header.Get("api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"symbol":"XBTUSD"}`, string(body))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"orderID":"1"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.Do(context.Background(), &Request{
		Method:  "POST",
		Path:    "/api/v1/order",
		Body:    []byte(`{"symbol":"XBTUSD"}`),
		Headers: map[string]string{"api-key": "K"},
	})

	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, `{"orderID":"1"}`, string(resp.Body))
}

func TestClient_Do_NoRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`<html>down</html>`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	resp, err := client.Do(context.Background(), &Request{Method: "GET", Path: "/api/v1/instrument"})

	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
	assert.False(t, resp.IsSuccess())
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Do_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, url)
	_, err := client.Do(context.Background(), &Request{Method: "GET", Path: "/api/v1/instrument"})
	assert.Error(t, err)
}

func TestClient_Closed(t *testing.T) {
	client := newTestClient(t, "https://www.bitmex.com")
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err := client.Do(context.Background(), &Request{Method: "GET", Path: "/api/v1/instrument"})
	assert.Error(t, err)
}
