package mcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectTransport(t *testing.T) {
	cases := []struct {
		name string
		cfg  ServerConfig
		want Transport
	}{
		{"command only", ServerConfig{Command: "npx"}, TransportStdio},
		{"explicit stdio", ServerConfig{Type: "stdio", Command: "uvx"}, TransportStdio},
		{"url only", ServerConfig{URL: "https://example.com/mcp"}, TransportStreamableHTTP},
		{"explicit sse", ServerConfig{Type: "sse", URL: "https://example.com/sse"}, TransportSSE},
		{"case insensitive", ServerConfig{Type: "SSE", URL: "https://example.com/sse"}, TransportSSE},
		{"explicit http", ServerConfig{Type: "http", URL: "https://example.com/mcp"}, TransportHTTP},
		{"explicit streamable", ServerConfig{Type: "streamable_http", URL: "https://example.com/mcp"}, TransportStreamableHTTP},
		{"unknown type with url", ServerConfig{Type: "websocket", URL: "https://example.com"}, TransportStreamableHTTP},
		{"url beats command", ServerConfig{Command: "npx", URL: "https://example.com"}, TransportStreamableHTTP},
		{"empty entry", ServerConfig{}, TransportStdio},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectTransport(tc.cfg))
		})
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name      string
		cfg       ServerConfig
		transport Transport
		ok        bool
	}{
		{"stdio with command", ServerConfig{Command: "npx"}, TransportStdio, true},
		{"stdio without command", ServerConfig{}, TransportStdio, false},
		{"sse with url", ServerConfig{URL: "https://x/sse"}, TransportSSE, true},
		{"sse without url", ServerConfig{Type: "sse"}, TransportSSE, false},
		{"http without url", ServerConfig{Type: "http"}, TransportHTTP, false},
		{"streamable with url", ServerConfig{URL: "https://x/mcp"}, TransportStreamableHTTP, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate(tc.transport)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDefaultTimeouts(t *testing.T) {
	tc := DefaultTimeouts()
	assert.Equal(t, 10*time.Second, tc.Connect)
	assert.Equal(t, 60*time.Second, tc.Execute)
	assert.Equal(t, 120*time.Second, tc.SSERead)
}

func TestSetTimeouts(t *testing.T) {
	saved := Timeouts()
	defer SetTimeouts(saved)

	SetTimeouts(TimeoutConfig{Execute: 5 * time.Second})

	got := Timeouts()
	assert.Equal(t, saved.Connect, got.Connect, "zero field keeps current value")
	assert.Equal(t, 5*time.Second, got.Execute)
	assert.Equal(t, saved.SSERead, got.SSERead)
}

func TestPerServerTimeoutOverrides(t *testing.T) {
	saved := Timeouts()
	defer SetTimeouts(saved)
	SetTimeouts(DefaultTimeouts())

	conn := NewServerConnection("a", ServerConfig{Command: "npx", ConnectTimeout: 2.5})
	assert.Equal(t, 2500*time.Millisecond, conn.connectTimeout())
	assert.Equal(t, 60*time.Second, conn.executeTimeout(), "no override falls back to defaults")

	sse := NewServerConnection("b", ServerConfig{Type: "sse", URL: "https://x/sse", SSEReadTimeout: 30})
	require.Equal(t, TransportSSE, sse.Transport())
	assert.Equal(t, 30*time.Second, sse.executeTimeout(), "tighter read bound wins on sse")

	slowRead := NewServerConnection("c", ServerConfig{Type: "sse", URL: "https://x/sse", ExecuteTimeout: 15, SSEReadTimeout: 300})
	assert.Equal(t, 15*time.Second, slowRead.executeTimeout(), "execute bound still applies on sse")
}
