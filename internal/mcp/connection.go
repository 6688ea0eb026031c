package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/kestrel-ai/kestrel/internal/errors"
	"github.com/kestrel-ai/kestrel/internal/schema"
)

// State is a connection's lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ServerConnection is one physical connection to an external tool provider.
//
// A single stdio pipe or HTTP/SSE session cannot interleave in-flight
// request/response frames, so all RPCs on one connection are serialized by
// the connection's mutex. Distinct connections proceed independently.
type ServerConnection struct {
	name      string
	transport Transport
	cfg       ServerConfig

	mu      sync.Mutex // serializes connect/RPC/disconnect on the one transport
	session *sdk.ClientSession
	state   atomic.Int32
}

// NewServerConnection creates a connection for one config entry. The
// transport kind is inferred from the entry; no network or process activity
// happens until Connect.
func NewServerConnection(name string, cfg ServerConfig) *ServerConnection {
	return &ServerConnection{
		name:      name,
		transport: DetectTransport(cfg),
		cfg:       cfg,
	}
}

// Name returns the provider name from the config entry.
func (c *ServerConnection) Name() string { return c.name }

// Transport returns the inferred transport kind.
func (c *ServerConnection) Transport() Transport { return c.transport }

// State returns the current connection state.
func (c *ServerConnection) State() State { return State(c.state.Load()) }

func (c *ServerConnection) setState(s State) { c.state.Store(int32(s)) }

// Effective timeouts: per-server override if set, else the process-wide
// default read by value when the operation starts.
func (c *ServerConnection) connectTimeout() time.Duration {
	return secondsOr(c.cfg.ConnectTimeout, Timeouts().Connect)
}

func (c *ServerConnection) executeTimeout() time.Duration {
	defaults := Timeouts()
	execute := secondsOr(c.cfg.ExecuteTimeout, defaults.Execute)
	if c.transport == TransportSSE {
		// The response to an SSE RPC arrives as a stream event, so the read
		// bound applies on top of the execute bound.
		if read := secondsOr(c.cfg.SSEReadTimeout, defaults.SSERead); read < execute {
			return read
		}
	}
	return execute
}

// Connect performs the transport handshake, bounded by the connect timeout.
// It returns false on timeout or handshake failure so the caller can skip
// this server without aborting others.
func (c *ServerConnection) Connect(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return true
	}
	c.setState(StateConnecting)

	ctx, cancel := context.WithTimeout(ctx, c.connectTimeout())
	defer cancel()

	transport, err := c.buildTransport()
	if err != nil {
		c.setState(StateFailed)
		slog.Warn("mcp connect failed", "server", c.name, "error", err)
		return false
	}

	client := sdk.NewClient(&sdk.Implementation{Name: "kestrel", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		c.setState(StateFailed)
		slog.Warn("mcp connect failed", "server", c.name, "transport", c.transport, "error", err)
		return false
	}

	c.session = session
	c.setState(StateConnected)
	return true
}

func (c *ServerConnection) buildTransport() (sdk.Transport, error) {
	switch c.transport {
	case TransportStdio:
		cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
		cmd.Env = os.Environ()
		for k, v := range c.cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return &sdk.CommandTransport{Command: cmd}, nil

	case TransportSSE:
		return &sdk.SSEClientTransport{Endpoint: c.cfg.URL, HTTPClient: c.httpClient()}, nil

	case TransportHTTP, TransportStreamableHTTP:
		// Plain http providers speak the same streamable client protocol.
		return &sdk.StreamableClientTransport{Endpoint: c.cfg.URL, HTTPClient: c.httpClient()}, nil

	default:
		return nil, fmt.Errorf("unknown transport %q", c.transport)
	}
}

func (c *ServerConnection) httpClient() *http.Client {
	if len(c.cfg.Headers) == 0 {
		return http.DefaultClient
	}
	return &http.Client{
		Transport: &headerRoundTripper{
			headers: c.cfg.Headers,
			base:    http.DefaultTransport,
		},
	}
}

// ListTools fetches the provider's tool descriptions, bounded by the execute
// timeout.
func (c *ServerConnection) ListTools(ctx context.Context) ([]*sdk.Tool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, apperrors.New(apperrors.CodeProviderNotConnected,
			fmt.Sprintf("server %q is not connected", c.name), apperrors.CategoryPermanent)
	}

	ctx, cancel := context.WithTimeout(ctx, c.executeTimeout())
	defer cancel()

	res, err := c.session.ListTools(ctx, &sdk.ListToolsParams{})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderUnreachable,
			fmt.Sprintf("listing tools on %q failed", c.name), apperrors.CategoryTemporary)
	}
	return res.Tools, nil
}

// Execute runs one remote tool call, bounded by the execute timeout
// (SSE-read timeout for SSE connections). Timeouts and transport errors are
// reported as a failed ToolResult; the connection only transitions to failed
// when the transport itself is detected closed.
func (c *ServerConnection) Execute(ctx context.Context, tool string, args map[string]any) (*schema.ToolResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return schema.Fail(fmt.Sprintf("server %q is not connected", c.name)), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.executeTimeout())
	defer cancel()

	res, err := c.session.CallTool(ctx, &sdk.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.setState(StateFailed)
		}
		return schema.Fail(fmt.Sprintf("tool %q on server %q failed: %v", tool, c.name, err)), nil
	}

	text := flattenContent(res.Content)
	if res.IsError {
		return schema.Fail(text), nil
	}
	return schema.Ok(text), nil
}

// Disconnect releases the subprocess or HTTP/SSE session and moves the
// connection to disconnected. It is idempotent; calling it twice is a no-op.
func (c *ServerConnection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		if err := c.session.Close(); err != nil {
			slog.Debug("mcp disconnect", "server", c.name, "error", err)
		}
		c.session = nil
	}
	c.setState(StateDisconnected)
}

func flattenContent(content []sdk.Content) string {
	var out string
	for _, block := range content {
		if t, ok := block.(*sdk.TextContent); ok {
			out += t.Text
		}
	}
	return out
}

// headerRoundTripper injects configured headers into every request of a
// url-based transport.
type headerRoundTripper struct {
	headers map[string]string
	base    http.RoundTripper
}

func (rt *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for k, v := range rt.headers {
		clone.Header.Set(k, v)
	}
	return rt.base.RoundTrip(clone)
}
