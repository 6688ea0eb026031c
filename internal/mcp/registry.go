package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/kestrel-ai/kestrel/internal/schema"
)

// Registry owns every external tool-provider connection for one process and
// exposes their tools as schema.Tool values the agent can dispatch to.
type Registry struct {
	conns map[string]*ServerConnection
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*ServerConnection)}
}

// Load reads a server config file, connects to every enabled and valid
// entry, and returns the combined tool list. Entries that are disabled, fail
// validation, or fail to connect are skipped with a warning; one bad server
// never blocks the rest.
func (r *Registry) Load(ctx context.Context, path string) ([]schema.Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mcp config: %w", err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing mcp config %s: %w", path, err)
	}

	names := make([]string, 0, len(file.Servers))
	for name := range file.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var tools []schema.Tool
	for _, name := range names {
		cfg := file.Servers[name]

		// A reloaded name supersedes any connection from an earlier Load;
		// the old session would otherwise leak.
		if old, ok := r.conns[name]; ok {
			old.Disconnect()
			delete(r.conns, name)
		}

		if cfg.Disabled {
			slog.Info("mcp server disabled, skipping", "server", name)
			continue
		}

		transport := DetectTransport(cfg)
		if err := cfg.Validate(transport); err != nil {
			slog.Warn("mcp server config invalid, skipping", "server", name, "error", err)
			continue
		}

		conn := NewServerConnection(name, cfg)
		if !conn.Connect(ctx) {
			continue
		}

		listed, err := conn.ListTools(ctx)
		if err != nil {
			slog.Warn("mcp tool listing failed, skipping", "server", name, "error", err)
			conn.Disconnect()
			continue
		}

		r.conns[name] = conn
		for _, t := range listed {
			tools = append(tools, &proxyTool{
				conn:        conn,
				name:        t.Name,
				description: t.Description,
				params:      schemaToMap(t.InputSchema),
			})
		}
		slog.Info("mcp server connected", "server", name, "transport", transport, "tools", len(listed))
	}
	return tools, nil
}

// Connection returns the live connection for a server name, or nil.
func (r *Registry) Connection(name string) *ServerConnection {
	return r.conns[name]
}

// Cleanup disconnects every connection. Safe to call more than once.
func (r *Registry) Cleanup() {
	for name, conn := range r.conns {
		conn.Disconnect()
		delete(r.conns, name)
	}
}

// schemaToMap converts whatever schema type the SDK hands back into the
// plain map the model clients serialize.
func schemaToMap(s any) map[string]any {
	if s == nil {
		return map[string]any{"type": "object"}
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// proxyTool adapts one remote tool into the local Tool interface. Execution
// rides the owning connection, so calls against the same server serialize
// while calls against different servers run concurrently.
type proxyTool struct {
	conn        *ServerConnection
	name        string
	description string
	params      map[string]any
}

func (p *proxyTool) Name() string               { return p.name }
func (p *proxyTool) Description() string        { return p.description }
func (p *proxyTool) Parameters() map[string]any { return p.params }

func (p *proxyTool) Execute(ctx context.Context, args map[string]any) (*schema.ToolResult, error) {
	return p.conn.Execute(ctx, p.name, args)
}
