// Package mcp manages connections to external MCP tool providers over stdio,
// SSE and streamable HTTP, and exposes their tools as local schema.Tool values.
package mcp

import (
	"fmt"
	"strings"
	"time"
)

// Transport is the wire mechanism used to reach a tool provider.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportSSE            Transport = "sse"
	TransportHTTP           Transport = "http"
	TransportStreamableHTTP Transport = "streamable_http"
)

// ServerConfig is one provider entry in the MCP config file. Exactly one
// transport family applies: stdio entries use command/args/env, url-based
// entries use url/headers.
type ServerConfig struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	Type     string `json:"type,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`

	// Per-server timeout overrides in seconds; zero means use the
	// process-wide defaults.
	ConnectTimeout float64 `json:"connect_timeout,omitempty"`
	ExecuteTimeout float64 `json:"execute_timeout,omitempty"`
	SSEReadTimeout float64 `json:"sse_read_timeout,omitempty"`
}

// ConfigFile is the on-disk MCP configuration shape: a mapping from provider
// name to connection settings.
type ConfigFile struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// DetectTransport infers the transport kind for a config entry:
//
//  1. an explicit type is used verbatim (case-insensitive)
//  2. a command with no url defaults to stdio
//  3. a url defaults to streamable_http
//  4. otherwise stdio, which fails validation later
func DetectTransport(cfg ServerConfig) Transport {
	switch strings.ToLower(cfg.Type) {
	case "stdio":
		return TransportStdio
	case "sse":
		return TransportSSE
	case "http":
		return TransportHTTP
	case "streamable_http":
		return TransportStreamableHTTP
	}

	if cfg.Command != "" && cfg.URL == "" {
		return TransportStdio
	}
	if cfg.URL != "" {
		return TransportStreamableHTTP
	}
	return TransportStdio
}

// Validate checks that the config entry carries the fields its transport
// needs. Invalid entries are skipped before any connect attempt.
func (c ServerConfig) Validate(transport Transport) error {
	switch transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("stdio server requires a command")
		}
	case TransportSSE, TransportHTTP, TransportStreamableHTTP:
		if c.URL == "" {
			return fmt.Errorf("%s server requires a url", transport)
		}
	default:
		return fmt.Errorf("unknown transport %q", transport)
	}
	return nil
}

// secondsOr converts a float seconds override to a duration, falling back
// when the override is unset.
func secondsOr(override float64, fallback time.Duration) time.Duration {
	if override > 0 {
		return time.Duration(override * float64(time.Second))
	}
	return fallback
}
