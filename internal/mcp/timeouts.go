package mcp

import (
	"sync"
	"time"
)

// TimeoutConfig holds the process-wide default timeouts for provider
// operations. Individual servers may override any of them.
type TimeoutConfig struct {
	// Connect bounds the transport handshake.
	Connect time.Duration

	// Execute bounds one tool-call or list-tools RPC.
	Execute time.Duration

	// SSERead bounds RPCs issued over an SSE connection, where the
	// response arrives as a stream event.
	SSERead time.Duration
}

// DefaultTimeouts returns the published defaults: 10s / 60s / 120s.
func DefaultTimeouts() TimeoutConfig {
	return TimeoutConfig{
		Connect: 10 * time.Second,
		Execute: 60 * time.Second,
		SSERead: 120 * time.Second,
	}
}

var (
	timeoutsMu sync.RWMutex
	timeouts   = DefaultTimeouts()
)

// Timeouts returns the current process-wide timeout defaults.
//
// Values are read at the moment each operation starts; changing them later
// does not affect operations already in flight. Tests should snapshot the
// value and restore it when done.
func Timeouts() TimeoutConfig {
	timeoutsMu.RLock()
	defer timeoutsMu.RUnlock()
	return timeouts
}

// SetTimeouts replaces the process-wide timeout defaults. Zero fields keep
// their current value.
func SetTimeouts(tc TimeoutConfig) {
	timeoutsMu.Lock()
	defer timeoutsMu.Unlock()
	if tc.Connect > 0 {
		timeouts.Connect = tc.Connect
	}
	if tc.Execute > 0 {
		timeouts.Execute = tc.Execute
	}
	if tc.SSERead > 0 {
		timeouts.SSERead = tc.SSERead
	}
}
