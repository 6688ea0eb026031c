// Package stats tracks per-run usage counters.
package stats

import (
	"sync"
	"time"

	"github.com/kestrel-ai/kestrel/internal/schema"
)

// Collector accumulates usage across one agent run. All methods are safe for
// concurrent use; tool calls report from dispatch goroutines.
type Collector struct {
	mu        sync.Mutex
	startTime time.Time

	modelCalls       int
	promptTokens     int
	completionTokens int
	toolCalls        int
	toolFailures     int
}

// NewCollector starts a collector with the clock running.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordModelCall counts one generate call and its reported token usage.
func (c *Collector) RecordModelCall(usage *schema.TokenUsage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modelCalls++
	if usage != nil {
		c.promptTokens += usage.PromptTokens
		c.completionTokens += usage.CompletionTokens
	}
}

// RecordToolCall counts one tool execution and whether it failed.
func (c *Collector) RecordToolCall(failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolCalls++
	if failed {
		c.toolFailures++
	}
}

// Usage is a point-in-time snapshot of a run's counters.
type Usage struct {
	ModelCalls       int           `json:"model_calls"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	ToolCalls        int           `json:"tool_calls"`
	ToolFailures     int           `json:"tool_failures"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Usage{
		ModelCalls:       c.modelCalls,
		PromptTokens:     c.promptTokens,
		CompletionTokens: c.completionTokens,
		TotalTokens:      c.promptTokens + c.completionTokens,
		ToolCalls:        c.toolCalls,
		ToolFailures:     c.toolFailures,
		Elapsed:          time.Since(c.startTime),
	}
}
