// Package agent implements the step loop that drives a model conversation:
// generate, dispatch tool calls, feed results back, repeat until the model
// finishes, the caller cancels, or the step limit is reached.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kestrel-ai/kestrel/internal/llm"
	"github.com/kestrel-ai/kestrel/internal/schema"
	"github.com/kestrel-ai/kestrel/internal/stats"
)

// Status is the terminal outcome of one Run.
type Status string

const (
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
	StatusStepLimit Status = "step_limit"
)

// Result is what a finished run hands back to the caller. Content carries
// the final assistant text; on a step-limit stop it is the last assistant
// content produced, a partial answer rather than nothing.
type Result struct {
	Status  Status
	Content string
	Steps   int
}

const defaultMaxSteps = 20

// Config configures an Agent.
type Config struct {
	Client       llm.Client
	Tools        []schema.Tool
	SystemPrompt string
	MaxSteps     int
}

// Agent owns one conversation: the message history, the tool set, and the
// cancel flag. It is driven by a single goroutine calling Run; Cancel may be
// called from any goroutine.
type Agent struct {
	client    llm.Client
	tools     map[string]schema.Tool
	history   []schema.Message
	maxSteps  int
	cancelled atomic.Bool
	stats     *stats.Collector
}

// New creates an agent. A zero MaxSteps falls back to the default bound.
func New(cfg *Config) *Agent {
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	a := &Agent{
		client:   cfg.Client,
		tools:    make(map[string]schema.Tool, len(cfg.Tools)),
		maxSteps: maxSteps,
		stats:    stats.NewCollector(),
	}
	for _, t := range cfg.Tools {
		a.tools[t.Name()] = t
	}
	if cfg.SystemPrompt != "" {
		a.history = append(a.history, schema.Message{
			Role:    schema.RoleSystem,
			Content: cfg.SystemPrompt,
		})
	}
	return a
}

// LoadHistory appends a previously stored conversation, used when resuming
// a session.
func (a *Agent) LoadHistory(msgs []schema.Message) {
	a.history = append(a.history, msgs...)
}

// AddUserMessage appends a user turn to the history.
func (a *Agent) AddUserMessage(content string) {
	a.history = append(a.history, schema.Message{
		Role:    schema.RoleUser,
		Content: content,
	})
}

// History returns the conversation so far.
func (a *Agent) History() []schema.Message {
	return a.history
}

// Usage returns the run's usage counters so far.
func (a *Agent) Usage() stats.Usage {
	return a.stats.Snapshot()
}

// Cancel requests a cooperative stop. The flag is checked at the top of each
// step, so an in-flight model call or tool batch always completes first.
func (a *Agent) Cancel() {
	a.cancelled.Store(true)
}

// Run executes the step loop until the model stops requesting tools, the
// agent is cancelled, or the step limit is reached. Tool failures never end
// the run; they flow back to the model as failed results.
func (a *Agent) Run(ctx context.Context) (*Result, error) {
	var lastContent string

	for step := 0; step < a.maxSteps; step++ {
		if a.cancelled.Load() {
			slog.Info("agent cancelled", "steps", step)
			return &Result{Status: StatusCancelled, Content: lastContent, Steps: step}, nil
		}

		resp, err := a.client.Generate(ctx, a.history, a.toolList())
		if err != nil {
			return nil, fmt.Errorf("model call failed at step %d: %w", step+1, err)
		}
		a.stats.RecordModelCall(resp.Usage)

		a.history = append(a.history, schema.Message{
			Role:      schema.RoleAssistant,
			Content:   resp.Content,
			Thinking:  resp.Thinking,
			ToolCalls: resp.ToolCalls,
		})
		if resp.Content != "" {
			lastContent = resp.Content
		}

		if !resp.HasToolCalls() {
			return &Result{Status: StatusDone, Content: resp.Content, Steps: step + 1}, nil
		}

		for _, msg := range a.dispatch(ctx, resp.ToolCalls) {
			a.history = append(a.history, msg)
		}
	}

	slog.Info("agent hit step limit", "max_steps", a.maxSteps)
	return &Result{Status: StatusStepLimit, Content: lastContent, Steps: a.maxSteps}, nil
}

// dispatch executes a batch of tool calls concurrently and returns the tool
// messages in the order the model issued the calls.
func (a *Agent) dispatch(ctx context.Context, calls []schema.ToolCall) []schema.Message {
	results := make([]*schema.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call schema.ToolCall) {
			defer wg.Done()
			results[i] = a.executeCall(ctx, call)
			a.stats.RecordToolCall(!results[i].Success)
		}(i, call)
	}
	wg.Wait()

	msgs := make([]schema.Message, len(calls))
	for i, call := range calls {
		msgs[i] = schema.Message{
			Role:       schema.RoleTool,
			Content:    results[i].Text(),
			ToolCallID: call.ID,
			Name:       call.Function.Name,
		}
	}
	return msgs
}

// executeCall runs one tool call, converting every failure mode into a
// failed result: unknown tools, returned errors, and panics alike.
func (a *Agent) executeCall(ctx context.Context, call schema.ToolCall) (result *schema.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool panicked", "tool", call.Function.Name, "panic", r)
			result = schema.Fail(fmt.Sprintf("tool %q panicked: %v", call.Function.Name, r))
		}
	}()

	tool, ok := a.tools[call.Function.Name]
	if !ok {
		return schema.Fail(fmt.Sprintf("unknown tool %q", call.Function.Name))
	}

	res, err := tool.Execute(ctx, call.Function.Arguments)
	if err != nil {
		return schema.Fail(fmt.Sprintf("tool %q failed: %v", call.Function.Name, err))
	}
	return res
}

// toolList returns the tool set sorted by name so every request advertises
// the schemas in the same order.
func (a *Agent) toolList() []schema.Tool {
	out := make([]schema.Tool, 0, len(a.tools))
	for _, t := range a.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
