package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kestrel-ai/kestrel/internal/errors"
	"github.com/kestrel-ai/kestrel/internal/retry"
	"github.com/kestrel-ai/kestrel/internal/schema"
)

func fastRetry(maxRetries int) *retry.Policy {
	return &retry.Policy{
		Enabled:         true,
		MaxRetries:      maxRetries,
		InitialDelay:    time.Millisecond,
		MaxDelay:        5 * time.Millisecond,
		ExponentialBase: 2.0,
		RetryIf:         apperrors.IsRetryable,
	}
}

type calcTool struct{}

func (calcTool) Name() string        { return "calculator" }
func (calcTool) Description() string { return "Evaluate an arithmetic expression" }
func (calcTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{"type": "string"},
		},
		"required": []string{"expression"},
	}
}
func (calcTool) Execute(ctx context.Context, args map[string]any) (*schema.ToolResult, error) {
	return schema.Ok("42"), nil
}

func sampleHistory() []schema.Message {
	return []schema.Message{
		{Role: schema.RoleSystem, Content: "You are a helpful assistant."},
		{Role: schema.RoleUser, Content: "What is 6*7?"},
		{
			Role: schema.RoleAssistant,
			ToolCalls: []schema.ToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: schema.FunctionCall{
					Name:      "calculator",
					Arguments: map[string]any{"expression": "6*7"},
				},
			}},
		},
		{Role: schema.RoleTool, Content: "42", ToolCallID: "call_1", Name: "calculator"},
	}
}

// ============================================================
// Anthropic variant
// ============================================================

func TestAnthropicRequestTranslation(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "42"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(Options{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "claude-test",
		Retry:   fastRetry(0),
	})

	resp, err := client.Generate(context.Background(), sampleHistory(), []schema.Tool{calcTool{}})
	require.NoError(t, err)

	// System message moved to the top-level system field.
	assert.Equal(t, "You are a helpful assistant.", captured["system"])

	// Tool-role messages become user messages with tool_result blocks.
	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 3)
	last := msgs[2].(map[string]any)
	assert.Equal(t, "user", last["role"])
	block := last["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", block["type"])
	assert.Equal(t, "call_1", block["tool_use_id"])

	// Tools advertised in Shape A.
	tools := captured["tools"].([]any)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "calculator", tool["name"])
	assert.Contains(t, tool, "input_schema")

	assert.Equal(t, "42", resp.Content)
	assert.Equal(t, schema.FinishStop, resp.FinishReason)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestAnthropicToolUseParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [
				{"type": "thinking", "thinking": "need the calculator"},
				{"type": "text", "text": "Let me compute that."},
				{"type": "tool_use", "id": "toolu_1", "name": "calculator", "input": {"expression": "6*7"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 5, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "claude-test", Retry: fastRetry(0)})

	resp, err := client.Generate(context.Background(), sampleHistory(), nil)
	require.NoError(t, err)

	assert.Equal(t, schema.FinishToolUse, resp.FinishReason)
	assert.Equal(t, "need the calculator", resp.Thinking)
	assert.Equal(t, "Let me compute that.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "calculator", resp.ToolCalls[0].Function.Name)
	assert.Equal(t, "6*7", resp.ToolCalls[0].Function.Arguments["expression"])
}

// ============================================================
// OpenAI variant
// ============================================================

func TestOpenAIRequestTranslation(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "42"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 2, "total_tokens": 12}
		}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(Options{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gpt-test",
		Retry:   fastRetry(0),
	})

	resp, err := client.Generate(context.Background(), sampleHistory(), []schema.Tool{calcTool{}})
	require.NoError(t, err)

	msgs := captured["messages"].([]any)
	require.Len(t, msgs, 4)

	// Assistant tool calls carry JSON-string arguments.
	assistant := msgs[2].(map[string]any)
	calls := assistant["tool_calls"].([]any)
	require.Len(t, calls, 1)
	fn := calls[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "calculator", fn["name"])
	assert.JSONEq(t, `{"expression": "6*7"}`, fn["arguments"].(string))

	// Tool messages keep their tool_call_id.
	toolMsg := msgs[3].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])

	// Tools advertised in Shape B.
	tools := captured["tools"].([]any)
	require.Len(t, tools, 1)
	wrapper := tools[0].(map[string]any)
	assert.Equal(t, "function", wrapper["type"])
	assert.Equal(t, "calculator", wrapper["function"].(map[string]any)["name"])

	assert.Equal(t, "42", resp.Content)
	assert.Equal(t, schema.FinishStop, resp.FinishReason)
}

func TestOpenAIToolCallParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": "",
					"reasoning_content": "use the calculator",
					"tool_calls": [{
						"id": "call_abc",
						"type": "function",
						"function": {"name": "calculator", "arguments": "{\"expression\": \"6*7\"}"}
					}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
		}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "gpt-test", Retry: fastRetry(0)})

	resp, err := client.Generate(context.Background(), sampleHistory(), nil)
	require.NoError(t, err)

	assert.Equal(t, schema.FinishToolUse, resp.FinishReason)
	assert.Equal(t, "use the calculator", resp.Thinking)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_abc", resp.ToolCalls[0].ID)
	assert.Equal(t, "6*7", resp.ToolCalls[0].Function.Arguments["expression"])
}

// ============================================================
// Retry boundary
// ============================================================

func TestGenerateRetriesTransientErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2}
		}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "gpt-test", Retry: fastRetry(3)})

	resp, err := client.Generate(context.Background(), sampleHistory(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, hits)
}

func TestGenerateExhaustsRetries(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewOpenAIClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "gpt-test", Retry: fastRetry(2)})

	_, err := client.Generate(context.Background(), sampleHistory(), nil)
	require.Error(t, err)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, hits)
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewAnthropicClient(Options{APIKey: "k", BaseURL: srv.URL, Model: "claude-test", Retry: fastRetry(3)})

	_, err := client.Generate(context.Background(), sampleHistory(), nil)
	require.Error(t, err)
	assert.Equal(t, 1, hits)

	var exhausted *retry.ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
	assert.Equal(t, apperrors.CategoryPermanent, apperrors.GetCategory(err))
}

func TestNewSelectsVariant(t *testing.T) {
	a, err := New(ProviderAnthropic, Options{Model: "claude-test"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, a)

	o, err := New(ProviderOpenAI, Options{Model: "gpt-test"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, o)

	_, err = New(Provider("cohere"), Options{})
	require.Error(t, err)
}
