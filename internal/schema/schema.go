// Package schema defines the uniform conversation and tool types shared by
// the agent loop, model clients and tool providers.
package schema

import "context"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// FunctionCall holds the name and decoded arguments of a requested invocation.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCall is one model-requested tool invocation. ID is unique within the
// response that produced it.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// Message is one turn in a conversation. Messages are immutable once appended
// to a history. Tool-role messages carry the ToolCallID of the assistant
// tool call they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Thinking   string     `json:"thinking,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// TokenUsage holds token counters reported by a provider.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Finish reasons normalized across providers.
const (
	FinishStop    = "stop"
	FinishToolUse = "tool_use"
	FinishLength  = "length"
	FinishRefusal = "refusal"
)

// LLMResponse is the uniform model output for one generate call.
type LLMResponse struct {
	Content      string      `json:"content"`
	Thinking     string      `json:"thinking,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// HasToolCalls reports whether the response requests any tool invocations.
func (r *LLMResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ok creates a successful result.
func Ok(content string) *ToolResult {
	return &ToolResult{Success: true, Content: content}
}

// Fail creates a failed result with the given error text.
func Fail(errText string) *ToolResult {
	return &ToolResult{Success: false, Error: errText}
}

// Text returns the result as text for feeding back to the model.
func (r *ToolResult) Text() string {
	if r.Success {
		return r.Content
	}
	return "Error: " + r.Error
}

// Tool is a named capability invocable by the model.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns what the tool does.
	Description() string

	// Parameters returns the tool's JSON Schema parameter object.
	Parameters() map[string]any

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]any) (*ToolResult, error)
}

// AnthropicSchema exports a tool description in the Anthropic tool-use shape:
// {name, description, input_schema}.
func AnthropicSchema(t Tool) map[string]any {
	return map[string]any{
		"name":         t.Name(),
		"description":  t.Description(),
		"input_schema": t.Parameters(),
	}
}

// OpenAISchema exports a tool description in the OpenAI function-calling shape:
// {type: "function", function: {name, description, parameters}}.
//
// Both shapes serialize the identical name, description and parameter schema;
// providers are interchangeable because of this.
func OpenAISchema(t Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"parameters":  t.Parameters(),
		},
	}
}
