package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/kestrel-ai/kestrel/internal/errors"
	"github.com/kestrel-ai/kestrel/internal/retry"
	"github.com/kestrel-ai/kestrel/internal/schema"
)

const defaultAnthropicBaseURL = "https://api.anthropic.com"

// AnthropicClient implements Client over the Anthropic messages protocol.
type AnthropicClient struct {
	opts   Options
	client *http.Client
}

// NewAnthropicClient creates a client for the Anthropic messages API.
func NewAnthropicClient(opts Options) *AnthropicClient {
	opts = opts.withDefaults()
	if opts.BaseURL == "" {
		opts.BaseURL = defaultAnthropicBaseURL
	}
	return &AnthropicClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// Name returns the model identifier.
func (c *AnthropicClient) Name() string {
	return c.opts.Model
}

// Generate sends the conversation and returns the parsed uniform response,
// retried per the bound retry policy.
func (c *AnthropicClient) Generate(ctx context.Context, messages []schema.Message, tools []schema.Tool) (*schema.LLMResponse, error) {
	payload, err := c.prepareRequest(messages, tools)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelRequestFailed, "failed to marshal request", errors.CategoryPermanent)
	}

	return retry.Do(ctx, c.opts.Retry, func() (*schema.LLMResponse, error) {
		return c.doRequest(ctx, payload)
	})
}

func (c *AnthropicClient) doRequest(ctx context.Context, payload []byte) (*schema.LLMResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelRequestFailed, "failed to create request", errors.CategoryPermanent)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.opts.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelUnavailable, "request failed", errors.CategoryTemporary)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, drainBody(resp.Body))
	}

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, errors.Wrap(err, errors.CodeModelInvalidResponse, "failed to parse response", errors.CategoryTemporary)
	}

	return ar.toUniform(), nil
}

// prepareRequest translates the uniform message list into the Anthropic wire
// shape. System messages move into the top-level system field; tool-role
// messages become user messages carrying tool_result blocks.
func (c *AnthropicClient) prepareRequest(messages []schema.Message, tools []schema.Tool) ([]byte, error) {
	system, converted := convertAnthropicMessages(messages)

	req := anthropicRequest{
		Model:     c.opts.Model,
		MaxTokens: c.opts.MaxTokens,
		System:    system,
		Messages:  converted,
	}
	if c.opts.Temperature > 0 {
		req.Temperature = c.opts.Temperature
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, schema.AnthropicSchema(t))
	}

	return json.Marshal(req)
}

func convertAnthropicMessages(messages []schema.Message) (string, []anthropicMessage) {
	var system string
	var out []anthropicMessage

	for _, m := range messages {
		switch m.Role {
		case schema.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content

		case schema.RoleUser:
			out = append(out, anthropicMessage{
				Role:    "user",
				Content: []map[string]any{{"type": "text", "text": m.Content}},
			})

		case schema.RoleAssistant:
			var blocks []map[string]any
			if m.Content != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := tc.Function.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Function.Name,
					"input": input,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropicMessage{Role: "assistant", Content: blocks})

		case schema.RoleTool:
			out = append(out, anthropicMessage{
				Role: "user",
				Content: []map[string]any{{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     m.Content,
				}},
			})
		}
	}

	return system, out
}

// ============================================================
// Anthropic API Types
// ============================================================

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []map[string]any   `json:"tools,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []map[string]any `json:"content"`
}

type anthropicResponse struct {
	ID         string           `json:"id"`
	Model      string           `json:"model"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicBlock struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	Thinking string         `json:"thinking,omitempty"`
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
}

// toUniform parses the provider content blocks back into the uniform response.
func (r *anthropicResponse) toUniform() *schema.LLMResponse {
	out := &schema.LLMResponse{
		FinishReason: normalizeAnthropicStop(r.StopReason),
		Usage: &schema.TokenUsage{
			PromptTokens:     r.Usage.InputTokens,
			CompletionTokens: r.Usage.OutputTokens,
			TotalTokens:      r.Usage.InputTokens + r.Usage.OutputTokens,
		},
	}

	for _, block := range r.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "thinking":
			out.Thinking += block.Thinking
		case "tool_use":
			args := block.Input
			if args == nil {
				args = map[string]any{}
			}
			out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
				ID:   block.ID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      block.Name,
					Arguments: args,
				},
			})
		}
	}

	return out
}

func normalizeAnthropicStop(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return schema.FinishStop
	case "tool_use":
		return schema.FinishToolUse
	case "max_tokens":
		return schema.FinishLength
	case "refusal":
		return schema.FinishRefusal
	default:
		return reason
	}
}
