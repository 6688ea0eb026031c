package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kestrel-ai/kestrel/internal/errors"
	"github.com/kestrel-ai/kestrel/internal/retry"
	"github.com/kestrel-ai/kestrel/internal/schema"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient implements Client over the OpenAI chat-completions protocol.
type OpenAIClient struct {
	opts   Options
	client *http.Client
}

// NewOpenAIClient creates a client for an OpenAI-compatible API.
func NewOpenAIClient(opts Options) *OpenAIClient {
	opts = opts.withDefaults()
	if opts.BaseURL == "" {
		opts.BaseURL = defaultOpenAIBaseURL
	}
	return &OpenAIClient{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// Name returns the model identifier.
func (c *OpenAIClient) Name() string {
	return c.opts.Model
}

// Generate sends the conversation and returns the parsed uniform response,
// retried per the bound retry policy.
func (c *OpenAIClient) Generate(ctx context.Context, messages []schema.Message, tools []schema.Tool) (*schema.LLMResponse, error) {
	payload, err := c.prepareRequest(messages, tools)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelRequestFailed, "failed to marshal request", errors.CategoryPermanent)
	}

	return retry.Do(ctx, c.opts.Retry, func() (*schema.LLMResponse, error) {
		return c.doRequest(ctx, payload)
	})
}

func (c *OpenAIClient) doRequest(ctx context.Context, payload []byte) (*schema.LLMResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelRequestFailed, "failed to create request", errors.CategoryPermanent)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeModelUnavailable, "request failed", errors.CategoryTemporary)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, drainBody(resp.Body))
	}

	var or openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&or); err != nil {
		return nil, errors.Wrap(err, errors.CodeModelInvalidResponse, "failed to parse response", errors.CategoryTemporary)
	}
	if len(or.Choices) == 0 {
		return nil, errors.Temporary(errors.CodeModelInvalidResponse, "no choices in response")
	}

	return or.toUniform(), nil
}

// prepareRequest translates the uniform message list into the chat-completions
// wire shape. Tool arguments travel as JSON strings in this protocol.
func (c *OpenAIClient) prepareRequest(messages []schema.Message, tools []schema.Tool) ([]byte, error) {
	req := openaiRequest{
		Model:    c.opts.Model,
		Messages: convertOpenAIMessages(messages),
	}
	if c.opts.MaxTokens > 0 {
		req.MaxTokens = c.opts.MaxTokens
	}
	if c.opts.Temperature > 0 {
		req.Temperature = c.opts.Temperature
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, schema.OpenAISchema(t))
	}

	return json.Marshal(req)
}

func convertOpenAIMessages(messages []schema.Message) []openaiMessage {
	out := make([]openaiMessage, 0, len(messages))

	for _, m := range messages {
		converted := openaiMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == schema.RoleTool {
			converted.ToolCallID = m.ToolCallID
			converted.Name = m.Name
		}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			converted.ToolCalls = append(converted.ToolCalls, openaiToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openaiFunction{
					Name:      tc.Function.Name,
					Arguments: string(args),
				},
			})
		}
		out = append(out, converted)
	}

	return out
}

// ============================================================
// OpenAI API Types
// ============================================================

type openaiRequest struct {
	Model       string           `json:"model"`
	Messages    []openaiMessage  `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openaiToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role             string           `json:"role"`
			Content          string           `json:"content"`
			ReasoningContent string           `json:"reasoning_content"`
			ToolCalls        []openaiToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// toUniform parses the first choice back into the uniform response.
func (r *openaiResponse) toUniform() *schema.LLMResponse {
	choice := r.Choices[0]

	out := &schema.LLMResponse{
		Content:      choice.Message.Content,
		Thinking:     choice.Message.ReasoningContent,
		FinishReason: normalizeOpenAIFinish(choice.FinishReason),
		Usage: &schema.TokenUsage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		},
	}

	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			// Some models emit malformed argument JSON; dispatch still needs
			// a call entry so the failure reaches the model as a tool result.
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		out.ToolCalls = append(out.ToolCalls, schema.ToolCall{
			ID:   id,
			Type: "function",
			Function: schema.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: args,
			},
		})
	}

	return out
}

func normalizeOpenAIFinish(reason string) string {
	switch reason {
	case "stop":
		return schema.FinishStop
	case "tool_calls", "function_call":
		return schema.FinishToolUse
	case "length":
		return schema.FinishLength
	case "content_filter":
		return schema.FinishRefusal
	default:
		return reason
	}
}
