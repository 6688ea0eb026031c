// Package llm provides the model client interface and its protocol variants.
package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kestrel-ai/kestrel/internal/errors"
	"github.com/kestrel-ai/kestrel/internal/retry"
	"github.com/kestrel-ai/kestrel/internal/schema"
)

// Provider selects the wire protocol a client speaks.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Client generates model responses from a uniform message history.
// Both protocol variants satisfy this contract; callers never branch on
// which one is active.
type Client interface {
	// Generate runs one model call over the conversation so far.
	Generate(ctx context.Context, messages []schema.Message, tools []schema.Tool) (*schema.LLMResponse, error)

	// Name returns the model identifier.
	Name() string
}

// Options configures a model client.
type Options struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	Retry       *retry.Policy
}

func (o *Options) withDefaults() Options {
	opts := *o
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultPolicy()
	}
	return opts
}

// New creates a client for the given provider. The variant is chosen at
// construction time; there is no runtime protocol inspection.
func New(provider Provider, opts Options) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(opts), nil
	case ProviderOpenAI:
		return NewOpenAIClient(opts), nil
	default:
		return nil, errors.User(errors.CodeConfigInvalid, fmt.Sprintf("unknown llm provider: %q", provider))
	}
}

// classifyStatus maps an HTTP error status to the retry taxonomy.
// 429 and 5xx are transient; other 4xx are permanent.
func classifyStatus(status int, body []byte) error {
	msg := fmt.Sprintf("API error (status %d): %s", status, string(body))
	switch {
	case status == http.StatusTooManyRequests:
		return errors.RateLimit(errors.CodeModelRateLimit, msg, 0)
	case status >= 500:
		return errors.Temporary(errors.CodeModelUnavailable, msg)
	default:
		return errors.Permanent(errors.CodeModelRequestFailed, msg)
	}
}

// drainBody reads a response body for error reporting, bounded to keep
// messages manageable.
func drainBody(r io.Reader) []byte {
	body, _ := io.ReadAll(io.LimitReader(r, 4096))
	return body
}
