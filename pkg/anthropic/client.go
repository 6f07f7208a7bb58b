// Package anthropic wraps the Messages API behind a small interface so the
// drafting and profile code can be tested without the network.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"github.com/coldreach/coldreach/internal/resilience"
)

// statusOverloaded is returned by the API when capacity is exhausted.
const statusOverloaded = 529

// Client defines the Anthropic API operations used by coldreach.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest is a single-turn or multi-turn message call.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64
}

// SystemBlock is a system prompt block, optionally a cache breakpoint.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl configures prompt caching. TTL is "5m" or "1h".
type CacheControl struct {
	TTL string
}

// Message is one conversational turn. Role is "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// MessageResponse is the subset of the API response coldreach reads.
type MessageResponse struct {
	ID           string
	Model        string
	Content      []ContentBlock
	StopReason   string
	StopSequence string
	Usage        TokenUsage
}

// ContentBlock is one block of response content.
type ContentBlock struct {
	Type string
	Text string
}

// Text concatenates the text blocks of the response.
func (r *MessageResponse) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type != "" && b.Type != "text" {
			continue
		}
		sb.WriteString(b.Text)
	}
	return strings.TrimSpace(sb.String())
}

// CachedSystem returns text as a single cached system block. Drafting and
// profile prompts repeat the same instructions on every call, so all calls
// after the first read the warm cache.
func CachedSystem(text string) []SystemBlock {
	if text == "" {
		return nil
	}
	return []SystemBlock{{Text: text, CacheControl: &CacheControl{TTL: "5m"}}}
}

// Option configures the client.
type Option func(*sdkClient)

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(c *sdkClient) { c.reqOpts = append(c.reqOpts, option.WithBaseURL(url)) }
}

// WithRetry overrides the retry policy for transient API failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *sdkClient) { c.retry = cfg }
}

// WithRequestOptions passes raw SDK request options through.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *sdkClient) { c.reqOpts = append(c.reqOpts, opts...) }
}

type sdkClient struct {
	client  sdk.Client
	reqOpts []option.RequestOption
	retry   resilience.RetryConfig
}

// NewClient creates a Client backed by the official SDK. The SDK's own
// retries are disabled; rate limits, overload and 5xx responses are retried
// here with backoff.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		reqOpts: []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)},
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	}
	c.client = sdk.NewClient(c.reqOpts...)
	return c
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}
	if len(req.System) > 0 {
		params.System = toSDKSystemBlocks(req.System)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*sdk.Message, error) {
		msg, err := c.client.Messages.New(ctx, params)
		return msg, classify(err)
	})
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return fromSDKMessage(msg), nil
}

// classify marks retryable API statuses as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == statusOverloaded || resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return resilience.NewTransientError(err, apiErr.StatusCode)
		}
	}
	return err
}
