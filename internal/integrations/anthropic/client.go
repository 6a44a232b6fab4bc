// Package anthropic adapts the Anthropic Messages API to the provider-agnostic
// chat contract used by the model binding.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"event-coordinator/internal/domain"
	"event-coordinator/internal/integrations/paramstore"
)

const defaultMaxTokens = 4096

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError carries the upstream status so callers can map rate limits.
type HTTPStatusError struct {
	StatusCode int
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("anthropic: unexpected status %d: %v", e.StatusCode, e.Err)
}

func (e *HTTPStatusError) Unwrap() error { return e.Err }

func (e *HTTPStatusError) HTTPStatusCode() int { return e.StatusCode }

// Client sends chat turns to Claude. The API key is read from SSM on first use.
type Client struct {
	getter      Getter
	paramPrefix string
	maxTokens   int64
	reqOpts     []option.RequestOption

	once   sync.Once
	inner  sdk.Client
	keyErr error
}

type Option func(*Client)

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithRequestOptions passes extra SDK options, e.g. a base URL.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(c *Client) {
		c.reqOpts = append(c.reqOpts, opts...)
	}
}

func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("anthropic: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("anthropic: parameter prefix must not be empty")
	}
	c := &Client{
		getter:      ps,
		paramPrefix: paramPrefix,
		maxTokens:   defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) api(ctx context.Context) (*sdk.Client, error) {
	c.once.Do(func() {
		var key string
		key, c.keyErr = paramstore.GetToken(ctx, c.getter, c.paramPrefix+"/anthropic-token")
		if c.keyErr != nil {
			return
		}
		opts := append([]option.RequestOption{option.WithAPIKey(key)}, c.reqOpts...)
		c.inner = sdk.NewClient(opts...)
	})
	if c.keyErr != nil {
		return nil, c.keyErr
	}
	return &c.inner, nil
}

// Chat sends the conversation and returns the concatenated text blocks of the
// reply. System messages are lifted into the system prompt. The Messages API
// has no JSON mode, so req.JSON is left to the prompt and the caller's parser.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	if req.Model == "" {
		return "", errors.New("anthropic: model must not be empty")
	}
	client, err := c.api(ctx)
	if err != nil {
		return "", err
	}

	system, turns := toParams(req.Messages)
	if len(turns) == 0 {
		return "", errors.New("anthropic: at least one user or assistant message is required")
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: c.maxTokens,
		Messages:  turns,
	}
	if len(system) > 0 {
		params.System = system
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return "", &HTTPStatusError{StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", fmt.Errorf("anthropic: request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(sdk.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("anthropic: no text in response")
	}
	return b.String(), nil
}

// toParams splits system messages out and merges consecutive turns of the
// same role, which the Messages API expects to alternate.
func toParams(messages []domain.ChatMessage) ([]sdk.TextBlockParam, []sdk.MessageParam) {
	var system []sdk.TextBlockParam
	var turns []sdk.MessageParam
	var lastRole string
	for _, m := range messages {
		switch domain.Role(m.Role) {
		case domain.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
			continue
		case domain.RoleAssistant, domain.RoleUser:
		default:
			continue
		}
		block := sdk.NewTextBlock(m.Content)
		if m.Role == lastRole && len(turns) > 0 {
			last := &turns[len(turns)-1]
			last.Content = append(last.Content, block)
			continue
		}
		if domain.Role(m.Role) == domain.RoleAssistant {
			turns = append(turns, sdk.NewAssistantMessage(block))
		} else {
			turns = append(turns, sdk.NewUserMessage(block))
		}
		lastRole = m.Role
	}
	return system, turns
}
