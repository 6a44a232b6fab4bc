// Package gemini adapts the Gemini API to the provider-agnostic chat contract.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"event-coordinator/internal/domain"
	"event-coordinator/internal/integrations/paramstore"
)

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError carries the upstream status so callers can map rate limits.
type HTTPStatusError struct {
	StatusCode int
	Err        error
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("gemini: unexpected status %d: %v", e.StatusCode, e.Err)
}

func (e *HTTPStatusError) Unwrap() error { return e.Err }

func (e *HTTPStatusError) HTTPStatusCode() int { return e.StatusCode }

// Client sends chat turns to Gemini. The API key is read from SSM on first use.
type Client struct {
	getter      Getter
	paramPrefix string
	baseURL     string

	once    sync.Once
	inner   *genai.Client
	initErr error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("gemini: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("gemini: parameter prefix must not be empty")
	}
	c := &Client{getter: ps, paramPrefix: paramPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) api(ctx context.Context) (*genai.Client, error) {
	c.once.Do(func() {
		key, err := paramstore.GetToken(ctx, c.getter, c.paramPrefix+"/gemini-token")
		if err != nil {
			c.initErr = err
			return
		}
		cfg := &genai.ClientConfig{APIKey: key, Backend: genai.BackendGeminiAPI}
		if c.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
		}
		c.inner, err = genai.NewClient(ctx, cfg)
		if err != nil {
			c.initErr = fmt.Errorf("gemini: create client: %w", err)
		}
	})
	return c.inner, c.initErr
}

// Chat sends the conversation and returns the reply text. System messages
// become the system instruction; a JSON request sets the JSON response MIME type.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	if req.Model == "" {
		return "", errors.New("gemini: model must not be empty")
	}
	client, err := c.api(ctx)
	if err != nil {
		return "", err
	}

	system, contents := toContents(req.Messages)
	if len(contents) == 0 {
		return "", errors.New("gemini: at least one user or assistant message is required")
	}
	cfg := generateConfig(system, req.JSON)

	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", &HTTPStatusError{StatusCode: apiErr.Code, Err: err}
		}
		return "", fmt.Errorf("gemini: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("gemini: no text in response")
	}
	return text, nil
}

func generateConfig(system string, jsonMode bool) *genai.GenerateContentConfig {
	if system == "" && !jsonMode {
		return nil
	}
	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if jsonMode {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// toContents joins system messages into one instruction and maps the rest
// onto user and model turns.
func toContents(messages []domain.ChatMessage) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content
	for _, m := range messages {
		switch domain.Role(m.Role) {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		case domain.RoleUser:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return strings.Join(system, "\n\n"), contents
}
