package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"event-coordinator/internal/domain"
	"event-coordinator/internal/integrations/paramstore"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	maxErrorBody     = 4096
	maxResponseBytes = 1 << 20
)

type chatRequest struct {
	Model          string               `json:"model"`
	Messages       []domain.ChatMessage `json:"messages"`
	Temperature    *float64             `json:"temperature,omitempty"`
	ResponseFormat *responseFormat      `json:"response_format,omitempty"`
}

// responseFormat selects structured output. Only JSON object mode is used:
// the coordinator's documents vary by prompt, so no single schema fits.
type responseFormat struct {
	Type string `json:"type"`
}

var jsonObjectFormat = &responseFormat{Type: "json_object"}

type chatResponse struct {
	Choices []struct {
		Message      domain.ChatMessage `json:"message"`
		FinishReason string             `json:"finish_reason"`
	} `json:"choices"`
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged bool `json:"flagged"`
	} `json:"results"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError is a non-2xx reply from the API.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to any endpoint speaking the Chat Completions and Moderations
// protocols. The API key is read from SSM once per process.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string
	temperature *float64

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithTemperature pins the sampling temperature; the endpoint default is
// used otherwise.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Chat returns the first choice's content. A JSON request switches the
// endpoint into JSON object mode.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	if req.Model == "" {
		return "", errors.New("openai: model must not be empty")
	}
	body := chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: c.temperature,
	}
	if req.JSON {
		body.ResponseFormat = jsonObjectFormat
	}

	var out chatResponse
	if err := c.post(ctx, "chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	choice := out.Choices[0]
	if req.JSON && choice.FinishReason == "length" {
		return "", errors.New("openai: JSON reply truncated at the token limit")
	}
	return choice.Message.Content, nil
}

// Moderate reports whether the Moderations API flags input.
func (c *Client) Moderate(ctx context.Context, input string) (bool, error) {
	var out moderationResponse
	if err := c.post(ctx, "moderations", moderationRequest{Input: input}, &out); err != nil {
		return false, err
	}
	if len(out.Results) == 0 {
		return false, errors.New("openai: no results in moderations response")
	}
	return out.Results[0].Flagged, nil
}

// post sends payload to the endpoint and decodes the JSON reply into out.
func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("openai: %s: marshal request: %w", endpoint, err)
	}

	url := endpointURL(c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("openai: %s: create request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai: %s: request failed: %w", endpoint, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("openai: %s: read response: %w", endpoint, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("openai: %s: decode response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = paramstore.GetToken(ctx, c.getter, c.paramPrefix+"/open-ai-token")
	})
	return c.apiKey, c.keyErr
}

// endpointURL joins base and endpoint, adding the /v1 segment when base lacks it.
func endpointURL(baseURL, endpoint string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/" + endpoint
}
