package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"event-coordinator/internal/domain"
)

type stubGetter struct {
	token string
	err   error
	names []string
}

func (g *stubGetter) GetParameter(_ context.Context, name string) (string, error) {
	g.names = append(g.names, name)
	if g.err != nil {
		return "", g.err
	}
	return `{"token":"` + g.token + `"}`, nil
}

// recordedCall is one request the fake endpoint received.
type recordedCall struct {
	path string
	auth string
	body map[string]any
}

// fakeEndpoint serves canned replies and records every decoded request body.
func fakeEndpoint(t *testing.T, status int, reply string) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		calls = append(calls, recordedCall{path: r.URL.Path, auth: r.Header.Get("Authorization"), body: body})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func clientFor(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithBaseURL(srv.URL), WithHTTPClient(&http.Client{Timeout: 2 * time.Second})}, opts...)
	c, err := NewClient(&stubGetter{token: "sk-test"}, "/event-coordinator", opts...)
	require.NoError(t, err)
	return c
}

func chatReq(jsonMode bool) domain.ChatRequest {
	return domain.ChatRequest{
		Model:    "gpt-test",
		Messages: []domain.ChatMessage{{Role: "system", Content: "plan"}, {Role: "user", Content: "a wedding"}},
		JSON:     jsonMode,
	}
}

func TestEndpointURL(t *testing.T) {
	for _, tc := range []struct {
		base, endpoint, want string
	}{
		{"https://api.openai.com/v1", "chat/completions", "https://api.openai.com/v1/chat/completions"},
		{"https://proxy.internal/v1/", "moderations", "https://proxy.internal/v1/moderations"},
		{"http://localhost:11434", "chat/completions", "http://localhost:11434/v1/chat/completions"},
		{"", "moderations", "https://api.openai.com/v1/moderations"},
	} {
		require.Equal(t, tc.want, endpointURL(tc.base, tc.endpoint), "base=%q", tc.base)
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(nil, "/event-coordinator")
	require.ErrorContains(t, err, "getter")

	_, err = NewClient(&stubGetter{}, " / ")
	require.ErrorContains(t, err, "prefix")

	c, err := NewClient(&stubGetter{}, "/event-coordinator/")
	require.NoError(t, err)
	require.Equal(t, defaultBaseURL, c.baseURL)
	require.Equal(t, "/event-coordinator", c.paramPrefix)
}

func TestResolveAPIKey_OncePerProcess(t *testing.T) {
	g := &stubGetter{token: "sk-live"}
	c, err := NewClient(g, "/event-coordinator")
	require.NoError(t, err)

	for range 3 {
		key, err := c.resolveAPIKey(context.Background())
		require.NoError(t, err)
		require.Equal(t, "sk-live", key)
	}
	require.Equal(t, []string{"/event-coordinator/open-ai-token"}, g.names)
}

func TestResolveAPIKey_FailureIsRemembered(t *testing.T) {
	g := &stubGetter{err: errors.New("ssm throttled")}
	c, err := NewClient(g, "/event-coordinator")
	require.NoError(t, err)

	_, err = c.resolveAPIKey(context.Background())
	require.ErrorContains(t, err, "ssm throttled")
	_, err = c.Chat(context.Background(), chatReq(false))
	require.ErrorContains(t, err, "ssm throttled")
	require.Len(t, g.names, 1)
}

func TestChat_ResponseFormat(t *testing.T) {
	for _, tc := range []struct {
		name       string
		json       bool
		wantFormat any
	}{
		{name: "free text leaves the format unset", json: false, wantFormat: nil},
		{name: "json request selects object mode", json: true, wantFormat: map[string]any{"type": "json_object"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, calls := fakeEndpoint(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"{\"budget\":\"5000\"}"},"finish_reason":"stop"}]}`)
			c := clientFor(t, srv)

			got, err := c.Chat(context.Background(), chatReq(tc.json))
			require.NoError(t, err)
			require.Equal(t, `{"budget":"5000"}`, got)

			require.Len(t, *calls, 1)
			call := (*calls)[0]
			require.Equal(t, "/v1/chat/completions", call.path)
			require.Equal(t, "Bearer sk-test", call.auth)
			require.Equal(t, "gpt-test", call.body["model"])
			require.Len(t, call.body["messages"], 2)
			require.Equal(t, tc.wantFormat, call.body["response_format"])
			require.NotContains(t, call.body, "temperature")
		})
	}
}

func TestChat_Temperature(t *testing.T) {
	srv, calls := fakeEndpoint(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	c := clientFor(t, srv, WithTemperature(0.3))

	_, err := c.Chat(context.Background(), chatReq(false))
	require.NoError(t, err)
	require.InDelta(t, 0.3, (*calls)[0].body["temperature"], 1e-9)
}

func TestChat_Failures(t *testing.T) {
	for _, tc := range []struct {
		name    string
		status  int
		reply   string
		json    bool
		wantErr string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, reply: `{"error":"slow down"}`, wantErr: "unexpected status 429"},
		{name: "server error", status: http.StatusInternalServerError, reply: `{"error":"boom"}`, wantErr: "unexpected status 500"},
		{name: "garbage body", status: http.StatusOK, reply: `<html>`, wantErr: "chat/completions: decode response"},
		{name: "no choices", status: http.StatusOK, reply: `{"choices":[]}`, wantErr: "no choices"},
		{name: "truncated json", status: http.StatusOK, reply: `{"choices":[{"message":{"role":"assistant","content":"{\"bud"},"finish_reason":"length"}]}`, json: true, wantErr: "truncated"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := fakeEndpoint(t, tc.status, tc.reply)
			_, err := clientFor(t, srv).Chat(context.Background(), chatReq(tc.json))
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestChat_StatusErrorCarriesCode(t *testing.T) {
	srv, _ := fakeEndpoint(t, http.StatusServiceUnavailable, `overloaded`)
	_, err := clientFor(t, srv).Chat(context.Background(), chatReq(false))

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.HTTPStatusCode())
	require.Equal(t, "overloaded", statusErr.Body)
}

func TestChat_LengthFinishIsFineForText(t *testing.T) {
	srv, _ := fakeEndpoint(t, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"Here is the start"},"finish_reason":"length"}]}`)
	got, err := clientFor(t, srv).Chat(context.Background(), chatReq(false))
	require.NoError(t, err)
	require.Equal(t, "Here is the start", got)
}

func TestChat_RequiresModel(t *testing.T) {
	c, err := NewClient(&stubGetter{token: "sk"}, "/event-coordinator")
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), domain.ChatRequest{})
	require.ErrorContains(t, err, "model must not be empty")
}

func TestChat_Unreachable(t *testing.T) {
	c, err := NewClient(&stubGetter{token: "sk"}, "/event-coordinator",
		WithBaseURL("http://127.0.0.1:1"),
		WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}))
	require.NoError(t, err)
	_, err = c.Chat(context.Background(), chatReq(false))
	require.ErrorContains(t, err, "request failed")
}

func TestModerate(t *testing.T) {
	for _, tc := range []struct {
		name        string
		status      int
		reply       string
		wantFlagged bool
		wantErr     string
	}{
		{name: "clean", status: http.StatusOK, reply: `{"results":[{"flagged":false}]}`},
		{name: "flagged", status: http.StatusOK, reply: `{"results":[{"flagged":true}]}`, wantFlagged: true},
		{name: "empty results", status: http.StatusOK, reply: `{"results":[]}`, wantErr: "no results"},
		{name: "garbage body", status: http.StatusOK, reply: `nope`, wantErr: "moderations: decode response"},
		{name: "rate limited", status: http.StatusTooManyRequests, reply: `{}`, wantErr: "429"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, calls := fakeEndpoint(t, tc.status, tc.reply)
			flagged, err := clientFor(t, srv).Moderate(context.Background(), "a venue for 80 guests")
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantFlagged, flagged)
			require.Equal(t, "/v1/moderations", (*calls)[0].path)
			require.Equal(t, "a venue for 80 guests", (*calls)[0].body["input"])
		})
	}
}

func TestModerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"results":[{"flagged":false}]}`))
	}))
	defer srv.Close()

	c := clientFor(t, srv, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.Moderate(context.Background(), "hello")
	require.ErrorContains(t, err, "request failed")
}
