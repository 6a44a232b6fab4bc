package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"event-coordinator/internal/domain"
)

type fakeParams struct {
	vals     map[string]string
	failNext bool
	calls    int
}

func (f *fakeParams) GetParameters(_ context.Context, names ...string) (map[string]string, error) {
	f.calls++
	if f.failNext {
		f.failNext = false
		return nil, errors.New("temporary ssm failure")
	}
	out := map[string]string{}
	for _, n := range names {
		out[n] = f.vals[n]
	}
	return out, nil
}

type fakeChat struct {
	reply string
	err   error
	model string
	json  bool
	got   []domain.ChatMessage
}

func (f *fakeChat) Chat(_ context.Context, req domain.ChatRequest) (string, error) {
	f.model = req.Model
	f.json = req.JSON
	f.got = req.Messages
	return f.reply, f.err
}

func defaultParams() *fakeParams {
	return &fakeParams{vals: map[string]string{
		"/ec/config/llm_model": "gpt-test",
		"/ec/pinned_prompt":    "You are an event planning coordinator.",
	}}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &fakeChat{}, "/ec")
	require.ErrorContains(t, err, "param getter")
	_, err = New(defaultParams(), nil, "/ec")
	require.ErrorContains(t, err, "chat client")
	_, err = New(defaultParams(), &fakeChat{}, " / ")
	require.ErrorContains(t, err, "prefix")
}

func TestInvoke_PrependsPinnedAndSystemPrompt(t *testing.T) {
	params := defaultParams()
	chat := &fakeChat{reply: "ok"}
	m, err := New(params, chat, "/ec/")
	require.NoError(t, err)

	out, err := m.Invoke(context.Background(), "Extract requirements.", []domain.ChatMessage{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, "gpt-test", chat.model)
	require.False(t, chat.json)
	require.Len(t, chat.got, 2)
	require.Equal(t, "system", chat.got[0].Role)
	require.Equal(t, "You are an event planning coordinator.\n\nExtract requirements.", chat.got[0].Content)
	require.Equal(t, "hi", chat.got[1].Content)

	_, err = m.Invoke(context.Background(), "", nil)
	require.NoError(t, err)
	require.Equal(t, 1, params.calls)
	require.Len(t, chat.got, 1)
}

func TestInvokeJSON_RequestsJSONMode(t *testing.T) {
	chat := &fakeChat{reply: `{"guest_count":"40"}`}
	m, err := New(defaultParams(), chat, "/ec")
	require.NoError(t, err)

	out, err := m.InvokeJSON(context.Background(), "Return JSON.", []domain.ChatMessage{{Role: "user", Content: "40 guests"}})
	require.NoError(t, err)
	require.Equal(t, `{"guest_count":"40"}`, out)
	require.True(t, chat.json)
	require.Equal(t, "You are an event planning coordinator.\n\nReturn JSON.", chat.got[0].Content)

	_, err = m.Invoke(context.Background(), "Reply.", nil)
	require.NoError(t, err)
	require.False(t, chat.json)
}

func TestInvoke_RetriesConfigAfterFailure(t *testing.T) {
	params := defaultParams()
	params.failNext = true
	m, err := New(params, &fakeChat{reply: "ok"}, "/ec")
	require.NoError(t, err)

	_, err = m.Invoke(context.Background(), "s", nil)
	require.ErrorContains(t, err, "temporary ssm failure")

	out, err := m.Invoke(context.Background(), "s", nil)
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 2, params.calls)
}

func TestInvoke_EmptyModelName(t *testing.T) {
	params := &fakeParams{vals: map[string]string{}}
	m, err := New(params, &fakeChat{}, "/ec")
	require.NoError(t, err)
	_, err = m.Invoke(context.Background(), "s", nil)
	require.ErrorContains(t, err, "model name is empty")
}

type statusErr struct{ code int }

func (e *statusErr) Error() string       { return "status" }
func (e *statusErr) HTTPStatusCode() int { return e.code }

func TestInvoke_ChatErrorIsWrapped(t *testing.T) {
	m, err := New(defaultParams(), &fakeChat{err: &statusErr{code: 429}}, "/ec")
	require.NoError(t, err)
	_, err = m.Invoke(context.Background(), "s", nil)
	var se *statusErr
	require.True(t, errors.As(err, &se))
	require.Equal(t, 429, se.HTTPStatusCode())
}
