package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"event-coordinator/internal/domain"
)

type fakeModel struct {
	reply  string
	err    error
	system string
	user   string
}

func (f *fakeModel) InvokeJSON(_ context.Context, systemPrompt string, messages []domain.ChatMessage) (string, error) {
	f.system = systemPrompt
	if len(messages) > 0 {
		f.user = messages[len(messages)-1].Content
	}
	return f.reply, f.err
}

func strPtr(s string) *string { return &s }

func profile(t *testing.T, agentType string) Profile {
	t.Helper()
	for _, p := range Profiles {
		if p.AgentType == agentType {
			return p
		}
	}
	t.Fatalf("no profile for %s", agentType)
	return Profile{}
}

func TestNewDefaultRegistry_RegistersFiveHandlers(t *testing.T) {
	r, err := NewDefaultRegistry(&fakeModel{})
	require.NoError(t, err)
	require.Equal(t, []string{
		Financial, MarketingCommunications, ProjectManagement, ResourcePlanning, StakeholderManagement,
	}, r.Types())

	_, ok := r.Lookup(Analytics)
	require.False(t, ok)
	_, ok = r.Lookup(ComplianceSecurity)
	require.False(t, ok)
	require.True(t, IsKnown(Analytics))
	require.False(t, IsKnown("catering"))
}

func TestNewDefaultRegistry_NilModel(t *testing.T) {
	_, err := NewDefaultRegistry(nil)
	require.ErrorContains(t, err, "nil")
}

func TestLLMHandler_Success(t *testing.T) {
	m := &fakeModel{reply: "```json\n{\"response\": \"Venue shortlist ready\", \"resource_plan\": {\"venues\": [\"Hall A\"]}, \"ignored\": 1}\n```"}
	h, err := NewLLMHandler(profile(t, ResourcePlanning), m)
	require.NoError(t, err)

	res, err := h.Run(context.Background(), "Find venues", domain.EventDetails{Title: strPtr("DevConf")}, domain.Requirements{}, nil)
	require.NoError(t, err)
	require.Nil(t, res.Error)
	require.Equal(t, "Venue shortlist ready", res.Response)
	require.JSONEq(t, `{"venues":["Hall A"]}`, string(res.Fields["resource_plan"]))
	require.NotContains(t, res.Fields, "ignored")

	require.Contains(t, m.system, "resource planning specialist")
	require.Contains(t, m.system, `"resource_plan"`)
	require.Contains(t, m.user, "Task: Find venues")
	require.Contains(t, m.user, `"title":"DevConf"`)
	require.NotContains(t, m.user, "Additional context")
}

func TestLLMHandler_FinancialSeesBudgetExtra(t *testing.T) {
	m := &fakeModel{reply: `{"response": "Budget drafted", "budget": {"total": 5000}}`}
	h, err := NewLLMHandler(profile(t, Financial), m)
	require.NoError(t, err)

	total := 5000.0
	budget := domain.Budget{Total: &total}
	res, err := h.Run(context.Background(), "Draft budget", domain.EventDetails{}, domain.Requirements{Budget: budget}, map[string]any{"budget": budget})
	require.NoError(t, err)
	require.Equal(t, "Budget drafted", res.Response)
	require.Contains(t, m.user, "Additional context")
	require.Contains(t, m.user, `"budget":{"total":5000`)
}

func TestLLMHandler_InvalidJSONIsHandlerError(t *testing.T) {
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	h, err := NewLLMHandler(profile(t, ProjectManagement), &fakeModel{reply: "I could not do that"})
	require.NoError(t, err)
	h.now = func() time.Time { return now }

	res, err := h.Run(context.Background(), "Plan", domain.EventDetails{}, domain.Requirements{}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	require.Equal(t, "invalid_response", res.Error.ErrorType)
	require.Equal(t, now, res.Error.Timestamp)
}

func TestLLMHandler_MissingResponse(t *testing.T) {
	h, err := NewLLMHandler(profile(t, MarketingCommunications), &fakeModel{reply: `{"marketing_plan": {}}`})
	require.NoError(t, err)
	res, err := h.Run(context.Background(), "Plan", domain.EventDetails{}, domain.Requirements{}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	require.Contains(t, res.Error.ErrorMessage, "no response")
}

func TestLLMHandler_ModelReportedError(t *testing.T) {
	h, err := NewLLMHandler(profile(t, StakeholderManagement), &fakeModel{reply: `{"error": "no speakers available"}`})
	require.NoError(t, err)
	res, err := h.Run(context.Background(), "Find speakers", domain.EventDetails{}, domain.Requirements{}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	require.Equal(t, "agent_error", res.Error.ErrorType)
	require.Equal(t, "no speakers available", res.Error.ErrorMessage)
	require.Contains(t, res.Error.Error(), "agent_error")
}

func TestLLMHandler_InvokeErrorIsReturned(t *testing.T) {
	h, err := NewLLMHandler(profile(t, Financial), &fakeModel{err: errors.New("upstream down")})
	require.NoError(t, err)
	_, err = h.Run(context.Background(), "Draft budget", domain.EventDetails{}, domain.Requirements{}, nil)
	require.ErrorContains(t, err, "upstream down")
	require.ErrorContains(t, err, Financial)
}

func TestHandlerFunc(t *testing.T) {
	r := NewRegistry()
	r.Register(Analytics, HandlerFunc(func(context.Context, string, domain.EventDetails, domain.Requirements, map[string]any) (Result, error) {
		return Result{Response: "tracked"}, nil
	}))
	h, ok := r.Lookup(Analytics)
	require.True(t, ok)
	res, err := h.Run(context.Background(), "t", domain.EventDetails{}, domain.Requirements{}, nil)
	require.NoError(t, err)
	require.Equal(t, "tracked", res.Response)
}
