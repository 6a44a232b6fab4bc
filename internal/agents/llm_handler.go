package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"event-coordinator/internal/domain"
	"event-coordinator/internal/llm"
)

type LanguageModel interface {
	InvokeJSON(ctx context.Context, systemPrompt string, messages []domain.ChatMessage) (string, error)
}

// Profile describes one model-backed handler: who it is and which structured
// fields it must return next to its response.
type Profile struct {
	AgentType string
	Persona   string
	Fields    []string
}

// Profiles are the handlers installed by NewDefaultRegistry.
var Profiles = []Profile{
	{
		AgentType: ResourcePlanning,
		Persona:   "You are the resource planning specialist for an event. You plan venues, equipment, catering, staffing and logistics.",
		Fields:    []string{"resource_plan"},
	},
	{
		AgentType: Financial,
		Persona:   "You are the financial specialist for an event. You build budgets with line items, contingency and cost controls.",
		Fields:    []string{"budget"},
	},
	{
		AgentType: StakeholderManagement,
		Persona:   "You are the stakeholder management specialist for an event. You identify speakers, sponsors and stakeholders and plan how to engage them.",
		Fields:    []string{"speakers", "stakeholders"},
	},
	{
		AgentType: MarketingCommunications,
		Persona:   "You are the marketing and communications specialist for an event. You plan channels, messaging and the promotion calendar.",
		Fields:    []string{"marketing_plan"},
	},
	{
		AgentType: ProjectManagement,
		Persona:   "You are the project manager for an event. You produce the work breakdown, milestones, owners and risks.",
		Fields:    []string{"project_plan"},
	},
}

// LLMHandler answers a task by prompting the language model with the
// profile's persona and the event context.
type LLMHandler struct {
	profile Profile
	model   LanguageModel
	now     func() time.Time
}

func NewLLMHandler(p Profile, model LanguageModel) (*LLMHandler, error) {
	if model == nil {
		return nil, errors.New("agents: language model must not be nil")
	}
	if strings.TrimSpace(p.AgentType) == "" {
		return nil, errors.New("agents: agent type must not be empty")
	}
	return &LLMHandler{profile: p, model: model, now: time.Now}, nil
}

// NewDefaultRegistry registers an LLMHandler for every profile in Profiles.
func NewDefaultRegistry(model LanguageModel) (*Registry, error) {
	r := NewRegistry()
	for _, p := range Profiles {
		h, err := NewLLMHandler(p, model)
		if err != nil {
			return nil, err
		}
		r.Register(p.AgentType, h)
	}
	return r, nil
}

func (h *LLMHandler) Run(ctx context.Context, task string, details domain.EventDetails, reqs domain.Requirements, extra map[string]any) (Result, error) {
	user, err := h.userPrompt(task, details, reqs, extra)
	if err != nil {
		return Result{}, fmt.Errorf("agents: %s: %w", h.profile.AgentType, err)
	}
	reply, err := h.model.InvokeJSON(ctx, h.systemPrompt(), []domain.ChatMessage{
		{Role: string(domain.RoleUser), Content: user},
	})
	if err != nil {
		return Result{}, fmt.Errorf("agents: %s: %w", h.profile.AgentType, err)
	}

	var payload map[string]json.RawMessage
	if err := llm.DecodeJSON(reply, &payload); err != nil {
		return h.failure("invalid_response", err.Error()), nil
	}
	if raw, ok := payload["error"]; ok {
		var msg string
		if json.Unmarshal(raw, &msg) == nil && msg != "" {
			return h.failure("agent_error", msg), nil
		}
	}
	var response string
	if err := json.Unmarshal(payload["response"], &response); err != nil || strings.TrimSpace(response) == "" {
		return h.failure("invalid_response", "reply has no response text"), nil
	}

	res := Result{Response: response, Fields: map[string]json.RawMessage{}}
	for _, f := range h.profile.Fields {
		if raw, ok := payload[f]; ok && string(raw) != "null" {
			res.Fields[f] = raw
		}
	}
	return res, nil
}

func (h *LLMHandler) failure(kind, msg string) Result {
	return Result{Error: &HandlerError{
		ErrorMessage: msg,
		ErrorType:    kind,
		Timestamp:    h.now().UTC(),
	}}
}

func (h *LLMHandler) systemPrompt() string {
	keys := make([]string, 0, len(h.profile.Fields)+1)
	keys = append(keys, `"response" (a short summary for the event organiser)`)
	for _, f := range h.profile.Fields {
		keys = append(keys, fmt.Sprintf("%q (structured detail)", f))
	}
	return h.profile.Persona + "\n\n" +
		"Reply with one JSON object and nothing else. Keys: " + strings.Join(keys, ", ") + ". " +
		`If the task cannot be done, reply {"error": "<reason>"}.`
}

func (h *LLMHandler) userPrompt(task string, details domain.EventDetails, reqs domain.Requirements, extra map[string]any) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task)
	for _, part := range []struct {
		label string
		value any
	}{
		{"Event details", details},
		{"Requirements", reqs},
	} {
		blob, err := json.Marshal(part.value)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\n%s:\n%s\n", part.label, blob)
	}
	if len(extra) > 0 {
		blob, err := json.Marshal(extra)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\nAdditional context:\n%s\n", blob)
	}
	return b.String(), nil
}
