package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"event-coordinator/internal/agents"
	"event-coordinator/internal/domain"
	"event-coordinator/internal/llm"
)

const resultPreviewRunes = 120

type delegationPlan struct {
	Assignments []struct {
		AgentType string `json:"agent_type"`
		Task      string `json:"task"`
	} `json:"assignments"`
}

func (c *Coordinator) delegateTasks(ctx context.Context, st *domain.ConversationState) (Action, error) {
	sections := []section{
		{"Event details", st.EventDetails},
		{"Requirements", st.Requirements},
		{"Existing assignments", st.AgentAssignments},
	}
	if st.Proposal != nil {
		sections = append(sections, section{"Proposal", st.Proposal.Content})
	}
	reply, err := c.model.InvokeJSON(ctx, withContext(delegationPrompt(c.maxAssignments), sections...), history(st))
	if err != nil {
		return "", err
	}

	var plan delegationPlan
	if err := llm.DecodeJSON(reply, &plan); err != nil {
		c.logger.Warn("delegation plan unreadable", "conversation_id", st.ConversationID, "err", err)
		st.AppendEphemeral("delegation plan parsing failed: "+err.Error(), c.now())
		return "", nil
	}

	start := len(st.AgentAssignments)
	for _, p := range plan.Assignments {
		if len(st.AgentAssignments)-start >= c.maxAssignments {
			break
		}
		agentType := strings.TrimSpace(p.AgentType)
		task := strings.TrimSpace(p.Task)
		if !agents.IsKnown(agentType) || task == "" {
			continue
		}
		st.AgentAssignments = append(st.AgentAssignments, domain.AgentAssignment{
			AgentType:  agentType,
			Task:       task,
			Status:     domain.AssignmentPending,
			AssignedAt: c.now().UTC(),
		})
		c.dispatch(ctx, st, len(st.AgentAssignments)-1)
	}

	st.Phase = domain.PhaseImplementation
	st.NextSteps = []string{string(ActionProvideStatus)}
	st.AppendMessage(domain.RoleAssistant, delegationSummary(st.AgentAssignments[start:]), c.now())
	return "", nil
}

// dispatch runs the registered handler for assignment i, if any, and records
// the outcome. Unregistered agent types stay pending.
func (c *Coordinator) dispatch(ctx context.Context, st *domain.ConversationState, i int) {
	a := &st.AgentAssignments[i]
	h, ok := c.handlers.Lookup(a.AgentType)
	if !ok {
		return
	}

	var extra map[string]any
	if a.AgentType == agents.Financial {
		extra = map[string]any{"budget": st.Requirements.Budget}
	}
	res, err := runHandler(ctx, h, a.Task, st, extra)
	now := c.now().UTC()
	switch {
	case err != nil:
		c.failAssignment(st, i, err.Error(), now)
	case res.Error != nil:
		c.failAssignment(st, i, res.Error.ErrorMessage, now)
	default:
		a.Status = domain.AssignmentCompleted
		a.CompletedAt = &now
		a.Result = res.Response
		if err := mergeAgentResult(st, a.AgentType, res); err != nil {
			c.logger.Warn("agent result not stored", "conversation_id", st.ConversationID, "agent_type", a.AgentType, "err", err)
		}
	}
}

func (c *Coordinator) failAssignment(st *domain.ConversationState, i int, msg string, now time.Time) {
	a := &st.AgentAssignments[i]
	a.Status = domain.AssignmentFailed
	a.CompletedAt = &now
	a.Error = msg
	c.logger.Warn("agent task failed", "conversation_id", st.ConversationID, "agent_type", a.AgentType, "err", msg)
	st.AppendMessage(domain.RoleAssistant,
		fmt.Sprintf("The %s team could not complete %q: %s", agentLabel(a.AgentType), a.Task, msg), now)
}

// runHandler calls h and reports a panic as an error.
func runHandler(ctx context.Context, h agents.Handler, task string, st *domain.ConversationState, extra map[string]any) (res agents.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = agents.Result{}, fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Run(ctx, task, st.EventDetails, st.Requirements, extra)
}

// mergeAgentResult overlays the handler's response and structured fields
// onto whatever the agent reported before.
func mergeAgentResult(st *domain.ConversationState, agentType string, res agents.Result) error {
	merged := map[string]json.RawMessage{}
	if prev, ok := st.AgentResults[agentType]; ok {
		if err := json.Unmarshal(prev, &merged); err != nil {
			merged = map[string]json.RawMessage{}
		}
	}
	resp, err := json.Marshal(res.Response)
	if err != nil {
		return err
	}
	merged["response"] = resp
	for k, v := range res.Fields {
		merged[k] = v
	}
	blob, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	if st.AgentResults == nil {
		st.AgentResults = map[string]json.RawMessage{}
	}
	st.AgentResults[agentType] = blob
	return nil
}

func delegationSummary(assigned []domain.AgentAssignment) string {
	if len(assigned) == 0 {
		return "I couldn't identify any tasks to delegate yet. Tell me which parts of the plan you want the specialist teams to pick up."
	}
	var b strings.Builder
	b.WriteString("I've delegated the work to the specialist teams:\n")
	for _, a := range assigned {
		fmt.Fprintf(&b, "\n- %s (%s): %s", agentLabel(a.AgentType), a.Status, truncate(a.Task, resultPreviewRunes))
		switch a.Status {
		case domain.AssignmentCompleted:
			fmt.Fprintf(&b, "\n  Result: %s", truncate(a.Result, resultPreviewRunes))
		case domain.AssignmentFailed:
			fmt.Fprintf(&b, "\n  Error: %s", truncate(a.Error, resultPreviewRunes))
		}
	}
	b.WriteString("\n\nAsk me for a status update at any time.")
	return b.String()
}

func agentLabel(agentType string) string {
	return strings.ReplaceAll(agentType, "_", " ")
}
