package coordinator

import (
	"encoding/json"
	"fmt"
	"strings"

	"event-coordinator/internal/agents"
	"event-coordinator/internal/domain"
)

const apologyReply = "Sorry, I ran into a problem while working on that. Please try again in a moment."

const extractionPrompt = `You extract event planning requirements from a conversation.
Reply with one JSON object and nothing else, using exactly this shape. Use null for anything not stated.
{
  "event_details": {"event_type": null, "title": null, "description": null, "attendee_count": null, "scale": null},
  "timeline": {"start": null, "end": null, "milestones": []},
  "budget": {"total": null, "currency": null, "breakdown": {}},
  "location": {"city": null, "country": null, "venue": null, "venue_type": null, "virtual": null},
  "stakeholders": [],
  "resources": [],
  "success_criteria": [],
  "risks": [],
  "information_collected": {
    "basic_details": false, "timeline": false, "budget": false, "location": false,
    "stakeholders": false, "resources": false, "success_criteria": false, "risks": false
  },
  "response": "the next message to the organiser, asking for whatever is still missing"
}
Mark a category true only when the organiser has given enough to plan with.`

const proposalPrompt = `You are an event planning coordinator writing a proposal for the organiser.
Cover the event concept, format, schedule outline, venue approach, budget allocation, stakeholders, resources, risks and success measures.
Recommend venues, speakers, vendors and dates by type and criteria. Do NOT claim or check that any of them is available; availability is confirmed later by the specialist teams.
Write in clear Markdown.`

const respondPrompt = `You are an event planning coordinator. Answer the organiser's latest message using the conversation and the current planning state below. Be concise and suggest the next step.`

const statusPrompt = `You are an event planning coordinator reporting progress to the organiser. Use the digest of specialist results and the planning state below. Summarise what is done, what failed and what is still pending, then suggest next steps.`

func delegationPrompt(maxAssignments int) string {
	return fmt.Sprintf(`You are an event planning coordinator splitting an approved proposal into work for specialist teams.
Available teams: %s.
Reply with one JSON object and nothing else:
{"assignments": [{"agent_type": "<team>", "task": "<specific task>"}]}
Use at most %d assignments and only the teams listed. Do not repeat work that is already assigned.`,
		strings.Join(agents.Known, ", "), maxAssignments)
}

// withContext appends labelled JSON sections to a prompt.
func withContext(prompt string, sections ...section) string {
	var b strings.Builder
	b.WriteString(prompt)
	for _, s := range sections {
		blob, err := json.MarshalIndent(s.value, "", "  ")
		if err != nil {
			blob = []byte(fmt.Sprintf("%q", err.Error()))
		}
		fmt.Fprintf(&b, "\n\n%s:\n%s", s.label, blob)
	}
	return b.String()
}

type section struct {
	label string
	value any
}

// stateSnapshot is the view of the state shared with the model.
func stateSnapshot(st *domain.ConversationState) map[string]any {
	return map[string]any{
		"phase":                 st.Phase,
		"event_details":         st.EventDetails,
		"requirements":          st.Requirements,
		"agent_assignments":     st.AgentAssignments,
		"next_steps":            st.NextSteps,
		"information_collected": st.InformationCollected,
	}
}

var categoryLabels = map[domain.Category]string{
	domain.CategoryBasicDetails:    "the basic event details (type, title, size)",
	domain.CategoryTimeline:        "the timeline",
	domain.CategoryBudget:          "the budget",
	domain.CategoryLocation:        "the location",
	domain.CategoryStakeholders:    "the key stakeholders",
	domain.CategoryResources:       "the resources you need",
	domain.CategorySuccessCriteria: "how you will measure success",
	domain.CategoryRisks:           "any risks you foresee",
}

// followUp is the fallback question when the model gave no usable reply.
func followUp(ic domain.InformationCollected) string {
	missing := ic.Missing()
	if len(missing) == 0 {
		return "Thanks, I have everything I need to draft a proposal."
	}
	labels := make([]string, 0, len(missing))
	for _, c := range missing {
		labels = append(labels, categoryLabels[c])
	}
	return "Thanks! To keep planning, could you tell me about " + joinList(labels) + "?"
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
