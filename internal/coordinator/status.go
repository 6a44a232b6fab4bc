package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"event-coordinator/internal/domain"
)

const (
	digestListItems  = 3
	digestValueRunes = 160
)

func (c *Coordinator) provideStatus(ctx context.Context, st *domain.ConversationState) (Action, error) {
	system := withContext(statusPrompt+"\n\nDigest of specialist results:\n"+statusDigest(st),
		section{"Planning state", stateSnapshot(st)},
	)
	reply, err := c.model.Invoke(ctx, system, history(st))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(reply)
	if text == "" {
		text = statusDigest(st)
	}
	st.AppendMessage(domain.RoleAssistant, text, c.now())
	st.Phase = domain.PhaseStatusReporting
	return "", nil
}

// statusDigest renders assignment counts and a bounded view of every agent
// result. Lists show at most digestListItems entries.
func statusDigest(st *domain.ConversationState) string {
	var b strings.Builder
	counts := map[domain.AssignmentStatus]int{}
	for _, a := range st.AgentAssignments {
		counts[a.Status]++
	}
	fmt.Fprintf(&b, "Assignments: %d completed, %d failed, %d pending.\n",
		counts[domain.AssignmentCompleted], counts[domain.AssignmentFailed], counts[domain.AssignmentPending])

	agentTypes := make([]string, 0, len(st.AgentResults))
	for k := range st.AgentResults {
		agentTypes = append(agentTypes, k)
	}
	sort.Strings(agentTypes)

	for _, agentType := range agentTypes {
		fmt.Fprintf(&b, "\n%s:\n", agentLabel(agentType))
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(st.AgentResults[agentType], &fields); err != nil {
			fmt.Fprintf(&b, "  %s\n", truncate(string(st.AgentResults[agentType]), digestValueRunes))
			continue
		}
		names := make([]string, 0, len(fields))
		for k := range fields {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, name := range names {
			writeDigestField(&b, name, fields[name])
		}
	}
	return b.String()
}

func writeDigestField(b *strings.Builder, name string, raw json.RawMessage) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		fmt.Fprintf(b, "  %s:\n", name)
		for i, item := range list {
			if i == digestListItems {
				fmt.Fprintf(b, "    …and %d more\n", len(list)-digestListItems)
				break
			}
			fmt.Fprintf(b, "    - %s\n", digestValue(item))
		}
		return
	}
	fmt.Fprintf(b, "  %s: %s\n", name, digestValue(raw))
}

func digestValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return truncate(s, digestValueRunes)
	}
	return truncate(string(raw), digestValueRunes)
}
