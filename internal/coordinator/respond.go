package coordinator

import (
	"context"
	"errors"
	"strings"

	"event-coordinator/internal/domain"
)

const approvalTransition = "Great, the proposal is approved. I'm handing the work to the specialist teams now."

func (c *Coordinator) generateResponse(ctx context.Context, st *domain.ConversationState) (Action, error) {
	if last, ok := st.LastVisibleMessage(); ok && last.Role == domain.RoleUser {
		text := strings.ToLower(last.Content)
		if IsApproval(text) && strings.Contains(text, "proposal") {
			st.Phase = domain.PhaseImplementation
			st.AppendMessage(domain.RoleAssistant, approvalTransition, c.now())
			return ActionDelegateTasks, nil
		}
	}

	system := withContext(respondPrompt, section{"Planning state", stateSnapshot(st)})
	reply, err := c.model.Invoke(ctx, system, history(st))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(reply)
	if text == "" {
		return "", errors.New("empty reply from model")
	}
	st.AppendMessage(domain.RoleAssistant, text, c.now())
	return "", nil
}
