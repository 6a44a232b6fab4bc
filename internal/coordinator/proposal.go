package coordinator

import (
	"context"
	"errors"
	"strings"

	"event-coordinator/internal/domain"
)

const proposalCallToAction = "\n\nReply \"approve\" to go ahead with this proposal, or tell me what you would like to change."

func (c *Coordinator) generateProposal(ctx context.Context, st *domain.ConversationState) (Action, error) {
	system := withContext(proposalPrompt,
		section{"Event details", st.EventDetails},
		section{"Requirements", st.Requirements},
	)
	reply, err := c.model.Invoke(ctx, system, history(st))
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(reply)
	if content == "" {
		return "", errors.New("empty proposal from model")
	}

	now := c.now().UTC()
	st.Proposal = &domain.Proposal{
		Content:     content,
		GeneratedAt: now,
		Status:      domain.ProposalPendingApproval,
	}
	st.AppendMessage(domain.RoleAssistant, content+proposalCallToAction, now)
	st.Phase = domain.PhaseProposalReview
	st.NextSteps = []string{"review_proposal"}
	return "", nil
}
