package coordinator

import (
	"strings"

	"event-coordinator/internal/domain"
)

// Intent is what a user message appears to ask for.
type Intent string

const (
	IntentNone               Intent = "none"
	IntentRequirementInquiry Intent = "requirement_inquiry"
	IntentDelegation         Intent = "delegation"
	IntentStatus             Intent = "status"
	IntentProposal           Intent = "proposal"
)

var (
	approvalWords    = []string{"approve", "approved", "accept", "accepted", "good", "proceed", "go ahead"}
	requirementWords = []string{"requirement", "what do you need", "what else", "missing information", "what information"}
	delegationWords  = []string{"delegate", "assign", "start working", "execute", "get started"}
	statusWords      = []string{"status", "progress", "update me", "how is it going", "results"}
	proposalWords    = []string{"proposal", "propose", "draft a plan", "recommendation"}
)

// ClassifyIntent maps a message to an Intent by case-insensitive keyword
// match. Classes are checked in a fixed order. Approvals are not an intent:
// assess handles them in proposal_review and generate_response handles an
// approval that names the proposal.
func ClassifyIntent(text string) Intent {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, requirementWords):
		return IntentRequirementInquiry
	case containsAny(t, delegationWords):
		return IntentDelegation
	case containsAny(t, statusWords):
		return IntentStatus
	case containsAny(t, proposalWords):
		return IntentProposal
	}
	return IntentNone
}

// IsApproval reports whether text contains an approval keyword.
func IsApproval(text string) bool {
	return containsAny(strings.ToLower(text), approvalWords)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// assess picks the turn's action. Rules are evaluated in priority order; the
// cold-start and approval rules also move the phase.
func assess(st *domain.ConversationState) Action {
	if len(st.Messages) <= 1 {
		st.Phase = domain.PhaseInformationCollection
		return ActionGatherRequirements
	}

	ic := st.InformationCollected
	if ic.Complete() && st.Phase == domain.PhaseInformationCollection && st.Proposal == nil {
		if hasMeaningfulDetails(st.EventDetails) {
			return ActionGenerateProposal
		}
		return ActionGatherRequirements
	}

	var last string
	if m, ok := st.LastMessageFrom(domain.RoleUser); ok {
		last = m.Content
	}
	if st.Phase == domain.PhaseProposalReview && IsApproval(last) {
		st.Phase = domain.PhaseTaskDelegation
		return ActionDelegateTasks
	}

	switch ClassifyIntent(last) {
	case IntentRequirementInquiry:
		return ActionGatherRequirements
	case IntentDelegation:
		return ActionDelegateTasks
	case IntentStatus:
		return ActionProvideStatus
	case IntentProposal:
		if st.Phase != domain.PhaseProposalReview {
			if ic.Any() {
				return ActionGenerateProposal
			}
			return ActionGatherRequirements
		}
	}

	if !ic.Complete() && (st.Phase == domain.PhaseInformationCollection || st.Phase == domain.PhaseInitialAssessment) {
		return ActionGatherRequirements
	}
	return ActionGenerateResponse
}

// hasMeaningfulDetails requires an event type, a title and one timeline bound.
func hasMeaningfulDetails(d domain.EventDetails) bool {
	return nonEmpty(d.EventType) && nonEmpty(d.Title) && (nonEmpty(d.TimelineStart) || nonEmpty(d.TimelineEnd))
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
