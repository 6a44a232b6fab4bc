package statestore

import (
	"context"
	"sort"
	"time"

	"event-coordinator/internal/domain"
)

const previewRunes = 100

// Summary is the lightweight listing view of a conversation.
type Summary struct {
	ConversationID string       `json:"conversationId"`
	AgentType      string       `json:"agentType"`
	Phase          domain.Phase `json:"phase"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
	LastMessage    string       `json:"lastMessage"`
	MessageCount   int          `json:"messageCount"`
}

// List returns summaries of the tenant's conversations, newest first. A nil
// tenant lists every conversation. A non-positive limit returns everything
// after offset.
func (s *Store) List(ctx context.Context, tenantID *int64, limit, offset int) []Summary {
	s.maybeFlush(ctx)

	s.mu.RLock()
	out := make([]Summary, 0, len(s.states))
	for _, st := range s.states {
		if tenantID != nil && (st.TenantID == nil || *st.TenantID != *tenantID) {
			continue
		}
		out = append(out, summarize(st))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ConversationID < out[j].ConversationID
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return []Summary{}
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

func summarize(st *domain.ConversationState) Summary {
	sum := Summary{
		ConversationID: st.ConversationID,
		AgentType:      st.AgentType,
		Phase:          st.Phase,
		CreatedAt:      st.CreatedAt,
		UpdatedAt:      st.UpdatedAt,
	}
	if sum.AgentType == "" {
		sum.AgentType = domain.CoordinatorAgentType
	}
	visible := 0
	for _, m := range st.Messages {
		if !m.Ephemeral {
			visible++
		}
	}
	sum.MessageCount = visible
	if last, ok := st.LastVisibleMessage(); ok {
		sum.LastMessage = preview(last.Content, previewRunes)
	}
	return sum
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
