package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNewConversationState_Defaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewConversationState("conv-1", now)
	require.Equal(t, "conv-1", s.ConversationID)
	require.Equal(t, PhaseInitialAssessment, s.Phase)
	require.Equal(t, CoordinatorAgentType, s.AgentType)
	require.Empty(t, s.Messages)
	require.Nil(t, s.TenantID)
	require.Nil(t, s.Proposal)
	require.False(t, s.InformationCollected.Any())
	require.Equal(t, now, s.CreatedAt)
}

func TestClone_IsDeep(t *testing.T) {
	now := time.Now()
	tenant := int64(7)
	s := NewConversationState("conv-1", now)
	s.TenantID = &tenant
	s.EventDetails.Title = strPtr("Summit")
	s.Requirements.Stakeholders = []string{"board"}
	s.Requirements.Budget.Breakdown = map[string]float64{"venue": 100}
	s.AgentResults["financial"] = json.RawMessage(`{"total":1}`)
	s.AppendMessage(RoleUser, "hi", now)

	c := s.Clone()
	if diff := cmp.Diff(s, c); diff != "" {
		t.Fatalf("clone differs (-orig +clone):\n%s", diff)
	}

	*c.TenantID = 9
	*c.EventDetails.Title = "Other"
	c.Requirements.Stakeholders[0] = "press"
	c.Requirements.Budget.Breakdown["venue"] = 5
	c.AgentResults["financial"][2] = 'X'
	c.Messages[0].Content = "changed"

	require.Equal(t, int64(7), *s.TenantID)
	require.Equal(t, "Summit", *s.EventDetails.Title)
	require.Equal(t, "board", s.Requirements.Stakeholders[0])
	require.Equal(t, 100.0, s.Requirements.Budget.Breakdown["venue"])
	require.JSONEq(t, `{"total":1}`, string(s.AgentResults["financial"]))
	require.Equal(t, "hi", s.Messages[0].Content)
}

func TestVisibleMessages_DropsEphemeral(t *testing.T) {
	now := time.Now()
	s := NewConversationState("c", now)
	s.AppendMessage(RoleUser, "one", now)
	s.AppendEphemeral("parse failed", now)
	s.AppendMessage(RoleAssistant, "two", now)
	s.AppendEphemeral("parse failed again", now)

	visible := s.VisibleMessages()
	require.Len(t, visible, 2)
	for _, m := range visible {
		require.False(t, m.Ephemeral)
	}

	last, ok := s.LastVisibleMessage()
	require.True(t, ok)
	require.Equal(t, "two", last.Content)

	lastUser, ok := s.LastMessageFrom(RoleUser)
	require.True(t, ok)
	require.Equal(t, "one", lastUser.Content)
}

func TestInformationCollected_AlwaysHasEveryCategory(t *testing.T) {
	var ic InformationCollected
	require.NoError(t, json.Unmarshal([]byte(`{"budget":true,"unknown":true}`), &ic))

	raw, err := json.Marshal(ic)
	require.NoError(t, err)
	var asMap map[string]bool
	require.NoError(t, json.Unmarshal(raw, &asMap))
	require.Len(t, asMap, len(Categories))
	for _, c := range Categories {
		_, ok := asMap[string(c)]
		require.True(t, ok, "missing %s", c)
	}
	require.True(t, asMap["budget"])
}

func TestInformationCollected_Missing(t *testing.T) {
	var ic InformationCollected
	require.Len(t, ic.Missing(), 8)
	require.False(t, ic.Complete())

	for _, c := range Categories {
		ic.Set(c, true)
	}
	require.True(t, ic.Complete())
	require.Empty(t, ic.Missing())

	ic.Set(CategoryRisks, false)
	require.Equal(t, []Category{CategoryRisks}, ic.Missing())
	require.True(t, ic.Any())

	ic.Set(Category("nope"), true)
	require.False(t, ic.Get(Category("nope")))
}

func TestPhase_Valid(t *testing.T) {
	require.True(t, PhaseProposalReview.Valid())
	require.False(t, Phase("done").Valid())
}
