package domain

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Phase is the coarse-grained lifecycle stage of a conversation.
type Phase string

const (
	PhaseInitialAssessment     Phase = "initial_assessment"
	PhaseInformationCollection Phase = "information_collection"
	PhaseProposalReview        Phase = "proposal_review"
	PhaseTaskDelegation        Phase = "task_delegation"
	PhaseImplementation        Phase = "implementation"
	PhaseStatusReporting       Phase = "status_reporting"
)

// Valid reports whether p is one of the six known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInitialAssessment, PhaseInformationCollection, PhaseProposalReview,
		PhaseTaskDelegation, PhaseImplementation, PhaseStatusReporting:
		return true
	}
	return false
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// CoordinatorAgentType is the agent type recorded for conversations driven
// by the coordinator.
const CoordinatorAgentType = "coordinator"

// Message is a single entry in a conversation. Ephemeral messages carry
// internal diagnostics and are never returned to end users.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Ephemeral bool      `json:"ephemeral,omitempty"`
}

// EventDetails holds the scalar facts gathered about the planned event.
// Every field is independently optional.
type EventDetails struct {
	EventType     *string `json:"event_type"`
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	AttendeeCount *int    `json:"attendee_count"`
	Scale         *string `json:"scale"`
	TimelineStart *string `json:"timeline_start"`
	TimelineEnd   *string `json:"timeline_end"`
}

type Budget struct {
	Total     *float64           `json:"total"`
	Currency  *string            `json:"currency"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
}

type Location struct {
	City      *string `json:"city"`
	Country   *string `json:"country"`
	Venue     *string `json:"venue"`
	VenueType *string `json:"venue_type"`
	Virtual   *bool   `json:"virtual"`
}

// Requirements holds the list- and map-valued requirement categories.
type Requirements struct {
	Stakeholders    []string `json:"stakeholders,omitempty"`
	Resources       []string `json:"resources,omitempty"`
	Risks           []string `json:"risks,omitempty"`
	SuccessCriteria []string `json:"success_criteria,omitempty"`
	Milestones      []string `json:"milestones,omitempty"`
	Budget          Budget   `json:"budget"`
	Location        Location `json:"location"`
}

// AssignmentStatus is the lifecycle of a delegated task.
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentCompleted AssignmentStatus = "completed"
	AssignmentFailed    AssignmentStatus = "failed"
)

// AgentAssignment is a unit of work delegated to a specialised handler.
type AgentAssignment struct {
	AgentType   string           `json:"agent_type"`
	Task        string           `json:"task"`
	Status      AssignmentStatus `json:"status"`
	AssignedAt  time.Time        `json:"assigned_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Result      string           `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
}

const ProposalPendingApproval = "pending_approval"

type Proposal struct {
	Content     string    `json:"content"`
	GeneratedAt time.Time `json:"generated_at"`
	Status      string    `json:"status"`
}

// ConversationState is everything the coordinator knows about one
// conversation. It is owned by the state store; callers receive copies.
type ConversationState struct {
	ConversationID       string                     `json:"conversation_id"`
	TenantID             *int64                     `json:"tenant_id"`
	AgentType            string                     `json:"agent_type"`
	Phase                Phase                      `json:"phase"`
	Messages             []Message                  `json:"messages"`
	EventDetails         EventDetails               `json:"event_details"`
	Requirements         Requirements               `json:"requirements"`
	InformationCollected InformationCollected       `json:"information_collected"`
	AgentAssignments     []AgentAssignment          `json:"agent_assignments"`
	AgentResults         map[string]json.RawMessage `json:"agent_results"`
	Proposal             *Proposal                  `json:"proposal"`
	NextSteps            []string                   `json:"next_steps"`
	CreatedAt            time.Time                  `json:"created_at"`
	UpdatedAt            time.Time                  `json:"updated_at"`
	DBRecordID           *int64                     `json:"db_record_id,omitempty"`
}

// NewConversationState returns the initial state for a brand-new
// conversation.
func NewConversationState(conversationID string, now time.Time) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		AgentType:      CoordinatorAgentType,
		Phase:          PhaseInitialAssessment,
		Messages:       []Message{},
		AgentResults:   map[string]json.RawMessage{},
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}
}

// AppendMessage adds a visible message.
func (s *ConversationState) AppendMessage(role Role, content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: now.UTC()})
}

// AppendEphemeral adds a diagnostic system message that is never shown to users.
func (s *ConversationState) AppendEphemeral(content string, now time.Time) {
	s.Messages = append(s.Messages, Message{Role: RoleSystem, Content: content, Timestamp: now.UTC(), Ephemeral: true})
}

// VisibleMessages returns the history with ephemeral messages removed.
func (s *ConversationState) VisibleMessages() []Message {
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.Ephemeral {
			continue
		}
		out = append(out, m)
	}
	return out
}

// LastMessage returns the most recent message of any kind.
func (s *ConversationState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastVisibleMessage skips trailing ephemeral messages.
func (s *ConversationState) LastVisibleMessage() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if !s.Messages[i].Ephemeral {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// LastMessageFrom returns the most recent non-ephemeral message with the given role.
func (s *ConversationState) LastMessageFrom(role Role) (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Role == role && !m.Ephemeral {
			return m, true
		}
	}
	return Message{}, false
}

// Clone returns a deep copy of s.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	out := *s
	out.TenantID = clonePtr(s.TenantID)
	out.DBRecordID = clonePtr(s.DBRecordID)
	out.Messages = slices.Clone(s.Messages)
	out.EventDetails = s.EventDetails.clone()
	out.Requirements = s.Requirements.clone()
	out.AgentAssignments = make([]AgentAssignment, len(s.AgentAssignments))
	for i, a := range s.AgentAssignments {
		a.CompletedAt = clonePtr(a.CompletedAt)
		out.AgentAssignments[i] = a
	}
	out.AgentResults = make(map[string]json.RawMessage, len(s.AgentResults))
	for k, v := range s.AgentResults {
		out.AgentResults[k] = slices.Clone(v)
	}
	out.Proposal = clonePtr(s.Proposal)
	out.NextSteps = slices.Clone(s.NextSteps)
	return &out
}

func (d EventDetails) clone() EventDetails {
	return EventDetails{
		EventType:     clonePtr(d.EventType),
		Title:         clonePtr(d.Title),
		Description:   clonePtr(d.Description),
		AttendeeCount: clonePtr(d.AttendeeCount),
		Scale:         clonePtr(d.Scale),
		TimelineStart: clonePtr(d.TimelineStart),
		TimelineEnd:   clonePtr(d.TimelineEnd),
	}
}

func (r Requirements) clone() Requirements {
	return Requirements{
		Stakeholders:    slices.Clone(r.Stakeholders),
		Resources:       slices.Clone(r.Resources),
		Risks:           slices.Clone(r.Risks),
		SuccessCriteria: slices.Clone(r.SuccessCriteria),
		Milestones:      slices.Clone(r.Milestones),
		Budget: Budget{
			Total:     clonePtr(r.Budget.Total),
			Currency:  clonePtr(r.Budget.Currency),
			Breakdown: maps.Clone(r.Budget.Breakdown),
		},
		Location: Location{
			City:      clonePtr(r.Location.City),
			Country:   clonePtr(r.Location.Country),
			Venue:     clonePtr(r.Location.Venue),
			VenueType: clonePtr(r.Location.VenueType),
			Virtual:   clonePtr(r.Location.Virtual),
		},
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
