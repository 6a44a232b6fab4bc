// Package coordinator runs one conversation turn: it assesses the state,
// dispatches to exactly one node and follows at most the sanctioned
// fast-path transitions.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"event-coordinator/internal/agents"
	"event-coordinator/internal/domain"
)

// Action is the per-turn decision produced by assess.
type Action string

const (
	ActionGatherRequirements Action = "gather_requirements"
	ActionGenerateProposal   Action = "generate_proposal"
	ActionDelegateTasks      Action = "delegate_tasks"
	ActionProvideStatus      Action = "provide_status"
	ActionGenerateResponse   Action = "generate_response"
)

const defaultMaxAssignments = 8

// ErrNodeFailed marks a node that failed unexpectedly. The turn's state must
// not be saved when it is returned.
var ErrNodeFailed = errors.New("coordinator: node failed")

// LanguageModel answers prompts. InvokeJSON is used where the reply is parsed
// as a JSON document.
type LanguageModel interface {
	Invoke(ctx context.Context, systemPrompt string, messages []domain.ChatMessage) (string, error)
	InvokeJSON(ctx context.Context, systemPrompt string, messages []domain.ChatMessage) (string, error)
}

type HandlerLookup interface {
	Lookup(agentType string) (agents.Handler, bool)
}

// node mutates the turn's own copy of the state. A non-empty Action chains
// into another node and must be listed in fastPaths.
type node func(c *Coordinator, ctx context.Context, st *domain.ConversationState) (Action, error)

var nodes = map[Action]node{
	ActionGatherRequirements: (*Coordinator).gatherRequirements,
	ActionGenerateProposal:   (*Coordinator).generateProposal,
	ActionDelegateTasks:      (*Coordinator).delegateTasks,
	ActionProvideStatus:      (*Coordinator).provideStatus,
	ActionGenerateResponse:   (*Coordinator).generateResponse,
}

// fastPaths lists every same-turn transition a node may take.
var fastPaths = map[Action][]Action{
	ActionGenerateResponse: {ActionDelegateTasks},
}

type Coordinator struct {
	model          LanguageModel
	handlers       HandlerLookup
	logger         *slog.Logger
	now            func() time.Time
	maxAssignments int
}

type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithMaxAssignments caps how many assignments one delegation creates.
func WithMaxAssignments(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAssignments = n
		}
	}
}

func New(model LanguageModel, handlers HandlerLookup, opts ...Option) (*Coordinator, error) {
	if model == nil {
		return nil, errors.New("coordinator: language model must not be nil")
	}
	if handlers == nil {
		return nil, errors.New("coordinator: handler lookup must not be nil")
	}
	c := &Coordinator{
		model:          model,
		handlers:       handlers,
		logger:         slog.Default(),
		now:            time.Now,
		maxAssignments: defaultMaxAssignments,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ProcessTurn runs one turn over a copy of st and returns the new state. The
// caller must already have appended the user's message. Collaborator failures
// are absorbed into the conversation; only an unexpected node failure is
// returned, wrapping ErrNodeFailed.
func (c *Coordinator) ProcessTurn(ctx context.Context, st *domain.ConversationState) (*domain.ConversationState, error) {
	if st == nil {
		return nil, errors.New("coordinator: state must not be nil")
	}
	next := st.Clone()
	if next.AgentResults == nil {
		next.AgentResults = map[string]json.RawMessage{}
	}

	action := assess(next)
	c.logger.Debug("turn assessed", "conversation_id", next.ConversationID, "action", action, "phase", next.Phase)
	if err := c.run(ctx, action, next); err != nil {
		return nil, err
	}
	return next, nil
}

// run dispatches action and every fast-path transition it chains into.
func (c *Coordinator) run(ctx context.Context, action Action, next *domain.ConversationState) error {
	log := c.logger.With("conversation_id", next.ConversationID)
	for action != "" {
		chained, err := c.runNode(ctx, action, next)
		if err != nil {
			if errors.Is(err, ErrNodeFailed) {
				log.Error("node failed", "action", action, "err", err)
				return err
			}
			log.Warn("collaborator call failed", "action", action, "err", err)
			next.AppendEphemeral(fmt.Sprintf("%s failed: %v", action, err), c.now())
			next.AppendMessage(domain.RoleAssistant, apologyReply, c.now())
			break
		}
		if chained != "" && !slices.Contains(fastPaths[action], chained) {
			return fmt.Errorf("%w: %s may not chain into %s", ErrNodeFailed, action, chained)
		}
		action = chained
	}
	return nil
}

// runNode executes one node, turning a panic into ErrNodeFailed.
func (c *Coordinator) runNode(ctx context.Context, action Action, st *domain.ConversationState) (next Action, err error) {
	n, ok := nodes[action]
	if !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrNodeFailed, action)
	}
	defer func() {
		if r := recover(); r != nil {
			next, err = "", fmt.Errorf("%w: %s: %v", ErrNodeFailed, action, r)
		}
	}()
	return n(c, ctx, st)
}

// history is the visible user and assistant exchange in model form.
func history(st *domain.ConversationState) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(st.Messages))
	for _, m := range st.Messages {
		if m.Ephemeral || m.Role == domain.RoleSystem {
			continue
		}
		out = append(out, domain.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}
