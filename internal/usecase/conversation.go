package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"event-coordinator/internal/domain"
	"event-coordinator/internal/statestore"
)

const (
	defaultMaxMessageLength = 4000
	fallbackReply           = "I'm still working on that. Could you tell me a bit more?"
)

type StateStore interface {
	Get(ctx context.Context, conversationID string, tenantID *int64) (*domain.ConversationState, bool)
	OwnedByOtherTenant(conversationID string, tenantID *int64) bool
	Create(ctx context.Context, conversationID string, state *domain.ConversationState, tenantID *int64) error
	Update(ctx context.Context, conversationID string, state *domain.ConversationState, tenantID *int64) error
	List(ctx context.Context, tenantID *int64, limit, offset int) []statestore.Summary
	Delete(ctx context.Context, conversationID string, tenantID *int64) bool
	ForceSyncAll(ctx context.Context) error
}

type TurnProcessor interface {
	ProcessTurn(ctx context.Context, st *domain.ConversationState) (*domain.ConversationState, error)
}

type Moderator interface {
	Moderate(ctx context.Context, input string) (bool, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ConversationService exposes the conversation operations to the transport
// layers.
type ConversationService struct {
	store        StateStore
	coordinator  TurnProcessor
	moderator    Moderator
	logger       *slog.Logger
	now          func() time.Time
	maxMessageLn int
}

type Option func(*ConversationService)

// WithModerator screens every user message before it is processed.
func WithModerator(m Moderator) Option {
	return func(s *ConversationService) {
		s.moderator = m
	}
}

func WithMaxMessageLength(n int) Option {
	return func(s *ConversationService) {
		if n > 0 {
			s.maxMessageLn = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ConversationService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ConversationService) {
		if now != nil {
			s.now = now
		}
	}
}

type TurnInput struct {
	ConversationID string
	TenantID       *int64
	Message        string
}

type TurnOutput struct {
	AssistantText  string
	ConversationID string
}

func NewConversationService(store StateStore, coordinator TurnProcessor, opts ...Option) (*ConversationService, error) {
	if store == nil {
		return nil, errors.New("usecase: state store must not be nil")
	}
	if coordinator == nil {
		return nil, errors.New("usecase: coordinator must not be nil")
	}
	s := &ConversationService{
		store:        store,
		coordinator:  coordinator,
		logger:       slog.Default(),
		now:          time.Now,
		maxMessageLn: defaultMaxMessageLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProcessTurn records the user's message, runs the coordinator and persists
// the result. A new conversation is started when the id is empty or unknown.
func (s *ConversationService) ProcessTurn(ctx context.Context, in TurnInput) (TurnOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return TurnOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if utf8.RuneCountInString(message) > s.maxMessageLn {
		return TurnOutput{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	if s.moderator != nil {
		flagged, err := s.moderator.Moderate(ctx, message)
		if err != nil {
			if status, ok := upstreamStatusCode(err); ok && status == 429 {
				return TurnOutput{}, newError(ErrorRateLimited, "moderation_rate_limited", err)
			}
			return TurnOutput{}, newError(ErrorUpstream, "moderation_error", err)
		}
		if flagged {
			return TurnOutput{}, newError(ErrorInvalidQuestion, "moderation_flagged", nil)
		}
	}

	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		convID = newUUID()
	}
	log := s.logger.With("conversation_id", convID)

	if s.store.OwnedByOtherTenant(convID, in.TenantID) {
		log.Warn("conversation belongs to another tenant", "tenant_id", tenantAttr(in.TenantID))
		return TurnOutput{}, newError(ErrorNotAuthorizedForTenant, "tenant_mismatch", nil)
	}

	st, found := s.store.Get(ctx, convID, in.TenantID)
	if !found {
		st = domain.NewConversationState(convID, s.now())
		if in.TenantID != nil {
			t := *in.TenantID
			st.TenantID = &t
		}
	}
	st.AppendMessage(domain.RoleUser, message, s.now())
	userIdx := len(st.Messages) - 1

	next, err := s.coordinator.ProcessTurn(ctx, st)
	if err != nil {
		log.Error("turn processing failed", "err", err)
		return TurnOutput{}, newError(ErrorInternal, "turn_processing_error", err)
	}

	if found {
		err = s.store.Update(ctx, convID, next, in.TenantID)
	} else {
		err = s.store.Create(ctx, convID, next, in.TenantID)
	}
	if err != nil {
		if errors.Is(err, statestore.ErrTenantMismatch) {
			log.Warn("conversation write rejected for tenant", "tenant_id", tenantAttr(in.TenantID))
			return TurnOutput{}, newError(ErrorNotAuthorizedForTenant, "tenant_mismatch", nil)
		}
		return TurnOutput{}, newError(ErrorInternal, "state_write_error", err)
	}

	return TurnOutput{
		AssistantText:  replyAfter(next, userIdx),
		ConversationID: convID,
	}, nil
}

// GetHistory returns the conversation's visible messages.
func (s *ConversationService) GetHistory(ctx context.Context, conversationID string, tenantID *int64) ([]domain.Message, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, newError(ErrorInvalidInput, "empty_conversation_id", nil)
	}
	st, ok := s.store.Get(ctx, conversationID, tenantID)
	if !ok {
		return nil, newError(ErrorNotFound, "conversation_not_found", nil)
	}
	return st.VisibleMessages(), nil
}

func (s *ConversationService) ListConversations(ctx context.Context, tenantID *int64, limit, offset int) ([]statestore.Summary, error) {
	if limit < 0 || offset < 0 {
		return nil, newError(ErrorInvalidInput, "invalid_pagination", nil)
	}
	return s.store.List(ctx, tenantID, limit, offset), nil
}

// DeleteConversation reports whether a conversation visible to the tenant
// was removed.
func (s *ConversationService) DeleteConversation(ctx context.Context, conversationID string, tenantID *int64) (bool, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return false, newError(ErrorInvalidInput, "empty_conversation_id", nil)
	}
	return s.store.Delete(ctx, conversationID, tenantID), nil
}

// SyncAll checkpoints every conversation to the record store.
func (s *ConversationService) SyncAll(ctx context.Context) error {
	if err := s.store.ForceSyncAll(ctx); err != nil {
		return newError(ErrorInternal, "sync_incomplete", err)
	}
	return nil
}

// replyAfter returns the last visible assistant message added after index
// userIdx, or a fallback when the turn produced none.
func replyAfter(st *domain.ConversationState, userIdx int) string {
	for i := len(st.Messages) - 1; i > userIdx; i-- {
		m := st.Messages[i]
		if m.Role == domain.RoleAssistant && !m.Ephemeral {
			return m.Content
		}
	}
	return fallbackReply
}

func tenantAttr(tenantID *int64) any {
	if tenantID == nil {
		return nil
	}
	return *tenantID
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
