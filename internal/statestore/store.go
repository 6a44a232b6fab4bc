// Package statestore keeps live conversation state in memory, scoped by
// tenant, and persists it to a durable record store.
//
// Every write is flushed synchronously for the conversation it touches.
// Reads additionally trigger a full flush of all conversations once the
// configured interval has elapsed since the previous full flush. Durable
// writes are best-effort: a failed flush is logged and the in-memory state
// stays authoritative.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"event-coordinator/internal/domain"
)

const (
	defaultFlushInterval    = 60 * time.Second
	defaultFlushConcurrency = 4
)

// ErrTenantMismatch is returned by writes that target a conversation pinned
// to a different tenant. Nothing is written in that case.
var ErrTenantMismatch = errors.New("statestore: conversation belongs to another tenant")

// RecordStore is the durable row store behind the in-memory map.
type RecordStore interface {
	CreateRecord(ctx context.Context, rec domain.Record) (int64, error)
	GetRecord(ctx context.Context, id int64) (domain.Record, bool, error)
	UpdateRecord(ctx context.Context, rec domain.Record) error
	DeleteRecord(ctx context.Context, id int64) error
	ListRecords(ctx context.Context, tenantID *int64) ([]domain.Record, error)
}

// Store is the tenant-aware conversation state store. The map is only
// reachable through Store methods.
type Store struct {
	records          RecordStore
	logger           *slog.Logger
	now              func() time.Time
	flushInterval    time.Duration
	flushConcurrency int
	tenantID         *int64

	mu     sync.RWMutex
	states map[string]*domain.ConversationState

	// flushMu serialises every durable write so a conversation is never
	// mapped to two rows. It also gates the periodic full flush.
	flushMu   sync.Mutex
	lastFlush atomic.Int64
}

type Option func(*Store)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFlushInterval sets how long reads wait between full flushes.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// WithFlushConcurrency bounds how many conversations a full flush writes at once.
func WithFlushConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.flushConcurrency = n
		}
	}
}

// WithTenant restricts the startup load to a single tenant's records.
func WithTenant(tenantID int64) Option {
	return func(s *Store) {
		s.tenantID = &tenantID
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Store and loads every durable record into memory. Rows that
// cannot be decoded are skipped with a warning.
func New(ctx context.Context, records RecordStore, opts ...Option) (*Store, error) {
	if records == nil {
		return nil, errors.New("statestore: record store must not be nil")
	}
	s := &Store{
		records:          records,
		logger:           slog.Default(),
		now:              time.Now,
		flushInterval:    defaultFlushInterval,
		flushConcurrency: defaultFlushConcurrency,
		states:           map[string]*domain.ConversationState{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	s.lastFlush.Store(s.now().UnixNano())
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	recs, err := s.records.ListRecords(ctx, s.tenantID)
	if err != nil {
		return fmt.Errorf("statestore: load records: %w", err)
	}
	for _, rec := range recs {
		var st domain.ConversationState
		if err := json.Unmarshal(rec.State, &st); err != nil {
			s.logger.Warn("skipping unreadable conversation record", "record_id", rec.ID, "err", err)
			continue
		}
		if st.ConversationID == "" {
			s.logger.Warn("skipping conversation record without id", "record_id", rec.ID)
			continue
		}
		if !st.Phase.Valid() {
			s.logger.Warn("skipping conversation record with unknown phase", "record_id", rec.ID, "phase", st.Phase)
			continue
		}
		id := rec.ID
		st.DBRecordID = &id
		if st.TenantID == nil && rec.TenantID != nil {
			t := *rec.TenantID
			st.TenantID = &t
		}
		if st.AgentResults == nil {
			st.AgentResults = map[string]json.RawMessage{}
		}
		if prev, ok := s.states[st.ConversationID]; ok && prev.UpdatedAt.After(st.UpdatedAt) {
			s.logger.Warn("duplicate conversation record ignored", "conversation_id", st.ConversationID, "record_id", rec.ID)
			continue
		}
		s.states[st.ConversationID] = &st
	}
	s.logger.Info("conversation state loaded", "conversations", len(s.states))
	return nil
}

// Get returns a copy of the conversation's state. A conversation pinned to a
// different tenant is reported as absent.
func (s *Store) Get(ctx context.Context, conversationID string, tenantID *int64) (*domain.ConversationState, bool) {
	s.maybeFlush(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[conversationID]
	if !ok || !visibleTo(st, tenantID) {
		return nil, false
	}
	return st.Clone(), true
}

// OwnedByOtherTenant reports whether the conversation exists and is pinned to
// a tenant other than tenantID. Such a conversation is invisible to Get and
// any write for it fails with ErrTenantMismatch.
func (s *Store) OwnedByOtherTenant(conversationID string, tenantID *int64) bool {
	if tenantID == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[conversationID]
	return ok && st.TenantID != nil && *st.TenantID != *tenantID
}

// Update replaces the conversation's state and flushes it to the record
// store before returning.
func (s *Store) Update(ctx context.Context, conversationID string, state *domain.ConversationState, tenantID *int64) error {
	return s.put(ctx, conversationID, state, tenantID, false)
}

// Create is Update for a new conversation; it also stamps the creation time.
func (s *Store) Create(ctx context.Context, conversationID string, state *domain.ConversationState, tenantID *int64) error {
	return s.put(ctx, conversationID, state, tenantID, true)
}

func (s *Store) put(ctx context.Context, conversationID string, state *domain.ConversationState, tenantID *int64, create bool) error {
	if conversationID == "" {
		return errors.New("statestore: conversation id must not be empty")
	}
	if state == nil {
		return errors.New("statestore: state must not be nil")
	}
	if !state.Phase.Valid() {
		return fmt.Errorf("statestore: invalid phase %q", state.Phase)
	}

	st := state.Clone()
	st.ConversationID = conversationID
	if st.TenantID == nil && tenantID != nil {
		t := *tenantID
		st.TenantID = &t
	}
	now := s.now().UTC()
	if create {
		st.CreatedAt = now
	}
	st.UpdatedAt = now

	s.mu.Lock()
	if existing, ok := s.states[conversationID]; ok {
		if existing.TenantID != nil {
			if st.TenantID != nil && *st.TenantID != *existing.TenantID {
				s.mu.Unlock()
				return ErrTenantMismatch
			}
			t := *existing.TenantID
			st.TenantID = &t
		}
		if st.DBRecordID == nil && existing.DBRecordID != nil {
			id := *existing.DBRecordID
			st.DBRecordID = &id
		}
		if create && !existing.CreatedAt.IsZero() {
			st.CreatedAt = existing.CreatedAt
		}
	}
	s.states[conversationID] = st
	s.mu.Unlock()

	s.flushOne(ctx, conversationID)
	return nil
}

// Delete removes a conversation from memory and then from the record store.
// It returns false when the conversation is absent or pinned to another
// tenant. A failed durable delete is logged and still reported as success.
func (s *Store) Delete(ctx context.Context, conversationID string, tenantID *int64) bool {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	st, ok := s.states[conversationID]
	if !ok || !visibleTo(st, tenantID) {
		s.mu.Unlock()
		return false
	}
	delete(s.states, conversationID)
	s.mu.Unlock()

	if st.DBRecordID != nil {
		if err := s.records.DeleteRecord(ctx, *st.DBRecordID); err != nil {
			s.logger.Error("failed to delete conversation record", "conversation_id", conversationID, "record_id", *st.DBRecordID, "err", err)
		}
	}
	return true
}

// visibleTo reports whether tenantID may see st. A nil tenant sees everything.
func visibleTo(st *domain.ConversationState, tenantID *int64) bool {
	if tenantID == nil || st.TenantID == nil {
		return true
	}
	return *st.TenantID == *tenantID
}
