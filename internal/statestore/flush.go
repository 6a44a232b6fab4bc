package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"event-coordinator/internal/domain"
)

// ForceSyncAll writes every in-memory conversation to the record store,
// regardless of the flush timer. Individual failures do not stop the batch;
// they are joined into the returned error.
func (s *Store) ForceSyncAll(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	err := s.flushAllLocked(ctx)
	s.lastFlush.Store(s.now().UnixNano())
	return err
}

// maybeFlush runs a full flush when the interval has elapsed. Concurrent
// callers that lose the race see the reset timer and return.
func (s *Store) maybeFlush(ctx context.Context) {
	if !s.flushDue() {
		return
	}
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	if !s.flushDue() {
		return
	}
	if err := s.flushAllLocked(ctx); err != nil {
		s.logger.Warn("periodic flush incomplete", "err", err)
	}
	s.lastFlush.Store(s.now().UnixNano())
}

func (s *Store) flushDue() bool {
	return s.now().UnixNano()-s.lastFlush.Load() > int64(s.flushInterval)
}

// flushOne persists a single conversation. Errors are logged only.
func (s *Store) flushOne(ctx context.Context, conversationID string) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()
	if err := s.persist(ctx, conversationID); err != nil {
		s.logger.Error("failed to persist conversation", "conversation_id", conversationID, "err", err)
	}
}

// flushAllLocked persists every conversation. The caller holds flushMu.
func (s *Store) flushAllLocked(ctx context.Context) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var (
		errMu sync.Mutex
		errs  []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.flushConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := s.persist(gctx, id); err != nil {
				s.logger.Error("failed to persist conversation", "conversation_id", id, "err", err)
				errMu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				errMu.Unlock()
			}
			// Failures are collected, never returned, so the group keeps going.
			return nil
		})
	}
	_ = g.Wait()
	if len(errs) > 0 {
		return fmt.Errorf("statestore: %d of %d conversations not persisted: %w", len(errs), len(ids), errors.Join(errs...))
	}
	return nil
}

// persist writes one conversation to its durable row, creating the row on
// first use. The caller holds flushMu.
func (s *Store) persist(ctx context.Context, conversationID string) error {
	s.mu.RLock()
	st, ok := s.states[conversationID]
	if !ok {
		s.mu.RUnlock()
		return nil
	}
	snapshot := st.Clone()
	s.mu.RUnlock()

	recordID, found, err := s.resolveRecordID(ctx, snapshot)
	if err != nil {
		return err
	}
	if !found {
		blob, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
		id, err := s.records.CreateRecord(ctx, s.record(snapshot, blob))
		if err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		s.rememberRecordID(conversationID, id)
		s.logger.Debug("conversation record created", "conversation_id", conversationID, "record_id", id)
		return nil
	}

	if snapshot.DBRecordID == nil {
		s.rememberRecordID(conversationID, recordID)
	}
	snapshot.DBRecordID = &recordID
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	rec := s.record(snapshot, blob)
	rec.ID = recordID
	if err := s.records.UpdateRecord(ctx, rec); err != nil {
		return fmt.Errorf("update record %d: %w", recordID, err)
	}
	return nil
}

// resolveRecordID finds the durable row for a conversation: the remembered
// id first, then the conversation id itself when it is numeric and names a
// row this conversation may own.
func (s *Store) resolveRecordID(ctx context.Context, st *domain.ConversationState) (int64, bool, error) {
	if st.DBRecordID != nil {
		return *st.DBRecordID, true, nil
	}
	n, err := strconv.ParseInt(st.ConversationID, 10, 64)
	if err != nil || n <= 0 {
		return 0, false, nil
	}
	if s.recordClaimed(n, st.ConversationID) {
		return 0, false, nil
	}
	rec, ok, err := s.records.GetRecord(ctx, n)
	if err != nil {
		return 0, false, fmt.Errorf("lookup record %d: %w", n, err)
	}
	if !ok || !adoptable(rec, st) {
		return 0, false, nil
	}
	return rec.ID, true, nil
}

// adoptable reports whether st may take over rec. The row must belong to the
// same conversation, or carry no conversation at all, and its tenant must not
// be dropped or changed.
func adoptable(rec domain.Record, st *domain.ConversationState) bool {
	if rec.TenantID != nil && (st.TenantID == nil || *rec.TenantID != *st.TenantID) {
		return false
	}
	var owner struct {
		ConversationID string `json:"conversation_id"`
	}
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, &owner); err != nil {
			return false
		}
	}
	return owner.ConversationID == "" || owner.ConversationID == st.ConversationID
}

// recordClaimed reports whether another in-memory conversation already maps
// to row id.
func (s *Store) recordClaimed(id int64, conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for cid, other := range s.states {
		if cid != conversationID && other.DBRecordID != nil && *other.DBRecordID == id {
			return true
		}
	}
	return false
}

func (s *Store) rememberRecordID(conversationID string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[conversationID]; ok && st.DBRecordID == nil {
		st.DBRecordID = &id
	}
}

func (s *Store) record(st *domain.ConversationState, blob []byte) domain.Record {
	agentType := st.AgentType
	if agentType == "" {
		agentType = domain.CoordinatorAgentType
	}
	var tenant *int64
	if st.TenantID != nil {
		t := *st.TenantID
		tenant = &t
	}
	return domain.Record{
		TenantID:  tenant,
		Title:     recordTitle(agentType, st.ConversationID),
		AgentType: agentType,
		State:     blob,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}

// recordTitle is the human-readable name stored alongside a record.
func recordTitle(agentType, conversationID string) string {
	return fmt.Sprintf("%s conversation %s", agentType, conversationID)
}
