package memory

import (
	"context"
	"sort"
	"sync"

	"evalys-gmpc/internal/domain"
	"evalys-gmpc/internal/storage"
)

// SessionAuditStore is an in-memory implementation of storage.SessionAuditStore.
type SessionAuditStore struct {
	mu   sync.RWMutex
	rows map[string]*domain.SessionAudit
}

// NewSessionAuditStore creates an empty in-memory audit store.
func NewSessionAuditStore() *SessionAuditStore {
	return &SessionAuditStore{rows: make(map[string]*domain.SessionAudit)}
}

// Insert adds one audit row. Returns ErrDuplicateKey if session_id exists.
func (s *SessionAuditStore) Insert(_ context.Context, a *domain.SessionAudit) error {
	if a == nil || a.SessionID == "" || !a.Outcome.Valid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rows[a.SessionID]; exists {
		return storage.ErrDuplicateKey
	}

	stored := *a
	s.rows[a.SessionID] = &stored
	return nil
}

// GetBySessionID retrieves one audit row.
func (s *SessionAuditStore) GetBySessionID(_ context.Context, sessionID string) (*domain.SessionAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.rows[sessionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *a
	return &out, nil
}

// GetByTimeRange retrieves rows submitted within [start, end], ordered by
// submitted_at ASC.
func (s *SessionAuditStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.SessionAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.SessionAudit
	for _, a := range s.rows {
		if a.SubmittedAt >= start && a.SubmittedAt <= end {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt < out[j].SubmittedAt })
	return out, nil
}

// CountByOutcome returns row counts per terminal outcome.
func (s *SessionAuditStore) CountByOutcome(_ context.Context, start, end int64) (map[domain.SessionOutcome]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.SessionOutcome]uint64)
	for _, a := range s.rows {
		if a.SubmittedAt >= start && a.SubmittedAt <= end {
			counts[a.Outcome]++
		}
	}
	return counts, nil
}

var _ storage.SessionAuditStore = (*SessionAuditStore)(nil)
