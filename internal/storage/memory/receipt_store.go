// Package memory provides in-memory store implementations for tests and
// local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"evalys-gmpc/internal/domain"
	"evalys-gmpc/internal/storage"
)

// ReceiptStore is an in-memory implementation of storage.ReceiptStore.
type ReceiptStore struct {
	mu            sync.RWMutex
	byID          map[[32]byte]*domain.ComputationReceipt
	byComputation map[string]*domain.ComputationReceipt
}

// NewReceiptStore creates an empty in-memory receipt store.
func NewReceiptStore() *ReceiptStore {
	return &ReceiptStore{
		byID:          make(map[[32]byte]*domain.ComputationReceipt),
		byComputation: make(map[string]*domain.ComputationReceipt),
	}
}

// Insert adds a verified receipt. Returns ErrDuplicateKey if the receipt_id
// or the computation_id is already stored; the computation_id uniqueness is
// what replay detection rides on.
func (s *ReceiptStore) Insert(_ context.Context, r *domain.ComputationReceipt) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[r.ReceiptID]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.byComputation[r.ComputationID]; exists {
		return storage.ErrDuplicateKey
	}

	stored := *r
	s.byID[r.ReceiptID] = &stored
	s.byComputation[r.ComputationID] = &stored
	return nil
}

// GetByID retrieves a receipt by receipt_id.
func (s *ReceiptStore) GetByID(_ context.Context, receiptID [32]byte) (*domain.ComputationReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[receiptID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *r
	return &out, nil
}

// GetByComputationID retrieves the receipt for a computation.
func (s *ReceiptStore) GetByComputationID(_ context.Context, computationID string) (*domain.ComputationReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byComputation[computationID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *r
	return &out, nil
}

// GetByTimeRange retrieves receipts with timestamp within [start, end],
// ordered by timestamp ASC.
func (s *ReceiptStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.ComputationReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ComputationReceipt
	for _, r := range s.byID {
		if r.Timestamp >= start && r.Timestamp <= end {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

var _ storage.ReceiptStore = (*ReceiptStore)(nil)
