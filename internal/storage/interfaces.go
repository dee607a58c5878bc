package storage

import (
	"context"

	"evalys-gmpc/internal/domain"
)

// ReceiptStore provides access to verified receipt storage. Inserting a
// receipt whose receipt_id already exists returns ErrDuplicateKey, which is
// how the orchestrator detects replayed receipts.
type ReceiptStore interface {
	// Insert adds a verified receipt. Returns ErrDuplicateKey if receipt_id exists.
	Insert(ctx context.Context, r *domain.ComputationReceipt) error

	// GetByID retrieves a receipt by receipt_id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, receiptID [32]byte) (*domain.ComputationReceipt, error)

	// GetByComputationID retrieves the receipt for a computation.
	// Returns ErrNotFound if not exists.
	GetByComputationID(ctx context.Context, computationID string) (*domain.ComputationReceipt, error)

	// GetByTimeRange retrieves receipts with timestamp within [start, end]
	// (inclusive, unix seconds), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ComputationReceipt, error)
}

// SessionAuditStore provides access to session audit rows.
type SessionAuditStore interface {
	// Insert adds one audit row. Returns ErrDuplicateKey if session_id exists.
	Insert(ctx context.Context, a *domain.SessionAudit) error

	// GetBySessionID retrieves one row. Returns ErrNotFound if not exists.
	GetBySessionID(ctx context.Context, sessionID string) (*domain.SessionAudit, error)

	// GetByTimeRange retrieves rows submitted within [start, end] (inclusive,
	// unix seconds), ordered by submitted_at ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SessionAudit, error)

	// CountByOutcome returns row counts per terminal outcome for sessions
	// submitted within [start, end].
	CountByOutcome(ctx context.Context, start, end int64) (map[domain.SessionOutcome]uint64, error)
}
