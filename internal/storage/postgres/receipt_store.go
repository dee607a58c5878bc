package postgres

import (
	"context"
	"fmt"
	"time"

	"evalys-gmpc/internal/domain"
	"evalys-gmpc/internal/observability"
	"evalys-gmpc/internal/storage"
)

// ReceiptStore implements storage.ReceiptStore on PostgreSQL.
type ReceiptStore struct {
	pool *Pool
}

// NewReceiptStore creates a Postgres-backed receipt store.
func NewReceiptStore(pool *Pool) *ReceiptStore {
	return &ReceiptStore{pool: pool}
}

// Insert adds a verified receipt. Returns ErrDuplicateKey if receipt_id exists.
func (s *ReceiptStore) Insert(ctx context.Context, r *domain.ComputationReceipt) error {
	if r == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO receipts (receipt_id, computation_id, result_hash, signature, receipt_ts, status)
		VALUES ($1, $2, $3, $4, $5, $6)`

	start := time.Now()
	_, err := s.pool.Exec(ctx, query,
		r.ReceiptID[:],
		r.ComputationID,
		r.ResultHash[:],
		r.Signature[:],
		r.Timestamp,
		string(r.Status),
	)
	observability.RecordDBQuery("postgres", "insert_receipt", time.Since(start).Seconds(), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

// GetByID retrieves a receipt by receipt_id.
func (s *ReceiptStore) GetByID(ctx context.Context, receiptID [32]byte) (*domain.ComputationReceipt, error) {
	query := `
		SELECT receipt_id, computation_id, result_hash, signature, receipt_ts, status
		FROM receipts
		WHERE receipt_id = $1`

	return s.scanOne(s.pool.QueryRow(ctx, query, receiptID[:]))
}

// GetByComputationID retrieves the receipt for a computation.
func (s *ReceiptStore) GetByComputationID(ctx context.Context, computationID string) (*domain.ComputationReceipt, error) {
	query := `
		SELECT receipt_id, computation_id, result_hash, signature, receipt_ts, status
		FROM receipts
		WHERE computation_id = $1`

	return s.scanOne(s.pool.QueryRow(ctx, query, computationID))
}

// GetByTimeRange retrieves receipts with timestamp within [start, end],
// ordered by timestamp ASC.
func (s *ReceiptStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.ComputationReceipt, error) {
	query := `
		SELECT receipt_id, computation_id, result_hash, signature, receipt_ts, status
		FROM receipts
		WHERE receipt_ts >= $1 AND receipt_ts <= $2
		ORDER BY receipt_ts ASC`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query receipts by time range: %w", err)
	}
	defer rows.Close()

	var out []*domain.ComputationReceipt
	for rows.Next() {
		r, err := s.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return out, nil
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *ReceiptStore) scanOne(row rowScanner) (*domain.ComputationReceipt, error) {
	var (
		r          domain.ComputationReceipt
		receiptID  []byte
		resultHash []byte
		signature  []byte
		status     string
	)
	err := row.Scan(&receiptID, &r.ComputationID, &resultHash, &signature, &r.Timestamp, &status)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan receipt: %w", err)
	}
	if len(receiptID) != 32 || len(resultHash) != 32 || len(signature) != 64 {
		return nil, fmt.Errorf("%w: malformed receipt row", storage.ErrInvalidInput)
	}
	copy(r.ReceiptID[:], receiptID)
	copy(r.ResultHash[:], resultHash)
	copy(r.Signature[:], signature)
	r.Status = domain.ComputationStatus(status)
	return &r, nil
}

var _ storage.ReceiptStore = (*ReceiptStore)(nil)
