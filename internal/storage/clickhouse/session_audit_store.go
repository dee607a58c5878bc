package clickhouse

import (
	"context"
	"fmt"
	"time"

	"evalys-gmpc/internal/domain"
	"evalys-gmpc/internal/observability"
	"evalys-gmpc/internal/storage"
)

// SessionAuditStore implements storage.SessionAuditStore using ClickHouse.
type SessionAuditStore struct {
	conn *Conn
}

// NewSessionAuditStore creates a new SessionAuditStore.
func NewSessionAuditStore(conn *Conn) *SessionAuditStore {
	return &SessionAuditStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SessionAuditStore = (*SessionAuditStore)(nil)

// Insert adds one audit row. Returns ErrDuplicateKey if session_id exists.
func (s *SessionAuditStore) Insert(ctx context.Context, a *domain.SessionAudit) error {
	if a == nil || a.SessionID == "" || !a.Outcome.Valid() {
		return storage.ErrInvalidInput
	}

	// MergeTree does not enforce uniqueness, so check before insert for
	// append-only semantics.
	exists, err := s.exists(ctx, a.SessionID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO session_audit (
			session_id, circuit, computation_id, outcome, failure_kind,
			polls, submitted_at, finished_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	start := time.Now()
	err = s.conn.Exec(ctx, query,
		a.SessionID, string(a.Circuit), a.ComputationID, string(a.Outcome), a.FailureKind,
		a.Polls, a.SubmittedAt, a.FinishedAt, a.DurationMs,
	)
	observability.RecordDBQuery("clickhouse", "insert_session_audit", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("insert session audit: %w", err)
	}
	return nil
}

func (s *SessionAuditStore) exists(ctx context.Context, sessionID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count() FROM session_audit WHERE session_id = ?`, sessionID,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetBySessionID retrieves one audit row.
func (s *SessionAuditStore) GetBySessionID(ctx context.Context, sessionID string) (*domain.SessionAudit, error) {
	query := `
		SELECT session_id, circuit, computation_id, outcome, failure_kind,
		       polls, submitted_at, finished_at, duration_ms
		FROM session_audit
		WHERE session_id = ?
		LIMIT 1
	`

	var (
		a       domain.SessionAudit
		circuit string
		outcome string
	)
	err := s.conn.QueryRow(ctx, query, sessionID).Scan(
		&a.SessionID, &circuit, &a.ComputationID, &outcome, &a.FailureKind,
		&a.Polls, &a.SubmittedAt, &a.FinishedAt, &a.DurationMs,
	)
	if err != nil {
		return nil, storage.ErrNotFound
	}
	a.Circuit = domain.CircuitID(circuit)
	a.Outcome = domain.SessionOutcome(outcome)
	return &a, nil
}

// GetByTimeRange retrieves rows submitted within [start, end], ordered by
// submitted_at ASC.
func (s *SessionAuditStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.SessionAudit, error) {
	query := `
		SELECT session_id, circuit, computation_id, outcome, failure_kind,
		       polls, submitted_at, finished_at, duration_ms
		FROM session_audit
		WHERE submitted_at >= ? AND submitted_at <= ?
		ORDER BY submitted_at ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query session audit by time range: %w", err)
	}
	defer rows.Close()

	var out []*domain.SessionAudit
	for rows.Next() {
		var (
			a       domain.SessionAudit
			circuit string
			outcome string
		)
		if err := rows.Scan(
			&a.SessionID, &circuit, &a.ComputationID, &outcome, &a.FailureKind,
			&a.Polls, &a.SubmittedAt, &a.FinishedAt, &a.DurationMs,
		); err != nil {
			return nil, fmt.Errorf("scan session audit row: %w", err)
		}
		a.Circuit = domain.CircuitID(circuit)
		a.Outcome = domain.SessionOutcome(outcome)
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session audit rows: %w", err)
	}
	return out, nil
}

// CountByOutcome returns row counts per terminal outcome.
func (s *SessionAuditStore) CountByOutcome(ctx context.Context, start, end int64) (map[domain.SessionOutcome]uint64, error) {
	query := `
		SELECT outcome, count()
		FROM session_audit
		WHERE submitted_at >= ? AND submitted_at <= ?
		GROUP BY outcome
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("count session audit by outcome: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.SessionOutcome]uint64)
	for rows.Next() {
		var (
			outcome string
			count   uint64
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[domain.SessionOutcome(outcome)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome counts: %w", err)
	}
	return counts, nil
}
