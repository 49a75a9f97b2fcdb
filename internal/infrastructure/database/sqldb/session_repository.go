package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/levelcrush/gateway/internal/domain/repositories"
	"github.com/levelcrush/gateway/internal/pkg/metrics"
)

// SessionRepository implements repositories.SessionRepository
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new stored-session repository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Get loads an unexpired session
func (r *SessionRepository) Get(ctx context.Context, id string, now time.Time) (*repositories.StoredSession, error) {
	start := time.Now()
	query := r.db.Rebind(`SELECT id, data, expires_at, updated_at FROM sessions WHERE id = ? AND expires_at > ?`)

	var s repositories.StoredSession
	err := r.db.GetContext(ctx, &s, query, id, now.Unix())
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBOperation("session", "get", time.Since(start), 0, nil)
		return nil, repositories.ErrSessionNotFound
	}
	metrics.RecordDBOperation("session", "get", time.Since(start), -1, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

// Save upserts a session record
func (r *SessionRepository) Save(ctx context.Context, s *repositories.StoredSession) error {
	start := time.Now()
	query := r.db.Rebind(`INSERT INTO sessions (id, data, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`)

	result, err := r.db.ExecContext(ctx, query, s.ID, s.Data, s.ExpiresAt, s.UpdatedAt)
	metrics.RecordDBOperation("session", "save", time.Since(start), rowsAffected(result, err), err)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session record
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	start := time.Now()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE id = ?`), id)
	metrics.RecordDBOperation("session", "delete", time.Since(start), rowsAffected(result, err), err)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired prunes sessions that expired before the given time
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	start := time.Now()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`), before.Unix())
	rows := rowsAffected(result, err)
	metrics.RecordDBOperation("session", "delete_expired", time.Since(start), rows, err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return rows, nil
}

// Ensure SessionRepository implements repositories.SessionRepository
var _ repositories.SessionRepository = (*SessionRepository)(nil)
