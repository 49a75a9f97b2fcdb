package repositories

import (
	"context"
	"time"
)

// StoredSession is an encoded server-side session record
type StoredSession struct {
	ID        string `db:"id"`
	Data      string `db:"data"`
	ExpiresAt int64  `db:"expires_at"`
	UpdatedAt int64  `db:"updated_at"`
}

// SessionRepository persists server-side browser sessions
type SessionRepository interface {
	// Get returns ErrSessionNotFound for missing or expired rows
	Get(ctx context.Context, id string, now time.Time) (*StoredSession, error)
	Save(ctx context.Context, session *StoredSession) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
