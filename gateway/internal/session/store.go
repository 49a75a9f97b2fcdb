package session

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"github.com/levelcrush/gateway/internal/domain/repositories"
)

// DatabaseStore keeps session values server-side; the cookie carries only the
// signed session ID
type DatabaseStore struct {
	Codecs  []securecookie.Codec
	Options *sessions.Options
	repo    repositories.SessionRepository
	now     func() time.Time
}

// NewDatabaseStore creates a store backed by a SessionRepository
func NewDatabaseStore(repo repositories.SessionRepository, ttl time.Duration, secure bool, keyPairs ...[]byte) *DatabaseStore {
	store := &DatabaseStore{
		Codecs:  securecookie.CodecsFromPairs(keyPairs...),
		Options: CookieOptions(ttl, secure),
		repo:    repo,
		now:     time.Now,
	}
	for _, c := range store.Codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(store.Options.MaxAge)
		}
	}
	return store
}

// Get returns a session for the given name after adding it to the registry
func (s *DatabaseStore) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(s, name)
}

// New returns a session for the given name without adding it to the registry
func (s *DatabaseStore) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, errCookie := r.Cookie(name)
	if errCookie != nil {
		return session, nil
	}

	err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.Codecs...)
	if err != nil {
		return session, err
	}

	err = s.load(r.Context(), session)
	if errors.Is(err, repositories.ErrSessionNotFound) {
		// expired or pruned: start over with a new ID
		session.ID = ""
		return session, nil
	}
	if err == nil {
		session.IsNew = false
	}
	return session, err
}

// Save persists the session and sets the ID cookie. MaxAge <= 0 deletes it.
func (s *DatabaseStore) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if session.Options.MaxAge <= 0 {
		if session.ID != "" {
			if err := s.repo.Delete(r.Context(), session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(sessionIDBytes)), "=")
	}

	if err := s.save(r.Context(), session); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.Codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// PruneExpired deletes every expired session row
func (s *DatabaseStore) PruneExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func (s *DatabaseStore) save(ctx context.Context, session *sessions.Session) error {
	encoded, err := securecookie.EncodeMulti(session.Name(), session.Values, s.Codecs...)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	now := s.now()
	return s.repo.Save(ctx, &repositories.StoredSession{
		ID:        session.ID,
		Data:      encoded,
		ExpiresAt: now.Add(time.Duration(session.Options.MaxAge) * time.Second).Unix(),
		UpdatedAt: now.Unix(),
	})
}

func (s *DatabaseStore) load(ctx context.Context, session *sessions.Session) error {
	stored, err := s.repo.Get(ctx, session.ID, s.now())
	if err != nil {
		return err
	}
	if err := securecookie.DecodeMulti(session.Name(), stored.Data, &session.Values, s.Codecs...); err != nil {
		return fmt.Errorf("failed to decode session: %w", err)
	}
	return nil
}

// sessionIDBytes of entropy encode to 32 base32 characters, the width of
// the sessions.id column.
const sessionIDBytes = 20

var _ sessions.Store = (*DatabaseStore)(nil)
