// Package session provides the typed per-browser session handle used by the
// OAuth handlers, its backing stores and signed OAuth state tokens.
package session

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultName is the default session cookie name
	DefaultName = "gateway_session"

	// UserKey holds the canonical user token once anchored
	UserKey = "user"

	// ApplicationKey holds the application token sent alongside user
	ApplicationKey = "application"

	// ReturnURLKey holds where to send the browser after the OAuth round trip
	ReturnURLKey = "oauth_redirect"

	// StateKey holds the nonce of the outstanding OAuth state token
	StateKey = "oauth_state"
)

// Manager hands out typed sessions from a gorilla/sessions store
type Manager struct {
	store sessions.Store
	name  string
}

// NewManager creates a session manager over any gorilla store
func NewManager(store sessions.Store, name string) *Manager {
	if name == "" {
		name = DefaultName
	}
	return &Manager{store: store, name: name}
}

// CookieOptions returns the cookie settings shared by every store
func CookieOptions(ttl time.Duration, secure bool) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewCookieStore creates a signed and encrypted cookie store. secretKey
// should be at least 32 bytes; the AES key is derived from it.
func NewCookieStore(secretKey []byte, ttl time.Duration, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(KeyPair(secretKey)...)
	store.Options = CookieOptions(ttl, secure)
	store.MaxAge(store.Options.MaxAge)
	return store
}

// KeyPair returns the hash and block keys for secretKey
func KeyPair(secretKey []byte) [][]byte {
	blockKey := blake2b.Sum256(append([]byte("session-block:"), secretKey...))
	return [][]byte{secretKey, blockKey[:]}
}

// Get returns the request's session. An undecodable cookie yields a fresh
// session rather than an error.
func (m *Manager) Get(r *http.Request) *Session {
	s, err := m.store.Get(r, m.name)
	if err != nil || s == nil {
		s, _ = m.store.New(r, m.name)
		if s == nil {
			s = sessions.NewSession(m.store, m.name)
		}
		s.IsNew = true
	}
	return &Session{s: s}
}

// Session is a typed view over the session values
type Session struct {
	s *sessions.Session
}

func (s *Session) str(key string) string {
	v, _ := s.s.Values[key].(string)
	return v
}

// User returns the canonical user token, or "" when not anchored
func (s *Session) User() string {
	return s.str(UserKey)
}

// IsAnchored reports whether the session carries a canonical user
func (s *Session) IsAnchored() bool {
	return s.User() != ""
}

// Application returns the application token stored at login
func (s *Session) Application() string {
	return s.str(ApplicationKey)
}

// SetUser marks the session authenticated
func (s *Session) SetUser(user, application string) {
	s.s.Values[UserKey] = user
	if application != "" {
		s.s.Values[ApplicationKey] = application
	}
}

// ReturnURL returns the stored post-OAuth destination
func (s *Session) ReturnURL() string {
	return s.str(ReturnURLKey)
}

// SetReturnURL stores the post-OAuth destination
func (s *Session) SetReturnURL(u string) {
	s.s.Values[ReturnURLKey] = u
}

// State returns the outstanding OAuth state nonce
func (s *Session) State() string {
	return s.str(StateKey)
}

// SetState stores the outstanding OAuth state nonce
func (s *Session) SetState(nonce string) {
	s.s.Values[StateKey] = nonce
}

// ClearState drops the state nonce so a callback cannot be replayed
func (s *Session) ClearState() {
	delete(s.s.Values, StateKey)
}

// Save writes the session. Callers must save before writing the response.
func (s *Session) Save(r *http.Request, w http.ResponseWriter) error {
	return s.s.Save(r, w)
}
