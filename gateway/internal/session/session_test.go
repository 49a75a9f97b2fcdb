package session

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelcrush/gateway/internal/domain/repositories"
	"github.com/levelcrush/gateway/internal/infrastructure/database/sqldb"
	"github.com/levelcrush/gateway/migrations"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// roundTrip saves on one request and replays the cookies on a second
func roundTrip(t *testing.T, m *Manager, mutate func(*Session)) *Session {
	t.Helper()

	r1 := httptest.NewRequest(http.MethodGet, "/", nil)
	w1 := httptest.NewRecorder()
	s := m.Get(r1)
	mutate(s)
	require.NoError(t, s.Save(r1, w1))

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w1.Result().Cookies() {
		r2.AddCookie(c)
	}
	return m.Get(r2)
}

func TestCookieSessionRoundTrip(t *testing.T) {
	m := NewManager(NewCookieStore(testKey, time.Hour, false), "")

	s := roundTrip(t, m, func(s *Session) {
		assert.False(t, s.IsAnchored())
		s.SetUser("canon-1", "app-token")
		s.SetReturnURL("https://example.com/profile")
		s.SetState("nonce")
	})

	assert.True(t, s.IsAnchored())
	assert.Equal(t, "canon-1", s.User())
	assert.Equal(t, "app-token", s.Application())
	assert.Equal(t, "https://example.com/profile", s.ReturnURL())
	assert.Equal(t, "nonce", s.State())

	s.ClearState()
	assert.Empty(t, s.State())
}

func TestTamperedCookieYieldsFreshSession(t *testing.T) {
	m := NewManager(NewCookieStore(testKey, time.Hour, false), "")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: DefaultName, Value: "garbage"})
	s := m.Get(r)
	assert.False(t, s.IsAnchored())
}

func newDatabaseStore(t *testing.T) (*DatabaseStore, repositories.SessionRepository) {
	t.Helper()
	conn, err := sqldb.NewConnection(sqldb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.RunMigrations(migrations.FS))

	repo := sqldb.NewSessionRepository(conn.DB)
	return NewDatabaseStore(repo, time.Hour, false, testKey), repo
}

func TestDatabaseSessionRoundTrip(t *testing.T) {
	store, _ := newDatabaseStore(t)
	m := NewManager(store, "")

	s := roundTrip(t, m, func(s *Session) {
		s.SetUser("canon-1", "")
	})
	assert.Equal(t, "canon-1", s.User())
	assert.Empty(t, s.Application())
}

func TestCookieSessionIsEncrypted(t *testing.T) {
	m := NewManager(NewCookieStore(testKey, time.Hour, false), "")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	s := m.Get(r)
	s.SetUser("canon-secret-user", "app-secret-token")
	require.NoError(t, s.Save(r, w))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	// securecookie wire format is base64(date|base64(payload)|mac)
	raw, err := base64.URLEncoding.DecodeString(cookies[0].Value)
	require.NoError(t, err)
	parts := bytes.SplitN(raw, []byte("|"), 3)
	require.Len(t, parts, 3)
	payload, err := base64.URLEncoding.DecodeString(string(parts[1]))
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "canon-secret-user")
	assert.NotContains(t, string(payload), "app-secret-token")

	// a signing-only codec with the same hash key must not read it
	var values map[interface{}]interface{}
	err = securecookie.New(testKey, nil).Decode(DefaultName, cookies[0].Value, &values)
	if err == nil {
		assert.NotEqual(t, "canon-secret-user", values[UserKey])
	}
}

func TestDatabaseSessionIDFitsPostgresColumn(t *testing.T) {
	schema, err := migrations.FS.ReadFile("postgres/000003_sessions.up.sql")
	require.NoError(t, err)
	match := regexp.MustCompile(`(?i)\bid\s+VARCHAR\((\d+)\)`).FindSubmatch(schema)
	require.NotNil(t, match, "sessions.id width not found")
	width, err := strconv.Atoi(string(match[1]))
	require.NoError(t, err)

	store, repo := newDatabaseStore(t)
	for i := 0; i < 10; i++ {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		s, err := store.New(r, DefaultName)
		require.NoError(t, err)
		s.Values[UserKey] = "canon-1"
		require.NoError(t, store.Save(r, w, s))

		assert.LessOrEqual(t, len(s.ID), width)
		_, err = repo.Get(context.Background(), s.ID, time.Now())
		assert.NoError(t, err)
	}
}

func TestDatabaseSessionExpired(t *testing.T) {
	store, _ := newDatabaseStore(t)
	m := NewManager(store, "")

	r1 := httptest.NewRequest(http.MethodGet, "/", nil)
	w1 := httptest.NewRecorder()
	s := m.Get(r1)
	s.SetUser("canon-1", "")
	require.NoError(t, s.Save(r1, w1))

	// two hours later the row has expired
	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	n, err := store.PruneExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w1.Result().Cookies() {
		r2.AddCookie(c)
	}
	assert.False(t, m.Get(r2).IsAnchored())
}

func TestStateSigner(t *testing.T) {
	signer := NewStateSigner(testKey)

	state, nonce, err := signer.Issue("twitch")
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	assert.NoError(t, signer.Verify(state, "twitch", nonce))

	tests := []struct {
		name     string
		state    string
		platform string
		nonce    string
	}{
		{"wrong platform", state, "bungie", nonce},
		{"wrong nonce", state, "twitch", "other"},
		{"no session nonce", state, "twitch", ""},
		{"empty state", "", "twitch", nonce},
		{"timestamp state", "1700000000", "twitch", nonce},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, signer.Verify(tt.state, tt.platform, tt.nonce), ErrInvalidState)
		})
	}
}

func TestStateSignerRejectsForeignKeyAndExpiry(t *testing.T) {
	signer := NewStateSigner(testKey)
	state, nonce, err := signer.Issue("twitch")
	require.NoError(t, err)

	other := NewStateSigner([]byte("another-secret-another-secret-xx"))
	assert.ErrorIs(t, other.Verify(state, "twitch", nonce), ErrInvalidState)

	signer.now = func() time.Time { return time.Now().Add(StateTTL + time.Minute) }
	assert.ErrorIs(t, signer.Verify(state, "twitch", nonce), ErrInvalidState)
}
