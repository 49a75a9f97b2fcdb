package accounts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelcrush/gateway/internal/pkg/logger"
)

func newTestServer(t *testing.T, handler func(path string, body map[string]any) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handler(r.URL.Path, body))
	}))
}

func ok(response any) map[string]any {
	return map[string]any{"success": true, "response": response, "errors": []any{}}
}

func TestRegister(t *testing.T) {
	srv := newTestServer(t, func(path string, body map[string]any) any {
		assert.Equal(t, "/user/register", path)
		assert.Equal(t, "a@example.com", body["email"])
		assert.Equal(t, body["password"], body["passwordConfirm"])
		assert.Equal(t, "nelly#1337", body["displayName"])
		return ok(map[string]any{"user": map[string]any{"token": "canon-1"}})
	})
	defer srv.Close()

	c := NewClient(srv.URL+"/", "app", srv.Client(), logger.Discard())
	token, err := c.Register(context.Background(), "a@example.com", "pw", "nelly#1337")
	require.NoError(t, err)
	assert.Equal(t, "canon-1", token)
}

func TestExists(t *testing.T) {
	srv := newTestServer(t, func(path string, body map[string]any) any {
		assert.Equal(t, "/user/exists", path)
		_, byToken := body["token"]
		return ok(map[string]any{"exists": byToken && body["user"] == "canon-1"})
	})
	defer srv.Close()

	c := NewClient(srv.URL, "app", srv.Client(), logger.Discard())

	exists, err := c.Exists(context.Background(), "canon-1", true)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.Exists(context.Background(), "canon-1", false)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUpdateDisplayNameSendsApplication(t *testing.T) {
	srv := newTestServer(t, func(path string, body map[string]any) any {
		assert.Equal(t, "/user/update", path)
		assert.Equal(t, "app-token", body["application"])
		assert.Equal(t, "canon-1", body["user"])
		return ok(map[string]any{})
	})
	defer srv.Close()

	c := NewClient(srv.URL, "app-token", srv.Client(), logger.Discard())
	assert.NoError(t, c.UpdateDisplayName(context.Background(), "canon-1", "nelly"))
}

func TestRequestFailures(t *testing.T) {
	t.Run("success false", func(t *testing.T) {
		srv := newTestServer(t, func(string, map[string]any) any {
			return map[string]any{"success": false, "response": map[string]any{}, "errors": []any{"email taken"}}
		})
		defer srv.Close()

		c := NewClient(srv.URL, "", srv.Client(), logger.Discard())
		_, err := c.Register(context.Background(), "a@example.com", "pw", "n")
		assert.ErrorIs(t, err, ErrRequestFailed)
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "", srv.Client(), logger.Discard())
		_, err := c.Exists(context.Background(), "x", true)
		assert.ErrorIs(t, err, ErrRequestFailed)
	})

	t.Run("missing token", func(t *testing.T) {
		srv := newTestServer(t, func(string, map[string]any) any {
			return ok(map[string]any{"user": map[string]any{}})
		})
		defer srv.Close()

		c := NewClient(srv.URL, "", srv.Client(), logger.Discard())
		_, err := c.Register(context.Background(), "a@example.com", "pw", "n")
		assert.ErrorIs(t, err, ErrRequestFailed)
	})
}
