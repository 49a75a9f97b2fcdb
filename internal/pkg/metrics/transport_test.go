package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{
			name:     "bungie user by id",
			path:     "/Platform/User/GetBungieNetUserById/12345/",
			expected: "/Platform/User/GetBungieNetUserById/:id/",
		},
		{
			name:     "bungie memberships with all-platform type",
			path:     "/Platform/User/GetMembershipsById/12345/-1/",
			expected: "/Platform/User/GetMembershipsById/:id/:type/",
		},
		{
			name:     "discord current user",
			path:     "/api/v9/users/@me",
			expected: "/api/v9/users/@me",
		},
		{
			name:     "trailing numeric segment",
			path:     "/users/987654321",
			expected: "/users/:id",
		},
		{
			name:     "adjacent numeric segments",
			path:     "/a/1/2/b",
			expected: "/a/:id/:id/b",
		},
		{
			name:     "empty path",
			path:     "",
			expected: "/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeRoute(tt.path); got != tt.expected {
				t.Errorf("NormalizeRoute(%q) = %q, want %q", tt.path, got, tt.expected)
			}
		})
	}
}

func TestClassifyUpstreamError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		expected   string
	}{
		{"timeout", 0, errors.New("context deadline exceeded"), "timeout"},
		{"connection", 0, errors.New("connection refused"), "connection"},
		{"network", 0, errors.New("no such host"), "network"},
		{"unauthorized", 401, nil, "unauthorized"},
		{"rate limited", 429, nil, "rate_limited"},
		{"server error", 503, nil, "server_error"},
		{"client error", 418, nil, "client_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyUpstreamError(tt.statusCode, tt.err); got != tt.expected {
				t.Errorf("classifyUpstreamError(%d, %v) = %q, want %q", tt.statusCode, tt.err, got, tt.expected)
			}
		})
	}
}

func TestUpstreamClientPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	client := NewUpstreamClient("test", nil, 5*time.Second)
	resp, err := client.Get(srv.URL + "/things/42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusTeapot)
	}
}
