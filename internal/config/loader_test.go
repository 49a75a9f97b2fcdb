package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("TEST_DISCORD_SECRET", "shh")
	path := writeConfig(t, `
server:
  port: 9000
  public_url: https://gateway.example.com/
hosts:
  api: https://api.example.com/
  frontend: https://example.com
session:
  secret: `+testSecret+`
  ttl: 1h
database:
  driver: sqlite
  sqlite:
    path: /tmp/gw.db
providers:
  Discord:
    client_id: d-id
    client_secret: ${TEST_DISCORD_SECRET}
  twitch:
    client_id: t-id
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "https://gateway.example.com", cfg.Server.PublicURL)
	assert.Equal(t, "https://api.example.com", cfg.Hosts.API)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, "cookie", cfg.Session.Store)
	assert.Equal(t, "/tmp/gw.db", cfg.Database.DSN())
	assert.Equal(t, "discord", cfg.Anchor)

	discord := cfg.Provider("discord")
	require.NotNil(t, discord)
	assert.Equal(t, "shh", discord.ClientSecret)
	assert.NotNil(t, cfg.Provider("twitch"))
	assert.Nil(t, cfg.Provider("bungie"))
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
session:
  secret: `+testSecret+`
providers:
  discord:
    client_id: d-id
`)
	t.Setenv("GATEWAY_SERVER_PORT", "7000")
	t.Setenv("GATEWAY_HOST_FRONTEND", "https://front.example.com")
	t.Setenv("GATEWAY_SESSION_STORE", "DATABASE")
	t.Setenv("GATEWAY_CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("GATEWAY_DATABASE_POSTGRES_HOST", "db.internal")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "https://front.example.com", cfg.Hosts.Frontend)
	assert.Equal(t, "database", cfg.Session.Store)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.Origins)
	assert.True(t, strings.Contains(cfg.Database.DSN(), "host=db.internal"))
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "short secret",
			body:    "session:\n  secret: short\nproviders:\n  discord:\n    client_id: x\n",
			wantErr: "session.secret",
		},
		{
			name:    "missing anchor provider",
			body:    "session:\n  secret: " + testSecret + "\nproviders:\n  twitch:\n    client_id: x\n",
			wantErr: "anchor provider",
		},
		{
			name:    "unknown provider",
			body:    "session:\n  secret: " + testSecret + "\nproviders:\n  discord:\n    client_id: x\n  myspace:\n    client_id: y\n",
			wantErr: "unknown platform",
		},
		{
			name:    "bungie without api key",
			body:    "session:\n  secret: " + testSecret + "\nproviders:\n  discord:\n    client_id: x\n  bungie:\n    client_id: y\n",
			wantErr: "api_key",
		},
		{
			name:    "bad store",
			body:    "session:\n  secret: " + testSecret + "\n  store: redis\nproviders:\n  discord:\n    client_id: x\n",
			wantErr: "session.store",
		},
		{
			name:    "bad driver",
			body:    "session:\n  secret: " + testSecret + "\ndatabase:\n  driver: mysql\nproviders:\n  discord:\n    client_id: x\n",
			wantErr: "database.driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
