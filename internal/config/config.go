package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/levelcrush/gateway/internal/domain/entities"
)

// Config represents the gateway configuration
type Config struct {
	Server      ServerConfig               `yaml:"server" envPrefix:"SERVER_"`
	Hosts       HostsConfig                `yaml:"hosts" envPrefix:"HOST_"`
	Application ApplicationConfig          `yaml:"application" envPrefix:"APPLICATION_"`
	Session     SessionConfig              `yaml:"session" envPrefix:"SESSION_"`
	Database    DatabaseConfig             `yaml:"database" envPrefix:"DATABASE_"`
	Logging     LoggingConfig              `yaml:"logging" envPrefix:"LOG_"`
	CORS        CORSConfig                 `yaml:"cors" envPrefix:"CORS_"`
	RateLimit   RateLimitConfig            `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Redirects   RedirectConfig             `yaml:"redirects" envPrefix:"REDIRECTS_"`
	Anchor      string                     `yaml:"anchor" env:"ANCHOR"`
	Providers   map[string]*ProviderConfig `yaml:"providers"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host        string `yaml:"host" env:"HOST"`
	Port        int    `yaml:"port" env:"PORT"`
	PublicURL   string `yaml:"public_url" env:"PUBLIC_URL"`     // empty means derive from the request host
	AssetsPath  string `yaml:"assets_path" env:"ASSETS_PATH"`   // optional static directory served at /assets/
	MetricsPort int    `yaml:"metrics_port" env:"METRICS_PORT"` // 0 serves /metrics on the main port
}

// HostsConfig holds the collaborating service locations
type HostsConfig struct {
	API      string `yaml:"api" env:"API"`           // account service base URL
	Frontend string `yaml:"frontend" env:"FRONTEND"` // fallback redirect destination
}

// ApplicationConfig identifies this gateway to the account service
type ApplicationConfig struct {
	Token string `yaml:"token" env:"TOKEN"`
}

// SessionConfig holds browser session configuration
type SessionConfig struct {
	Name   string        `yaml:"name" env:"NAME"`
	Secret string        `yaml:"secret" env:"SECRET"`
	TTL    time.Duration `yaml:"ttl" env:"TTL"`
	Store  string        `yaml:"store" env:"STORE"` // cookie, database
	Secure bool          `yaml:"secure" env:"SECURE"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string         `yaml:"driver" env:"DRIVER"` // postgres, sqlite
	Postgres PostgresConfig `yaml:"postgres" envPrefix:"POSTGRES_"`
	SQLite   SQLiteConfig   `yaml:"sqlite" envPrefix:"SQLITE_"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Database string `yaml:"database" env:"DATABASE"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	SSLMode  string `yaml:"sslmode" env:"SSLMODE"` // disable, require, verify-ca, verify-full
}

// SQLiteConfig holds SQLite configuration
type SQLiteConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" env:"FORMAT"` // json, text
	File   string `yaml:"file" env:"FILE"`
}

// CORSConfig lists origins allowed to make credentialed requests
type CORSConfig struct {
	Origins []string `yaml:"origins" env:"ORIGINS" envSeparator:","`
}

// RateLimitConfig throttles the OAuth entry points per client IP
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" env:"RPS"`
	Burst int     `yaml:"burst" env:"BURST"`
}

// RedirectConfig restricts where callers may be sent after a flow
type RedirectConfig struct {
	AllowedHosts []string `yaml:"allowed_hosts" env:"ALLOWED_HOSTS" envSeparator:","`
}

// ProviderConfig holds one upstream OAuth provider's settings
type ProviderConfig struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthorizeURL string   `yaml:"authorize_url,omitempty"` // overrides the built-in endpoint
	TokenURL     string   `yaml:"token_url,omitempty"`
	ProfileURL   string   `yaml:"profile_url,omitempty"` // API base for profile fetches
	APIKey       string   `yaml:"api_key,omitempty"`     // bungie only
	Scopes       []string `yaml:"scopes,omitempty"`
}

// ConnectionString returns the PostgreSQL connection string
func (p *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// DSN returns the driver-specific data source name
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLite.Path
	}
	return d.Postgres.ConnectionString()
}

// Addr returns host:port for the HTTP listener
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// AnchorPlatform returns the configured anchor as a Platform
func (c *Config) AnchorPlatform() entities.Platform {
	return entities.Platform(c.Anchor)
}

// Provider returns the settings for a platform, or nil when unconfigured
func (c *Config) Provider(p entities.Platform) *ProviderConfig {
	return c.Providers[string(p)]
}
