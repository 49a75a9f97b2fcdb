package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gosimple/slug"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/levelcrush/gateway/internal/domain/entities"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "GATEWAY_"

// expandEnvVars expands environment variables in the format ${VAR} or $VAR
func expandEnvVars(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}

// DefaultConfigPaths defines the default locations to search for configuration files
var DefaultConfigPaths = []string{
	"./config.yaml",
	"./config.yml",
	"./configs/gateway.yaml",
	"./configs/gateway.yml",
	"./configs/development.yaml",
	"/etc/gateway/config.yaml",
	"/etc/gateway/config.yml",
}

// DefaultEnvFiles are loaded (without overriding the real environment) before parsing
var DefaultEnvFiles = []string{".env"}

// Defaults returns a configuration with every default applied
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Hosts: HostsConfig{
			API:      "http://localhost:8081",
			Frontend: "http://localhost:3000",
		},
		Session: SessionConfig{
			Name:  "gateway_session",
			TTL:   7 * 24 * time.Hour,
			Store: "cookie",
		},
		Database: DatabaseConfig{
			Driver: "postgres",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "gateway",
				User:     "postgres",
				SSLMode:  "disable",
			},
			SQLite: SQLiteConfig{
				Path: "gateway.db",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			RPS:   5,
			Burst: 20,
		},
		Anchor:    string(entities.PlatformDiscord),
		Providers: map[string]*ProviderConfig{},
	}
}

// Load loads the configuration from the specified file or default locations,
// then applies GATEWAY_* environment overrides
func Load(configPath string) (*Config, error) {
	for _, f := range DefaultEnvFiles {
		if fileExists(f) {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", f, err)
			}
		}
	}

	config := Defaults()

	if configPath == "" {
		configPath = findConfigFile()
	}

	if configPath != "" && fileExists(configPath) {
		slog.Debug("loading config", slog.String("path", configPath))
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		data = expandEnvVars(data)

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if configPath != "" {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	normalize(config)

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// findConfigFile searches for a configuration file in default locations
func findConfigFile() string {
	for _, path := range DefaultConfigPaths {
		if fileExists(path) {
			return path
		}
	}
	return ""
}

// fileExists checks if a file exists and is not a directory
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// normalize slugs provider names so "Discord " and "discord" address the same route
func normalize(config *Config) {
	providers := make(map[string]*ProviderConfig, len(config.Providers))
	for name, p := range config.Providers {
		if p == nil {
			continue
		}
		providers[slug.Make(name)] = p
	}
	config.Providers = providers
	config.Anchor = slug.Make(config.Anchor)
	config.Server.PublicURL = strings.TrimRight(config.Server.PublicURL, "/")
	config.Hosts.API = strings.TrimRight(config.Hosts.API, "/")
	config.Session.Store = strings.ToLower(config.Session.Store)
	config.Database.Driver = strings.ToLower(config.Database.Driver)
}

// validate performs basic validation on the configuration
func validate(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if config.Hosts.Frontend == "" {
		return fmt.Errorf("hosts.frontend is required")
	}
	if config.Hosts.API == "" {
		return fmt.Errorf("hosts.api is required")
	}

	switch config.Session.Store {
	case "cookie", "database":
	default:
		return fmt.Errorf("session.store must be cookie or database, got %q", config.Session.Store)
	}
	if len(config.Session.Secret) < 32 {
		return fmt.Errorf("session.secret must be at least 32 characters")
	}
	if config.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}

	switch config.Database.Driver {
	case "postgres":
		if config.Database.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if config.Database.Postgres.Database == "" {
			return fmt.Errorf("postgres database name is required")
		}
		if config.Database.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	case "sqlite":
		if config.Database.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", config.Database.Driver)
	}

	for name, p := range config.Providers {
		if _, err := entities.ParsePlatform(name); err != nil {
			return fmt.Errorf("providers.%s: %w", name, err)
		}
		if p.ClientID == "" {
			return fmt.Errorf("providers.%s.client_id is required", name)
		}
	}

	anchor := config.Provider(config.AnchorPlatform())
	if anchor == nil {
		return fmt.Errorf("anchor provider %q has no providers entry", config.Anchor)
	}

	if bungie := config.Provider(entities.PlatformBungie); bungie != nil && bungie.APIKey == "" {
		return fmt.Errorf("providers.bungie.api_key is required")
	}

	if config.RateLimit.RPS < 0 || config.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	return nil
}
