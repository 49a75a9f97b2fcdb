// Package oauth implements the authorization-code dance against the upstream
// providers: building the authorization URL, exchanging the code and fetching
// the provider profile.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"golang.org/x/oauth2"

	"github.com/levelcrush/gateway/internal/config"
	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/pkg/metrics"
)

var (
	// ErrUnknownProvider is returned for a platform with no configured provider
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrExchangeFailed wraps authorization-code exchange failures
	ErrExchangeFailed = errors.New("authorization code exchange failed")
	// ErrProfileFetchFailed wraps profile fetch failures
	ErrProfileFetchFailed = errors.New("profile fetch failed")
)

// DefaultTimeout bounds every upstream HTTP call
const DefaultTimeout = 15 * time.Second

// Profile is the provider-native identity returned after a successful exchange
type Profile struct {
	ExternalID  string
	Email       string // contact identifier; only the anchor provider needs one
	DisplayName string
	Raw         json.RawMessage

	// Metadata holds provider-derived keys beyond profile and display_name
	Metadata []entities.MetadataEntry
}

// Provider is one upstream OAuth provider
type Provider interface {
	// Name returns the platform this provider links
	Name() entities.Platform

	// AuthorizationURL builds the URL the browser is sent to
	AuthorizationURL(redirectURI, state string) string

	// Exchange trades an authorization code for tokens
	Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)

	// FetchProfile loads the identity behind an access token
	FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error)
}

// Registry holds the configured providers
type Registry struct {
	providers map[entities.Platform]Provider
}

// NewRegistry creates an empty provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[entities.Platform]Provider),
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(provider Provider) {
	r.providers[provider.Name()] = provider
}

// Get retrieves a provider by platform
func (r *Registry) Get(platform entities.Platform) (Provider, error) {
	provider, ok := r.providers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, platform)
	}
	return provider, nil
}

// Platforms returns all registered platforms in sorted order
func (r *Registry) Platforms() []entities.Platform {
	names := make([]entities.Platform, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// NewRegistryFromConfig builds a provider for every configured platform.
// base is the RoundTripper under the instrumented transport (nil for the default).
func NewRegistryFromConfig(cfg *config.Config, base http.RoundTripper, logger *slog.Logger) (*Registry, error) {
	registry := NewRegistry()
	for name, pc := range cfg.Providers {
		platform, err := entities.ParsePlatform(name)
		if err != nil {
			return nil, err
		}

		client := metrics.NewUpstreamClient(string(platform), base, DefaultTimeout)
		log := logger.With(slog.String("component", "oauth"), slog.String("platform", string(platform)))

		switch platform {
		case entities.PlatformDiscord:
			registry.Register(NewDiscordProvider(pc, client, log))
		case entities.PlatformTwitch:
			registry.Register(NewTwitchProvider(pc, client, log))
		case entities.PlatformBungie:
			registry.Register(NewBungieProvider(pc, client, log))
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, platform)
		}
	}
	return registry, nil
}
