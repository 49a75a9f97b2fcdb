package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/levelcrush/gateway/internal/config"
	"github.com/levelcrush/gateway/internal/domain/entities"
)

// maxProfileBytes caps upstream profile bodies
const maxProfileBytes = 1 << 20

// baseProvider carries the oauth2 plumbing shared by every provider
type baseProvider struct {
	platform   entities.Platform
	oauth      oauth2.Config
	client     *http.Client
	authParams []oauth2.AuthCodeOption
	log        *slog.Logger
}

func newBaseProvider(platform entities.Platform, pc *config.ProviderConfig, endpoint oauth2.Endpoint, scopes []string, client *http.Client, log *slog.Logger) baseProvider {
	if pc.AuthorizeURL != "" {
		endpoint.AuthURL = pc.AuthorizeURL
	}
	if pc.TokenURL != "" {
		endpoint.TokenURL = pc.TokenURL
	}
	if len(pc.Scopes) > 0 {
		scopes = pc.Scopes
	}
	if client == nil {
		client = http.DefaultClient
	}
	return baseProvider{
		platform: platform,
		oauth: oauth2.Config{
			ClientID:     pc.ClientID,
			ClientSecret: pc.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
		client: client,
		log:    log,
	}
}

// Name returns the platform this provider links
func (p *baseProvider) Name() entities.Platform {
	return p.platform
}

// AuthorizationURL builds the provider authorization URL for redirectURI
func (p *baseProvider) AuthorizationURL(redirectURI, state string) string {
	cfg := p.oauth
	cfg.RedirectURL = redirectURI
	return cfg.AuthCodeURL(state, p.authParams...)
}

// Exchange trades an authorization code for tokens
func (p *baseProvider) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	cfg := p.oauth
	cfg.RedirectURL = redirectURI

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExchangeFailed, p.platform, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: %s: empty access token", ErrExchangeFailed, p.platform)
	}
	return token, nil
}

// getJSON performs an authenticated GET and returns the raw body
func (p *baseProvider) getJSON(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%s returned invalid JSON", url)
	}
	return body, nil
}

func bearer(token *oauth2.Token) string {
	return "Bearer " + token.AccessToken
}
