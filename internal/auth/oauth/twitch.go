package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/levelcrush/gateway/internal/config"
	"github.com/levelcrush/gateway/internal/domain/entities"
)

// TwitchEndpoint is Twitch's OAuth2 endpoint
var TwitchEndpoint = oauth2.Endpoint{
	AuthURL:   "https://id.twitch.tv/oauth2/authorize",
	TokenURL:  "https://id.twitch.tv/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// TwitchAPIBase is the helix API root
const TwitchAPIBase = "https://api.twitch.tv/helix"

// TwitchProvider links a Twitch account
type TwitchProvider struct {
	baseProvider
	apiBase string
}

type twitchUser struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// NewTwitchProvider creates a Twitch provider (scope user:read:email, force_verify)
func NewTwitchProvider(pc *config.ProviderConfig, client *http.Client, log *slog.Logger) *TwitchProvider {
	p := &TwitchProvider{
		baseProvider: newBaseProvider(entities.PlatformTwitch, pc, TwitchEndpoint, []string{"user:read:email"}, client, log),
		apiBase:      TwitchAPIBase,
	}
	if pc.ProfileURL != "" {
		p.apiBase = strings.TrimRight(pc.ProfileURL, "/")
	}
	p.authParams = []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("force_verify", "true")}
	return p
}

// FetchProfile loads helix/users for the token owner
func (p *TwitchProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	body, err := p.getJSON(ctx, p.apiBase+"/users", map[string]string{
		"Authorization": bearer(token),
		"Client-Id":     p.oauth.ClientID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: twitch: %v", ErrProfileFetchFailed, err)
	}

	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: twitch: %v", ErrProfileFetchFailed, err)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("%w: twitch: no user in response", ErrProfileFetchFailed)
	}

	var user twitchUser
	if err := json.Unmarshal(envelope.Data[0], &user); err != nil {
		return nil, fmt.Errorf("%w: twitch: %v", ErrProfileFetchFailed, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: twitch: profile has no id", ErrProfileFetchFailed)
	}

	displayName := user.DisplayName
	if displayName == "" {
		displayName = user.Login
	}

	return &Profile{
		ExternalID:  user.ID,
		Email:       user.Email,
		DisplayName: displayName,
		Raw:         envelope.Data[0],
	}, nil
}

var _ Provider = (*TwitchProvider)(nil)
