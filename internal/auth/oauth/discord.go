package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/oauth2"

	"github.com/levelcrush/gateway/internal/config"
	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/pkg/urlutil"
)

// DiscordEndpoint is Discord's OAuth2 endpoint
var DiscordEndpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const discordAvatarSize = 256

// DiscordProvider is the anchor provider
type DiscordProvider struct {
	baseProvider
}

// NewDiscordProvider creates a Discord provider (scopes identify, email)
func NewDiscordProvider(pc *config.ProviderConfig, client *http.Client, log *slog.Logger) *DiscordProvider {
	p := &DiscordProvider{
		baseProvider: newBaseProvider(entities.PlatformDiscord, pc, DiscordEndpoint, []string{"identify", "email"}, client, log),
	}
	p.authParams = []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "consent")}
	return p
}

// FetchProfile loads /users/@me with the user's bearer token
func (p *DiscordProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	s, err := discordgo.New(bearer(token))
	if err != nil {
		return nil, fmt.Errorf("%w: discord: %v", ErrProfileFetchFailed, err)
	}
	s.Client = p.client

	user, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: discord: %v", ErrProfileFetchFailed, err)
	}
	if user.ID == "" {
		return nil, fmt.Errorf("%w: discord: profile has no id", ErrProfileFetchFailed)
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("%w: discord: %v", ErrProfileFetchFailed, err)
	}

	return &Profile{
		ExternalID:  user.ID,
		Email:       user.Email,
		DisplayName: DiscordDisplayName(user.Username, user.Discriminator),
		Raw:         raw,
		Metadata: []entities.MetadataEntry{
			{Key: entities.MetadataAvatar, Value: urlutil.DiscordAvatarURL(user.ID, user.Discriminator, user.Avatar, discordAvatarSize)},
		},
	}, nil
}

// DiscordDisplayName renders username#discriminator, dropping the legacy
// discriminator for migrated accounts ("0")
func DiscordDisplayName(username, discriminator string) string {
	if discriminator == "" || discriminator == "0" {
		return username
	}
	return username + "#" + discriminator
}

var _ Provider = (*DiscordProvider)(nil)
