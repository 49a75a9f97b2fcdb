package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/oauth2"

	"github.com/levelcrush/gateway/internal/config"
	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/pkg/urlutil"
)

// BungieEndpoint is Bungie.net's OAuth2 endpoint. Confidential clients
// authenticate with HTTP basic auth.
var BungieEndpoint = oauth2.Endpoint{
	AuthURL:   "https://www.bungie.net/en/OAuth/Authorize",
	TokenURL:  "https://www.bungie.net/platform/app/oauth/token/",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// BungieAPIBase is the Bungie.net platform API root
const BungieAPIBase = "https://www.bungie.net/Platform"

// bungieSuccess is PlatformErrorCodes.Success
const bungieSuccess = 1

// BungieProvider links a Bungie.net account and derives Destiny membership keys
type BungieProvider struct {
	baseProvider
	apiBase string
	apiKey  string
}

type bungieEnvelope struct {
	Response    json.RawMessage `json:"Response"`
	ErrorCode   int             `json:"ErrorCode"`
	ErrorStatus string          `json:"ErrorStatus"`
	Message     string          `json:"Message"`
}

type bungieUser struct {
	MembershipID string `json:"membershipId"`
	UniqueName   string `json:"uniqueName"`
	DisplayName  string `json:"displayName"`
}

type bungieMemberships struct {
	DestinyMemberships  []json.RawMessage `json:"destinyMemberships"`
	PrimaryMembershipID string            `json:"primaryMembershipId"`
}

// apiKeyTransport adds the X-API-Key header Bungie requires on every call,
// token exchange included
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("X-API-Key", t.key)
	return t.base.RoundTrip(req)
}

// NewBungieProvider creates a Bungie provider. Scopes are configured on the
// Bungie application, not requested per authorization.
func NewBungieProvider(pc *config.ProviderConfig, client *http.Client, log *slog.Logger) *BungieProvider {
	if client == nil {
		client = http.DefaultClient
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	keyed := *client
	keyed.Transport = &apiKeyTransport{key: pc.APIKey, base: base}

	p := &BungieProvider{
		baseProvider: newBaseProvider(entities.PlatformBungie, pc, BungieEndpoint, nil, &keyed, log),
		apiBase:      BungieAPIBase,
		apiKey:       pc.APIKey,
	}
	if pc.ProfileURL != "" {
		p.apiBase = strings.TrimRight(pc.ProfileURL, "/")
	}
	p.authParams = []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "consent")}
	return p
}

// FetchProfile loads the Bungie.net user named by the token's membership_id,
// then its Destiny memberships. A membership lookup failure keeps the profile
// and skips the derived keys.
func (p *BungieProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	membershipID := BungieMembershipID(token)
	if membershipID == "" {
		return nil, fmt.Errorf("%w: bungie: token has no membership_id", ErrProfileFetchFailed)
	}

	userRaw, err := p.call(ctx, token, "/User/GetBungieNetUserById/"+url.PathEscape(membershipID)+"/")
	if err != nil {
		return nil, fmt.Errorf("%w: bungie: %v", ErrProfileFetchFailed, err)
	}

	var user bungieUser
	if err := json.Unmarshal(userRaw, &user); err != nil {
		return nil, fmt.Errorf("%w: bungie: %v", ErrProfileFetchFailed, err)
	}

	displayName := user.UniqueName
	if displayName == "" {
		displayName = user.DisplayName
	}

	profile := &Profile{
		ExternalID:  membershipID,
		DisplayName: displayName,
		Raw:         userRaw,
	}

	membershipsRaw, err := p.call(ctx, token, "/User/GetMembershipsById/"+url.PathEscape(membershipID)+"/-1/")
	if err != nil {
		p.log.Warn("failed to fetch destiny memberships",
			slog.String("platform_user", membershipID),
			slog.String("error", err.Error()))
		return profile, nil
	}

	var memberships bungieMemberships
	if err := json.Unmarshal(membershipsRaw, &memberships); err != nil {
		p.log.Warn("failed to decode destiny memberships",
			slog.String("platform_user", membershipID),
			slog.String("error", err.Error()))
		return profile, nil
	}

	profile.Metadata = membershipMetadata(memberships)
	return profile, nil
}

func (p *BungieProvider) call(ctx context.Context, token *oauth2.Token, path string) (json.RawMessage, error) {
	body, err := p.getJSON(ctx, p.apiBase+path, map[string]string{
		"Authorization": bearer(token),
	})
	if err != nil {
		return nil, err
	}

	var envelope bungieEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if envelope.ErrorCode != bungieSuccess {
		return nil, fmt.Errorf("%s: %s (%d): %s", path, envelope.ErrorStatus, envelope.ErrorCode, envelope.Message)
	}
	if len(envelope.Response) == 0 || string(envelope.Response) == "null" {
		return nil, fmt.Errorf("%s: empty Response", path)
	}
	return envelope.Response, nil
}

// membershipMetadata derives all_memberships, primary_membership and raid_report.
// With no primaryMembershipId the first membership stands in; with no
// memberships only all_memberships is written.
func membershipMetadata(m bungieMemberships) []entities.MetadataEntry {
	all := m.DestinyMemberships
	if all == nil {
		all = []json.RawMessage{}
	}
	allJSON, _ := json.Marshal(all)
	entries := []entities.MetadataEntry{
		{Key: entities.MetadataAllMemberships, Value: string(allJSON)},
	}

	parsed := make([]entities.DestinyMembership, 0, len(all))
	for _, raw := range all {
		var dm entities.DestinyMembership
		if err := json.Unmarshal(raw, &dm); err == nil {
			parsed = append(parsed, dm)
		}
	}

	primary, ok := selectPrimary(parsed, m.PrimaryMembershipID)
	if !ok {
		return entries
	}

	return append(entries,
		entities.MetadataEntry{Key: entities.MetadataPrimaryMembership, Value: primary.MembershipID},
		entities.MetadataEntry{
			Key:   entities.MetadataRaidReport,
			Value: urlutil.RaidReportURL(string(primary.MembershipType.ReportPlatform()), primary.MembershipID),
		},
	)
}

func selectPrimary(memberships []entities.DestinyMembership, primaryID string) (entities.DestinyMembership, bool) {
	if len(memberships) == 0 {
		return entities.DestinyMembership{}, false
	}
	if primaryID != "" {
		for _, dm := range memberships {
			if dm.MembershipID == primaryID {
				return dm, true
			}
		}
		// primary id outside the destiny list: keep the id, platform unknown
		return entities.DestinyMembership{MembershipID: primaryID, MembershipType: entities.MembershipNone}, true
	}
	return memberships[0], true
}

// BungieMembershipID reads membership_id from the token response, which
// Bungie sends as a string but some proxies re-encode as a number
func BungieMembershipID(token *oauth2.Token) string {
	switch v := token.Extra("membership_id").(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

var _ Provider = (*BungieProvider)(nil)
