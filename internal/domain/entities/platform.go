package entities

import (
	"fmt"
	"strings"
)

// Platform identifies an upstream OAuth provider
type Platform string

const (
	PlatformDiscord Platform = "discord"
	PlatformTwitch  Platform = "twitch"
	PlatformBungie  Platform = "bungie"
)

// KnownPlatforms lists every platform the gateway ships a provider for
var KnownPlatforms = []Platform{PlatformDiscord, PlatformTwitch, PlatformBungie}

// ParsePlatform converts a route segment or config key into a Platform
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range KnownPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform: %q", s)
}

func (p Platform) String() string {
	return string(p)
}

// PlatformLink associates a canonical user with one provider identity.
// (Platform, PlatformUser) is unique.
type PlatformLink struct {
	ID            string   `json:"id" db:"id" yaml:"id"`
	CanonicalUser string   `json:"user" db:"user_token" yaml:"user"`
	Platform      Platform `json:"platform" db:"platform" yaml:"platform"`
	PlatformUser  string   `json:"platform_user" db:"platform_user" yaml:"platform_user"`
	LinkSecret    string   `json:"-" db:"secret" yaml:"-"`
	AccessToken   string   `json:"-" db:"access_token" yaml:"-"`
	RefreshToken  string   `json:"-" db:"refresh_token" yaml:"-"`
	ExpiresAt     int64    `json:"expires_at" db:"expires_at" yaml:"expires_at"`
	CreatedAt     int64    `json:"created_at" db:"created_at" yaml:"created_at"`
	UpdatedAt     int64    `json:"updated_at" db:"updated_at" yaml:"updated_at"`
	DeletedAt     int64    `json:"deleted_at" db:"deleted_at" yaml:"deleted_at"`
}

// Key returns a platform:platform_user string for logging
func (l *PlatformLink) Key() string {
	return string(l.Platform) + ":" + l.PlatformUser
}

// IsDeleted reports whether the soft-delete marker is set
func (l *PlatformLink) IsDeleted() bool {
	return l.DeletedAt != 0
}
