package repositories

import (
	"context"

	"github.com/levelcrush/gateway/internal/domain/entities"
)

// LinkRepository defines data access for platform links.
// A link is identified by (platform, platform_user); the owning canonical
// user can change on relink.
type LinkRepository interface {
	// GetByPlatformUser returns ErrLinkNotFound when no live link exists
	GetByPlatformUser(ctx context.Context, platform entities.Platform, platformUser string) (*entities.PlatformLink, error)

	// ListByUser returns every live link owned by a canonical user
	ListByUser(ctx context.Context, canonicalUser string) ([]*entities.PlatformLink, error)

	// ListByUserAndPlatform returns the user's live links for one platform
	ListByUserAndPlatform(ctx context.Context, canonicalUser string, platform entities.Platform) ([]*entities.PlatformLink, error)

	// Save inserts or updates the link keyed by (platform, platform_user).
	// Concurrent saves for the same key resolve last-write-wins.
	Save(ctx context.Context, link *entities.PlatformLink) error

	// DeleteByPlatformUser hard-deletes the link and reports how many rows went away
	DeleteByPlatformUser(ctx context.Context, platform entities.Platform, platformUser string) (int64, error)
}
