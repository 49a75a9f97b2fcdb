package repositories

import (
	"context"

	"github.com/levelcrush/gateway/internal/domain/entities"
)

// MetadataRepository defines data access for profile metadata
type MetadataRepository interface {
	// Get returns ErrMetadataNotFound when the key is absent
	Get(ctx context.Context, platform entities.Platform, platformUser, key string) (*entities.ProfileMetadata, error)

	// List returns all metadata rows for one platform identity
	List(ctx context.Context, platform entities.Platform, platformUser string) ([]*entities.ProfileMetadata, error)

	// Upsert writes a single key; other keys of the same identity are untouched
	Upsert(ctx context.Context, meta *entities.ProfileMetadata) error

	// DeleteByPlatformUser removes every key for one platform identity
	DeleteByPlatformUser(ctx context.Context, platform entities.Platform, platformUser string) (int64, error)
}
