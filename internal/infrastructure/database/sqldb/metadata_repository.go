package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/domain/repositories"
	"github.com/levelcrush/gateway/internal/pkg/idgen"
	"github.com/levelcrush/gateway/internal/pkg/metrics"
)

const metadataColumns = `id, platform, platform_user, meta_key, meta_value, created_at, updated_at`

// MetadataRepository implements repositories.MetadataRepository
type MetadataRepository struct {
	db *sqlx.DB
}

// NewMetadataRepository creates a new platform metadata repository
func NewMetadataRepository(db *sqlx.DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// Get retrieves one metadata key
func (r *MetadataRepository) Get(ctx context.Context, platform entities.Platform, platformUser, key string) (*entities.ProfileMetadata, error) {
	start := time.Now()
	query := r.db.Rebind(`SELECT ` + metadataColumns + `
		FROM platform_metadata
		WHERE platform = ? AND platform_user = ? AND meta_key = ?`)

	var meta entities.ProfileMetadata
	err := r.db.GetContext(ctx, &meta, query, platform, platformUser, key)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBOperation("platform_metadata", "get", time.Since(start), 0, nil)
		return nil, repositories.ErrMetadataNotFound
	}
	metrics.RecordDBOperation("platform_metadata", "get", time.Since(start), -1, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get platform metadata: %w", err)
	}
	return &meta, nil
}

// List retrieves all metadata for one platform identity
func (r *MetadataRepository) List(ctx context.Context, platform entities.Platform, platformUser string) ([]*entities.ProfileMetadata, error) {
	start := time.Now()
	query := r.db.Rebind(`SELECT ` + metadataColumns + `
		FROM platform_metadata
		WHERE platform = ? AND platform_user = ?
		ORDER BY meta_key ASC`)

	rows := []*entities.ProfileMetadata{}
	err := r.db.SelectContext(ctx, &rows, query, platform, platformUser)
	metrics.RecordDBOperation("platform_metadata", "list", time.Since(start), int64(len(rows)), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list platform metadata: %w", err)
	}
	return rows, nil
}

// Upsert writes one key. created_at is kept from the first write.
func (r *MetadataRepository) Upsert(ctx context.Context, meta *entities.ProfileMetadata) error {
	if meta.ID == "" {
		meta.ID = idgen.GenerateID()
	}

	start := time.Now()
	query := r.db.Rebind(`INSERT INTO platform_metadata (` + metadataColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, platform_user, meta_key) DO UPDATE SET
			meta_value = excluded.meta_value,
			updated_at = excluded.updated_at`)

	result, err := r.db.ExecContext(ctx, query,
		meta.ID,
		meta.Platform,
		meta.PlatformUser,
		meta.Key,
		meta.Value,
		meta.CreatedAt,
		meta.UpdatedAt,
	)
	metrics.RecordDBOperation("platform_metadata", "upsert", time.Since(start), rowsAffected(result, err), err)
	if err != nil {
		return fmt.Errorf("failed to upsert platform metadata %s: %w", meta.Key, err)
	}
	return nil
}

// DeleteByPlatformUser removes all metadata for one platform identity
func (r *MetadataRepository) DeleteByPlatformUser(ctx context.Context, platform entities.Platform, platformUser string) (int64, error) {
	start := time.Now()
	query := r.db.Rebind(`DELETE FROM platform_metadata WHERE platform = ? AND platform_user = ?`)

	result, err := r.db.ExecContext(ctx, query, platform, platformUser)
	rows := rowsAffected(result, err)
	metrics.RecordDBOperation("platform_metadata", "delete", time.Since(start), rows, err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete platform metadata: %w", err)
	}
	return rows, nil
}

// Ensure MetadataRepository implements repositories.MetadataRepository
var _ repositories.MetadataRepository = (*MetadataRepository)(nil)
