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

const linkColumns = `id, user_token, secret, platform, platform_user, access_token,
	refresh_token, expires_at, created_at, updated_at, deleted_at`

// LinkRepository implements repositories.LinkRepository
type LinkRepository struct {
	db *sqlx.DB
}

// NewLinkRepository creates a new platform link repository
func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// GetByPlatformUser retrieves a live link by provider identity
func (r *LinkRepository) GetByPlatformUser(ctx context.Context, platform entities.Platform, platformUser string) (*entities.PlatformLink, error) {
	start := time.Now()
	query := r.db.Rebind(`SELECT ` + linkColumns + `
		FROM platform_links
		WHERE platform = ? AND platform_user = ? AND deleted_at = 0
		LIMIT 1`)

	var link entities.PlatformLink
	err := r.db.GetContext(ctx, &link, query, platform, platformUser)
	if errors.Is(err, sql.ErrNoRows) {
		metrics.RecordDBOperation("platform_link", "get", time.Since(start), 0, nil)
		return nil, repositories.ErrLinkNotFound
	}
	metrics.RecordDBOperation("platform_link", "get", time.Since(start), -1, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get platform link: %w", err)
	}
	return &link, nil
}

// ListByUser retrieves all live links for a canonical user
func (r *LinkRepository) ListByUser(ctx context.Context, canonicalUser string) ([]*entities.PlatformLink, error) {
	start := time.Now()
	query := r.db.Rebind(`SELECT ` + linkColumns + `
		FROM platform_links
		WHERE user_token = ? AND deleted_at = 0
		ORDER BY created_at ASC, platform ASC`)

	links := []*entities.PlatformLink{}
	err := r.db.SelectContext(ctx, &links, query, canonicalUser)
	metrics.RecordDBOperation("platform_link", "list", time.Since(start), int64(len(links)), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list platform links: %w", err)
	}
	return links, nil
}

// ListByUserAndPlatform retrieves a user's live links for one platform
func (r *LinkRepository) ListByUserAndPlatform(ctx context.Context, canonicalUser string, platform entities.Platform) ([]*entities.PlatformLink, error) {
	start := time.Now()
	query := r.db.Rebind(`SELECT ` + linkColumns + `
		FROM platform_links
		WHERE user_token = ? AND platform = ? AND deleted_at = 0
		ORDER BY created_at ASC`)

	links := []*entities.PlatformLink{}
	err := r.db.SelectContext(ctx, &links, query, canonicalUser, platform)
	metrics.RecordDBOperation("platform_link", "list_platform", time.Since(start), int64(len(links)), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list platform links: %w", err)
	}
	return links, nil
}

// Save upserts the link keyed by (platform, platform_user)
func (r *LinkRepository) Save(ctx context.Context, link *entities.PlatformLink) error {
	if link.ID == "" {
		link.ID = idgen.GenerateID()
	}

	start := time.Now()
	query := r.db.Rebind(`INSERT INTO platform_links (` + linkColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (platform, platform_user) DO UPDATE SET
			user_token = excluded.user_token,
			secret = excluded.secret,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at`)

	result, err := r.db.ExecContext(ctx, query,
		link.ID,
		link.CanonicalUser,
		link.LinkSecret,
		link.Platform,
		link.PlatformUser,
		link.AccessToken,
		link.RefreshToken,
		link.ExpiresAt,
		link.CreatedAt,
		link.UpdatedAt,
		link.DeletedAt,
	)
	rows := rowsAffected(result, err)
	metrics.RecordDBOperation("platform_link", "save", time.Since(start), rows, err)
	if err != nil {
		return fmt.Errorf("failed to save platform link %s: %w", link.Key(), err)
	}
	return nil
}

// DeleteByPlatformUser hard-deletes a link
func (r *LinkRepository) DeleteByPlatformUser(ctx context.Context, platform entities.Platform, platformUser string) (int64, error) {
	start := time.Now()
	query := r.db.Rebind(`DELETE FROM platform_links WHERE platform = ? AND platform_user = ?`)

	result, err := r.db.ExecContext(ctx, query, platform, platformUser)
	rows := rowsAffected(result, err)
	metrics.RecordDBOperation("platform_link", "delete", time.Since(start), rows, err)
	if err != nil {
		return 0, fmt.Errorf("failed to delete platform link: %w", err)
	}
	return rows, nil
}

func rowsAffected(result sql.Result, err error) int64 {
	if err != nil || result == nil {
		return -1
	}
	n, err := result.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}

// Ensure LinkRepository implements repositories.LinkRepository
var _ repositories.LinkRepository = (*LinkRepository)(nil)
