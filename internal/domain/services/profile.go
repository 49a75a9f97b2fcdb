package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/domain/repositories"
	"github.com/levelcrush/gateway/internal/pkg/metrics"
)

// ProfileSummaryTTL is how long a user's linked display names are cached
const ProfileSummaryTTL = 30 * time.Second

const profileCacheName = "profile_summary"

// ProfileService answers "which platforms is this user linked to, and as whom"
type ProfileService struct {
	links repositories.LinkRepository
	meta  repositories.MetadataRepository
	cache *gocache.Cache
	log   *slog.Logger
}

// NewProfileService creates a profile summary service
func NewProfileService(links repositories.LinkRepository, meta repositories.MetadataRepository, log *slog.Logger) *ProfileService {
	return &ProfileService{
		links: links,
		meta:  meta,
		cache: gocache.New(ProfileSummaryTTL, time.Minute),
		log:   log.With(slog.String("component", "profile")),
	}
}

// Summary maps each linked platform to its display name. Platforms with no
// display_name metadata are omitted.
func (s *ProfileService) Summary(ctx context.Context, canonicalUser string) (map[string]string, error) {
	if cached, ok := s.cache.Get(canonicalUser); ok {
		metrics.CacheHits.WithLabelValues(profileCacheName).Inc()
		return maps.Clone(cached.(map[string]string)), nil
	}
	metrics.CacheMisses.WithLabelValues(profileCacheName).Inc()

	links, err := s.links.ListByUser(ctx, canonicalUser)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	summary := make(map[string]string, len(links))
	for _, link := range links {
		meta, err := s.meta.Get(ctx, link.Platform, link.PlatformUser, entities.MetadataDisplayName)
		if errors.Is(err, repositories.ErrMetadataNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load display name for %s: %w", link.Key(), err)
		}
		summary[string(link.Platform)] = meta.Value
	}

	s.cache.SetDefault(canonicalUser, summary)
	return maps.Clone(summary), nil
}

// Invalidate drops a user's cached summary
func (s *ProfileService) Invalidate(canonicalUser string) {
	if s == nil {
		return
	}
	s.cache.Delete(canonicalUser)
}
