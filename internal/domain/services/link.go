package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/levelcrush/gateway/internal/auth/oauth"
	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/domain/repositories"
	"github.com/levelcrush/gateway/internal/pkg/metrics"
)

// ReconcileResult describes one secondary-provider linkage
type ReconcileResult struct {
	Link          *entities.PlatformLink
	Created       bool
	PreviousOwner string // set when the link moved from another canonical user
	Metadata      MetadataResult
}

// UnlinkResult describes an unlink request. Failures are logged, not returned.
type UnlinkResult struct {
	Matched int
	Failed  int
}

// LinkService reconciles and removes secondary-provider links
type LinkService struct {
	anchor   entities.Platform
	links    repositories.LinkRepository
	meta     repositories.MetadataRepository
	metadata *MetadataWriter
	profiles *ProfileService
	log      *slog.Logger
	now      func() time.Time
}

// NewLinkService creates a link reconciler
func NewLinkService(
	anchor entities.Platform,
	links repositories.LinkRepository,
	meta repositories.MetadataRepository,
	metadata *MetadataWriter,
	profiles *ProfileService,
	log *slog.Logger,
) *LinkService {
	return &LinkService{
		anchor:   anchor,
		links:    links,
		meta:     meta,
		metadata: metadata,
		profiles: profiles,
		log:      log.With(slog.String("component", "links")),
		now:      time.Now,
	}
}

// Reconcile creates or repoints the link for (platform, profile.ExternalID)
// to canonicalUser, then writes profile metadata key by key.
//
// The row is identified by provider identity, so relinking under another
// canonical user moves ownership instead of duplicating the row.
func (s *LinkService) Reconcile(ctx context.Context, canonicalUser string, platform entities.Platform, token *oauth2.Token, profile *oauth.Profile) (*ReconcileResult, error) {
	log := s.log.With(
		slog.String("platform", string(platform)),
		slog.String("platform_user", profile.ExternalID),
		slog.String("user", canonicalUser),
	)

	existing, err := s.links.GetByPlatformUser(ctx, platform, profile.ExternalID)
	if err != nil && !errors.Is(err, repositories.ErrLinkNotFound) {
		metrics.LinkEvents.WithLabelValues(string(platform), "failed").Inc()
		return nil, fmt.Errorf("%w: lookup: %v", ErrLinkPersistence, err)
	}

	now := s.now()
	secret := GenerateSecret(now, canonicalUser, profile.ExternalID, profile.DisplayName)
	result := &ReconcileResult{}

	link := existing
	if link != nil {
		if link.CanonicalUser != canonicalUser {
			result.PreviousOwner = link.CanonicalUser
		}
		link.CanonicalUser = canonicalUser
		link.LinkSecret = secret
		link.AccessToken = token.AccessToken
		link.RefreshToken = token.RefreshToken
		link.UpdatedAt = now.Unix()
	} else {
		result.Created = true
		link = &entities.PlatformLink{
			CanonicalUser: canonicalUser,
			Platform:      platform,
			PlatformUser:  profile.ExternalID,
			LinkSecret:    secret,
			AccessToken:   token.AccessToken,
			RefreshToken:  token.RefreshToken,
			ExpiresAt:     0,
			CreatedAt:     now.Unix(),
			UpdatedAt:     now.Unix(),
			DeletedAt:     0,
		}
	}

	if err := s.links.Save(ctx, link); err != nil {
		metrics.LinkEvents.WithLabelValues(string(platform), "failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrLinkPersistence, err)
	}
	result.Link = link

	outcome := "updated"
	if result.Created {
		outcome = "created"
	}
	metrics.LinkEvents.WithLabelValues(string(platform), outcome).Inc()

	result.Metadata = s.metadata.Write(ctx, platform, profile.ExternalID, s.metadata.Entries(profile))

	s.profiles.Invalidate(canonicalUser)
	if result.PreviousOwner != "" {
		s.profiles.Invalidate(result.PreviousOwner)
		log.Info("platform link moved", slog.String("previous_user", result.PreviousOwner))
	}

	log.Info("platform linked",
		slog.String("outcome", outcome),
		slog.Int("metadata_failures", len(result.Metadata.Failed())))
	return result, nil
}

// Unlink removes canonicalUser's links on platform together with their
// metadata. The two deletes of each link run concurrently and are both
// awaited. A missing link is not an error and failures are only logged.
func (s *LinkService) Unlink(ctx context.Context, canonicalUser string, platform entities.Platform) (UnlinkResult, error) {
	if platform == s.anchor {
		return UnlinkResult{}, ErrAnchorUnlink
	}

	log := s.log.With(slog.String("platform", string(platform)), slog.String("user", canonicalUser))

	links, err := s.links.ListByUserAndPlatform(ctx, canonicalUser, platform)
	if err != nil {
		log.Warn("failed to look up links to unlink", slog.String("error", err.Error()))
		metrics.Unlinks.WithLabelValues(string(platform), "error").Inc()
		return UnlinkResult{Failed: 1}, nil
	}

	result := UnlinkResult{Matched: len(links)}
	for _, link := range links {
		var g errgroup.Group
		var linkErr, metaErr error
		g.Go(func() error {
			_, linkErr = s.links.DeleteByPlatformUser(ctx, platform, link.PlatformUser)
			return nil
		})
		g.Go(func() error {
			_, metaErr = s.meta.DeleteByPlatformUser(ctx, platform, link.PlatformUser)
			return nil
		})
		_ = g.Wait()

		if err := errors.Join(linkErr, metaErr); err != nil {
			result.Failed++
			log.Warn("failed to unlink platform",
				slog.String("platform_user", link.PlatformUser),
				slog.String("error", err.Error()))
			continue
		}
		log.Info("platform unlinked", slog.String("platform_user", link.PlatformUser))
	}

	status := "success"
	switch {
	case result.Failed > 0:
		status = "error"
	case result.Matched == 0:
		status = "noop"
	}
	metrics.Unlinks.WithLabelValues(string(platform), status).Inc()

	s.profiles.Invalidate(canonicalUser)
	return result, nil
}
