package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/levelcrush/gateway/internal/accounts"
	"github.com/levelcrush/gateway/internal/auth/oauth"
	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/domain/repositories"
	"github.com/levelcrush/gateway/internal/pkg/metrics"
)

// AnchorResult is a successful anchor resolution
type AnchorResult struct {
	User      string // canonical user token
	FirstTime bool
	Link      *entities.PlatformLink
	Metadata  MetadataResult
}

// AnchorService resolves an anchor-provider login to a canonical user
type AnchorService struct {
	platform entities.Platform
	links    repositories.LinkRepository
	accounts accounts.Service
	metadata *MetadataWriter
	profiles *ProfileService
	log      *slog.Logger
	now      func() time.Time
}

// NewAnchorService creates an anchor resolver for platform
func NewAnchorService(
	platform entities.Platform,
	links repositories.LinkRepository,
	accountSvc accounts.Service,
	metadata *MetadataWriter,
	profiles *ProfileService,
	log *slog.Logger,
) *AnchorService {
	return &AnchorService{
		platform: platform,
		links:    links,
		accounts: accountSvc,
		metadata: metadata,
		profiles: profiles,
		log:      log.With(slog.String("component", "anchor"), slog.String("platform", string(platform))),
		now:      time.Now,
	}
}

// Platform returns the anchor platform
func (s *AnchorService) Platform() entities.Platform {
	return s.platform
}

// Resolve decides first-time vs returning for an exchanged anchor identity.
//
// First-time (no link, a non-empty email and no account for it): register an account and
// create the link. Returning (link exists): authenticate only if the account
// service still knows the linked token. Anything else is ErrAnchorRejected.
// Account-service errors abort without writes; link write failures wrap
// ErrLinkPersistence.
func (s *AnchorService) Resolve(ctx context.Context, token *oauth2.Token, profile *oauth.Profile) (*AnchorResult, error) {
	log := s.log.With(slog.String("platform_user", profile.ExternalID))

	var (
		link        *entities.PlatformLink
		emailExists bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := s.links.GetByPlatformUser(gctx, s.platform, profile.ExternalID)
		if errors.Is(err, repositories.ErrLinkNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up anchor link: %w", err)
		}
		link = found
		return nil
	})
	g.Go(func() error {
		if profile.Email == "" {
			return nil
		}
		exists, err := s.accounts.Exists(gctx, profile.Email, false)
		if err != nil {
			return fmt.Errorf("failed to check account email: %w", err)
		}
		emailExists = exists
		return nil
	})
	if err := g.Wait(); err != nil {
		metrics.AnchorLogins.WithLabelValues("failed").Inc()
		return nil, err
	}

	now := s.now()
	displayName := s.metadata.SanitizeDisplayName(profile.DisplayName)

	if link == nil {
		if profile.Email == "" {
			log.Info("anchor login rejected: no email to register")
			metrics.AnchorLogins.WithLabelValues("rejected").Inc()
			return nil, ErrAnchorRejected
		}
		if emailExists {
			log.Info("anchor login rejected: email registered without a link")
			metrics.AnchorLogins.WithLabelValues("rejected").Inc()
			return nil, ErrAnchorRejected
		}
		return s.register(ctx, log, token, profile, displayName, now)
	}

	exists, err := s.accounts.Exists(ctx, link.CanonicalUser, true)
	if err != nil {
		metrics.AnchorLogins.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to validate account token: %w", err)
	}
	if !exists {
		log.Info("anchor login rejected: linked account no longer exists")
		metrics.AnchorLogins.WithLabelValues("rejected").Inc()
		return nil, ErrAnchorRejected
	}

	link.LinkSecret = GenerateSecret(now, profile.Email, profile.ExternalID, displayName)
	link.AccessToken = token.AccessToken
	link.RefreshToken = token.RefreshToken
	link.UpdatedAt = now.Unix()
	if err := s.links.Save(ctx, link); err != nil {
		metrics.LinkEvents.WithLabelValues(string(s.platform), "failed").Inc()
		metrics.AnchorLogins.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrLinkPersistence, err)
	}
	metrics.LinkEvents.WithLabelValues(string(s.platform), "updated").Inc()

	result := &AnchorResult{
		User:     link.CanonicalUser,
		Link:     link,
		Metadata: s.metadata.Write(ctx, s.platform, profile.ExternalID, s.metadata.Entries(profile)),
	}

	if displayName != "" {
		if err := s.accounts.UpdateDisplayName(ctx, link.CanonicalUser, displayName); err != nil {
			log.Warn("failed to sync display name", slog.String("error", err.Error()))
		}
	}

	s.profiles.Invalidate(link.CanonicalUser)
	metrics.AnchorLogins.WithLabelValues("returning").Inc()
	log.Info("anchor login", slog.String("user", link.CanonicalUser))
	return result, nil
}

func (s *AnchorService) register(ctx context.Context, log *slog.Logger, token *oauth2.Token, profile *oauth.Profile, displayName string, now time.Time) (*AnchorResult, error) {
	password := GeneratePassword(now, profile.Email, profile.ExternalID, displayName)

	user, err := s.accounts.Register(ctx, profile.Email, password, displayName)
	if err != nil {
		metrics.AnchorLogins.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to register account: %w", err)
	}

	link := &entities.PlatformLink{
		CanonicalUser: user,
		Platform:      s.platform,
		PlatformUser:  profile.ExternalID,
		LinkSecret:    GenerateSecret(now, profile.Email, profile.ExternalID, displayName),
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		ExpiresAt:     0,
		CreatedAt:     now.Unix(),
		UpdatedAt:     now.Unix(),
		DeletedAt:     0,
	}
	if err := s.links.Save(ctx, link); err != nil {
		metrics.LinkEvents.WithLabelValues(string(s.platform), "failed").Inc()
		metrics.AnchorLogins.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: %v", ErrLinkPersistence, err)
	}
	metrics.LinkEvents.WithLabelValues(string(s.platform), "created").Inc()

	result := &AnchorResult{
		User:      user,
		FirstTime: true,
		Link:      link,
		Metadata:  s.metadata.Write(ctx, s.platform, profile.ExternalID, s.metadata.Entries(profile)),
	}

	metrics.AnchorLogins.WithLabelValues("first_time").Inc()
	log.Info("anchor account registered", slog.String("user", user))
	return result, nil
}
