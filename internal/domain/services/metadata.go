package services

import (
	"context"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/levelcrush/gateway/internal/auth/oauth"
	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/domain/repositories"
	"github.com/levelcrush/gateway/internal/pkg/metrics"
)

// MetadataItem is the outcome of one key's upsert
type MetadataItem struct {
	Key string
	Err error
}

// MetadataResult collects per-key outcomes of a linkage event. Failures never
// fail the parent operation.
type MetadataResult struct {
	Items []MetadataItem
}

// Failed returns the items whose upsert failed
func (r MetadataResult) Failed() []MetadataItem {
	var failed []MetadataItem
	for _, item := range r.Items {
		if item.Err != nil {
			failed = append(failed, item)
		}
	}
	return failed
}

// OK reports whether every key was written
func (r MetadataResult) OK() bool {
	return len(r.Failed()) == 0
}

// MetadataWriter upserts profile metadata one key at a time
type MetadataWriter struct {
	repo   repositories.MetadataRepository
	policy *bluemonday.Policy
	log    *slog.Logger
	now    func() time.Time
}

// NewMetadataWriter creates a metadata writer
func NewMetadataWriter(repo repositories.MetadataRepository, log *slog.Logger) *MetadataWriter {
	return &MetadataWriter{
		repo:   repo,
		policy: bluemonday.StrictPolicy(),
		log:    log.With(slog.String("component", "metadata")),
		now:    time.Now,
	}
}

// Entries lists the keys a profile produces: profile, display_name, then any
// provider-derived keys
func (w *MetadataWriter) Entries(profile *oauth.Profile) []entities.MetadataEntry {
	entries := make([]entities.MetadataEntry, 0, 2+len(profile.Metadata))
	if len(profile.Raw) > 0 {
		entries = append(entries, entities.MetadataEntry{Key: entities.MetadataProfile, Value: string(profile.Raw)})
	}
	if name := w.SanitizeDisplayName(profile.DisplayName); name != "" {
		entries = append(entries, entities.MetadataEntry{Key: entities.MetadataDisplayName, Value: name})
	}
	return append(entries, profile.Metadata...)
}

// SanitizeDisplayName strips markup from an upstream display name. The
// result is plain text, so entities the policy escaped are decoded again.
func (w *MetadataWriter) SanitizeDisplayName(name string) string {
	return strings.TrimSpace(html.UnescapeString(w.policy.Sanitize(name)))
}

// Write upserts each entry independently, logging failures individually
func (w *MetadataWriter) Write(ctx context.Context, platform entities.Platform, platformUser string, entries []entities.MetadataEntry) MetadataResult {
	result := MetadataResult{Items: make([]MetadataItem, 0, len(entries))}
	for _, entry := range entries {
		now := w.now().Unix()
		err := w.repo.Upsert(ctx, &entities.ProfileMetadata{
			Platform:     platform,
			PlatformUser: platformUser,
			Key:          entry.Key,
			Value:        entry.Value,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		metrics.MetadataWrites.WithLabelValues(string(platform), entry.Key, metrics.ResultLabel(err)).Inc()
		if err != nil {
			w.log.Warn("failed to write profile metadata",
				slog.String("platform", string(platform)),
				slog.String("platform_user", platformUser),
				slog.String("key", entry.Key),
				slog.String("error", err.Error()))
		}
		result.Items = append(result.Items, MetadataItem{Key: entry.Key, Err: err})
	}
	return result
}
