package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/levelcrush/gateway/internal/auth/oauth"
	"github.com/levelcrush/gateway/internal/domain/entities"
	"github.com/levelcrush/gateway/internal/domain/repositories"
	"github.com/levelcrush/gateway/internal/infrastructure/database/sqldb"
	"github.com/levelcrush/gateway/internal/pkg/logger"
	"github.com/levelcrush/gateway/migrations"
)

// fakeAccounts is an in-memory account service
type fakeAccounts struct {
	mu          sync.Mutex
	emails      map[string]string // email -> token
	tokens      map[string]bool
	next        int
	registerErr error
	existsErr   error
	updates     []string
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{emails: map[string]string{}, tokens: map[string]bool{}}
}

func (f *fakeAccounts) Register(_ context.Context, email, password, displayName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return "", f.registerErr
	}
	f.next++
	token := "canon-" + string(rune('0'+f.next))
	f.emails[email] = token
	f.tokens[token] = true
	return token, nil
}

func (f *fakeAccounts) Exists(_ context.Context, identifier string, byToken bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	if byToken {
		return f.tokens[identifier], nil
	}
	_, ok := f.emails[identifier]
	return ok, nil
}

func (f *fakeAccounts) UpdateDisplayName(_ context.Context, user, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, user+"="+displayName)
	return nil
}

// failingMetadata fails upserts for one key
type failingMetadata struct {
	repositories.MetadataRepository
	failKey string
}

func (f *failingMetadata) Upsert(ctx context.Context, meta *entities.ProfileMetadata) error {
	if meta.Key == f.failKey {
		return errors.New("disk full")
	}
	return f.MetadataRepository.Upsert(ctx, meta)
}

// failingLinks fails every Save
type failingLinks struct {
	repositories.LinkRepository
}

func (f *failingLinks) Save(context.Context, *entities.PlatformLink) error {
	return errors.New("connection reset")
}

// failingDeletes fails link deletes, and lookups when failList is set
type failingDeletes struct {
	repositories.LinkRepository
	failList bool
}

func (f *failingDeletes) ListByUserAndPlatform(ctx context.Context, user string, platform entities.Platform) ([]*entities.PlatformLink, error) {
	if f.failList {
		return nil, errors.New("connection refused")
	}
	return f.LinkRepository.ListByUserAndPlatform(ctx, user, platform)
}

func (f *failingDeletes) DeleteByPlatformUser(context.Context, entities.Platform, string) (int64, error) {
	return 0, errors.New("lock timeout")
}

// failingMetadataDeletes fails every metadata delete
type failingMetadataDeletes struct {
	repositories.MetadataRepository
}

func (f *failingMetadataDeletes) DeleteByPlatformUser(context.Context, entities.Platform, string) (int64, error) {
	return 0, errors.New("lock timeout")
}

type fixture struct {
	repos    *repositories.Repositories
	accounts *fakeAccounts
	profiles *ProfileService
	writer   *MetadataWriter
	anchor   *AnchorService
	links    *LinkService
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := sqldb.NewConnection(sqldb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.RunMigrations(migrations.FS))

	f := &fixture{
		repos:    conn.Repositories(),
		accounts: newFakeAccounts(),
		clock:    time.Unix(1_700_000_000, 0),
	}
	f.rebuild()
	return f
}

func (f *fixture) rebuild() {
	log := logger.Discard()
	f.profiles = NewProfileService(f.repos.Links, f.repos.Metadata, log)
	f.writer = NewMetadataWriter(f.repos.Metadata, log)
	f.writer.now = f.now
	f.anchor = NewAnchorService(entities.PlatformDiscord, f.repos.Links, f.accounts, f.writer, f.profiles, log)
	f.anchor.now = f.now
	f.links = NewLinkService(entities.PlatformDiscord, f.repos.Links, f.repos.Metadata, f.writer, f.profiles, log)
	f.links.now = f.now
}

func (f *fixture) now() time.Time {
	return f.clock
}

func (f *fixture) tick() {
	f.clock = f.clock.Add(time.Minute)
}

func discordProfile(id, email, name string) *oauth.Profile {
	return &oauth.Profile{ExternalID: id, Email: email, DisplayName: name, Raw: []byte(`{"id":"` + id + `"}`)}
}

func TestAnchorFirstTimeLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.anchor.Resolve(ctx, &oauth2.Token{AccessToken: "at", RefreshToken: "rt"}, discordProfile("d1", "a@example.com", "nelly#1337"))
	require.NoError(t, err)
	assert.True(t, res.FirstTime)
	assert.Equal(t, "canon-1", res.User)

	link, err := f.repos.Links.GetByPlatformUser(ctx, entities.PlatformDiscord, "d1")
	require.NoError(t, err)
	assert.Equal(t, "canon-1", link.CanonicalUser)
	assert.Equal(t, int64(0), link.DeletedAt)
	assert.Len(t, link.LinkSecret, 32)

	name, err := f.repos.Metadata.Get(ctx, entities.PlatformDiscord, "d1", entities.MetadataDisplayName)
	require.NoError(t, err)
	assert.Equal(t, "nelly#1337", name.Value)
}

func TestAnchorReturningLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.anchor.Resolve(ctx, &oauth2.Token{AccessToken: "at1"}, discordProfile("d1", "a@example.com", "nelly"))
	require.NoError(t, err)

	f.tick()
	// email changed upstream; the link still identifies the account
	res, err := f.anchor.Resolve(ctx, &oauth2.Token{AccessToken: "at2"}, discordProfile("d1", "new@example.com", "nelly2"))
	require.NoError(t, err)
	assert.False(t, res.FirstTime)
	assert.Equal(t, first.User, res.User)
	assert.NotEqual(t, first.Link.LinkSecret, res.Link.LinkSecret)

	link, err := f.repos.Links.GetByPlatformUser(ctx, entities.PlatformDiscord, "d1")
	require.NoError(t, err)
	assert.Equal(t, "at2", link.AccessToken)
	assert.Greater(t, link.UpdatedAt, link.CreatedAt)
	assert.Equal(t, []string{first.User + "=nelly2"}, f.accounts.updates)
}

func TestAnchorRejectsDeletedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.anchor.Resolve(ctx, &oauth2.Token{AccessToken: "at"}, discordProfile("d1", "a@example.com", "nelly"))
	require.NoError(t, err)
	f.accounts.tokens[first.User] = false

	_, err = f.anchor.Resolve(ctx, &oauth2.Token{AccessToken: "at"}, discordProfile("d1", "a@example.com", "nelly"))
	assert.ErrorIs(t, err, ErrAnchorRejected)
}

func TestAnchorRejectsEmailWithoutLink(t *testing.T) {
	f := newFixture(t)
	f.accounts.emails["taken@example.com"] = "canon-x"

	_, err := f.anchor.Resolve(context.Background(), &oauth2.Token{AccessToken: "at"}, discordProfile("d9", "taken@example.com", "x"))
	assert.ErrorIs(t, err, ErrAnchorRejected)

	_, err = f.repos.Links.GetByPlatformUser(context.Background(), entities.PlatformDiscord, "d9")
	assert.ErrorIs(t, err, repositories.ErrLinkNotFound)
}

func TestAnchorRejectsMissingEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.anchor.Resolve(context.Background(), &oauth2.Token{AccessToken: "at"}, discordProfile("d9", "", "x"))
	assert.ErrorIs(t, err, ErrAnchorRejected)
	assert.Zero(t, f.accounts.next)
	assert.Empty(t, f.accounts.emails)

	_, err = f.repos.Links.GetByPlatformUser(context.Background(), entities.PlatformDiscord, "d9")
	assert.ErrorIs(t, err, repositories.ErrLinkNotFound)
}

func TestAnchorUpstreamFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.accounts.existsErr = errors.New("503")

	_, err := f.anchor.Resolve(context.Background(), &oauth2.Token{AccessToken: "at"}, discordProfile("d1", "a@example.com", "nelly"))
	require.Error(t, err)
	assert.False(t, IsLinkPersistence(err))

	_, err = f.repos.Links.GetByPlatformUser(context.Background(), entities.PlatformDiscord, "d1")
	assert.ErrorIs(t, err, repositories.ErrLinkNotFound)
}

func TestAnchorLinkPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.repos.Links = &failingLinks{LinkRepository: f.repos.Links}
	f.rebuild()

	_, err := f.anchor.Resolve(context.Background(), &oauth2.Token{AccessToken: "at"}, discordProfile("d1", "a@example.com", "nelly"))
	assert.True(t, IsLinkPersistence(err))
}

func TestReconcileCreatesThenUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	profile := &oauth.Profile{ExternalID: "t1", DisplayName: "TwitchDev", Raw: []byte(`{"id":"t1"}`)}

	res, err := f.links.Reconcile(ctx, "canon-1", entities.PlatformTwitch, &oauth2.Token{AccessToken: "a1", RefreshToken: "r1"}, profile)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Metadata.OK())
	firstUpdated := res.Link.UpdatedAt

	f.tick()
	res, err = f.links.Reconcile(ctx, "canon-1", entities.PlatformTwitch, &oauth2.Token{AccessToken: "a2", RefreshToken: "r2"}, profile)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Greater(t, res.Link.UpdatedAt, firstUpdated)

	links, err := f.repos.Links.ListByUserAndPlatform(ctx, "canon-1", entities.PlatformTwitch)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "a2", links[0].AccessToken)
	assert.Equal(t, int64(0), links[0].ExpiresAt)
}

func TestReconcileMovesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	profile := &oauth.Profile{ExternalID: "t1", DisplayName: "TwitchDev"}

	_, err := f.links.Reconcile(ctx, "canon-1", entities.PlatformTwitch, &oauth2.Token{AccessToken: "a"}, profile)
	require.NoError(t, err)

	res, err := f.links.Reconcile(ctx, "canon-2", entities.PlatformTwitch, &oauth2.Token{AccessToken: "b"}, profile)
	require.NoError(t, err)
	assert.Equal(t, "canon-1", res.PreviousOwner)

	old, err := f.repos.Links.ListByUser(ctx, "canon-1")
	require.NoError(t, err)
	assert.Empty(t, old)

	moved, err := f.repos.Links.ListByUser(ctx, "canon-2")
	require.NoError(t, err)
	assert.Len(t, moved, 1)
}

func TestReconcileMetadataFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.repos.Metadata = &failingMetadata{MetadataRepository: f.repos.Metadata, failKey: entities.MetadataProfile}
	f.rebuild()
	ctx := context.Background()

	profile := &oauth.Profile{
		ExternalID:  "b1",
		DisplayName: "Guardian#0042",
		Raw:         []byte(`{}`),
		Metadata:    []entities.MetadataEntry{{Key: entities.MetadataRaidReport, Value: "https://raid.report/pc/1"}},
	}
	res, err := f.links.Reconcile(ctx, "canon-1", entities.PlatformBungie, &oauth2.Token{AccessToken: "a"}, profile)
	require.NoError(t, err)

	failed := res.Metadata.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, entities.MetadataProfile, failed[0].Key)

	name, err := f.repos.Metadata.Get(ctx, entities.PlatformBungie, "b1", entities.MetadataDisplayName)
	require.NoError(t, err)
	assert.Equal(t, "Guardian#0042", name.Value)

	report, err := f.repos.Metadata.Get(ctx, entities.PlatformBungie, "b1", entities.MetadataRaidReport)
	require.NoError(t, err)
	assert.Equal(t, "https://raid.report/pc/1", report.Value)
}

func TestReconcileLinkPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.repos.Links = &failingLinks{LinkRepository: f.repos.Links}
	f.rebuild()

	_, err := f.links.Reconcile(context.Background(), "canon-1", entities.PlatformTwitch, &oauth2.Token{AccessToken: "a"}, &oauth.Profile{ExternalID: "t1"})
	assert.True(t, IsLinkPersistence(err))
}

func TestDisplayNameIsSanitized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.links.Reconcile(ctx, "canon-1", entities.PlatformTwitch, &oauth2.Token{AccessToken: "a"},
		&oauth.Profile{ExternalID: "t1", DisplayName: `<script>alert(1)</script>Dev`})
	require.NoError(t, err)

	name, err := f.repos.Metadata.Get(ctx, entities.PlatformTwitch, "t1", entities.MetadataDisplayName)
	require.NoError(t, err)
	assert.Equal(t, "Dev", name.Value)
}

func TestUnlink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.links.Reconcile(ctx, "canon-1", entities.PlatformTwitch, &oauth2.Token{AccessToken: "a"},
		&oauth.Profile{ExternalID: "t1", DisplayName: "Dev", Raw: []byte(`{}`)})
	require.NoError(t, err)

	res, err := f.links.Unlink(ctx, "canon-1", entities.PlatformTwitch)
	require.NoError(t, err)
	assert.Equal(t, UnlinkResult{Matched: 1}, res)

	_, err = f.repos.Links.GetByPlatformUser(ctx, entities.PlatformTwitch, "t1")
	assert.ErrorIs(t, err, repositories.ErrLinkNotFound)
	meta, err := f.repos.Metadata.List(ctx, entities.PlatformTwitch, "t1")
	require.NoError(t, err)
	assert.Empty(t, meta)

	// idempotent
	res, err = f.links.Unlink(ctx, "canon-1", entities.PlatformTwitch)
	require.NoError(t, err)
	assert.Equal(t, UnlinkResult{}, res)
}

func TestUnlinkPersistenceFailures(t *testing.T) {
	tests := []struct {
		name   string
		inject func(f *fixture)
		want   UnlinkResult
	}{
		{
			name:   "lookup fails",
			inject: func(f *fixture) { f.repos.Links = &failingDeletes{LinkRepository: f.repos.Links, failList: true} },
			want:   UnlinkResult{Failed: 1},
		},
		{
			name:   "link delete fails",
			inject: func(f *fixture) { f.repos.Links = &failingDeletes{LinkRepository: f.repos.Links} },
			want:   UnlinkResult{Matched: 1, Failed: 1},
		},
		{
			name:   "metadata delete fails",
			inject: func(f *fixture) { f.repos.Metadata = &failingMetadataDeletes{MetadataRepository: f.repos.Metadata} },
			want:   UnlinkResult{Matched: 1, Failed: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.links.Reconcile(ctx, "canon-1", entities.PlatformTwitch, &oauth2.Token{AccessToken: "a"},
				&oauth.Profile{ExternalID: "t1", DisplayName: "Dev", Raw: []byte(`{}`)})
			require.NoError(t, err)

			tt.inject(f)
			f.rebuild()

			res, err := f.links.Unlink(ctx, "canon-1", entities.PlatformTwitch)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res)
		})
	}
}

func TestUnlinkRefusesAnchor(t *testing.T) {
	f := newFixture(t)
	_, err := f.links.Unlink(context.Background(), "canon-1", entities.PlatformDiscord)
	assert.ErrorIs(t, err, ErrAnchorUnlink)
}

func TestProfileSummaryCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.links.Reconcile(ctx, "canon-1", entities.PlatformTwitch, &oauth2.Token{AccessToken: "a"},
		&oauth.Profile{ExternalID: "t1", DisplayName: "Dev"})
	require.NoError(t, err)

	summary, err := f.profiles.Summary(ctx, "canon-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"twitch": "Dev"}, summary)

	// mutating the returned map must not leak into the cache
	summary["bungie"] = "nope"
	again, err := f.profiles.Summary(ctx, "canon-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"twitch": "Dev"}, again)

	_, err = f.links.Unlink(ctx, "canon-1", entities.PlatformTwitch)
	require.NoError(t, err)
	after, err := f.profiles.Summary(ctx, "canon-1")
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestGenerateSecret(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := GenerateSecret(now, "u", "id", "name")
	assert.Len(t, a, 32)
	assert.Equal(t, a, GenerateSecret(now, "u", "id", "name"))
	assert.NotEqual(t, a, GenerateSecret(now.Add(time.Second), "u", "id", "name"))
	assert.NotEqual(t, a, GenerateSecret(now, "ui", "d", "name"))
	assert.NotEqual(t, GeneratePassword(now, "x"), GeneratePassword(now, "x"))
}
