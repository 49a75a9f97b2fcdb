package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"

	"github.com/levelcrush/gateway/gateway/internal/handlers"
	"github.com/levelcrush/gateway/gateway/internal/session"
	"github.com/levelcrush/gateway/internal/accounts"
	"github.com/levelcrush/gateway/internal/auth/oauth"
	"github.com/levelcrush/gateway/internal/config"
	"github.com/levelcrush/gateway/internal/domain/repositories"
	"github.com/levelcrush/gateway/internal/domain/services"
	"github.com/levelcrush/gateway/internal/infrastructure/database/sqldb"
	"github.com/levelcrush/gateway/internal/pkg/metrics"
	"github.com/levelcrush/gateway/migrations"
)

// app holds the wired gateway components
type app struct {
	cfg       *config.Config
	conn      *sqldb.Connection
	repos     *repositories.Repositories
	providers *oauth.Registry
	anchor    *services.AnchorService
	links     *services.LinkService
	profiles  *services.ProfileService
	store     sessions.Store
	dbStore   *session.DatabaseStore // nil with the cookie store
	handler   *handlers.Handler
	log       *slog.Logger
}

// connectDatabase opens the configured database, retrying while it comes up
func connectDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*sqldb.Connection, error) {
	const maxRetries = 10
	retryDelay := 2 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		conn, err := sqldb.NewConnection(cfg.Database.Driver, cfg.Database.DSN())
		if err == nil {
			log.Info("connected to database", slog.String("driver", cfg.Database.Driver))
			return conn, nil
		}
		lastErr = err

		if cfg.Database.Driver == sqldb.DriverSQLite || i == maxRetries-1 {
			break
		}
		log.Warn("failed to connect to database",
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_delay", retryDelay),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
		retryDelay = min(retryDelay*2, 30*time.Second)
	}
	return nil, fmt.Errorf("failed to connect to database: %w", lastErr)
}

// newApp connects the database, applies migrations and wires every component.
// base is the RoundTripper for upstream calls (nil for the default).
func newApp(ctx context.Context, cfg *config.Config, base http.RoundTripper, log *slog.Logger) (*app, error) {
	conn, err := connectDatabase(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if err := conn.RunMigrations(migrations.FS); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a, err := wire(cfg, conn, base, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

// wire builds services and handlers on an open, migrated connection
func wire(cfg *config.Config, conn *sqldb.Connection, base http.RoundTripper, log *slog.Logger) (*app, error) {
	repos := conn.Repositories()

	providers, err := oauth.NewRegistryFromConfig(cfg, base, log)
	if err != nil {
		return nil, fmt.Errorf("failed to configure providers: %w", err)
	}

	accountClient := accounts.NewClient(
		cfg.Hosts.API,
		cfg.Application.Token,
		metrics.NewUpstreamClient("accounts", base, oauth.DefaultTimeout),
		log,
	)

	profiles := services.NewProfileService(repos.Links, repos.Metadata, log)
	writer := services.NewMetadataWriter(repos.Metadata, log)
	anchor := services.NewAnchorService(cfg.AnchorPlatform(), repos.Links, accountClient, writer, profiles, log)
	links := services.NewLinkService(cfg.AnchorPlatform(), repos.Links, repos.Metadata, writer, profiles, log)

	secret := []byte(cfg.Session.Secret)
	a := &app{
		cfg:       cfg,
		conn:      conn,
		repos:     repos,
		providers: providers,
		anchor:    anchor,
		links:     links,
		profiles:  profiles,
		log:       log,
	}
	if cfg.Session.Store == "database" {
		a.dbStore = session.NewDatabaseStore(repos.Sessions, cfg.Session.TTL, cfg.Session.Secure, session.KeyPair(secret)...)
		a.store = a.dbStore
	} else {
		a.store = session.NewCookieStore(secret, cfg.Session.TTL, cfg.Session.Secure)
	}

	a.handler = handlers.New(
		providers,
		anchor,
		links,
		profiles,
		session.NewManager(a.store, cfg.Session.Name),
		session.NewStateSigner(secret),
		conn,
		handlers.Options{
			PublicURL:    cfg.Server.PublicURL,
			FrontendURL:  cfg.Hosts.Frontend,
			Application:  cfg.Application.Token,
			AllowedHosts: cfg.Redirects.AllowedHosts,
		},
		log,
	)
	return a, nil
}

// pruneSessions drops expired database sessions; a no-op for the cookie store
func (a *app) pruneSessions(ctx context.Context) {
	if a.dbStore == nil {
		return
	}
	n, err := a.dbStore.PruneExpired(ctx)
	if err != nil {
		a.log.Warn("failed to prune sessions", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		a.log.Info("pruned expired sessions", slog.Int64("count", n))
	}
}

func (a *app) Close() error {
	return a.conn.Close()
}
