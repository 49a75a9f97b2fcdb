package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/levelcrush/gateway/internal/config"
	"github.com/levelcrush/gateway/internal/pkg/idgen"
	"github.com/levelcrush/gateway/internal/pkg/logger"
	"github.com/levelcrush/gateway/migrations"
)

// sessionPruneInterval is how often the database session store is swept
const sessionPruneInterval = time.Hour

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the flags shared by every subcommand
type globalOptions struct {
	configPath    string
	logLevel      string
	logFile       string
	logFormat     string
	alsoLogStderr bool

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:           "gateway",
		Short:         "Identity-linking OAuth gateway",
		Long:          "Links Discord, Twitch and Bungie identities to a single account",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config file (optional)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")
	flags.StringVar(&opts.logFile, "log-file", "", "Log file path (if specified, logs to file instead of stderr)")
	flags.StringVar(&opts.logFormat, "log-format", "", "Log format (text, json); overrides config")
	flags.BoolVar(&opts.alsoLogStderr, "alsologtostderr", false, "Log to both file and stderr")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP gateway (default)",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), opts.cfg)
			},
		},
		newMigrateCommand(opts),
		newLinksCommand(opts),
	)

	return cmd
}

// setup loads configuration and installs the global logger
func (o *globalOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	level, format, file := cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File
	if cmd.Flags().Changed("log-level") {
		level = o.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		format = o.logFormat
	}
	if o.logFile != "" {
		file = o.logFile
	}

	globalLogger, err := logger.SetupLogger(logger.Config{
		Level:         logger.ParseLevel(level),
		LogFile:       file,
		LogToStderr:   file == "",
		AlsoLogStderr: o.alsoLogStderr,
		Format:        format,
	})
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.SetDefault(globalLogger)

	if err := idgen.Initialize(1); err != nil {
		return fmt.Errorf("failed to initialize ID generator: %w", err)
	}

	o.cfg = cfg
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default().With(slog.String("component", "gateway"))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, nil, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("providers configured",
		slog.String("anchor", string(cfg.AnchorPlatform())),
		slog.Any("platforms", a.providers.Platforms()))

	a.pruneSessions(ctx)

	servers := []*http.Server{{
		Addr:              cfg.Server.Addr(),
		Handler:           createRouter(cfg, a.handler, log),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.Server.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.Server.MetricsPort),
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info("listening", slog.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server on %s failed: %w", srv.Addr, err)
			}
			return nil
		})
	}

	if a.dbStore != nil {
		g.Go(func() error {
			ticker := time.NewTicker(sessionPruneInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					a.pruneSessions(gctx)
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("shutdown failed", slog.String("address", srv.Addr), slog.String("error", err.Error()))
			}
		}
		return nil
	})

	return g.Wait()
}

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	var forceVersion int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and prune expired sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg
			log := slog.Default().With(slog.String("component", "migrate"))

			conn, err := connectDatabase(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer conn.Close()

			if forceVersion >= 0 {
				log.Info("forcing migration version", slog.Int("version", forceVersion))
				return conn.ForceMigrationVersion(migrations.FS, forceVersion)
			}

			if err := conn.RunMigrations(migrations.FS); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("migrations applied", slog.String("driver", cfg.Database.Driver))

			n, err := conn.Repositories().Sessions.DeleteExpired(ctx, time.Now())
			if err != nil {
				return fmt.Errorf("failed to prune sessions: %w", err)
			}
			log.Info("pruned expired sessions", slog.Int64("count", n))
			return nil
		},
	}

	cmd.Flags().IntVar(&forceVersion, "force-migration", -1, "Force migration version (use to fix dirty migration state)")
	return cmd
}
