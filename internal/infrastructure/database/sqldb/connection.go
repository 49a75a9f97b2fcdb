package sqldb

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/levelcrush/gateway/internal/domain/repositories"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Connection manages the database connection
type Connection struct {
	DB     *sqlx.DB
	Driver string
}

// NewConnection opens and pings a database.
// postgres dsn: "host=... port=... user=... dbname=... sslmode=disable"
// sqlite dsn: a file path or ":memory:"
func NewConnection(driver, dsn string) (*Connection, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// every connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to configure sqlite: %w", err)
		}
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(0)
	}

	return &Connection{DB: db, Driver: driver}, nil
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.DB.Close()
}

// HealthCheck pings the database
func (c *Connection) HealthCheck(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// RunMigrations applies the schema for the connection's driver.
// postgres uses golang-migrate with the postgres/ directory; sqlite applies
// sqlite/*.sql in order (every statement is idempotent).
func (c *Connection) RunMigrations(migrationFS fs.FS) error {
	if c.Driver == DriverSQLite {
		return c.applySQLiteSchema(migrationFS)
	}

	m, err := c.newMigrate(migrationFS)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		if c.isDatabaseEmpty() {
			if err := m.Force(0); err != nil {
				return fmt.Errorf("failed to force reset dirty migration: %w", err)
			}
		} else {
			if err := m.Force(int(version)); err != nil {
				return fmt.Errorf("failed to force clean dirty migration: %w", err)
			}
		}
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// ForceMigrationVersion forces the migration version to a specific number
// This should only be used to recover from dirty migration states
func (c *Connection) ForceMigrationVersion(migrationFS fs.FS, version int) error {
	if c.Driver != DriverPostgres {
		return fmt.Errorf("forcing a migration version is only supported for postgres")
	}

	m, err := c.newMigrate(migrationFS)
	if err != nil {
		return err
	}

	if err := m.Force(version); err != nil {
		return fmt.Errorf("failed to force migration version %d: %w", version, err)
	}
	return nil
}

func (c *Connection) newMigrate(migrationFS fs.FS) (*migrate.Migrate, error) {
	postgresMigrations, err := fs.Sub(migrationFS, "postgres")
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres migrations sub-filesystem: %w", err)
	}

	source, err := iofs.New(postgresMigrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(c.DB.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func (c *Connection) applySQLiteSchema(migrationFS fs.FS) error {
	files, err := fs.Glob(migrationFS, "sqlite/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list sqlite migrations: %w", err)
	}
	sort.Strings(files)

	for _, name := range files {
		data, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		for _, stmt := range strings.Split(string(data), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := c.DB.Exec(stmt); err != nil {
				return fmt.Errorf("failed to apply %s: %w", name, err)
			}
		}
	}
	return nil
}

// isDatabaseEmpty checks if the database has no user tables
func (c *Connection) isDatabaseEmpty() bool {
	var count int
	query := `SELECT COUNT(*) FROM information_schema.tables
              WHERE table_schema = 'public'
              AND table_name NOT IN ('schema_migrations', 'schema_migration')`
	err := c.DB.Get(&count, query)
	return err == nil && count == 0
}

// Repositories wires every repository onto this connection
func (c *Connection) Repositories() *repositories.Repositories {
	return &repositories.Repositories{
		Links:    NewLinkRepository(c.DB),
		Metadata: NewMetadataRepository(c.DB),
		Sessions: NewSessionRepository(c.DB),
	}
}
