package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/TheOusia/ousia/log"
	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"

	// File system migration source, used by migrate.NewWithDatabaseInstance.
	_ "github.com/golang-migrate/migrate/v4/source/file"
	// Registers the pgx stdlib driver under the "pgx" name.
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// Sentinel errors for configuration and lifecycle misuse.
var (
	ErrInvalidConfig       = errors.New("invalid postgres configuration")
	ErrInvalidDatabaseName = errors.New("invalid database name")
	ErrNilClient           = errors.New("nil postgres client")
	ErrNilMigrator         = errors.New("nil migrator")
	ErrNilContext          = errors.New("nil context")
	ErrNotConnected        = errors.New("not connected")
	ErrMigrationDirty      = errors.New("dirty database version")
)

// Function seams for tests.
var (
	dbOpenFn = sql.Open

	createResolverFn = func(primaryDB, replicaDB *sql.DB, _ log.Logger) (_ dbresolver.DB, err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("failed to create resolver: %v", recovered)
			}
		}()

		connectionDB := dbresolver.New(
			dbresolver.WithPrimaryDBs(primaryDB),
			dbresolver.WithReplicaDBs(replicaDB),
			dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB),
		)

		if connectionDB == nil {
			return nil, errors.New("resolver returned nil connection")
		}

		return connectionDB, nil
	}

	runMigrationsFn = runMigrations

	connectionStringCredentialsPattern = regexp.MustCompile(`://[^@\s]+@`)
	connectionStringPasswordPattern    = regexp.MustCompile(`(?i)(password=)([^\s&]+)`)
	connectionStringSSLFilePattern     = regexp.MustCompile(`(?i)(ssl(?:key|rootcert|cert)=)([^\s&]+)`)
	dbNamePattern                      = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)
)

// Config holds the connection settings for a primary/replica pair. Zero
// values for the pool knobs take package defaults.
type Config struct {
	PrimaryDSN         string
	ReplicaDSN         string
	Logger             log.Logger
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	if cfg.MaxOpenConnections <= 0 {
		cfg.MaxOpenConnections = defaultMaxOpenConns
	}

	if cfg.MaxIdleConnections <= 0 {
		cfg.MaxIdleConnections = defaultMaxIdleConns
	}

	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = defaultConnMaxLifetime
	}

	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = defaultConnMaxIdleTime
	}

	return cfg
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.PrimaryDSN) == "" {
		return fmt.Errorf("%w: primary DSN is required", ErrInvalidConfig)
	}

	if strings.TrimSpace(cfg.ReplicaDSN) == "" {
		return fmt.Errorf("%w: replica DSN is required", ErrInvalidConfig)
	}

	if err := validateDSN(cfg.PrimaryDSN); err != nil {
		return fmt.Errorf("%w: primary DSN: %v", ErrInvalidConfig, err)
	}

	if err := validateDSN(cfg.ReplicaDSN); err != nil {
		return fmt.Errorf("%w: replica DSN: %v", ErrInvalidConfig, err)
	}

	return nil
}

// Client is the connection hub for a primary/replica postgres pair. Reads
// are load-balanced across replicas through the resolver; writes always go
// to the primary. Connect swaps connections atomically: a failed reconnect
// keeps the previous healthy connection in place.
type Client struct {
	cfg Config

	mu        sync.RWMutex
	resolver  dbresolver.DB
	primary   *sql.DB
	replica   *sql.DB
	connected bool
}

// New validates the configuration and returns an unconnected client.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Client{cfg: cfg.withDefaults()}, nil
}

// Connect establishes the primary and replica connections and verifies them
// with a ping. On failure the client keeps whatever connection it had
// before; on success any previous connection is closed after the swap.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	if ctx == nil {
		return ErrNilContext
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before database connection: %w", err)
	}

	c.logAtLevel(ctx, log.LevelInfo, "connecting to primary and replica databases")

	warnInsecureDSN(ctx, c.cfg.Logger, c.cfg.PrimaryDSN, "primary")
	warnInsecureDSN(ctx, c.cfg.Logger, c.cfg.ReplicaDSN, "replica")

	primary, err := dbOpenFn("pgx", c.cfg.PrimaryDSN)
	if err != nil {
		sanitized := newSanitizedError(err, "failed to open database")
		c.logAtLevel(ctx, log.LevelError, "failed to open primary database", log.Err(sanitized))

		return sanitized
	}

	var success bool

	defer func() {
		if !success {
			_ = primary.Close()
		}
	}()

	configurePool(primary, c.cfg)

	replica, err := dbOpenFn("pgx", c.cfg.ReplicaDSN)
	if err != nil {
		sanitized := newSanitizedError(err, "failed to open database")
		c.logAtLevel(ctx, log.LevelError, "failed to open replica database", log.Err(sanitized))

		return sanitized
	}

	defer func() {
		if !success {
			_ = replica.Close()
		}
	}()

	configurePool(replica, c.cfg)

	resolver, err := createResolverFn(primary, replica, c.cfg.Logger)
	if err != nil {
		c.logAtLevel(ctx, log.LevelError, "failed to create resolver", log.Err(err))

		return fmt.Errorf("failed to create resolver: %w", err)
	}

	if err := resolver.PingContext(ctx); err != nil {
		_ = resolver.Close()

		sanitized := newSanitizedError(err, "failed to ping database")
		c.logAtLevel(ctx, log.LevelError, "failed to ping database", log.Err(sanitized))

		return sanitized
	}

	// The new connection is healthy; retire the old one.
	if c.resolver != nil {
		if closeErr := c.resolver.Close(); closeErr != nil {
			c.logAtLevel(ctx, log.LevelWarn, "failed to close previous connection after reconnect",
				log.Err(closeErr))
		}
	}

	c.resolver = resolver
	c.primary = primary
	c.replica = replica
	c.connected = true

	success = true

	c.logAtLevel(ctx, log.LevelInfo, "connected to postgres")

	return nil
}

// Resolver returns the read/write resolver, connecting lazily on first use.
func (c *Client) Resolver(ctx context.Context) (dbresolver.DB, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	if ctx == nil {
		return nil, ErrNilContext
	}

	c.mu.RLock()

	if c.resolver != nil {
		resolver := c.resolver
		c.mu.RUnlock()

		return resolver, nil
	}

	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the write lock.
	if c.resolver != nil {
		return c.resolver, nil
	}

	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	return c.resolver, nil
}

// Primary returns the write connection directly, bypassing the resolver.
// Plan execution uses it so SELECT ... FOR UPDATE never lands on a replica.
func (c *Client) Primary() (*sql.DB, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.primary == nil {
		return nil, ErrNotConnected
	}

	return c.primary, nil
}

// Close releases all connection resources. Safe to call repeatedly.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	if c.resolver != nil {
		if err := c.resolver.Close(); err != nil {
			errs = append(errs, err)
		}

		c.resolver = nil
	}

	if err := closeDB(c.primary); err != nil {
		errs = append(errs, err)
	}

	c.primary = nil

	if err := closeDB(c.replica); err != nil {
		errs = append(errs, err)
	}

	c.replica = nil
	c.connected = false

	return errors.Join(errs...)
}

// IsConnected reports whether the client holds a verified connection.
func (c *Client) IsConnected() (bool, error) {
	if c == nil {
		return false, ErrNilClient
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.connected, nil
}

func (c *Client) logAtLevel(ctx context.Context, level log.Level, msg string, fields ...log.Field) {
	if c == nil || c.cfg.Logger == nil {
		return
	}

	c.cfg.Logger.Log(ctx, level, msg, fields...)
}

func configurePool(db *sql.DB, cfg Config) {
	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

func closeDB(db *sql.DB) error {
	if db == nil {
		return nil
	}

	return db.Close()
}

// MigrationConfig holds the settings for running schema migrations against
// the primary database. Either MigrationsPath or Component must be set;
// Component resolves to components/<component>/migrations.
type MigrationConfig struct {
	PrimaryDSN           string
	DatabaseName         string
	Component            string
	MigrationsPath       string
	AllowMultiStatements bool
	Logger               log.Logger
}

func (cfg MigrationConfig) withDefaults() MigrationConfig {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	return cfg
}

func (cfg MigrationConfig) validate() error {
	if strings.TrimSpace(cfg.PrimaryDSN) == "" {
		return fmt.Errorf("%w: primary DSN is required", ErrInvalidConfig)
	}

	if err := validateDBName(cfg.DatabaseName); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.MigrationsPath) == "" && strings.TrimSpace(cfg.Component) == "" {
		return fmt.Errorf("%w: migrations path or component is required", ErrInvalidConfig)
	}

	return nil
}

// Migrator runs schema migrations as an explicit startup step, decoupled
// from connection establishment so an application controls when DDL runs.
type Migrator struct {
	cfg MigrationConfig
}

// NewMigrator validates the configuration and returns a migrator.
func NewMigrator(cfg MigrationConfig) (*Migrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Migrator{cfg: cfg.withDefaults()}, nil
}

// Up applies all pending migrations against the primary database.
func (m *Migrator) Up(ctx context.Context) error {
	if m == nil {
		return ErrNilMigrator
	}

	if ctx == nil {
		return ErrNilContext
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled before migration: %w", err)
	}

	migrationsPath, err := resolveMigrationsPath(m.cfg.MigrationsPath, m.cfg.Component)
	if err != nil {
		m.logAtLevel(ctx, log.LevelError, "failed to resolve migrations path", log.Err(err))

		return err
	}

	db, err := dbOpenFn("pgx", m.cfg.PrimaryDSN)
	if err != nil {
		sanitized := newSanitizedError(err, "failed to open database")
		m.logAtLevel(ctx, log.LevelError, "failed to open database for migration", log.Err(sanitized))

		return sanitized
	}

	defer func() { _ = db.Close() }()

	return runMigrationsFn(ctx, db, migrationsPath, m.cfg.DatabaseName, m.cfg.AllowMultiStatements, m.cfg.Logger)
}

func (m *Migrator) logAtLevel(ctx context.Context, level log.Level, msg string, fields ...log.Field) {
	if m == nil || m.cfg.Logger == nil {
		return
	}

	m.cfg.Logger.Log(ctx, level, msg, fields...)
}

// SanitizedError wraps a connection-layer error with credentials masked. It
// deliberately does not unwrap: chain traversal could hand the original,
// credential-bearing error to a caller's formatter.
type SanitizedError struct {
	msg string
}

func newSanitizedError(cause error, prefix string) *SanitizedError {
	if cause == nil {
		return nil
	}

	return &SanitizedError{msg: prefix + ": " + sanitizeSensitiveString(cause.Error())}
}

func (e *SanitizedError) Error() string { return e.msg }

// Unwrap returns nil so errors.Is/As cannot reach the unsanitized cause.
func (e *SanitizedError) Unwrap() error { return nil }

func sanitizeSensitiveString(s string) string {
	sanitized := connectionStringCredentialsPattern.ReplaceAllString(s, "://***@")
	sanitized = connectionStringPasswordPattern.ReplaceAllString(sanitized, "${1}***")
	sanitized = connectionStringSSLFilePattern.ReplaceAllString(sanitized, "${1}***")

	return sanitized
}

func validateDSN(dsn string) error {
	if dsn == "" {
		return nil
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if _, err := url.Parse(dsn); err != nil {
			return fmt.Errorf("malformed connection URL: %s", sanitizeSensitiveString(err.Error()))
		}
	}

	// Key-value DSNs are validated by the driver on connect.
	return nil
}

func warnInsecureDSN(ctx context.Context, logger log.Logger, dsn, role string) {
	if logger == nil {
		return
	}

	if strings.Contains(dsn, "sslmode=disable") {
		logger.Log(ctx, log.LevelWarn, "database connection has TLS disabled",
			log.String("role", role))
	}
}

func validateDBName(name string) error {
	if !dbNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidDatabaseName, name)
	}

	return nil
}

func sanitizePath(path string) (string, error) {
	cleaned := filepath.Clean(path)

	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("invalid migrations path: %q", path)
		}
	}

	absPath, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	return absPath, nil
}

func resolveMigrationsPath(path, component string) (string, error) {
	if path != "" {
		return sanitizePath(path)
	}

	// filepath.Base strips directory components, so "../../etc" becomes "etc".
	sanitized := filepath.Base(component)
	if sanitized == "." || sanitized == string(filepath.Separator) {
		return "", fmt.Errorf("invalid component name: %q", component)
	}

	return filepath.Abs(filepath.Join("components", sanitized, "migrations"))
}

type migrationOutcome struct {
	err     error
	level   log.Level
	message string
	fields  []log.Field
}

func classifyMigrationError(err error) migrationOutcome {
	if err == nil {
		return migrationOutcome{}
	}

	if errors.Is(err, migrate.ErrNoChange) {
		return migrationOutcome{level: log.LevelInfo, message: "no new migrations found, skipping"}
	}

	if errors.Is(err, os.ErrNotExist) {
		return migrationOutcome{level: log.LevelWarn, message: "no migration files found, skipping migration step"}
	}

	var dirtyErr migrate.ErrDirty
	if errors.As(err, &dirtyErr) {
		return migrationOutcome{
			err:     fmt.Errorf("%w: %d", ErrMigrationDirty, dirtyErr.Version),
			level:   log.LevelError,
			message: "migration failed with dirty database version",
			fields:  []log.Field{log.Int("version", dirtyErr.Version)},
		}
	}

	return migrationOutcome{
		err:     fmt.Errorf("migration failed: %w", err),
		level:   log.LevelError,
		message: "migration failed",
		fields:  []log.Field{log.Err(err)},
	}
}

func runMigrations(ctx context.Context, db *sql.DB, migrationsPath, dbName string, allowMultiStatements bool, logger log.Logger) error {
	sourceURL, err := url.Parse(filepath.ToSlash(migrationsPath))
	if err != nil {
		return fmt.Errorf("failed to parse migrations url: %w", err)
	}

	sourceURL.Scheme = "file"

	driver, err := migratepg.WithInstance(db, &migratepg.Config{
		MultiStatementEnabled: allowMultiStatements,
		DatabaseName:          dbName,
		SchemaName:            "public",
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver instance: %w", err)
	}

	migration, err := migrate.NewWithDatabaseInstance(sourceURL.String(), dbName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	outcome := classifyMigrationError(migration.Up())
	if outcome.message != "" && logger != nil {
		logger.Log(ctx, outcome.level, outcome.message, outcome.fields...)
	}

	return outcome.err
}
