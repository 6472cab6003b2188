// Package client is the runtime entry point: a Domain binds a model to a
// database, sessions run queries against it and transactions scope them.
package client

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"  // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib"  // PostgreSQL driver (pgx)
	_ "github.com/lib/pq"               // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"     // SQLite driver
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver

	"github.com/satishbabariya/queryable/internal/debug"
	"github.com/satishbabariya/queryable/query/cache"
	"github.com/satishbabariya/queryable/query/sqlgen"
	"github.com/satishbabariya/queryable/schema"
	"github.com/satishbabariya/queryable/telemetry"
)

// Config configures a Domain.
type Config struct {
	// Provider is one of sqlite, postgres, pgx, mysql or sqlserver.
	Provider string
	// ServerVersion gates provider features; empty selects the provider
	// default.
	ServerVersion string
	// DSN is the driver connection string used by Open.
	DSN string
	// QueryCacheSize bounds the compiled-query cache; zero selects
	// cache.DefaultSize and a negative size leaves it unbounded.
	QueryCacheSize int
	// QueryCacheTTL expires compiled queries that long after compilation;
	// zero keeps them until evicted.
	QueryCacheTTL time.Duration
	// Telemetry receives translation metrics; nil disables them.
	Telemetry *telemetry.Recorder
	// Dialect overrides the dialect derived from Provider and ServerVersion.
	Dialect sqlgen.Dialect
}

// Domain is a model bound to a database. It owns the compiled-query cache
// shared by all its sessions and is safe for concurrent use.
type Domain struct {
	db        *sql.DB
	model     *schema.Model
	dialect   sqlgen.Dialect
	cache     *cache.QueryCache
	telemetry *telemetry.Recorder
	owned     bool

	mu          sync.RWMutex
	middlewares []Middleware
}

// Open opens a database connection with the driver of cfg.Provider and
// returns a domain owning it.
func Open(m *schema.Model, cfg Config) (*Domain, error) {
	d, err := dialectFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Provider(), err)
	}
	if d.Provider() == "sqlite" && isMemory(cfg.DSN) {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	dom, err := New(db, m, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dom.owned = true
	return dom, nil
}

// New returns a domain over an existing database handle. Close does not close
// db.
func New(db *sql.DB, m *schema.Model, cfg Config) (*Domain, error) {
	if db == nil {
		return nil, fmt.Errorf("client: nil database")
	}
	if m == nil {
		return nil, fmt.Errorf("client: nil model")
	}
	d, err := dialectFor(cfg)
	if err != nil {
		return nil, err
	}
	debug.Debug("domain opened", "provider", d.Provider(), "version", d.Version().String(), "features", d.Features().String())
	return &Domain{
		db:        db,
		model:     m,
		dialect:   d,
		cache:     cache.NewQueryCache(cfg.QueryCacheSize, cfg.QueryCacheTTL),
		telemetry: cfg.Telemetry,
	}, nil
}

func dialectFor(cfg Config) (sqlgen.Dialect, error) {
	if cfg.Dialect != nil {
		return cfg.Dialect, nil
	}
	if cfg.Provider == "" {
		return nil, fmt.Errorf("client: no provider configured")
	}
	return sqlgen.NewDialect(cfg.Provider, cfg.ServerVersion)
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || dsn == "" || strings.Contains(dsn, "mode=memory")
}

// Model is the domain model.
func (d *Domain) Model() *schema.Model { return d.model }

// Dialect is the SQL dialect of the provider.
func (d *Domain) Dialect() sqlgen.Dialect { return d.dialect }

// Features are the provider features queries may use.
func (d *Domain) Features() sqlgen.Features { return d.dialect.Features() }

// DB returns the underlying database handle.
func (d *Domain) DB() *sql.DB { return d.db }

// QueryCacheCount is the number of compiled queries in the cache.
func (d *Domain) QueryCacheCount() int { return d.cache.Count() }

// QueryCacheStats returns the cache statistics.
func (d *Domain) QueryCacheStats() cache.Stats { return d.cache.Stats() }

// ClearQueryCache drops every compiled query.
func (d *Domain) ClearQueryCache() { d.cache.Clear() }

// InvalidateQueries drops the compiled queries whose cache keys match
// pattern and returns how many were dropped. Keys have the form
// provider:version:fingerprint and "*" matches any one part, so
// "sqlite:*:*" drops every SQLite command.
func (d *Domain) InvalidateQueries(pattern string) int {
	n := d.cache.Invalidate(pattern)
	debug.Debug("query cache invalidated", "pattern", pattern, "dropped", n)
	return n
}

// Telemetry is the metrics recorder, possibly nil.
func (d *Domain) Telemetry() *telemetry.Recorder { return d.telemetry }

// Use appends a middleware to the chain wrapping every query execution.
func (d *Domain) Use(m Middleware) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.middlewares = append(d.middlewares, m)
}

func (d *Domain) chain() []Middleware {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.middlewares
}

// OpenSession returns a new session.
func (d *Domain) OpenSession() *Session {
	return &Session{domain: d}
}

// Ping verifies the database connection.
func (d *Domain) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// CreateSchema creates the tables of every entity hierarchy.
func (d *Domain) CreateSchema(ctx context.Context) error {
	tables := d.model.Tables()
	for i, stmt := range d.SchemaDDL() {
		debug.Debug("create table", "sql", stmt)
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", tables[i].Name, err)
		}
	}
	return nil
}

// SchemaDDL returns the statements CreateSchema runs.
func (d *Domain) SchemaDDL() []string {
	var out []string
	for _, t := range d.model.Tables() {
		out = append(out, d.dialect.CreateTable(t))
	}
	return out
}

// Close closes the database when the domain opened it.
func (d *Domain) Close() error {
	if !d.owned {
		return nil
	}
	return d.db.Close()
}
