// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package datasource opens the configured databases lazily, one connection
// pool per alias, and counts rows of named entities.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/innovationmech/switstatus/pkg/logger"
	"github.com/innovationmech/switstatus/pkg/tracing"
)

// DefaultAlias is used when a caller does not name a database.
const DefaultAlias = "default"

// Supported drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	// ErrUnknownAlias is returned for an alias with no configuration.
	ErrUnknownAlias = errors.New("unknown database alias")
	// ErrUnsupportedDriver is returned for a driver other than mysql, postgres or sqlite.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	// ErrInvalidTable is returned when an entity maps to a table name that is
	// not a plain identifier.
	ErrInvalidTable = errors.New("invalid table name")
)

// Config describes one database.
type Config struct {
	Driver          string        `mapstructure:"driver" json:"driver" yaml:"driver" validate:"required,oneof=mysql postgres sqlite"`
	DSN             string        `mapstructure:"dsn" json:"dsn" yaml:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// builtinTables covers entities whose table does not follow the
// "<app>_<model>" convention.
var builtinTables = map[string]string{
	"sessions.Session": "django_session",
	"auth.User":        "auth_user",
	"auth.Group":       "auth_group",
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// TableName maps an entity such as "blog.Post" to its table. Explicit
// entries win, then the built-in names, then "<app>_<model>" lowercased.
func TableName(entity string, entities map[string]string) string {
	if t, ok := entities[entity]; ok {
		return t
	}
	if t, ok := builtinTables[entity]; ok {
		return t
	}
	return strings.ToLower(strings.ReplaceAll(entity, ".", "_"))
}

// counter counts rows of one table on one database.
type counter interface {
	count(ctx context.Context, table string) (int64, error)
	close() error
}

// Manager holds one lazily opened connection per alias.
type Manager struct {
	mu       sync.Mutex
	configs  map[string]Config
	entities map[string]string
	conns    map[string]counter
	tracing  tracing.TracingManager
	log      *zap.Logger
	open     func(alias string, cfg Config) (counter, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithEntities sets explicit entity to table mappings.
func WithEntities(entities map[string]string) Option {
	return func(m *Manager) { m.entities = entities }
}

// WithTracing installs the GORM tracing plugin on MySQL connections.
func WithTracing(tm tracing.TracingManager) Option {
	return func(m *Manager) { m.tracing = tm }
}

// WithLogger overrides the global logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a manager; nothing is opened until the first Count.
func NewManager(configs map[string]Config, opts ...Option) *Manager {
	m := &Manager{
		configs: configs,
		conns:   make(map[string]counter),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.GetLogger()
	}
	m.open = m.openCounter
	return m
}

// Aliases lists configured aliases in sorted order.
func (m *Manager) Aliases() []string {
	aliases := make([]string, 0, len(m.configs))
	for a := range m.configs {
		aliases = append(aliases, a)
	}
	slices.Sort(aliases)
	return aliases
}

// Count returns the number of rows stored for entity on alias, together with
// the alias the query actually ran on.
func (m *Manager) Count(ctx context.Context, entity, alias string) (int64, string, error) {
	if alias == "" {
		alias = DefaultAlias
	}
	table := TableName(entity, m.entities)
	if !identRe.MatchString(table) {
		return 0, alias, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}

	c, err := m.conn(alias)
	if err != nil {
		return 0, alias, err
	}
	n, err := c.count(ctx, table)
	if err != nil {
		return 0, alias, fmt.Errorf("count %s on %s: %w", entity, alias, err)
	}
	return n, alias, nil
}

func (m *Manager) conn(alias string) (counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.conns[alias]; ok {
		return c, nil
	}
	cfg, ok := m.configs[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlias, alias)
	}
	c, err := m.open(alias, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", alias, err)
	}
	m.log.Info("database connection opened", zap.String("alias", alias), zap.String("driver", cfg.Driver))
	m.conns[alias] = c
	return c, nil
}

// Close closes every open connection.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for alias, c := range m.conns {
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("close database %s: %w", alias, err))
		}
		delete(m.conns, alias)
	}
	return errors.Join(errs...)
}

func (m *Manager) openCounter(alias string, cfg Config) (counter, error) {
	switch cfg.Driver {
	case DriverMySQL:
		db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
		if err != nil {
			return nil, err
		}
		return newGormCounter(db, alias, cfg, m.tracing)
	case DriverPostgres:
		return openSQLCounter("postgres", cfg)
	case DriverSQLite:
		return openSQLCounter("sqlite3", cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

type gormCounter struct {
	db *gorm.DB
}

func newGormCounter(db *gorm.DB, alias string, cfg Config, tm tracing.TracingManager) (*gormCounter, error) {
	if sqlDB, err := db.DB(); err == nil {
		applyPool(sqlDB, cfg)
	}
	if tm != nil {
		tc := tracing.DefaultGormTracingConfig()
		tc.DBSystem = cfg.Driver
		tc.Alias = alias
		if err := tracing.InstallGormTracing(db, tm, tc); err != nil {
			return nil, err
		}
	}
	return &gormCounter{db: db}, nil
}

func (g *gormCounter) count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := g.db.WithContext(ctx).Table(table).Count(&n).Error
	return n, err
}

func (g *gormCounter) close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type sqlCounter struct {
	db *sql.DB
}

func openSQLCounter(driverName string, cfg Config) (*sqlCounter, error) {
	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, err
	}
	applyPool(db, cfg)
	return &sqlCounter{db: db}, nil
}

func (s *sqlCounter) count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n)
	return n, err
}

func (s *sqlCounter) close() error { return s.db.Close() }

// quoteIdent double-quotes each dotted part of an identifier already
// validated against identRe.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return strings.Join(parts, ".")
}

func applyPool(db *sql.DB, cfg Config) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}
