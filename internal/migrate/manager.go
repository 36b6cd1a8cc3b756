// Package migrate applies the embedded PostgreSQL schema with goose.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

const dialect = "postgres"

// goose keeps its configuration in package state.
var gooseMu sync.Mutex

// Seams over goose so the manager can be tested without a database.
var (
	gooseUp         = goose.UpContext
	gooseDown       = goose.DownContext
	gooseDBVersion  = goose.GetDBVersionContext
	gooseSetBaseFS  = goose.SetBaseFS
	gooseSetDialect = goose.SetDialect
	gooseSetLogger  = goose.SetLogger
)

// Manager runs schema migrations against a database.
type Manager struct {
	db     *sql.DB
	fsys   fs.FS
	dir    string
	logger log.Logger
}

// Option configures Manager.
type Option func(*Manager)

// WithFS replaces the embedded migrations, mainly for tests.
func WithFS(fsys fs.FS, dir string) Option {
	return func(m *Manager) {
		if fsys != nil {
			m.fsys = fsys
			m.dir = dir
		}
	}
}

// WithLogger routes goose output through logger.
func WithLogger(logger log.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager constructs a Manager over the embedded schema.
func NewManager(db *sql.DB, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		fsys:   embedded,
		dir:    "sql",
		logger: log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Migrations lists the migration files the manager would apply.
func (m *Manager) Migrations() ([]string, error) {
	return fs.Glob(m.fsys, m.dir+"/*.sql")
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	return m.run(func() error {
		if err := gooseUp(ctx, m.db, m.dir); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
		return nil
	})
}

// Down rolls back the most recent migration.
func (m *Manager) Down(ctx context.Context) error {
	return m.run(func() error {
		if err := gooseDown(ctx, m.db, m.dir); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
		return nil
	})
}

// Version reports the current schema version.
func (m *Manager) Version(ctx context.Context) (int64, error) {
	var version int64
	err := m.run(func() error {
		v, err := gooseDBVersion(ctx, m.db)
		if err != nil {
			return fmt.Errorf("schema version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

func (m *Manager) run(fn func() error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	gooseSetBaseFS(m.fsys)
	gooseSetLogger(gooseLogger{logger: m.logger})
	if err := gooseSetDialect(dialect); err != nil {
		return err
	}
	return fn()
}

// gooseLogger adapts go-kit logging to goose.Logger.
type gooseLogger struct {
	logger log.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	level.Info(l.logger).Log("component", "migrate", "msg", fmt.Sprintf(format, v...))
}

// Fatalf is reported as an error; goose returns the failure to the caller.
func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	level.Error(l.logger).Log("component", "migrate", "msg", fmt.Sprintf(format, v...))
}
