// Copyright 2018, RadiantBlue Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package catalog stores scenes, images, tracked positions and the derived
// product ledger. Every mutating operation is safe under concurrent duplicate
// invocation: uniqueness is enforced by the database and surfaced either as
// "return existing" or as ErrCatalogConflict.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	migration "github.com/venicegeo/bf-scene-catalog/migrations"
)

var (
	// ErrCatalogConflict is returned when a strict insert violates a uniqueness constraint.
	ErrCatalogConflict = errors.New("catalog conflict")
	// ErrNotFound is returned by lookups of a single record that does not exist.
	ErrNotFound = errors.New("not found")
)

const (
	postgresDriver = "postgres"
	sqliteDriver   = "sqlite"
)

func init() {
	sqlx.BindDriver(sqliteDriver, sqlx.QUESTION)
}

// Store is the catalog. It is safe for concurrent use.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used for import and claim timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New wraps an open database. The driver must be "postgres" or "sqlite".
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to a postgres URL (postgres:// or postgresql://) or, for
// anything else, a sqlite database file.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	driver, source, err := resolveDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if driver == sqliteDriver {
		// One writer at a time; concurrent callers queue on the pool.
		db.SetMaxOpenConns(1)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return New(db, opts...), nil
}

func resolveDSN(dsn string) (driver, source string, err error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dbURI, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parsing database url: %w", err)
		}
		// XXX: pq expects SSL to be enabled if not explicitly disabled
		params := dbURI.Query()
		if params.Get("sslmode") == "" {
			params.Set("sslmode", "disable")
		}
		dbURI.RawQuery = params.Encode()
		return postgresDriver, dbURI.String(), nil
	}

	source = strings.TrimPrefix(dsn, "sqlite://")
	if source == "" {
		return "", "", errors.New("empty database url")
	}
	sep := "?"
	if strings.Contains(source, "?") {
		sep = "&"
	}
	source += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	return sqliteDriver, source, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the goose dialect of the backend.
func (s *Store) Dialect() string {
	if s.db.DriverName() == postgresDriver {
		return "postgres"
	}
	return "sqlite3"
}

// Migrate brings the schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	return migration.Up(ctx, s.db.DB, s.Dialect())
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func conflict(err error, format string, args ...interface{}) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrCatalogConflict, fmt.Sprintf(format, args...))
	}
	return err
}
