// Package engine wraps sqlx.DB with the knowledge of the database type, sqlite or postgres.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // postgres driver loaded here
	_ "modernc.org/sqlite" // sqlite driver loaded here
)

// Type is a type of database engine
type Type string

// enum of supported database engines
const (
	Unknown  Type = ""
	Sqlite   Type = "sqlite"
	Postgres Type = "postgres"
)

// SQL is a wrapper for sqlx.DB with type.
// Type allows distinguishing between different database engines.
type SQL struct {
	sqlx.DB
	dbType Type
}

// New makes a database engine for the connection url. Sqlite is used for ":memory:", file paths
// (file://, file:, sqlite:// prefixes or .db/.sqlite suffix), postgres for postgres:// and postgresql:// urls.
func New(ctx context.Context, connURL string) (*SQL, error) {
	switch {
	case connURL == "":
		return nil, fmt.Errorf("connection URL is empty")
	case connURL == ":memory:":
		return NewSqlite(connURL)
	case strings.HasPrefix(connURL, "postgres://"), strings.HasPrefix(connURL, "postgresql://"):
		return NewPostgres(ctx, connURL)
	}

	for _, prefix := range []string{"file://", "sqlite://", "file:"} {
		if strings.HasPrefix(connURL, prefix) {
			return NewSqlite(strings.TrimPrefix(connURL, prefix))
		}
	}
	if strings.HasSuffix(connURL, ".db") || strings.HasSuffix(connURL, ".sqlite") {
		return NewSqlite(connURL)
	}
	return nil, fmt.Errorf("unsupported database type in %q", connURL)
}

// NewSqlite creates a new sqlite database
func NewSqlite(file string) (*SQL, error) {
	db, err := sqlx.Connect("sqlite", file)
	if err != nil {
		return &SQL{}, err
	}
	// a single connection, in-memory database lives per connection and sqlite writes are serialized anyway
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return &SQL{}, fmt.Errorf("failed to set sqlite pragma: %w", err)
	}
	return &SQL{DB: *db, dbType: Sqlite}, nil
}

// NewPostgres connects to the postgres database
func NewPostgres(ctx context.Context, connURL string) (*SQL, error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres connection url: %w", err)
	}
	if strings.Trim(u.Path, "/") == "" {
		return nil, fmt.Errorf("database name not specified in %s", u.Redacted())
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", connURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &SQL{DB: *db, dbType: Postgres}, nil
}

// Type returns the database engine type
func (e *SQL) Type() Type {
	return e.dbType
}

// Adopt converts "?" placeholders of the query to the engine's bind type
func (e *SQL) Adopt(q string) string {
	if e.dbType == Postgres {
		return sqlx.Rebind(sqlx.DOLLAR, q)
	}
	return q
}

// MakeLock creates a new lock for the database engine
func (e *SQL) MakeLock() RWLocker {
	if e.dbType == Sqlite {
		return new(sync.RWMutex) // sqlite need locking
	}
	return &NoopLocker{} // other engines don't need locking
}

// Query is a SQL statement with dialect-specific variants
type Query struct {
	Sqlite   string
	Postgres string
}

// Same makes a query identical for all dialects
func Same(q string) Query {
	return Query{Sqlite: q, Postgres: q}
}

// For returns the variant of the query for the database type
func (q Query) For(dbType Type) (string, error) {
	switch dbType {
	case Sqlite:
		return q.Sqlite, nil
	case Postgres:
		return q.Postgres, nil
	default:
		return "", fmt.Errorf("unsupported database type %q", dbType)
	}
}

// TableConfig defines a table with its indexes
type TableConfig struct {
	Name    string
	Create  Query
	Indexes []Query
}

// InitTable creates the table and its indexes, if they don't exist, in a transaction
func InitTable(ctx context.Context, db *SQL, cfg TableConfig) error {
	if db == nil {
		return fmt.Errorf("db connection is nil")
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	queries := append([]Query{cfg.Create}, cfg.Indexes...)
	for _, q := range queries {
		stmt, err := q.For(db.Type())
		if err != nil {
			return fmt.Errorf("failed to get query for %s: %w", cfg.Name, err)
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init %s: %w", cfg.Name, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RWLocker is a read-write locker interface
type RWLocker interface {
	sync.Locker
	RLock()
	RUnlock()
}

// NoopLocker is a no-op locker
type NoopLocker struct{}

// Lock is a no-op
func (NoopLocker) Lock() {}

// Unlock is a no-op
func (NoopLocker) Unlock() {}

// RLock is a no-op
func (NoopLocker) RLock() {}

// RUnlock is a no-op
func (NoopLocker) RUnlock() {}
