package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ReviewRanker/internal/config"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_sqlite.sql
var sqliteSchema string

// Dialect selects driver specific SQL.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// queueLockKey is the advisory lock serializing claims across Postgres workers.
const queueLockKey = 72311

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB wraps the connection pool with a dialect-aware statement builder.
type DB struct {
	db      *sqlx.DB
	dialect Dialect
	sb      sq.StatementBuilderType
}

// New wraps an existing pool. Used directly by tests with sqlmock.
func New(db *sqlx.DB, dialect Dialect) *DB {
	var format sq.PlaceholderFormat = sq.Question
	if dialect == DialectPostgres {
		format = sq.Dollar
	}
	return &DB{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(format),
	}
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	dialect := Dialect(strings.ToLower(cfg.Driver))
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	conn, err := sqlx.Open(string(dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		// One connection keeps writers serialized, which also makes queue claims atomic.
		conn.SetMaxOpenConns(1)
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA foreign_keys = ON",
			"PRAGMA busy_timeout = 5000",
		}
		for _, pragma := range pragmas {
			if _, execErr := conn.ExecContext(ctx, pragma); execErr != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
			}
		}
	} else {
		conn.SetMaxOpenConns(cfg.MaxOpenConns)
		conn.SetConnMaxIdleTime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	store := New(conn, dialect)
	if err := store.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates missing tables and indexes.
func (d *DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if d.dialect == DialectPostgres {
		schema = postgresSchema
	}
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks connectivity for health probes.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close releases the pool.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Dialect reports the active SQL dialect.
func (d *DB) Dialect() Dialect {
	return d.dialect
}

func (d *DB) lockQueue(ctx context.Context, tx *sqlx.Tx) error {
	if d.dialect != DialectPostgres {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, queueLockKey); err != nil {
		return fmt.Errorf("lock queue: %w", err)
	}
	return nil
}

func (d *DB) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := d.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return toMillis(*t)
}

func millisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func execRequireRows(result sql.Result, execErr error, notFound error) error {
	if execErr != nil {
		return execErr
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
