// Package sqlstore implements the durable stores on database/sql, against
// either SQLite (modernc) or PostgreSQL (pgx).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect names a supported database flavour.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps a database connection and the dialect its queries are written for.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open connects to the database named by driver ("sqlite" or "postgres").
func Open(driver, dsn string) (*DB, error) {
	dialect := Dialect(strings.ToLower(strings.TrimSpace(driver)))
	switch dialect {
	case DialectSQLite:
		return openSQLite(dsn)
	case DialectPostgres, "pgx":
		return openPostgres(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openSQLite(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single database.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return &DB{DB: db, dialect: DialectSQLite}, nil
}

func openPostgres(dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	return &DB{DB: db, dialect: DialectPostgres}, nil
}

// Dialect reports which database flavour is in use.
func (db *DB) Dialect() Dialect { return db.dialect }

// rebind rewrites "?" placeholders for the active dialect.
func (db *DB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate returns the row-lock suffix for SELECTs inside a transaction.
func (db *DB) forUpdate() string {
	if db.dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RunMigrations creates the schema if it does not exist yet.
func (db *DB) RunMigrations() error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.dialect == DialectPostgres {
		serial = "BIGSERIAL PRIMARY KEY"
	}

	migration := `
-- Tags
CREATE TABLE IF NOT EXISTS tags (
    code TEXT PRIMARY KEY,
    kind TEXT NOT NULL CHECK(kind IN ('item', 'pet')),
    owner TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '{}',
    contact TEXT NOT NULL DEFAULT '{}',
    settings TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL CHECK(status IN ('active', 'inactive', 'suspended', 'found')),
    is_activated BOOLEAN NOT NULL DEFAULT FALSE,
    activated_at BIGINT,
    scan_count BIGINT NOT NULL DEFAULT 0,
    last_scanned_at BIGINT,
    found_info TEXT,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tags_owner ON tags(owner);
CREATE INDEX IF NOT EXISTS idx_tags_status ON tags(status);

-- Scan ledger, bounded per tag by the writer
CREATE TABLE IF NOT EXISTS scan_events (
    id ` + serial + `,
    code TEXT NOT NULL REFERENCES tags(code),
    scanned_at BIGINT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    agent TEXT NOT NULL DEFAULT '',
    location TEXT
);
CREATE INDEX IF NOT EXISTS idx_scan_events_code ON scan_events(code, id);

-- Pending contact verifications, one per tag
CREATE TABLE IF NOT EXISTS pending_updates (
    code TEXT PRIMARY KEY REFERENCES tags(code),
    id TEXT NOT NULL,
    otp_hash TEXT NOT NULL,
    proposed_email TEXT NOT NULL DEFAULT '',
    proposed_phone TEXT NOT NULL DEFAULT '',
    attempts INTEGER NOT NULL DEFAULT 0,
    expires_at BIGINT NOT NULL,
    created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_expires ON pending_updates(expires_at);

-- Notification outcomes
CREATE TABLE IF NOT EXISTS deliveries (
    id ` + serial + `,
    event_kind TEXT NOT NULL,
    code TEXT NOT NULL,
    deliverer TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL CHECK(status IN ('delivered', 'failed', 'skipped')),
    error TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_code ON deliveries(code);
`

	if _, err := db.Exec(migration); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Timestamps are stored as UTC unix nanoseconds so both dialects round-trip them exactly.
func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}
