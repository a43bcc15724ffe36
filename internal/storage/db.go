package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect names a supported SQL backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// DB wraps a SQL connection and the dialect its queries are written for.
type DB struct {
	conn    *sql.DB
	dialect Dialect
}

// Open connects to the backend and runs migrations. For SQLite, dsn is a
// file path whose directory is created if needed.
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	var (
		conn *sql.DB
		err  error
	)
	switch dialect {
	case DialectSQLite:
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		conn, err = sql.Open("sqlite", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
		if err == nil {
			// single writer; avoids SQLITE_BUSY
			conn.SetMaxOpenConns(1)
		}
	case DialectPostgres:
		conn, err = sql.Open("postgres", dsn)
	case DialectMySQL:
		conn, err = sql.Open("mysql", dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}

	db := &DB{conn: conn, dialect: dialect}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Dialect returns the backend dialect.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (db *DB) rebind(q string) string {
	if db.dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
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

func (db *DB) migrate(ctx context.Context) error {
	key, text, ts := "TEXT", "TEXT", "TIMESTAMP"
	switch db.dialect {
	case DialectSQLite:
		ts = "DATETIME"
	case DialectMySQL:
		key, text, ts = "VARCHAR(191)", "LONGTEXT", "DATETIME(6)"
	case DialectPostgres:
		ts = "TIMESTAMPTZ"
	}

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pages (
			site_id ` + key + ` NOT NULL,
			page_id ` + key + ` NOT NULL,
			title ` + text + ` NOT NULL,
			slug ` + key + ` NOT NULL,
			environment ` + key + ` NOT NULL,
			document_json ` + text + ` NOT NULL,
			published_json ` + text + `,
			updated_at ` + ts + ` NOT NULL,
			published_at ` + ts + ` NULL,
			PRIMARY KEY (site_id, page_id)
		)`,
		`CREATE TABLE IF NOT EXISTS page_revisions (
			id ` + key + ` PRIMARY KEY,
			site_id ` + key + ` NOT NULL,
			page_id ` + key + ` NOT NULL,
			document_json ` + text + ` NOT NULL,
			created_at ` + ts + ` NOT NULL
		)`,
		// Undo/redo journal: one row per checkpoint.
		`CREATE TABLE IF NOT EXISTS history_entries (
			site_id ` + key + ` NOT NULL,
			page_id ` + key + ` NOT NULL,
			stack VARCHAR(8) NOT NULL,
			position INTEGER NOT NULL,
			id ` + key + ` NOT NULL,
			label ` + key + ` NOT NULL,
			snapshot_json ` + text + ` NOT NULL,
			created_at ` + ts + ` NOT NULL,
			PRIMARY KEY (site_id, page_id, stack, position)
		)`,
	}
	if db.dialect != DialectMySQL {
		migrations = append(migrations,
			`CREATE INDEX IF NOT EXISTS idx_page_revisions_page ON page_revisions(site_id, page_id, created_at)`)
	}

	for _, m := range migrations {
		if _, err := db.conn.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", strings.Join(strings.Fields(m), " ")[:40], err)
		}
	}
	return nil
}
