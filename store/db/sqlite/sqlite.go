package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/kindredapp/kindred/internal/profile"
	"github.com/kindredapp/kindred/store"
)

// SQLite is supported on a best-effort basis for development and testing.
// Embeddings are stored as BLOBs and similarity is computed in Go; larger
// knowledge bases should run PostgreSQL with pgvector.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a SQLite database at the DSN from the profile.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// WAL journal mode prevents most locking issues; with the
	// modernc.org/sqlite driver each pragma must be prefixed with _pragma=.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// A single connection is optimal for SQLite with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	return &DB{db: sqliteDB, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate applies the latest schema. Statements are idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS migration_history (
			version TEXT NOT NULL PRIMARY KEY,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			title_source TEXT NOT NULL DEFAULT 'default',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS message (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			conversation_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			citations TEXT NOT NULL DEFAULT '[]',
			direct_mode INTEGER NOT NULL DEFAULT 0,
			confidence REAL,
			feedback TEXT,
			incomplete INTEGER NOT NULL DEFAULT 0,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_conversation_id ON message (conversation_id)`,
		`CREATE TABLE IF NOT EXISTS core_value (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS focus_area (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			progress REAL NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS mentor (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			expertise TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS interaction (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id INTEGER NOT NULL,
			summary TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT 'neutral',
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS content_item (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			system TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			"partition" TEXT NOT NULL DEFAULT 'knowledge',
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS content_item_embedding (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content_item_id INTEGER NOT NULL,
			embedding BLOB NOT NULL,
			model TEXT NOT NULL,
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL,
			UNIQUE (content_item_id, model)
		)`,
		`CREATE TABLE IF NOT EXISTS content_link (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content_item_id INTEGER NOT NULL,
			linked_item_id INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_content_link_item ON content_link (content_item_id)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to apply migration")
		}
	}
	return nil
}
