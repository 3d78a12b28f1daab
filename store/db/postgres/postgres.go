package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/kindredapp/kindred/internal/profile"
	"github.com/kindredapp/kindred/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL database using the DSN from the profile.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate applies the latest schema. Statements are idempotent so the
// migration can run on every startup.
func (d *DB) Migrate(ctx context.Context) error {
	dimensions := d.profile.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = 1024
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS migration_history (
			version TEXT NOT NULL PRIMARY KEY,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversation (
			id SERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			title_source TEXT NOT NULL DEFAULT 'default',
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS message (
			id BIGSERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			conversation_id INTEGER NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			citations JSONB NOT NULL DEFAULT '[]',
			direct_mode BOOLEAN NOT NULL DEFAULT FALSE,
			confidence DOUBLE PRECISION,
			feedback TEXT,
			incomplete BOOLEAN NOT NULL DEFAULT FALSE,
			latency_ms BIGINT NOT NULL DEFAULT 0,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_conversation_id ON message (conversation_id)`,
		`CREATE TABLE IF NOT EXISTS core_value (
			id SERIAL PRIMARY KEY,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS focus_area (
			id SERIAL PRIMARY KEY,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			progress DOUBLE PRECISION NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS mentor (
			id SERIAL PRIMARY KEY,
			owner_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			expertise TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS interaction (
			id SERIAL PRIMARY KEY,
			owner_id INTEGER NOT NULL,
			summary TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT 'neutral',
			created_ts BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS content_item (
			id SERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			owner_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			author TEXT NOT NULL DEFAULT '',
			system TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			partition TEXT NOT NULL DEFAULT 'knowledge',
			created_ts BIGINT NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS content_item_embedding (
			id SERIAL PRIMARY KEY,
			content_item_id INTEGER NOT NULL REFERENCES content_item(id) ON DELETE CASCADE,
			embedding vector(%d) NOT NULL,
			model TEXT NOT NULL,
			created_ts BIGINT NOT NULL,
			updated_ts BIGINT NOT NULL,
			UNIQUE (content_item_id, model)
		)`, dimensions),
		`CREATE TABLE IF NOT EXISTS content_link (
			id SERIAL PRIMARY KEY,
			content_item_id INTEGER NOT NULL REFERENCES content_item(id) ON DELETE CASCADE,
			linked_item_id INTEGER NOT NULL REFERENCES content_item(id) ON DELETE CASCADE,
			UNIQUE (content_item_id, linked_item_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to apply migration")
		}
	}
	return nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		list = append(list, placeholder(i))
	}
	return strings.Join(list, ", ")
}
