package postgres

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/kindredapp/kindred/store"
)

func (d *DB) ListMigrationHistories(ctx context.Context, find *store.FindMigrationHistory) ([]*store.MigrationHistory, error) {
	query := `SELECT version, created_ts FROM migration_history ORDER BY created_ts DESC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migration histories")
	}
	defer rows.Close()

	list := make([]*store.MigrationHistory, 0)
	for rows.Next() {
		h := &store.MigrationHistory{}
		if err := rows.Scan(&h.Version, &h.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan migration history")
		}
		list = append(list, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpsertMigrationHistory(ctx context.Context, upsert *store.UpsertMigrationHistory) (*store.MigrationHistory, error) {
	stmt := `INSERT INTO migration_history (version, created_ts)
		VALUES (` + placeholders(2) + `)
		ON CONFLICT (version) DO UPDATE SET version = EXCLUDED.version
		RETURNING version, created_ts`

	h := &store.MigrationHistory{}
	if err := d.db.QueryRowContext(ctx, stmt, upsert.Version, time.Now().Unix()).Scan(&h.Version, &h.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert migration history")
	}
	return h, nil
}
