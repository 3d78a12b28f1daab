package postgres

import (
	"context"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/kindredapp/kindred/store"
)

func (d *DB) GetContentItem(ctx context.Context, find *store.FindContentItem) (*store.ContentItem, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "owner_id = "+placeholder(len(args)+1)), append(args, *find.OwnerID)
	}

	query := `
		SELECT id, uid, owner_id, title, author, system, content, partition, created_ts
		FROM content_item
		WHERE ` + strings.Join(where, " AND ") + `
		LIMIT 1`

	item := &store.ContentItem{}
	err := d.db.QueryRowContext(ctx, query, args...).Scan(
		&item.ID, &item.UID, &item.OwnerID, &item.Title, &item.Author, &item.System, &item.Content, &item.Partition, &item.CreatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get content item")
	}
	return item, nil
}

// UpsertContentItemEmbedding inserts or updates a content item embedding.
func (d *DB) UpsertContentItemEmbedding(ctx context.Context, embedding *store.ContentItemEmbedding) (*store.ContentItemEmbedding, error) {
	stmt := `
		INSERT INTO content_item_embedding (content_item_id, embedding, model, created_ts, updated_ts)
		VALUES (` + placeholders(5) + `)
		ON CONFLICT (content_item_id, model)
		DO UPDATE SET
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`

	vector := pgvector.NewVector(embedding.Embedding)
	err := d.db.QueryRowContext(ctx, stmt,
		embedding.ContentItemID,
		vector,
		embedding.Model,
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs)

	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert content item embedding")
	}

	return embedding, nil
}

// ContentVectorSearch performs vector similarity search using pgvector.
func (d *DB) ContentVectorSearch(ctx context.Context, opts *store.ContentVectorSearchOptions) ([]*store.ContentItemWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"ci.owner_id = " + placeholder(1), "ci.partition = " + placeholder(2)}
	args := []any{opts.OwnerID, opts.Partition}

	// The <=> operator computes cosine distance (1 - cosine_similarity),
	// so ordering by distance ASC yields most similar first.
	query := `
		SELECT
			ci.id, ci.uid, ci.owner_id, ci.title, ci.author, ci.system, ci.content, ci.partition, ci.created_ts,
			1 - (e.embedding <=> ` + placeholder(3) + `) AS score
		FROM content_item ci
		INNER JOIN content_item_embedding e ON ci.id = e.content_item_id
		WHERE ` + strings.Join(where, " AND ") + `
			AND e.model = ` + placeholder(4) + `
		ORDER BY e.embedding <=> ` + placeholder(5) + `
		LIMIT ` + placeholder(6)

	vector := pgvector.NewVector(opts.Vector)
	args = append(args, vector, opts.Model, vector, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run content vector search")
	}
	defer rows.Close()

	results := []*store.ContentItemWithScore{}
	for rows.Next() {
		var result store.ContentItemWithScore
		var item store.ContentItem

		err := rows.Scan(
			&item.ID, &item.UID, &item.OwnerID, &item.Title, &item.Author, &item.System, &item.Content, &item.Partition, &item.CreatedTs,
			&result.Score,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan content vector search result")
		}

		result.ContentItem = &item
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// ContentGraphWeight returns the normalized link connectivity of a
// content item. Ten or more links saturate at 1.0; no links weigh 0.
func (d *DB) ContentGraphWeight(ctx context.Context, contentItemID int32) (float64, error) {
	query := `
		SELECT LEAST(COUNT(*)::float / 10.0, 1.0)
		FROM content_link
		WHERE content_item_id = ` + placeholder(1) + ` OR linked_item_id = ` + placeholder(2)

	var weight float64
	if err := d.db.QueryRowContext(ctx, query, contentItemID, contentItemID).Scan(&weight); err != nil {
		return 0, errors.Wrap(err, "failed to get content graph weight")
	}
	return weight, nil
}
