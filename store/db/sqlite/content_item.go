package sqlite

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/kindredapp/kindred/store"
)

func (d *DB) GetContentItem(ctx context.Context, find *store.FindContentItem) (*store.ContentItem, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.OwnerID != nil {
		where, args = append(where, "owner_id = ?"), append(args, *find.OwnerID)
	}

	query := `
		SELECT id, uid, owner_id, title, author, system, content, "partition", created_ts
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

// SQLite has no vector type: embeddings are stored as little-endian
// float32 BLOBs and cosine similarity is computed in the application.
// Acceptable for the dev-sized knowledge bases SQLite is meant for.

func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:i*4+4], math.Float32bits(v))
	}
	return blob
}

func blobToVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil, errors.Errorf("malformed embedding blob of %d bytes", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vector, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// UpsertContentItemEmbedding inserts or updates a content item embedding.
func (d *DB) UpsertContentItemEmbedding(ctx context.Context, embedding *store.ContentItemEmbedding) (*store.ContentItemEmbedding, error) {
	stmt := `
		INSERT INTO content_item_embedding (content_item_id, embedding, model, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (content_item_id, model)
		DO UPDATE SET
			embedding = excluded.embedding,
			updated_ts = excluded.updated_ts
		RETURNING id, created_ts, updated_ts`

	err := d.db.QueryRowContext(ctx, stmt,
		embedding.ContentItemID,
		vectorToBlob(embedding.Embedding),
		embedding.Model,
		embedding.CreatedTs,
		embedding.UpdatedTs,
	).Scan(&embedding.ID, &embedding.CreatedTs, &embedding.UpdatedTs)

	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert content item embedding")
	}

	return embedding, nil
}

// ContentVectorSearch loads the owner's embeddings for one partition and
// ranks them by cosine similarity in Go.
func (d *DB) ContentVectorSearch(ctx context.Context, opts *store.ContentVectorSearchOptions) ([]*store.ContentItemWithScore, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT
			ci.id, ci.uid, ci.owner_id, ci.title, ci.author, ci.system, ci.content, ci."partition", ci.created_ts,
			e.embedding
		FROM content_item ci
		INNER JOIN content_item_embedding e ON ci.id = e.content_item_id
		WHERE ci.owner_id = ? AND ci."partition" = ? AND e.model = ?`

	rows, err := d.db.QueryContext(ctx, query, opts.OwnerID, opts.Partition, opts.Model)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run content vector search")
	}
	defer rows.Close()

	results := []*store.ContentItemWithScore{}
	for rows.Next() {
		var item store.ContentItem
		var blob []byte

		err := rows.Scan(
			&item.ID, &item.UID, &item.OwnerID, &item.Title, &item.Author, &item.System, &item.Content, &item.Partition, &item.CreatedTs,
			&blob,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan content vector search result")
		}

		vector, err := blobToVector(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode embedding for content item %d", item.ID)
		}

		results = append(results, &store.ContentItemWithScore{
			ContentItem: &item,
			Score:       cosineSimilarity(opts.Vector, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ContentGraphWeight returns the normalized link connectivity of a
// content item. Ten or more links saturate at 1.0; no links weigh 0.
func (d *DB) ContentGraphWeight(ctx context.Context, contentItemID int32) (float64, error) {
	query := `
		SELECT MIN(CAST(COUNT(*) AS REAL) / 10.0, 1.0)
		FROM content_link
		WHERE content_item_id = ? OR linked_item_id = ?`

	var weight float64
	if err := d.db.QueryRowContext(ctx, query, contentItemID, contentItemID).Scan(&weight); err != nil {
		return 0, errors.Wrap(err, "failed to get content graph weight")
	}
	return weight, nil
}
