package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindredapp/kindred/internal/profile"
	"github.com/kindredapp/kindred/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	driver, err := NewDB(&profile.Profile{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "kindred_test.db"),
	})
	require.NoError(t, err)

	d, ok := driver.(*DB)
	require.True(t, ok)
	t.Cleanup(func() { _ = d.Close() })

	require.NoError(t, d.Migrate(context.Background()))
	return d
}

func insertContentItem(t *testing.T, d *DB, uid, content string, partition store.ContentPartition) int32 {
	t.Helper()

	var id int32
	err := d.db.QueryRowContext(context.Background(), `
		INSERT INTO content_item (uid, owner_id, title, author, system, content, "partition", created_ts)
		VALUES (?, 1, ?, 'Author', 'readwise', ?, ?, ?)
		RETURNING id`,
		uid, "Note "+uid, content, partition, time.Now().Unix(),
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestVectorBlobRoundTrip(t *testing.T) {
	original := []float32{0.25, -1.5, 3.75, 0}
	decoded, err := blobToVector(vectorToBlob(original))
	require.NoError(t, err)
	assert.Equal(t, original, decoded)

	_, err = blobToVector([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestContentVectorSearch(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	attachedID := insertContentItem(t, d, "item-attached", "Anxious attachment shows up as fear of abandonment.", store.PartitionKnowledge)
	cookingID := insertContentItem(t, d, "item-cooking", "Slow-roasted vegetables develop deeper flavor.", store.PartitionKnowledge)
	researchID := insertContentItem(t, d, "item-research", "Recent studies on attachment styles in adults.", store.PartitionResearch)

	now := time.Now().Unix()
	for id, vector := range map[int32][]float32{
		attachedID: {1, 0},
		cookingID:  {0, 1},
		researchID: {0.9, 0.1},
	} {
		_, err := d.UpsertContentItemEmbedding(ctx, &store.ContentItemEmbedding{
			ContentItemID: id,
			Embedding:     vector,
			Model:         "test-model",
			CreatedTs:     now,
			UpdatedTs:     now,
		})
		require.NoError(t, err)
	}

	hits, err := d.ContentVectorSearch(ctx, &store.ContentVectorSearchOptions{
		OwnerID:   1,
		Vector:    []float32{1, 0},
		Model:     "test-model",
		Partition: store.PartitionKnowledge,
		Limit:     10,
	})
	require.NoError(t, err)

	// The research partition is excluded; the attachment note ranks first.
	require.Len(t, hits, 2)
	assert.Equal(t, attachedID, hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, cookingID, hits[1].ID)
	assert.InDelta(t, 0.0, hits[1].Score, 1e-6)

	// The owner boundary is absolute.
	hits, err = d.ContentVectorSearch(ctx, &store.ContentVectorSearchOptions{
		OwnerID:   2,
		Vector:    []float32{1, 0},
		Model:     "test-model",
		Partition: store.PartitionKnowledge,
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestUpsertContentItemEmbeddingReplaces(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	id := insertContentItem(t, d, "item-1", "some content", store.PartitionKnowledge)

	now := time.Now().Unix()
	for _, vector := range [][]float32{{0, 1}, {1, 0}} {
		_, err := d.UpsertContentItemEmbedding(ctx, &store.ContentItemEmbedding{
			ContentItemID: id,
			Embedding:     vector,
			Model:         "test-model",
			CreatedTs:     now,
			UpdatedTs:     now,
		})
		require.NoError(t, err)
	}

	hits, err := d.ContentVectorSearch(ctx, &store.ContentVectorSearchOptions{
		OwnerID:   1,
		Vector:    []float32{1, 0},
		Model:     "test-model",
		Partition: store.PartitionKnowledge,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1, "upsert must replace, not duplicate")
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestContentGraphWeight(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	id := insertContentItem(t, d, "item-linked", "a well connected note", store.PartitionKnowledge)

	weight, err := d.ContentGraphWeight(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, weight)

	for i := 0; i < 3; i++ {
		_, err := d.db.ExecContext(ctx,
			`INSERT INTO content_link (content_item_id, linked_item_id) VALUES (?, ?)`, id, id+int32(i)+1)
		require.NoError(t, err)
	}
	weight, err = d.ContentGraphWeight(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, weight, 1e-6)

	// Twelve more links saturate the weight at 1.0.
	for i := 0; i < 12; i++ {
		_, err := d.db.ExecContext(ctx,
			`INSERT INTO content_link (content_item_id, linked_item_id) VALUES (?, ?)`, id, id+int32(i)+10)
		require.NoError(t, err)
	}
	weight, err = d.ContentGraphWeight(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, weight, 1e-6)
}
