package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kindredapp/kindred/chat/cache"
)

func TestContentHashIsStable(t *testing.T) {
	assert.Equal(t, contentHash("same text"), contentHash("same text"))
	assert.NotEqual(t, contentHash("one"), contentHash("two"))
}

func TestEmbedServesFromCache(t *testing.T) {
	// No client is wired: a cache hit must not touch the provider.
	g := &gateway{
		model:      "test-model",
		dimensions: 2,
		vectors:    cache.NewLRUCache[string, []float32](8, time.Minute),
	}
	g.vectors.SetWithDefaultTTL(contentHash("cached text"), []float32{0.1, 0.2})

	vector, err := g.Embed(context.Background(), "cached text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vector)
}

func TestNewGatewayDefaults(t *testing.T) {
	g, err := NewGateway(&Config{Model: "m", Dimensions: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, g.Dimensions())
	assert.Equal(t, "m", g.Model())
}
