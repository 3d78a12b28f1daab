// Package embedding wraps an OpenAI-compatible embedding provider behind
// a content-hash cache.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/kindredapp/kindred/chat/cache"
)

// Gateway generates fixed-length vectors for text.
type Gateway interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension.
	Dimensions() int

	// Model returns the embedding model identifier.
	Model() string
}

// Config represents embedding gateway configuration.
type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int

	// CacheSize and CacheTTL bound the content-hash cache.
	CacheSize int
	CacheTTL  time.Duration
}

type gateway struct {
	client     *openai.Client
	vectors    *cache.LRUCache[string, []float32]
	model      string
	dimensions int
}

// NewGateway creates a new embedding Gateway. Any OpenAI-compatible
// provider works; the base URL selects it.
func NewGateway(cfg *Config) (Gateway, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	cacheSize := cfg.CacheSize
	if cacheSize <= 0 {
		cacheSize = 2048
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Minute
	}

	return &gateway{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		vectors:    cache.NewLRUCache[string, []float32](cacheSize, cacheTTL),
	}, nil
}

func (g *gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	key := contentHash(text)
	if vector, ok := g.vectors.Get(key); ok {
		return vector, nil
	}

	vectors, err := g.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errors.New("empty embedding result")
	}

	g.vectors.SetWithDefaultTTL(key, vectors[0])
	return vectors[0], nil
}

func (g *gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := g.embedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, text := range texts {
		g.vectors.SetWithDefaultTTL(contentHash(text), vectors[i])
	}
	return vectors, nil
}

func (g *gateway) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(g.model),
		Dimensions: g.dimensions,
	}

	resp, err := g.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response size mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = data.Embedding
	}

	return vectors, nil
}

func (g *gateway) Dimensions() int {
	return g.dimensions
}

func (g *gateway) Model() string {
	return g.model
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
