// Package retrieval assembles the ranked, deduplicated, snippet-annotated
// context bundle that grounds a chat answer, plus the per-request user
// context rebuilt from the owning records.
package retrieval

import (
	"math"
	"time"

	"github.com/kindredapp/kindred/store"
)

// Config holds the ranking knobs. The similarity/structural split and the
// top-K cut are tuning parameters, not laws; they are threaded through
// explicitly so evaluation is reproducible given identical inputs.
type Config struct {
	// SimilarityWeight and StructuralWeight combine the two ranking
	// signals: combined = similarity*sw + structural*stw.
	SimilarityWeight float64 // default: 0.6
	StructuralWeight float64 // default: 0.4

	// TopK is the number of sources kept after ranking.
	TopK int // default: 8

	// PartitionLimit caps the candidate fan-out per partition.
	PartitionLimit int // default: 20

	// PartitionTimeout bounds a single partition search. A partition that
	// misses its deadline is dropped, not fatal.
	PartitionTimeout time.Duration // default: 3s

	// MaxConcurrency bounds concurrent backend calls within one request.
	MaxConcurrency int // default: 4

	// SnippetMaxLen caps extracted snippets in characters.
	SnippetMaxLen int // default: 300

	// InteractionWindowDays and InteractionLimit bound the recent
	// interaction window; both apply (whichever is smaller wins).
	InteractionWindowDays int // default: 7
	InteractionLimit      int // default: 20

	// CacheSize and CacheTTL bound the owner+query bundle cache.
	CacheSize int           // default: 256
	CacheTTL  time.Duration // default: 5m
}

// DefaultConfig returns the default ranking configuration.
func DefaultConfig() *Config {
	return &Config{
		SimilarityWeight:      0.6,
		StructuralWeight:      0.4,
		TopK:                  8,
		PartitionLimit:        20,
		PartitionTimeout:      3 * time.Second,
		MaxConcurrency:        4,
		SnippetMaxLen:         300,
		InteractionWindowDays: 7,
		InteractionLimit:      20,
		CacheSize:             256,
		CacheTTL:              5 * time.Minute,
	}
}

func (c *Config) normalize() {
	if c.SimilarityWeight <= 0 && c.StructuralWeight <= 0 {
		c.SimilarityWeight, c.StructuralWeight = 0.6, 0.4
	}
	if c.TopK <= 0 {
		c.TopK = 8
	}
	if c.PartitionLimit <= 0 {
		c.PartitionLimit = 20
	}
	if c.PartitionTimeout <= 0 {
		c.PartitionTimeout = 3 * time.Second
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	if c.SnippetMaxLen <= 0 {
		c.SnippetMaxLen = 300
	}
	if c.InteractionWindowDays <= 0 {
		c.InteractionWindowDays = 7
	}
	if c.InteractionLimit <= 0 {
		c.InteractionLimit = 20
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
}

// RankedSource is a citation candidate with its ranking signals. It exists
// only during a single context-build operation and is never persisted.
type RankedSource struct {
	Item       *store.ContentItem
	Snippet    string
	Similarity float64
	Structural float64
	Combined   float64
}

// Citation renders the source as a persisted citation, with relevance
// rounded to 2 decimals.
func (r *RankedSource) Citation() store.SourceCitation {
	return store.SourceCitation{
		SourceID:  r.Item.ID,
		Title:     r.Item.Title,
		Author:    r.Item.Author,
		System:    r.Item.System,
		Snippet:   r.Snippet,
		Relevance: math.Round(r.Combined*100) / 100,
	}
}

// Bundle is the result of one context build. Partial is set when at least
// one partition search failed or timed out; the surviving sources are
// still usable and the chat proceeds with reduced grounding.
type Bundle struct {
	Sources []*RankedSource
	Partial bool
}

// Citations returns the pre-formatted citation list in rank order.
func (b *Bundle) Citations() []store.SourceCitation {
	citations := make([]store.SourceCitation, len(b.Sources))
	for i, source := range b.Sources {
		citations[i] = source.Citation()
	}
	return citations
}

// UserContext is the per-request snapshot of the user's declared values,
// active focus areas, mentors and bounded recent interactions. It is
// always recomputed from the owning records, never persisted.
type UserContext struct {
	Values       []*store.CoreValue
	FocusAreas   []*store.FocusArea
	Mentors      []*store.Mentor
	Interactions []*store.Interaction
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
