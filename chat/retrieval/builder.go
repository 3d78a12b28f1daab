package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kindredapp/kindred/chat/cache"
	"github.com/kindredapp/kindred/chat/embedding"
	"github.com/kindredapp/kindred/store"
)

// SearchStore is the subset of the persistence layer the builder reads.
// *store.Store satisfies it; tests substitute fakes.
type SearchStore interface {
	ContentVectorSearch(ctx context.Context, opts *store.ContentVectorSearchOptions) ([]*store.ContentItemWithScore, error)
	ContentGraphWeight(ctx context.Context, contentItemID int32) (float64, error)
	ListCoreValues(ctx context.Context, find *store.FindCoreValue) ([]*store.CoreValue, error)
	ListFocusAreas(ctx context.Context, find *store.FindFocusArea) ([]*store.FocusArea, error)
	ListMentors(ctx context.Context, find *store.FindMentor) ([]*store.Mentor, error)
	ListInteractions(ctx context.Context, find *store.FindInteraction) ([]*store.Interaction, error)
}

// Builder builds context bundles and user contexts for the orchestrator.
type Builder struct {
	store    SearchStore
	embedder embedding.Gateway
	config   *Config
	bundles  *cache.LRUCache[string, *Bundle]
}

// NewBuilder creates a new context Builder.
func NewBuilder(searchStore SearchStore, embedder embedding.Gateway, config *Config) *Builder {
	if config == nil {
		config = DefaultConfig()
	}
	config.normalize()

	return &Builder{
		store:    searchStore,
		embedder: embedder,
		config:   config,
		bundles:  cache.NewLRUCache[string, *Bundle](config.CacheSize, config.CacheTTL),
	}
}

// BuildContext retrieves, ranks and annotates sources for a query. Passing
// no partitions searches all of them. Partition failures degrade to a
// partial bundle; only query embedding failure is fatal.
func (b *Builder) BuildContext(ctx context.Context, ownerID int32, queryText string, partitions []store.ContentPartition) (*Bundle, error) {
	if len(partitions) == 0 {
		partitions = []store.ContentPartition{store.PartitionKnowledge, store.PartitionResearch}
	}

	cacheKey := bundleCacheKey(ownerID, queryText, partitions)
	if bundle, ok := b.bundles.Get(cacheKey); ok {
		return bundle, nil
	}

	vector, err := b.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}

	sem := semaphore.NewWeighted(int64(b.config.MaxConcurrency))

	var (
		mu         sync.Mutex
		candidates []*store.ContentItemWithScore
		partial    bool
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, partition := range partitions {
		partition := partition
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			searchCtx, cancel := context.WithTimeout(gctx, b.config.PartitionTimeout)
			defer cancel()

			hits, err := b.store.ContentVectorSearch(searchCtx, &store.ContentVectorSearchOptions{
				OwnerID:   ownerID,
				Vector:    vector,
				Model:     b.embedder.Model(),
				Partition: partition,
				Limit:     b.config.PartitionLimit,
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("retrieval: partition search failed, continuing without it",
					"partition", partition, "owner_id", ownerID, "error", err)
				partial = true
				return nil
			}
			candidates = append(candidates, hits...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sources, err := b.rank(ctx, sem, queryText, candidates)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{Sources: sources, Partial: partial}
	if !partial {
		b.bundles.SetWithDefaultTTL(cacheKey, bundle)
	}
	return bundle, nil
}

// rank scores, deduplicates and truncates the candidate set, then extracts
// snippets for the survivors.
func (b *Builder) rank(ctx context.Context, sem *semaphore.Weighted, queryText string, candidates []*store.ContentItemWithScore) ([]*RankedSource, error) {
	if len(candidates) == 0 {
		return []*RankedSource{}, nil
	}

	// Structural weights are optional enrichment: a missing graph entry or
	// a failing lookup means weight 0, never a failed build.
	weights := make([]float64, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			weight, err := b.store.ContentGraphWeight(gctx, candidate.ID)
			if err != nil {
				slog.Debug("retrieval: graph weight unavailable", "content_item_id", candidate.ID, "error", err)
				return nil
			}
			weights[i] = clamp01(weight)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Dedupe by content id, keeping the max combined score.
	best := make(map[int32]*RankedSource, len(candidates))
	for i, candidate := range candidates {
		similarity := clamp01(candidate.Score)
		combined := b.config.SimilarityWeight*similarity + b.config.StructuralWeight*weights[i]
		source := &RankedSource{
			Item:       candidate.ContentItem,
			Similarity: similarity,
			Structural: weights[i],
			Combined:   clamp01(combined),
		}
		if existing, ok := best[candidate.ID]; !ok || source.Combined > existing.Combined {
			best[candidate.ID] = source
		}
	}

	sources := make([]*RankedSource, 0, len(best))
	for _, source := range best {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool {
		if sources[i].Combined != sources[j].Combined {
			return sources[i].Combined > sources[j].Combined
		}
		return sources[i].Item.ID < sources[j].Item.ID
	})
	if len(sources) > b.config.TopK {
		sources = sources[:b.config.TopK]
	}

	for _, source := range sources {
		source.Snippet = ExtractSnippet(source.Item.Content, queryText, b.config.SnippetMaxLen)
	}
	return sources, nil
}

// BuildUserContext rebuilds the user's profile snapshot from the owning
// records. The interaction window is bounded both by age and by count.
func (b *Builder) BuildUserContext(ctx context.Context, ownerID int32) (*UserContext, error) {
	values, err := b.store.ListCoreValues(ctx, &store.FindCoreValue{OwnerID: ownerID})
	if err != nil {
		return nil, fmt.Errorf("list core values failed: %w", err)
	}
	focusAreas, err := b.store.ListFocusAreas(ctx, &store.FindFocusArea{OwnerID: ownerID, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list focus areas failed: %w", err)
	}
	mentors, err := b.store.ListMentors(ctx, &store.FindMentor{OwnerID: ownerID})
	if err != nil {
		return nil, fmt.Errorf("list mentors failed: %w", err)
	}

	since := time.Now().AddDate(0, 0, -b.config.InteractionWindowDays).Unix()
	interactions, err := b.store.ListInteractions(ctx, &store.FindInteraction{
		OwnerID: ownerID,
		Since:   since,
		Limit:   b.config.InteractionLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list interactions failed: %w", err)
	}

	return &UserContext{
		Values:       values,
		FocusAreas:   focusAreas,
		Mentors:      mentors,
		Interactions: interactions,
	}, nil
}

func bundleCacheKey(ownerID int32, queryText string, partitions []store.ContentPartition) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d\x00%s", ownerID, queryText)
	for _, partition := range partitions {
		fmt.Fprintf(h, "\x00%s", partition)
	}
	return fmt.Sprintf("bundle:%x", h.Sum(nil))
}
