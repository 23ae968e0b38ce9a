package kb

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Embedder computes a vector representation of a text. Implementations must
// be safe for concurrent use; a nil Embedder means semantic matching is
// disabled and the matcher degrades to keyword-only scoring.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type cacheEntry struct {
	vector     []float32
	generation uint64
}

// EmbeddingCache caches embedding vectors keyed by normalized text. Entries
// are tagged with the cache generation current at compute time; Invalidate
// bumps the generation so every prior entry becomes stale without an O(n)
// sweep, and stale entries are dropped lazily on the next lookup.
type EmbeddingCache struct {
	embedder Embedder
	logger   *zap.Logger

	mu         sync.Mutex
	generation uint64
	entries    map[string]cacheEntry
}

func NewEmbeddingCache(embedder Embedder, logger *zap.Logger) *EmbeddingCache {
	return &EmbeddingCache{
		embedder: embedder,
		logger:   logger,
		entries:  make(map[string]cacheEntry),
	}
}

// Enabled reports whether an embedding model is configured.
func (c *EmbeddingCache) Enabled() bool {
	return c.embedder != nil
}

// Generation returns the current cache generation. Callers capture it once
// per operation and pass it to Embed so a reload mid-scan cannot mix vectors
// from two generations.
func (c *EmbeddingCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Invalidate marks every cached vector stale. Called after each knowledge
// store reload.
func (c *EmbeddingCache) Invalidate() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.generation
}

// Size returns the number of resident entries, including not-yet-evicted
// stale ones.
func (c *EmbeddingCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Embed returns the vector for text, computing and caching it on a miss. The
// embedding model is never called while holding the cache lock. Returns
// ok=false when no embedder is configured or inference fails; the caller is
// expected to degrade to keyword-only scoring.
func (c *EmbeddingCache) Embed(ctx context.Context, text string, generation uint64) ([]float32, bool) {
	if c.embedder == nil {
		return nil, false
	}

	key := Normalize(text)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.generation == c.generation && c.generation == generation {
			c.mu.Unlock()
			return e.vector, true
		}
		// Stale entry from a previous generation; evict lazily.
		delete(c.entries, key)
	}
	c.mu.Unlock()

	vector, err := c.embedder.Embed(ctx, text)
	if err != nil {
		c.logger.Warn("Failed to compute embedding", zap.Error(err))
		return nil, false
	}

	c.mu.Lock()
	// Only cache when the generation is still current, so a reload racing
	// with this computation cannot resurrect a pre-reload vector.
	if c.generation == generation {
		c.entries[key] = cacheEntry{vector: vector, generation: generation}
	}
	c.mu.Unlock()

	return vector, true
}
