package source

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/omniview-labs/omniview/internal/model"
)

// DefaultDefinitionCacheSize bounds the fetched-definition memo.
const DefaultDefinitionCacheSize = 512

// CachingSource decorates a Source with a bounded LRU memo over single
// definition fetches. Listing calls pass through untouched; individual
// fetches are the expensive, repeated operation during expansion.
type CachingSource struct {
	inner Source
	defs  *lru.Cache[string, RawRecord]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachingSource wraps a source with a definition memo of the given
// size; size <= 0 uses the default.
func NewCachingSource(inner Source, size int) (*CachingSource, error) {
	if size <= 0 {
		size = DefaultDefinitionCacheSize
	}
	defs, err := lru.New[string, RawRecord](size)
	if err != nil {
		return nil, err
	}
	return &CachingSource{inner: inner, defs: defs}, nil
}

// ListComponents passes through to the wrapped source.
func (c *CachingSource) ListComponents(ctx context.Context, componentType model.ComponentType) ([]RawRecord, error) {
	return c.inner.ListComponents(ctx, componentType)
}

// FetchComponentDefinition serves repeats from the memo. Negative
// results are not memoized: a component absent now may exist after the
// next deployment.
func (c *CachingSource) FetchComponentDefinition(ctx context.Context, componentType model.ComponentType, name string) (RawRecord, bool, error) {
	key := string(componentType) + "/" + name
	if rec, ok := c.defs.Get(key); ok {
		c.hits.Add(1)
		return rec, true, nil
	}

	rec, found, err := c.inner.FetchComponentDefinition(ctx, componentType, name)
	if err != nil || !found {
		return rec, found, err
	}
	c.misses.Add(1)
	c.defs.Add(key, rec)
	return rec, true, nil
}

// Purge drops all memoized definitions.
func (c *CachingSource) Purge() {
	c.defs.Purge()
}

// Hits reports how many fetches were served from the memo.
func (c *CachingSource) Hits() int64 { return c.hits.Load() }

// Misses reports how many fetches went to the wrapped source.
func (c *CachingSource) Misses() int64 { return c.misses.Load() }
