package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
)

// CachedProvider wraps a Provider with an in-process vector cache so
// repeated queries for the same text skip the network. Cache keys include
// the model fingerprint, so a model switch never serves stale vectors.
type CachedProvider struct {
	inner Provider
	cache *ristretto.Cache
}

// NewCachedProvider wraps inner with a cache holding up to maxBytes of
// vector data.
func NewCachedProvider(inner Provider, maxBytes int64) (*CachedProvider, error) {
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

func (c *CachedProvider) Fingerprint() string { return c.inner.Fingerprint() }

func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.inner.Fingerprint() + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec, int64(len(vec)*4))
	c.cache.Wait()
	return vec, nil
}

// Close releases cache resources.
func (c *CachedProvider) Close() {
	c.cache.Close()
}
