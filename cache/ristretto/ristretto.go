// Package ristretto backs the response cache with dgraph-io/ristretto,
// an in-process concurrent cache with native TTL support.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Config configures the cache.
type Config struct {
	// MaxEntries bounds how many replies are kept. Default 10000.
	MaxEntries int64

	// TTL is how long an entry stays valid. Default 1 hour, matching
	// the conversational staleness window.
	TTL time.Duration
}

// ResponseCache implements cache.Cache over ristretto.
type ResponseCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// New creates a ristretto-backed response cache.
func New(cfg Config) (*ResponseCache, error) {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &ResponseCache{cache: c, ttl: cfg.TTL}, nil
}

// Get returns the cached reply for the fingerprint, if present.
func (c *ResponseCache) Get(ctx context.Context, fingerprint string) (string, bool) {
	v, ok := c.cache.Get(fingerprint)
	if !ok {
		return "", false
	}
	reply, ok := v.(string)
	return reply, ok
}

// Set caches a reply. Admission is best-effort: ristretto may decline
// an entry under pressure, which matches the cache contract.
func (c *ResponseCache) Set(ctx context.Context, fingerprint, reply string) {
	c.cache.SetWithTTL(fingerprint, reply, 1, c.ttl)
}

// Wait flushes pending writes. Used by tests that need deterministic
// visibility of Set.
func (c *ResponseCache) Wait() {
	c.cache.Wait()
}

// Close releases the cache resources.
func (c *ResponseCache) Close() {
	c.cache.Close()
}
