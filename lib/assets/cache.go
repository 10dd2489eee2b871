// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// DefaultFetchTimeout bounds a cache load when CacheConfig leaves
// FetchTimeout zero.
const DefaultFetchTimeout = time.Minute

// CacheConfig configures a Cache.
type CacheConfig struct {
	// Store is read through on a miss and receives fetched assets.
	// Required.
	Store Store

	// Source, if set, is consulted when Store does not hold an asset.
	Source Source

	// MaxBytes bounds the total size of cached asset bytes. Zero
	// means 256 MiB.
	MaxBytes int64

	// TTL expires cached entries. Zero means entries live until
	// evicted.
	TTL time.Duration

	// FetchTimeout bounds one load, shared by every caller waiting
	// on it. Zero means DefaultFetchTimeout.
	FetchTimeout time.Duration

	Logger *slog.Logger
}

// Cache is a bounded, expiring in-memory asset cache.
type Cache struct {
	entries *ristretto.Cache[string, []byte]
	loads   singleflight.Group
	store   Store
	source  Source
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// NewCache builds a Cache. Call Close to release it.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Store == nil {
		return nil, errors.New("assets: cache requires a store")
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 256 << 20
	}
	entries, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		// Ten counters per expected entry, assuming ~1 MiB assets.
		NumCounters: max(10*maxBytes/(1<<20), 1000),
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("assets: creating cache: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Cache{
		entries: entries,
		store:   cfg.Store,
		source:  cfg.Source,
		ttl:     cfg.TTL,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Get returns the asset bytes. The returned slice is shared with the
// cache and must not be modified. Failures are *UnavailableError.
//
// Concurrent misses for one id share a single load. The load is not
// tied to any caller's context: a caller that gives up returns early
// while the load continues for the others, bounded by FetchTimeout.
func (c *Cache) Get(ctx context.Context, id string) ([]byte, error) {
	if data, ok := c.entries.Get(id); ok {
		return data, nil
	}
	loaded := c.loads.DoChan(id, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		data, err := c.load(loadCtx, id)
		if err != nil {
			return nil, err
		}
		c.entries.SetWithTTL(id, data, int64(len(data)), c.ttl)
		return data, nil
	})
	select {
	case <-ctx.Done():
		return nil, &UnavailableError{ID: id, Err: ctx.Err()}
	case result := <-loaded:
		if result.Err != nil {
			return nil, &UnavailableError{ID: id, Err: result.Err}
		}
		return result.Val.([]byte), nil
	}
}

func (c *Cache) load(ctx context.Context, id string) ([]byte, error) {
	data, err := c.store.Get(ctx, id)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrNotFound) || c.source == nil {
		return nil, err
	}
	data, err = c.source.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.store.Put(ctx, id, data); err != nil {
		c.logger.Warn("caching fetched asset locally failed", "asset", id, "error", err)
	}
	c.logger.Debug("asset fetched from source", "asset", id, "bytes", len(data))
	return data, nil
}

// Invalidate drops id from the in-memory layer.
func (c *Cache) Invalidate(id string) {
	c.entries.Del(id)
}

// Wait blocks until buffered cache writes are visible to Get.
func (c *Cache) Wait() {
	c.entries.Wait()
}

// Close releases the cache.
func (c *Cache) Close() {
	c.entries.Close()
}
