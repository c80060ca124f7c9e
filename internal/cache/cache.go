// Galdcup - Rotating Community Survey Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/galdcup

// Package cache provides a small typed TTL cache for hot read paths such as
// the active survey lookup on every vote.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/galdcup/internal/metrics"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a thread-safe TTL cache. Expired entries are dropped lazily on
// read and swept on write.
type Cache[V any] struct {
	name  string
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry[V]
	stats   Stats
}

// Stats tracks cache performance.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	TotalKeys int64
}

// New creates a cache whose entries live for ttl. name labels the hit/miss
// metrics.
func New[V any](name string, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		name:    name,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Before(e.expiresAt) {
		c.record(true, false)
		return e.value, true
	}

	if ok {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && !c.now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	c.record(false, ok)
	var zero V
	return zero, false
}

// Set stores value under key with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			c.stats.Evictions++
		}
	}
	c.entries[key] = entry[V]{value: value, expiresAt: now.Add(c.ttl)}
	c.stats.TotalKeys = int64(len(c.entries))
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Evictions++
	}
	c.stats.TotalKeys = int64(len(c.entries))
	c.mu.Unlock()
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.stats.Evictions += int64(len(c.entries))
	c.entries = make(map[string]entry[V])
	c.stats.TotalKeys = 0
	c.mu.Unlock()
}

// GetOrLoad returns the cached value or calls load once for all concurrent
// callers missing the same key. Errors are not cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	res, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		c.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// GetStats returns a snapshot of the statistics.
func (c *Cache[V]) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// HitRate returns the hit percentage.
func (c *Cache[V]) HitRate() float64 {
	s := c.GetStats()
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

func (c *Cache[V]) record(hit, expired bool) {
	c.mu.Lock()
	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
		if expired {
			c.stats.Evictions++
		}
	}
	c.mu.Unlock()
	metrics.RecordCacheAccess(c.name, hit)
}
