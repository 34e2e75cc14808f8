// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jcodagnone/koppel/spatial"
	"github.com/redis/go-redis/v9"
)

// DefaultCellResolution H3 resolution 15 cells are below a square metre, so two
// points share a key only when they are practically the same coordinate.
const DefaultCellResolution = 15

// Cache stores resolved localities by key.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, locality string) error
}

// MemoryCache is an in-process LRU with a time to live.
type MemoryCache struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type memoryEntry struct {
	key      string
	locality string
	exp      time.Time
}

// NewMemoryCache creates a cache holding at most capacity entries for ttl. A
// zero ttl keeps them until evicted.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = 1
	}

	return &MemoryCache{
		cap:  capacity,
		ttl:  ttl,
		lst:  list.New(),
		dict: make(map[string]*list.Element),
		now:  time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.dict[key]
	if !ok {
		return "", false, nil
	}

	it, _ := e.Value.(memoryEntry)
	if it.exp.IsZero() || c.now().Before(it.exp) {
		c.lst.MoveToFront(e)

		return it.locality, true, nil
	}

	c.lst.Remove(e)
	delete(c.dict, key)

	return "", false, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key, locality string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{key: key, locality: locality}
	if c.ttl > 0 {
		entry.exp = c.now().Add(c.ttl)
	}

	if e, ok := c.dict[key]; ok {
		e.Value = entry
		c.lst.MoveToFront(e)

		return nil
	}

	c.dict[key] = c.lst.PushFront(entry)

	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		if it, ok := back.Value.(memoryEntry); ok {
			delete(c.dict, it.key)
		}

		c.lst.Remove(back)
	}

	return nil
}

// Len returns the number of entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lst.Len()
}

// RedisCache shares resolved localities between runs and processes.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache stores entries under prefix with the given expiration. A zero
// ttl keeps them forever.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "koppel:locality:"
	}

	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// OpenRedis opens a client for addr, nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("reading %s: %w", key, err)
	}

	return v, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key, locality string) error {
	if err := c.client.Set(ctx, c.prefix+key, locality, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}

	return nil
}

// CachingGeocoder answers from Cache before asking the wrapped geocoder.
// Only successful lookups are stored; cache failures are logged and ignored.
type CachingGeocoder struct {
	Geocoder   ReverseGeocoder
	Cache      Cache
	Resolution int
}

// NewCachingGeocoder wraps g with c at DefaultCellResolution.
func NewCachingGeocoder(g ReverseGeocoder, c Cache) *CachingGeocoder {
	return &CachingGeocoder{Geocoder: g, Cache: c, Resolution: DefaultCellResolution}
}

// ReverseGeocode implements ReverseGeocoder.
func (g *CachingGeocoder) ReverseGeocode(ctx context.Context, p spatial.Point) (string, error) {
	cell, err := p.Cell(g.Resolution)
	if err != nil {
		return g.Geocoder.ReverseGeocode(ctx, p)
	}

	key := cell.String()

	name, ok, err := g.Cache.Get(ctx, key)
	if err != nil {
		log.Printf("Locality cache - %s", err)
	} else if ok {
		return name, nil
	}

	name, err = g.Geocoder.ReverseGeocode(ctx, p)
	if err != nil {
		return "", err
	}

	if err := g.Cache.Set(ctx, key, name); err != nil {
		log.Printf("Locality cache - %s", err)
	}

	return name, nil
}
