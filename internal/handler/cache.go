package handler

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/metrics"
)

// ErrWriteBackUnhandled is returned when no store below a cache accepted a
// dirty tile.
var ErrWriteBackUnhandled = errors.New("handler: no store accepted written back tile")

type CacheOptions struct {
	// SizeBytes bounds the memory held by cached tiles.
	SizeBytes int64
	// TileSize is the byte size of one tile.
	TileSize int
	Logger   logger.Logger
}

type CacheStats struct {
	Len       int
	Capacity  int
	Dirty     int
	Hits      uint64
	Misses    uint64
	Flushes   uint64
	Evictions uint64
}

// Cache is a write-back tile cache. Tiles written into it stay in memory
// until they are evicted, flushed, or the cache is closed; each of those
// writes dirty tiles to the source first.
type Cache struct {
	Base

	mu       sync.Mutex
	tiles    *simplelru.LRU[tile.Coord, *tile.Tile]
	maxTiles int

	hits      atomic.Uint64
	misses    atomic.Uint64
	flushes   atomic.Uint64
	evictions atomic.Uint64

	log logger.Logger
}

var _ Handler = (*Cache)(nil)

func NewCache(opts CacheOptions) *Cache {
	maxTiles := 1
	if opts.TileSize > 0 {
		if n := opts.SizeBytes / int64(opts.TileSize); n > 1 {
			maxTiles = int(n)
		}
	}

	// one spare slot: eviction is driven by makeRoom, never by the LRU itself
	tiles, err := simplelru.NewLRU[tile.Coord, *tile.Tile](maxTiles+1, nil)
	if err != nil {
		panic(err)
	}

	return &Cache{
		tiles:    tiles,
		maxTiles: maxTiles,
		log:      logger.OrNop(opts.Logger),
	}
}

func (c *Cache) Kind() Kind {
	return KindCache
}

func (c *Cache) GetTile(coord tile.Coord) (*tile.Tile, error) {
	c.mu.Lock()
	if t, ok := c.tiles.Get(coord); ok {
		t.Ref()
		c.mu.Unlock()
		c.hits.Add(1)
		metrics.CacheHits.Inc()
		return t, nil
	}
	c.mu.Unlock()

	c.misses.Add(1)
	metrics.CacheMisses.Inc()

	t, err := c.Base.GetTile(coord)
	if err != nil || t == nil {
		return t, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// a concurrent request may have cached it meanwhile; that copy wins
	if existing, ok := c.tiles.Get(coord); ok {
		if err := t.Unref(); err != nil {
			c.log.Warn("failed to release duplicate tile", "coord", coord, "error", err)
		}
		return existing.Ref(), nil
	}

	if err := c.makeRoom(); err != nil {
		c.log.Warn("cache full, returning tile uncached", "coord", coord, "error", err)
		return t, nil
	}
	c.tiles.Add(coord, t.Ref())
	return t, nil
}

func (c *Cache) Message(kind store.MessageKind, coord tile.Coord, t *tile.Tile) (bool, error) {
	switch kind {
	case store.MessageSet:
		if t == nil {
			return false, store.ErrMissingTile
		}
		if err := c.store(coord, t); err != nil {
			return false, err
		}
		return true, nil

	case store.MessageIsCached:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.tiles.Contains(coord), nil

	case store.MessageExist:
		c.mu.Lock()
		cached := c.tiles.Contains(coord)
		c.mu.Unlock()
		if cached {
			return true, nil
		}
		return c.Base.Message(kind, coord, t)

	case store.MessageVoid:
		c.mu.Lock()
		if old, ok := c.tiles.Peek(coord); ok {
			c.tiles.Remove(coord)
			c.drop(old)
		}
		c.mu.Unlock()
		return c.Base.Message(kind, coord, t)

	case store.MessageFlush:
		if err := c.Flush(); err != nil {
			return false, err
		}
		return c.Base.Message(kind, coord, t)
	}

	return c.Base.Message(kind, coord, t)
}

func (c *Cache) store(coord tile.Coord, t *tile.Tile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.tiles.Peek(coord); ok {
		if old == t {
			c.tiles.Get(coord)
			return nil
		}
		c.tiles.Remove(coord)
		c.drop(old)
	}

	if err := c.makeRoom(); err != nil {
		return fmt.Errorf("cache tile %s: %w", coord, err)
	}
	c.tiles.Add(coord, t.Ref())
	metrics.CacheStores.Inc()
	return nil
}

// drop releases a superseded or invalidated tile without writing it back.
// Must be called with mu held.
func (c *Cache) drop(t *tile.Tile) {
	t.MarkClean()
	if err := t.Unref(); err != nil {
		c.log.Warn("failed to release dropped tile", "coord", t.Coord(), "error", err)
	}
}

// makeRoom evicts least recently used tiles until one more fits, writing
// dirty ones back first. A tile that cannot be written back stays cached and
// the error is returned. Must be called with mu held.
func (c *Cache) makeRoom() error {
	for c.tiles.Len() >= c.maxTiles {
		coord, t, ok := c.tiles.GetOldest()
		if !ok {
			return nil
		}

		if t.IsDirty() {
			if err := c.writeBack(t); err != nil {
				return fmt.Errorf("evict %s: %w", coord, err)
			}
			if t.IsDirty() && t.Refs() == 1 {
				return fmt.Errorf("evict %s: %w", coord, tile.ErrNotPersisted)
			}
		}

		c.tiles.Remove(coord)
		c.evictions.Add(1)
		metrics.CacheEvictions.Inc()
		if err := t.Unref(); err != nil {
			return fmt.Errorf("evict %s: %w", coord, err)
		}
	}
	return nil
}

func (c *Cache) writeBack(t *tile.Tile) error {
	handled, err := c.Base.Message(store.MessageSet, t.Coord(), t)
	if err != nil {
		metrics.CacheFlushErrors.Inc()
		return fmt.Errorf("write back %s: %w", t.Coord(), err)
	}
	if !handled {
		metrics.CacheFlushErrors.Inc()
		return fmt.Errorf("write back %s: %w", t.Coord(), ErrWriteBackUnhandled)
	}
	c.flushes.Add(1)
	metrics.CacheFlushes.Inc()
	return nil
}

// Flush writes every dirty tile to the source. Tiles stay cached.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Cache) flushLocked() error {
	var errs []error
	for _, t := range c.tiles.Values() {
		if !t.IsDirty() {
			continue
		}
		if err := c.writeBack(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close writes back every dirty tile and releases the cache's references.
// The source must still be alive.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	errs := []error{c.flushLocked()}

	for _, coord := range c.tiles.Keys() {
		t, _ := c.tiles.Peek(coord)
		c.tiles.Remove(coord)
		if err := t.Unref(); err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		c.log.Error("cache closed with unflushed tiles", "error", err)
	} else {
		c.log.Debug("cache closed", "flushes", c.flushes.Load())
	}
	return err
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	dirty := 0
	for _, t := range c.tiles.Values() {
		if t.IsDirty() {
			dirty++
		}
	}
	return CacheStats{
		Len:       c.tiles.Len(),
		Capacity:  c.maxTiles,
		Dirty:     dirty,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Flushes:   c.flushes.Load(),
		Evictions: c.evictions.Load(),
	}
}
