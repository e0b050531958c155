package handler

import (
	"sync"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

const testTileSize = 16

// memStore is a durable in-memory store that records use after close.
type memStore struct {
	mu         sync.Mutex
	tiles      map[tile.Coord][]byte
	sets       []tile.Coord
	closed     bool
	violations int
	rejectSet  bool
}

func newMemStore() *memStore {
	return &memStore{tiles: make(map[tile.Coord][]byte)}
}

func (m *memStore) GetTile(c tile.Coord) (*tile.Tile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.violations++
	}
	data, ok := m.tiles[c]
	if !ok {
		return nil, nil
	}
	return tile.FromData(c, data), nil
}

func (m *memStore) Message(kind store.MessageKind, c tile.Coord, t *tile.Tile) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.violations++
	}
	switch kind {
	case store.MessageSet:
		if m.rejectSet {
			return false, nil
		}
		m.tiles[c] = t.Bytes()
		m.sets = append(m.sets, c)
		t.MarkClean()
		return true, nil
	case store.MessageExist:
		_, ok := m.tiles[c]
		return ok, nil
	case store.MessageVoid:
		delete(m.tiles, c)
		return true, nil
	case store.MessageFlush:
		return true, nil
	}
	return false, nil
}

func (m *memStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memStore) setCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sets)
}

func (m *memStore) bytes(c tile.Coord) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tiles[c]
}

// plain forwards everything and counts closes.
type plain struct {
	Base
	closes int
}

func (p *plain) Kind() Kind { return "plain" }

func (p *plain) Close() error {
	p.closes++
	return nil
}

func newCache() *Cache {
	return NewCache(CacheOptions{SizeBytes: 64 * testTileSize, TileSize: testTileSize})
}

func dirtyTile(c tile.Coord, fill byte) *tile.Tile {
	t := tile.New(c, testTileSize)
	t.Write(func(data []byte) {
		for i := range data {
			data[i] = fill
		}
	})
	return t
}
