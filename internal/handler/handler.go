// Package handler implements tile stores that wrap another tile store and
// the chain that keeps them linked in order.
package handler

import (
	"sync"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

type Kind string

const (
	KindCache Kind = "cache"
	KindLog   Kind = "log"
	KindEmpty Kind = "empty"
	KindZoom  Kind = "zoom"
)

// Handler is a TileStore bound to exactly one downstream source. The source
// is managed by the Chain owning the handler.
type Handler interface {
	store.TileStore
	Kind() Kind
	Source() store.TileStore
	SetSource(s store.TileStore)
	Close() error
}

// Base forwards every request to its source unchanged. Handlers embed it and
// override what they intercept.
type Base struct {
	mu     sync.RWMutex
	source store.TileStore
}

func (b *Base) Source() store.TileStore {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.source
}

func (b *Base) SetSource(s store.TileStore) {
	b.mu.Lock()
	b.source = s
	b.mu.Unlock()
}

func (b *Base) mustSource() store.TileStore {
	s := b.Source()
	if s == nil {
		panic(store.ErrNoStore)
	}
	return s
}

func (b *Base) GetTile(c tile.Coord) (*tile.Tile, error) {
	return b.mustSource().GetTile(c)
}

func (b *Base) Message(kind store.MessageKind, c tile.Coord, t *tile.Tile) (bool, error) {
	return b.mustSource().Message(kind, c, t)
}

func (b *Base) Close() error {
	return nil
}
