// Package store defines the capability shared by everything that can answer
// tile requests: swap backends, generators, handlers and handler chains.
package store

import (
	"errors"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

var (
	// ErrNoStore is the panic value raised when a request reaches a point with
	// no store below it. It signals a construction bug, not a runtime state.
	ErrNoStore = errors.New("store: no store to satisfy request")
	// ErrMissingTile is returned when MessageSet carries no tile.
	ErrMissingTile = errors.New("store: set message without tile")
)

type MessageKind int

const (
	// MessageSet writes the payload tile.
	MessageSet MessageKind = iota
	// MessageExist asks whether a tile exists anywhere below.
	MessageExist
	// MessageIsCached asks whether a tile is held in memory.
	MessageIsCached
	// MessageVoid invalidates a tile.
	MessageVoid
	// MessageFlush writes back all pending tiles.
	MessageFlush
)

func (k MessageKind) String() string {
	switch k {
	case MessageSet:
		return "set"
	case MessageExist:
		return "exist"
	case MessageIsCached:
		return "is_cached"
	case MessageVoid:
		return "void"
	case MessageFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// TileStore answers tile requests. GetTile returns nil with a nil error when
// no tile exists at c. Message returns whether any participant handled it.
// A returned tile carries one reference owned by the caller.
type TileStore interface {
	GetTile(c tile.Coord) (*tile.Tile, error)
	Message(kind MessageKind, c tile.Coord, t *tile.Tile) (bool, error)
}
