// Package swap persists tiles that no longer fit in memory.
package swap

import (
	"errors"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

var (
	ErrCorrupt      = errors.New("swap: corrupt record")
	ErrClosed       = errors.New("swap: driver closed")
	ErrOutOfRange   = errors.New("swap: tile coordinate out of range")
	ErrUnknownCodec = errors.New("swap: unknown codec")
	ErrUnknownKind  = errors.New("swap: unknown backend")
)

// Driver stores encoded tile payloads keyed by coordinate.
type Driver interface {
	Get(c tile.Coord) ([]byte, bool, error)
	Set(c tile.Coord, v []byte) error
	Delete(c tile.Coord) error
	// Close releases the driver and removes everything it stored.
	Close() error
}

// Syncer is implemented by drivers that buffer writes.
type Syncer interface {
	Sync() error
}
