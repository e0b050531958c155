package handler

import (
	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
)

// Log traces every request passing through it at debug level.
type Log struct {
	Base
	log logger.Logger
}

var _ Handler = (*Log)(nil)

func NewLog(l logger.Logger) *Log {
	return &Log{log: logger.OrNop(l)}
}

func (h *Log) Kind() Kind {
	return KindLog
}

func (h *Log) GetTile(c tile.Coord) (*tile.Tile, error) {
	t, err := h.Base.GetTile(c)
	h.log.Debug("get tile", "coord", c, "found", t != nil, "error", err)
	return t, err
}

func (h *Log) Message(kind store.MessageKind, c tile.Coord, t *tile.Tile) (bool, error) {
	handled, err := h.Base.Message(kind, c, t)
	h.log.Debug("tile message", "kind", kind, "coord", c, "handled", handled, "error", err)
	return handled, err
}
