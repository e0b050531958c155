package handler

import (
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

// Empty answers requests its source cannot satisfy with a zero-filled tile.
type Empty struct {
	Base
	tileSize int
}

var _ Handler = (*Empty)(nil)

func NewEmpty(tileSize int) *Empty {
	return &Empty{tileSize: tileSize}
}

func (h *Empty) Kind() Kind {
	return KindEmpty
}

func (h *Empty) GetTile(c tile.Coord) (*tile.Tile, error) {
	t, err := h.Base.GetTile(c)
	if err != nil || t != nil {
		return t, err
	}
	return tile.New(c, h.tileSize), nil
}
