// Package generator provides origin tile stores that compute tiles instead
// of reading them.
package generator

import (
	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

// Func fills data for the tile at c. Returning false reports the tile as
// absent.
type Func func(c tile.Coord, data []byte) bool

// Generator is a read-only TileStore. Writes are not handled, so anything
// stacked on it needs its own durable store below a cache.
type Generator struct {
	tileSize int
	fn       Func
}

var _ store.TileStore = (*Generator)(nil)

func New(tileSize int, fn Func) *Generator {
	return &Generator{tileSize: tileSize, fn: fn}
}

func (g *Generator) GetTile(c tile.Coord) (*tile.Tile, error) {
	t := tile.New(c, g.tileSize)
	found := true
	t.Write(func(data []byte) {
		found = g.fn(c, data)
	})
	// generated content can always be produced again
	t.MarkClean()
	if !found {
		t.Unref()
		return nil, nil
	}
	return t, nil
}

func (g *Generator) Message(kind store.MessageKind, c tile.Coord, _ *tile.Tile) (bool, error) {
	if kind == store.MessageExist {
		return c.Valid(), nil
	}
	return false, nil
}

// Checker fills tiles with a checkerboard of size-pixel squares, alternating
// between 0x00 and 0xff.
func Checker(width, bytesPerPixel, size int) Func {
	return func(c tile.Coord, data []byte) bool {
		if !c.Valid() || width <= 0 || bytesPerPixel <= 0 || size <= 0 {
			return false
		}
		height := len(data) / (width * bytesPerPixel)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				gx := c.X*width + x
				gy := c.Y*height + y
				var v byte
				if (floorDiv(gx, size)+floorDiv(gy, size))%2 != 0 {
					v = 0xff
				}
				off := (y*width + x) * bytesPerPixel
				for b := 0; b < bytesPerPixel; b++ {
					data[off+b] = v
				}
			}
		}
		return true
	}
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
