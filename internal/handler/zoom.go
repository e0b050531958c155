package handler

import (
	"fmt"
	"sync"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

type ZoomOptions struct {
	Width         int
	Height        int
	BytesPerPixel int
	// MaxZoom is the highest level built; requests above it are passed through
	// untouched. Zero means no limit.
	MaxZoom int
	// Top is where child tiles are requested. Defaults to the handler's
	// source; a buffer points it at its own chain so cached children are seen.
	Top store.TileStore
}

// Zoom builds missing tiles at 0 < Z <= MaxZoom by averaging the four Z-1
// tiles below.
type Zoom struct {
	Base
	opts ZoomOptions

	topMu sync.RWMutex
	top   store.TileStore
}

var _ Handler = (*Zoom)(nil)

func NewZoom(opts ZoomOptions) *Zoom {
	return &Zoom{opts: opts, top: opts.Top}
}

func (h *Zoom) Kind() Kind {
	return KindZoom
}

func (h *Zoom) SetTop(s store.TileStore) {
	h.topMu.Lock()
	h.top = s
	h.topMu.Unlock()
}

func (h *Zoom) lowerLevel() store.TileStore {
	h.topMu.RLock()
	defer h.topMu.RUnlock()
	if h.top != nil {
		return h.top
	}
	return h.mustSource()
}

func (h *Zoom) GetTile(c tile.Coord) (*tile.Tile, error) {
	t, err := h.Base.GetTile(c)
	if err != nil || t != nil || c.Z <= 0 || !h.builds(c.Z) {
		return t, err
	}

	w, ht, bpp := h.opts.Width, h.opts.Height, h.opts.BytesPerPixel
	size := w * ht * bpp
	out := tile.New(c, size)
	lower := h.lowerLevel()

	found, dirty := false, false
	for i, cc := range c.Children() {
		child, err := lower.GetTile(cc)
		if err != nil {
			out.MarkClean()
			out.Unref()
			return nil, fmt.Errorf("zoom %s: child %s: %w", c, cc, err)
		}
		if child == nil {
			continue
		}

		found = true
		dirty = dirty || child.IsDirty()

		var sizeErr error
		child.Read(func(src []byte) {
			if len(src) != size {
				sizeErr = fmt.Errorf("zoom %s: child %s: %w", c, cc, tile.ErrSizeMismatch)
				return
			}
			out.Write(func(dst []byte) {
				downsample(dst, src, w, ht, bpp, i)
			})
		})
		child.Unref()
		if sizeErr != nil {
			out.MarkClean()
			out.Unref()
			return nil, sizeErr
		}
	}

	if !found {
		out.MarkClean()
		out.Unref()
		return nil, nil
	}
	if !dirty {
		out.MarkClean()
	}
	return out, nil
}

func (h *Zoom) builds(z int) bool {
	return h.opts.MaxZoom <= 0 || z <= h.opts.MaxZoom
}

// downsample writes src, halved in both directions, into the quadrant of dst
// (0 top-left, 1 top-right, 2 bottom-left, 3 bottom-right).
func downsample(dst, src []byte, w, h, bpp, quadrant int) {
	ox := (quadrant % 2) * (w / 2)
	oy := (quadrant / 2) * (h / 2)

	for y := 0; y < h/2; y++ {
		for x := 0; x < w/2; x++ {
			for b := 0; b < bpp; b++ {
				sum := int(src[((2*y)*w+2*x)*bpp+b]) +
					int(src[((2*y)*w+2*x+1)*bpp+b]) +
					int(src[((2*y+1)*w+2*x)*bpp+b]) +
					int(src[((2*y+1)*w+2*x+1)*bpp+b])
				dst[((oy+y)*w+ox+x)*bpp+b] = byte((sum + 2) / 4)
			}
		}
	}
}
