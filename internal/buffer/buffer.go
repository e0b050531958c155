// Package buffer assembles a handler chain over a tile source and exposes it
// as a single tile store.
package buffer

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/handler"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/metrics"
)

var (
	ErrNoSource     = errors.New("buffer: neither source nor backend given")
	ErrTwoSources   = errors.New("buffer: source and backend are exclusive")
	ErrInvalidCoord = errors.New("buffer: invalid tile coordinate")
)

// DefaultMaxZoom is used when zoom is enabled without a maximum level.
const DefaultMaxZoom = 8

var lastID atomic.Uint64

// OwnedStore is a tile store whose lifetime is bound to one buffer.
type OwnedStore interface {
	store.TileStore
	Close() error
}

type Options struct {
	// Source is an external store; the buffer reads through it but never
	// closes it. It may be another Buffer.
	Source store.TileStore
	// Backend creates a store owned by the buffer, given the buffer's id.
	Backend func(id uint64) (OwnedStore, error)

	Width         int
	Height        int
	BytesPerPixel int

	// NodeCaches attaches a write-back cache of CacheSize bytes.
	NodeCaches bool
	CacheSize  int64
	// Zoom builds missing tiles above level 0 from the level below.
	Zoom    bool
	MaxZoom int
	// Trace attaches a handler logging every request at debug level.
	Trace bool

	Logger logger.Logger
}

func (o Options) tileSize() int {
	return o.Width * o.Height * o.BytesPerPixel
}

// Buffer is a tile store made of a handler chain and the source below it.
type Buffer struct {
	id       uint64
	chain    *handler.Chain
	owned    OwnedStore
	tileSize int
	maxZoom  int
	log      logger.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ store.TileStore = (*Buffer)(nil)
var _ tile.Storer = (*Buffer)(nil)

func New(opts Options) (*Buffer, error) {
	if opts.Source == nil && opts.Backend == nil {
		return nil, ErrNoSource
	}
	if opts.Source != nil && opts.Backend != nil {
		return nil, ErrTwoSources
	}

	id := lastID.Add(1)
	l := logger.OrNop(opts.Logger)

	b := &Buffer{
		id:       id,
		tileSize: opts.tileSize(),
		maxZoom:  -1,
		log:      l,
	}
	if opts.Zoom {
		b.maxZoom = opts.MaxZoom
		if b.maxZoom <= 0 {
			b.maxZoom = DefaultMaxZoom
		}
	}

	source := opts.Source
	if opts.Backend != nil {
		owned, err := opts.Backend(id)
		if err != nil {
			return nil, fmt.Errorf("create backend for buffer %d: %w", id, err)
		}
		b.owned = owned
		source = owned
	}

	b.chain = handler.NewChain(source, l)

	// added bottom-up: every Add becomes the new head
	var handlers []handler.Handler
	if opts.Zoom && b.tileSize > 0 {
		handlers = append(handlers, handler.NewZoom(handler.ZoomOptions{
			Width:         opts.Width,
			Height:        opts.Height,
			BytesPerPixel: opts.BytesPerPixel,
			MaxZoom:       b.maxZoom,
			Top:           b.chain,
		}))
	}
	if b.tileSize > 0 {
		handlers = append(handlers, handler.NewEmpty(b.tileSize))
	}
	if opts.Trace {
		handlers = append(handlers, handler.NewLog(l))
	}
	if opts.NodeCaches {
		handlers = append(handlers, handler.NewCache(handler.CacheOptions{
			SizeBytes: opts.CacheSize,
			TileSize:  max(b.tileSize, 1),
			Logger:    l,
		}))
	}
	for _, h := range handlers {
		if err := b.chain.Add(h); err != nil {
			b.chain.Close()
			if b.owned != nil {
				b.owned.Close()
			}
			return nil, fmt.Errorf("buffer %d: attach %s: %w", id, h.Kind(), err)
		}
	}

	metrics.Buffers.Inc()
	l.Debug("buffer created", "id", id, "handlers", b.chain.Len(), "owned_source", b.owned != nil)
	return b, nil
}

func (b *Buffer) ID() uint64 {
	return b.id
}

func (b *Buffer) TileSize() int {
	return b.tileSize
}

// Source returns the store below the handler chain.
func (b *Buffer) Source() store.TileStore {
	return b.chain.Source()
}

// GetTile serves the buffer as the source of another store. The tile is a
// private copy, so writes made above never alias tiles held in this buffer.
func (b *Buffer) GetTile(c tile.Coord) (*tile.Tile, error) {
	t, err := b.chain.GetTile(c)
	if err != nil || t == nil {
		return t, err
	}
	cp := tile.FromData(c, t.Bytes())
	if err := t.Unref(); err != nil {
		b.log.Warn("failed to release tile", "buffer", b.id, "coord", c, "error", err)
	}
	return cp, nil
}

// Message serves the buffer as the source of another store. Tiles set from
// above invalidate the zoomed tiles derived from them, as local writes do.
func (b *Buffer) Message(kind store.MessageKind, c tile.Coord, t *tile.Tile) (bool, error) {
	handled, err := b.chain.Message(kind, c, t)
	if kind == store.MessageSet && handled && err == nil {
		b.invalidateAbove(c)
	}
	return handled, err
}

func (b *Buffer) checkCoord(c tile.Coord) error {
	if !c.Valid() || (b.maxZoom >= 0 && c.Z > b.maxZoom) {
		return fmt.Errorf("%w: %s", ErrInvalidCoord, c)
	}
	return nil
}

// Request returns the tile at c with a reference owned by the caller, or nil
// if no store has it. A dirty tile released by the caller is written back
// into the buffer.
func (b *Buffer) Request(c tile.Coord) (*tile.Tile, error) {
	if err := b.checkCoord(c); err != nil {
		return nil, err
	}
	t, err := b.chain.GetTile(c)
	if err != nil || t == nil {
		return t, err
	}
	t.SetStorer(b)
	return t, nil
}

// Write modifies the tile at c in place and stores it.
func (b *Buffer) Write(c tile.Coord, fn func(data []byte)) error {
	t, err := b.Request(c)
	if err != nil {
		return err
	}
	if t == nil {
		t = tile.New(c, b.tileSize)
		t.SetStorer(b)
	}

	t.Write(fn)
	return b.commit(t)
}

// Put replaces the tile at c with data.
func (b *Buffer) Put(c tile.Coord, data []byte) error {
	if err := b.checkCoord(c); err != nil {
		return err
	}
	t := tile.New(c, b.tileSize)
	t.SetStorer(b)
	if err := t.SetData(data); err != nil {
		t.Unref()
		return err
	}
	return b.commit(t)
}

func (b *Buffer) commit(t *tile.Tile) error {
	storeErr := b.StoreTile(t)
	if storeErr == nil {
		b.invalidateAbove(t.Coord())
	}
	if err := t.Unref(); err != nil {
		return errors.Join(storeErr, err)
	}
	return storeErr
}

// invalidateAbove drops every zoomed tile derived from c.
func (b *Buffer) invalidateAbove(c tile.Coord) {
	for p := c.Parent(); p.Z <= b.maxZoom; p = p.Parent() {
		if _, err := b.chain.Message(store.MessageVoid, p, nil); err != nil {
			b.log.Warn("failed to invalidate zoomed tile", "buffer", b.id, "coord", p, "error", err)
			return
		}
	}
}

// StoreTile writes t into the buffer.
func (b *Buffer) StoreTile(t *tile.Tile) error {
	handled, err := b.chain.Message(store.MessageSet, t.Coord(), t)
	if err != nil {
		return fmt.Errorf("buffer %d: store %s: %w", b.id, t.Coord(), err)
	}
	if !handled {
		return fmt.Errorf("buffer %d: store %s: no store accepted the tile", b.id, t.Coord())
	}
	return nil
}

// Flush writes every cached dirty tile to the source.
func (b *Buffer) Flush() error {
	if _, err := b.chain.Message(store.MessageFlush, tile.Coord{}, nil); err != nil {
		return fmt.Errorf("buffer %d: flush: %w", b.id, err)
	}
	return nil
}

func (b *Buffer) Attach(h handler.Handler) error {
	return b.chain.Add(h)
}

func (b *Buffer) Detach(h handler.Handler) bool {
	return b.chain.Remove(h)
}

func (b *Buffer) Find(kind handler.Kind) handler.Handler {
	return b.chain.FindFirst(kind)
}

func (b *Buffer) Handlers() []handler.Handler {
	return b.chain.Handlers()
}

// Close tears the handler chain down, then closes the source if the buffer
// owns it. It is safe to call more than once.
func (b *Buffer) Close() error {
	b.closeOnce.Do(func() {
		var errs []error
		if err := b.chain.Close(); err != nil {
			errs = append(errs, err)
		}
		if b.owned != nil {
			if err := b.owned.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close source: %w", err))
			}
		}
		b.closeErr = errors.Join(errs...)

		metrics.Buffers.Dec()
		if b.closeErr != nil {
			b.log.Error("buffer closed with errors", "id", b.id, "error", b.closeErr)
		} else {
			b.log.Debug("buffer closed", "id", b.id)
		}
	})
	return b.closeErr
}
