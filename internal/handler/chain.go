package handler

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/metrics"
)

var (
	ErrAlreadyAttached = errors.New("handler: already attached")
	ErrClosed          = errors.New("handler: chain closed")
)

// Chain owns an ordered list of handlers wrapping an ultimate source. The
// head receives requests first; the tail forwards to the source. Every
// structural change rebinds the whole list.
type Chain struct {
	mu       sync.RWMutex
	handlers []Handler
	source   store.TileStore
	closed   bool

	log logger.Logger
}

var _ store.TileStore = (*Chain)(nil)

func NewChain(source store.TileStore, l logger.Logger) *Chain {
	return &Chain{
		source: source,
		log:    logger.OrNop(l),
	}
}

// Source returns the store below the tail handler.
func (c *Chain) Source() store.TileStore {
	return c.source
}

// Add inserts h at the head, so the most recently added handler intercepts
// first.
func (c *Chain) Add(h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if slices.Contains(c.handlers, h) {
		return fmt.Errorf("%w: %s", ErrAlreadyAttached, h.Kind())
	}

	c.handlers = slices.Insert(c.handlers, 0, h)
	c.rebind()

	c.log.Debug("handler attached", "kind", h.Kind(), "len", len(c.handlers))
	return nil
}

// Remove detaches h and gives up ownership of it. It reports whether h was
// part of the chain.
func (c *Chain) Remove(h Handler) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.Index(c.handlers, h)
	if i < 0 {
		return false
	}
	c.handlers = slices.Delete(c.handlers, i, i+1)
	c.rebind()

	c.log.Debug("handler detached", "kind", h.Kind(), "len", len(c.handlers))
	return true
}

// FindFirst returns the first handler of kind in head-to-tail order, or nil.
func (c *Chain) FindFirst(kind Kind) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, h := range c.handlers {
		if h.Kind() == kind {
			return h
		}
	}
	return nil
}

// Handlers returns a snapshot of the chain in head-to-tail order.
func (c *Chain) Handlers() []Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.handlers)
}

func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// rebind points every handler at its successor and the tail at the chain's
// source. Must be called with mu held.
func (c *Chain) rebind() {
	for i, h := range c.handlers {
		h.SetSource(c.sourceAfter(i))
	}
	for i, h := range c.handlers {
		if h.Source() != c.sourceAfter(i) {
			panic(fmt.Sprintf("handler: chain inconsistent after rebind at %d (%s)", i, h.Kind()))
		}
	}
	metrics.ChainRebinds.Inc()
}

func (c *Chain) sourceAfter(i int) store.TileStore {
	if i+1 < len(c.handlers) {
		return c.handlers[i+1]
	}
	return c.source
}

func (c *Chain) head() (store.TileStore, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrClosed
	}
	if len(c.handlers) > 0 {
		return c.handlers[0], nil
	}
	if c.source != nil {
		return c.source, nil
	}
	panic(store.ErrNoStore)
}

func (c *Chain) GetTile(coord tile.Coord) (*tile.Tile, error) {
	h, err := c.head()
	if err != nil {
		return nil, err
	}
	return h.GetTile(coord)
}

func (c *Chain) Message(kind store.MessageKind, coord tile.Coord, t *tile.Tile) (bool, error) {
	h, err := c.head()
	if err != nil {
		return false, err
	}
	return h.Message(kind, coord, t)
}

// Close tears the chain down. Caches go first, one at a time, each flushing
// into a source that is still alive; after each one is removed the chain is
// rebound so the remaining caches flush through a valid chain. The remaining
// handlers are closed head to tail afterwards. The ultimate source is not
// touched: its owner closes it once Close returns.
func (c *Chain) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs []error
	for {
		h := c.FindFirst(KindCache)
		if h == nil {
			break
		}
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s handler: %w", h.Kind(), err))
		}
		c.Remove(h)
	}

	c.mu.Lock()
	rest := c.handlers
	c.handlers = nil
	c.mu.Unlock()

	for _, h := range rest {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s handler: %w", h.Kind(), err))
		}
	}

	if len(errs) > 0 {
		c.log.Error("chain teardown finished with errors", "errors", len(errs))
	}
	return errors.Join(errs...)
}
