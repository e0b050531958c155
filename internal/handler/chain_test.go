package handler

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"pgregory.net/rapid"
)

func assertBound(t interface {
	Helper()
	Fatalf(string, ...any)
}, c *Chain) {
	t.Helper()
	hs := c.Handlers()
	for i, h := range hs {
		var want store.TileStore = c.Source()
		if i+1 < len(hs) {
			want = hs[i+1]
		}
		if h.Source() != want {
			t.Fatalf("handler %d (%s) bound to %v, want %v", i, h.Kind(), h.Source(), want)
		}
	}
}

func TestChain_AddInsertsAtHead(t *testing.T) {
	swap := newMemStore()
	c := NewChain(swap, nil)

	plainB := &plain{}
	cacheA := newCache()
	cacheD := newCache()

	for _, h := range []Handler{plainB, cacheA} {
		if err := c.Add(h); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Add(cacheD); err != nil {
		t.Fatal(err)
	}

	hs := c.Handlers()
	if len(hs) != 3 || hs[0] != Handler(cacheD) || hs[1] != Handler(cacheA) || hs[2] != Handler(plainB) {
		t.Fatalf("unexpected order %v", hs)
	}
	if cacheD.Source() != store.TileStore(cacheA) {
		t.Fatal("cacheD should point at cacheA")
	}
	if cacheA.Source() != store.TileStore(plainB) {
		t.Fatal("cacheA should point at plainB")
	}
	if plainB.Source() != store.TileStore(swap) {
		t.Fatal("plainB should point at the swap store")
	}
}

func TestChain_AddTwice(t *testing.T) {
	c := NewChain(newMemStore(), nil)
	h := &plain{}
	if err := c.Add(h); err != nil {
		t.Fatal(err)
	}
	if err := c.Add(h); !errors.Is(err, ErrAlreadyAttached) {
		t.Fatalf("expected ErrAlreadyAttached, got %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 handler, got %d", c.Len())
	}
}

func TestChain_RemoveRebinds(t *testing.T) {
	swap := newMemStore()
	c := NewChain(swap, nil)
	a, b, d := &plain{}, &plain{}, &plain{}
	for _, h := range []Handler{a, b, d} {
		c.Add(h)
	}

	if !c.Remove(b) {
		t.Fatal("expected b to be removed")
	}
	if c.Remove(b) {
		t.Fatal("b removed twice")
	}
	assertBound(t, c)
	if d.Source() != store.TileStore(a) {
		t.Fatal("d should now point at a")
	}

	c.Remove(a)
	if d.Source() != store.TileStore(swap) {
		t.Fatal("d should now point at the source")
	}
}

func TestChain_FindFirst(t *testing.T) {
	c := NewChain(newMemStore(), nil)
	tail := newCache()
	head := newCache()
	c.Add(tail)
	c.Add(&plain{})
	c.Add(head)

	if got := c.FindFirst(KindCache); got != Handler(head) {
		t.Fatalf("expected head cache, got %v", got)
	}
	if got := c.FindFirst(KindZoom); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}

	c.Remove(head)
	c.Remove(tail)
	if got := c.FindFirst(KindCache); got != nil {
		t.Fatalf("expected no cache after removal, got %v", got)
	}
}

func TestChain_RebindProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := NewChain(newMemStore(), nil)
		pool := make([]Handler, 6)
		for i := range pool {
			if i%2 == 0 {
				pool[i] = newCache()
			} else {
				pool[i] = &plain{}
			}
		}

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			h := pool[rapid.IntRange(0, len(pool)-1).Draw(rt, fmt.Sprintf("h%d", i))]
			if rapid.Bool().Draw(rt, fmt.Sprintf("add%d", i)) {
				c.Add(h)
			} else {
				c.Remove(h)
			}
			assertBound(rt, c)
		}
	})
}

func TestChain_EmptyDelegatesToSource(t *testing.T) {
	gen := newMemStore()
	gen.tiles[tile.Coord{}] = []byte("origin")
	c := NewChain(gen, nil)

	got, err := c.GetTile(tile.Coord{})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !bytes.Equal(got.Bytes(), []byte("origin")) {
		t.Fatalf("expected generator tile, got %v", got)
	}

	ok, err := c.Message(store.MessageExist, tile.Coord{}, nil)
	if err != nil || !ok {
		t.Fatalf("expected exist to reach source, got %v %v", ok, err)
	}
}

func TestChain_NoStorePanics(t *testing.T) {
	c := NewChain(nil, nil)

	defer func() {
		if r := recover(); r != store.ErrNoStore {
			t.Fatalf("expected ErrNoStore panic, got %v", r)
		}
	}()
	c.GetTile(tile.Coord{})
}

func TestChain_Closed(t *testing.T) {
	c := NewChain(newMemStore(), nil)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if _, err := c.GetTile(tile.Coord{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := c.Message(store.MessageFlush, tile.Coord{}, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := c.Add(&plain{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestChain_TeardownFlushesCachesFirst(t *testing.T) {
	swap := newMemStore()
	c := NewChain(swap, nil)

	plainB := &plain{}
	cacheA := newCache()
	cacheD := newCache()
	c.Add(plainB)
	c.Add(cacheA)
	c.Add(cacheD)

	fromD := tile.Coord{X: 1}
	fromA := tile.Coord{X: 2}

	td := dirtyTile(fromD, 1)
	if ok, err := c.Message(store.MessageSet, fromD, td); err != nil || !ok {
		t.Fatalf("set through chain failed: %v %v", ok, err)
	}
	td.Unref()

	ta := dirtyTile(fromA, 2)
	if ok, err := cacheA.Message(store.MessageSet, fromA, ta); err != nil || !ok {
		t.Fatalf("set into cacheA failed: %v %v", ok, err)
	}
	ta.Unref()

	if swap.setCount() != 0 {
		t.Fatal("write-back cache wrote through before teardown")
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := swap.Close(); err != nil {
		t.Fatal(err)
	}

	// cacheD flushed into cacheA, which flushed both tiles down
	if got := cacheD.Stats().Flushes; got != 1 {
		t.Fatalf("expected cacheD to flush once, got %d", got)
	}
	if got := cacheA.Stats().Flushes; got != 2 {
		t.Fatalf("expected cacheA to flush both tiles, got %d", got)
	}
	if !bytes.Equal(swap.bytes(fromD), bytes.Repeat([]byte{1}, testTileSize)) {
		t.Fatal("tile from cacheD not persisted")
	}
	if !bytes.Equal(swap.bytes(fromA), bytes.Repeat([]byte{2}, testTileSize)) {
		t.Fatal("tile from cacheA not persisted")
	}
	if swap.violations != 0 {
		t.Fatalf("swap store used after close %d times", swap.violations)
	}
	if plainB.closes != 1 {
		t.Fatalf("expected plain handler to be closed once, got %d", plainB.closes)
	}
	if c.Len() != 0 {
		t.Fatal("expected empty chain after teardown")
	}
}

func TestChain_TeardownInterleaved(t *testing.T) {
	for _, tc := range []struct{ caches, plains int }{{1, 0}, {2, 3}, {4, 4}, {3, 1}} {
		t.Run(fmt.Sprintf("%dcaches_%dplains", tc.caches, tc.plains), func(t *testing.T) {
			swap := newMemStore()
			c := NewChain(swap, nil)

			var caches []*Cache
			var plains []*plain
			for i := 0; i < tc.caches+tc.plains; i++ {
				if i%2 == 0 && len(caches) < tc.caches || len(plains) == tc.plains {
					h := newCache()
					caches = append(caches, h)
					c.Add(h)
				} else {
					h := &plain{}
					plains = append(plains, h)
					c.Add(h)
				}
			}

			// one dirty tile per cache, written directly into it
			for i, h := range caches {
				coord := tile.Coord{X: i}
				tl := dirtyTile(coord, byte(i+1))
				if _, err := h.Message(store.MessageSet, coord, tl); err != nil {
					t.Fatal(err)
				}
				tl.Unref()
			}

			if err := c.Close(); err != nil {
				t.Fatal(err)
			}
			swap.Close()

			if swap.violations != 0 {
				t.Fatalf("flush reached a closed store %d times", swap.violations)
			}
			for i := range caches {
				if got := swap.bytes(tile.Coord{X: i}); !bytes.Equal(got, bytes.Repeat([]byte{byte(i + 1)}, testTileSize)) {
					t.Fatalf("tile %d not persisted: %v", i, got)
				}
			}
			for _, p := range plains {
				if p.closes != 1 {
					t.Fatal("plain handler not closed")
				}
			}
		})
	}
}

func TestChain_ConcurrentUse(t *testing.T) {
	swap := newMemStore()
	c := NewChain(swap, nil)
	c.Add(newCache())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := &plain{}
			for j := 0; j < 50; j++ {
				coord := tile.Coord{X: i, Y: j}
				tl := dirtyTile(coord, byte(j))
				if _, err := c.Message(store.MessageSet, coord, tl); err != nil {
					t.Error(err)
					return
				}
				tl.Unref()
				got, err := c.GetTile(coord)
				if err != nil || got == nil {
					t.Errorf("missing tile %s: %v", coord, err)
					return
				}
				got.Unref()

				if j%10 == 0 {
					c.Add(h)
				} else if j%10 == 5 {
					c.Remove(h)
				}
			}
		}(i)
	}
	wg.Wait()

	assertBound(t, c)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if swap.setCount() != 8*50 {
		t.Fatalf("expected every tile to be flushed, got %d", swap.setCount())
	}
}
