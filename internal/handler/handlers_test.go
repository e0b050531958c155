package handler

import (
	"bytes"
	"testing"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

func TestBase_NoSourcePanics(t *testing.T) {
	defer func() {
		if r := recover(); r != store.ErrNoStore {
			t.Fatalf("expected ErrNoStore panic, got %v", r)
		}
	}()
	(&plain{}).GetTile(tile.Coord{})
}

func TestEmpty_FillsAbsentTiles(t *testing.T) {
	src := newMemStore()
	src.tiles[tile.Coord{X: 1}] = []byte("present")

	h := NewEmpty(testTileSize)
	h.SetSource(src)

	got, err := h.GetTile(tile.Coord{X: 1})
	if err != nil || string(got.Bytes()) != "present" {
		t.Fatalf("expected source tile, got %v %v", got, err)
	}

	blank, err := h.GetTile(tile.Coord{X: 2})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blank.Bytes(), make([]byte, testTileSize)) {
		t.Fatal("expected zero-filled tile")
	}
	if blank.IsDirty() {
		t.Fatal("empty tile should be clean")
	}
	if err := blank.Unref(); err != nil {
		t.Fatal(err)
	}
}

func TestLog_Forwards(t *testing.T) {
	src := newMemStore()
	h := NewLog(nil)
	h.SetSource(src)

	tl := dirtyTile(tile.Coord{}, 3)
	if ok, err := h.Message(store.MessageSet, tile.Coord{}, tl); err != nil || !ok {
		t.Fatalf("expected set to be forwarded, got %v %v", ok, err)
	}
	got, err := h.GetTile(tile.Coord{})
	if err != nil || got == nil || got.Bytes()[0] != 3 {
		t.Fatalf("expected forwarded tile, got %v %v", got, err)
	}
}

func TestZoom_Downsample(t *testing.T) {
	const w, h, bpp = 4, 2, 1
	src := []byte{
		0, 4, 8, 8,
		4, 4, 8, 8,
	}
	dst := make([]byte, w*h*bpp)

	downsample(dst, src, w, h, bpp, 3)

	want := []byte{
		0, 0, 0, 0,
		0, 0, 3, 8,
	}
	if !bytes.Equal(dst, want) {
		t.Fatalf("got %v, want %v", dst, want)
	}
}

func TestZoom_BuildsFromChildren(t *testing.T) {
	const w, h, bpp = 2, 2, 1
	src := newMemStore()
	parent := tile.Coord{X: 0, Y: 0, Z: 1}
	for i, cc := range parent.Children() {
		v := byte(10 * (i + 1))
		src.tiles[cc] = []byte{v, v, v, v}
	}

	z := NewZoom(ZoomOptions{Width: w, Height: h, BytesPerPixel: bpp})
	z.SetSource(src)

	got, err := z.GetTile(parent)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Bytes(), []byte{10, 20, 30, 40}) {
		t.Fatalf("unexpected zoomed tile %v", got.Bytes())
	}
	if got.IsDirty() {
		t.Fatal("tile built from clean children should be clean")
	}
	got.Unref()
}

func TestZoom_Misses(t *testing.T) {
	z := NewZoom(ZoomOptions{Width: 2, Height: 2, BytesPerPixel: 1})
	z.SetSource(newMemStore())

	for _, c := range []tile.Coord{{Z: 0}, {Z: 2}} {
		got, err := z.GetTile(c)
		if err != nil || got != nil {
			t.Fatalf("expected absent tile at %s, got %v %v", c, got, err)
		}
	}
}

type countingStore struct {
	store.TileStore
	gets int
}

func (c *countingStore) GetTile(coord tile.Coord) (*tile.Tile, error) {
	c.gets++
	return c.TileStore.GetTile(coord)
}

func TestZoom_PassesThroughAboveMaxZoom(t *testing.T) {
	mem := newMemStore()
	top := tile.Coord{Z: 2}
	for _, cc := range top.Children() {
		mem.tiles[cc] = []byte{7, 7, 7, 7}
	}
	src := &countingStore{TileStore: mem}

	z := NewZoom(ZoomOptions{Width: 2, Height: 2, BytesPerPixel: 1, MaxZoom: 1})
	z.SetSource(src)

	got, err := z.GetTile(top)
	if err != nil || got != nil {
		t.Fatalf("expected absent tile above max zoom, got %v %v", got, err)
	}
	if src.gets != 1 {
		t.Fatalf("expected a single lookup above max zoom, got %d", src.gets)
	}

	// levels up to the maximum are still looked up and served
	got, err = z.GetTile(tile.Coord{Z: 1})
	if err != nil || got == nil {
		t.Fatalf("expected tile at max zoom, got %v %v", got, err)
	}
	got.Unref()
}

func TestZoom_ChildSizeMismatch(t *testing.T) {
	src := newMemStore()
	src.tiles[tile.Coord{}] = []byte{1}
	z := NewZoom(ZoomOptions{Width: 2, Height: 2, BytesPerPixel: 1})
	z.SetSource(src)

	if _, err := z.GetTile(tile.Coord{Z: 1}); err == nil {
		t.Fatal("expected size mismatch error")
	}
}

func TestZoom_SeesCachedChildrenThroughTop(t *testing.T) {
	src := newMemStore()
	chain := NewChain(src, nil)
	z := NewZoom(ZoomOptions{Width: 2, Height: 2, BytesPerPixel: 1, Top: chain})
	chain.Add(z)
	chain.Add(NewCache(CacheOptions{SizeBytes: 16 * 4, TileSize: 4}))

	child := tile.Coord{}
	tl := tile.New(child, 4)
	tl.Write(func(d []byte) { copy(d, []byte{8, 8, 8, 8}) })
	chain.Message(store.MessageSet, child, tl)
	tl.Unref()

	got, err := chain.GetTile(tile.Coord{Z: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got.Bytes()[0] != 8 {
		t.Fatalf("expected cached child to be used, got %v", got.Bytes())
	}
	if !got.IsDirty() {
		t.Fatal("tile built from a dirty child should be dirty")
	}
	got.Unref()
	if err := chain.Close(); err != nil {
		t.Fatal(err)
	}
}
