package tile

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrDirtyRelease is returned when the last reference to a dirty tile is
	// dropped and there is nowhere to write it.
	ErrDirtyRelease = errors.New("tile: release of dirty tile without a store")
	// ErrNotPersisted is returned when a store accepted a dirty tile but
	// neither persisted nor retained it.
	ErrNotPersisted = errors.New("tile: dirty tile was not persisted")
	ErrSizeMismatch = errors.New("tile: data size mismatch")
)

// Storer receives dirty tiles whose last reference is being released.
type Storer interface {
	StoreTile(t *Tile) error
}

// Tile is a reference counted block of pixel data. A new tile carries one
// reference owned by its creator.
type Tile struct {
	coord Coord

	mu   sync.RWMutex
	data []byte

	refs  atomic.Int32
	dirty atomic.Bool

	storerMu sync.Mutex
	storer   Storer
}

// New returns a zero-filled clean tile of size bytes.
func New(c Coord, size int) *Tile {
	t := &Tile{coord: c, data: make([]byte, size)}
	t.refs.Store(1)
	return t
}

// FromData returns a clean tile owning a copy of data.
func FromData(c Coord, data []byte) *Tile {
	buf := make([]byte, len(data))
	copy(buf, data)
	t := &Tile{coord: c, data: buf}
	t.refs.Store(1)
	return t
}

func (t *Tile) Coord() Coord {
	return t.coord
}

func (t *Tile) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

// Read gives fn shared access to the pixel data. fn must not retain data.
func (t *Tile) Read(fn func(data []byte)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn(t.data)
}

// Write gives fn exclusive access to the pixel data and marks the tile dirty.
func (t *Tile) Write(fn func(data []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.data)
	t.dirty.Store(true)
}

// SetData replaces the pixel data with a copy of data and marks the tile dirty.
func (t *Tile) SetData(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(data) != len(t.data) {
		return fmt.Errorf("%w: got %d bytes, tile holds %d", ErrSizeMismatch, len(data), len(t.data))
	}
	copy(t.data, data)
	t.dirty.Store(true)
	return nil
}

// Bytes returns a copy of the pixel data.
func (t *Tile) Bytes() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.data == nil {
		return nil
	}
	out := make([]byte, len(t.data))
	copy(out, t.data)
	return out
}

func (t *Tile) IsDirty() bool {
	return t.dirty.Load()
}

// MarkDirty flags in-memory modifications made outside Write.
func (t *Tile) MarkDirty() {
	t.dirty.Store(true)
}

// MarkClean is called by a durable store once the tile has been persisted.
func (t *Tile) MarkClean() {
	t.dirty.Store(false)
}

// Persist hands the pixel data to save and marks the tile clean if save
// succeeds. Writers are blocked until it returns, so a modification can not
// be lost between saving and clearing the dirty flag.
func (t *Tile) Persist(save func(data []byte) error) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if err := save(t.data); err != nil {
		return err
	}
	t.dirty.Store(false)
	return nil
}

// SetStorer sets where the tile is written if it is still dirty when its last
// reference goes away.
func (t *Tile) SetStorer(s Storer) {
	t.storerMu.Lock()
	t.storer = s
	t.storerMu.Unlock()
}

func (t *Tile) getStorer() Storer {
	t.storerMu.Lock()
	defer t.storerMu.Unlock()
	return t.storer
}

func (t *Tile) Refs() int {
	return int(t.refs.Load())
}

// Released reports whether the pixel memory has been freed.
func (t *Tile) Released() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.data == nil
}

func (t *Tile) Ref() *Tile {
	if t.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("tile %s: ref of released tile", t.coord))
	}
	return t
}

// Unref drops a reference. When the last reference goes, a dirty tile is
// first written through its Storer; if that is not possible the tile keeps
// its data and reference and an error is returned.
func (t *Tile) Unref() error {
	n := t.refs.Add(-1)
	if n > 0 {
		return nil
	}
	if n < 0 {
		panic(fmt.Sprintf("tile %s: unref of released tile", t.coord))
	}

	if t.IsDirty() {
		// hold the tile alive while it is written out
		t.refs.Store(1)

		s := t.getStorer()
		if s == nil {
			return fmt.Errorf("%w: %s", ErrDirtyRelease, t.coord)
		}
		if err := s.StoreTile(t); err != nil {
			return fmt.Errorf("tile %s: store on release: %w", t.coord, err)
		}
		if t.IsDirty() && t.refs.Load() == 1 {
			return fmt.Errorf("%w: %s", ErrNotPersisted, t.coord)
		}
		return t.Unref()
	}

	t.mu.Lock()
	t.data = nil
	t.mu.Unlock()
	return nil
}
