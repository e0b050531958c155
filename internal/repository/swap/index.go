package swap

import (
	"sync"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

type slot struct {
	offset int64
	// capacity is the payload space reserved at offset, length the part in use.
	capacity uint32
	length   uint32
}

type index struct {
	m sync.Map
}

func (i *index) Load(c tile.Coord) (slot, bool) {
	v, exists := i.m.Load(c)
	if !exists {
		return slot{}, false
	}
	return v.(slot), exists
}

func (i *index) Store(c tile.Coord, s slot) {
	i.m.Store(c, s)
}

func (i *index) Delete(c tile.Coord) (slot, bool) {
	v, loaded := i.m.LoadAndDelete(c)
	if !loaded {
		return slot{}, false
	}
	return v.(slot), true
}

func (i *index) Len() int {
	n := 0
	i.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
