package swap

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
)

const (
	ramCoordBits = 26
	ramZoomBits  = 64 - 2*ramCoordBits
	// entries must outlive the process; bigcache has no "never expire"
	ramLifeWindow = 100 * 365 * 24 * time.Hour
)

// RAMDriver holds swapped tiles in memory. It is used when no swap directory
// is available, so nothing is ever evicted from it.
type RAMDriver struct {
	cache *bigcache.BigCache
}

var _ Driver = (*RAMDriver)(nil)

func NewRAMDriver(tileSize int) (*RAMDriver, error) {
	cfg := bigcache.Config{
		Shards:             64,
		LifeWindow:         ramLifeWindow,
		CleanWindow:        0,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       max(tileSize, 1),
		HardMaxCacheSize:   0,
		Hasher:             coordHasher{},
		Verbose:            false,
	}

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ram swap: %w", err)
	}
	return &RAMDriver{cache: cache}, nil
}

func (d *RAMDriver) Get(c tile.Coord) ([]byte, bool, error) {
	key, ok := ramKey(c)
	if !ok {
		return nil, false, nil
	}
	data, err := d.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (d *RAMDriver) Set(c tile.Coord, v []byte) error {
	key, ok := ramKey(c)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOutOfRange, c)
	}
	return d.cache.Set(key, v)
}

func (d *RAMDriver) Delete(c tile.Coord) error {
	key, ok := ramKey(c)
	if !ok {
		return nil
	}
	err := d.cache.Delete(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil
	}
	return err
}

func (d *RAMDriver) Close() error {
	return d.cache.Close()
}

// ramKey packs a coordinate into eight bytes. coordHasher reads them back
// as the hash, so distinct tiles never collide inside bigcache.
func ramKey(c tile.Coord) (string, bool) {
	const half = 1 << (ramCoordBits - 1)
	if c.Z < 0 || c.Z >= 1<<ramZoomBits || c.X < -half || c.X >= half || c.Y < -half || c.Y >= half {
		return "", false
	}
	const mask = 1<<ramCoordBits - 1
	packed := uint64(c.Z)<<(2*ramCoordBits) | (uint64(c.X)&mask)<<ramCoordBits | uint64(c.Y)&mask

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], packed)
	return string(buf[:]), true
}

type coordHasher struct{}

func (coordHasher) Sum64(key string) uint64 {
	return binary.BigEndian.Uint64([]byte(key))
}
