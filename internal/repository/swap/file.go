package swap

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
	"github.com/zeebo/blake3"
)

const (
	recordHeaderSize = 4 * 4
	checksumSize     = 32
	recordPrefixSize = recordHeaderSize + checksumSize
)

// FileDriver keeps tiles in a single swap file of checksummed records:
//
//	[x int32][y int32][z int32][length uint32][blake3-256 of payload][payload]
//
// A record is rewritten in place when the new payload fits its slot and
// appended otherwise. The file is created on the first write and removed
// on Close.
type FileDriver struct {
	path string

	mu     sync.RWMutex
	f      *os.File
	end    int64
	wasted int64
	closed bool

	idx index
	log logger.Logger
}

var _ Driver = (*FileDriver)(nil)
var _ Syncer = (*FileDriver)(nil)

func NewFileDriver(path string, l logger.Logger) *FileDriver {
	return &FileDriver{path: path, log: logger.OrNop(l)}
}

func (d *FileDriver) Path() string {
	return d.path
}

func (d *FileDriver) Get(c tile.Coord) ([]byte, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, false, ErrClosed
	}

	s, ok := d.idx.Load(c)
	if !ok {
		return nil, false, nil
	}

	buf := make([]byte, recordPrefixSize+int(s.length))
	if _, err := d.f.ReadAt(buf, s.offset); err != nil {
		return nil, false, fmt.Errorf("read swap record %s: %w", c, err)
	}

	got, length := decodeHeader(buf)
	payload := buf[recordPrefixSize:]
	if got != c || length != s.length {
		return nil, false, fmt.Errorf("%w: %s at offset %d holds %s", ErrCorrupt, c, s.offset, got)
	}
	if blake3.Sum256(payload) != [checksumSize]byte(buf[recordHeaderSize:recordPrefixSize]) {
		return nil, false, fmt.Errorf("%w: %s checksum mismatch", ErrCorrupt, c)
	}
	return payload, true, nil
}

func (d *FileDriver) Set(c tile.Coord, v []byte) error {
	if !fitsInt32(c) {
		return fmt.Errorf("%w: %s", ErrOutOfRange, c)
	}
	if uint64(len(v)) > math.MaxUint32 {
		return fmt.Errorf("swap record %s: payload of %d bytes too large", c, len(v))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := d.open(); err != nil {
		return err
	}

	length := uint32(len(v))
	old, exists := d.idx.Load(c)
	s, appended := old, !exists || old.capacity < length
	if appended {
		s = slot{offset: d.end, capacity: length}
	}
	s.length = length

	buf := make([]byte, recordPrefixSize+len(v))
	encodeHeader(buf, c, length)
	sum := blake3.Sum256(v)
	copy(buf[recordHeaderSize:], sum[:])
	copy(buf[recordPrefixSize:], v)

	if _, err := d.f.WriteAt(buf, s.offset); err != nil {
		if !appended {
			// the slot may hold a partial record now
			d.idx.Delete(c)
			d.wasted += recordPrefixSize + int64(old.capacity)
		}
		return fmt.Errorf("write swap record %s: %w", c, err)
	}

	if appended {
		if exists {
			d.wasted += recordPrefixSize + int64(old.capacity)
		}
		d.end += recordPrefixSize + int64(length)
	}
	d.idx.Store(c, s)
	return nil
}

func (d *FileDriver) Delete(c tile.Coord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.idx.Delete(c); ok {
		d.wasted += recordPrefixSize + int64(s.capacity)
	}
	return nil
}

func (d *FileDriver) Sync() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.f == nil || d.closed {
		return nil
	}
	return d.f.Sync()
}

func (d *FileDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.f == nil {
		return nil
	}

	d.log.Debug("closing swap file", "path", d.path, "size", d.end, "wasted", d.wasted, "tiles", d.idx.Len())
	if err := d.f.Close(); err != nil {
		return fmt.Errorf("close swap file: %w", err)
	}
	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove swap file: %w", err)
	}
	return nil
}

// open creates the swap file. Must be called with mu held.
func (d *FileDriver) open() error {
	if d.f != nil {
		return nil
	}
	f, err := os.OpenFile(d.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create swap file: %w", err)
	}
	d.f = f
	d.log.Debug("swap file created", "path", d.path)
	return nil
}

func encodeHeader(buf []byte, c tile.Coord, length uint32) {
	binary.LittleEndian.PutUint32(buf[0:], uint32(int32(c.X)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(int32(c.Y)))
	binary.LittleEndian.PutUint32(buf[8:], uint32(int32(c.Z)))
	binary.LittleEndian.PutUint32(buf[12:], length)
}

func decodeHeader(buf []byte) (tile.Coord, uint32) {
	return tile.Coord{
		X: int(int32(binary.LittleEndian.Uint32(buf[0:]))),
		Y: int(int32(binary.LittleEndian.Uint32(buf[4:]))),
		Z: int(int32(binary.LittleEndian.Uint32(buf[8:]))),
	}, binary.LittleEndian.Uint32(buf[12:])
}

func fitsInt32(c tile.Coord) bool {
	for _, v := range []int{c.X, c.Y, c.Z} {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return false
		}
	}
	return true
}
