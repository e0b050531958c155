package swap

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/store"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/metrics"
)

type Stats struct {
	Backend      string
	Codec        string
	Reads        uint64
	Writes       uint64
	Deletes      uint64
	BytesRead    uint64
	BytesWritten uint64
}

// Store exposes a Driver as the durable end of a handler chain. Tiles written
// to it are encoded, persisted and marked clean.
type Store struct {
	driver  Driver
	codec   Codec
	backend string
	log     logger.Logger

	reads        atomic.Uint64
	writes       atomic.Uint64
	deletes      atomic.Uint64
	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

var _ store.TileStore = (*Store)(nil)

func NewStore(d Driver, codec Codec, backend string, l logger.Logger) *Store {
	if codec == nil {
		codec = noneCodec{}
	}
	return &Store{
		driver:  d,
		codec:   codec,
		backend: backend,
		log:     logger.OrNop(l),
	}
}

func (s *Store) Backend() string {
	return s.backend
}

func (s *Store) observe(op string, start time.Time, err error) {
	metrics.SwapOperationDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SwapErrors.WithLabelValues(s.backend, op).Inc()
	}
}

func (s *Store) GetTile(c tile.Coord) (t *tile.Tile, err error) {
	defer func(start time.Time) {
		s.observe("get", start, err)
	}(time.Now())

	raw, found, err := s.driver.Get(c)
	if err != nil {
		return nil, fmt.Errorf("swap get %s: %w", c, err)
	}
	if !found {
		return nil, nil
	}

	data, err := s.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("swap get %s: %w", c, err)
	}
	s.reads.Add(1)
	s.bytesRead.Add(uint64(len(raw)))
	return tile.FromData(c, data), nil
}

func (s *Store) Message(kind store.MessageKind, c tile.Coord, t *tile.Tile) (bool, error) {
	switch kind {
	case store.MessageSet:
		if t == nil {
			return false, store.ErrMissingTile
		}
		if err := s.set(c, t); err != nil {
			return false, err
		}
		return true, nil

	case store.MessageExist:
		_, found, err := s.driver.Get(c)
		if err != nil {
			return false, fmt.Errorf("swap exist %s: %w", c, err)
		}
		return found, nil

	case store.MessageVoid:
		start := time.Now()
		err := s.driver.Delete(c)
		s.observe("delete", start, err)
		if err != nil {
			return false, fmt.Errorf("swap void %s: %w", c, err)
		}
		s.deletes.Add(1)
		return true, nil

	case store.MessageFlush:
		syncer, ok := s.driver.(Syncer)
		if !ok {
			return true, nil
		}
		start := time.Now()
		err := syncer.Sync()
		s.observe("sync", start, err)
		if err != nil {
			return false, fmt.Errorf("swap sync: %w", err)
		}
		return true, nil

	case store.MessageIsCached:
		return false, nil
	}
	return false, nil
}

func (s *Store) set(c tile.Coord, t *tile.Tile) (err error) {
	defer func(start time.Time) {
		s.observe("set", start, err)
	}(time.Now())

	var written int
	err = t.Persist(func(data []byte) error {
		payload, err := s.codec.Encode(data)
		if err != nil {
			return err
		}
		written = len(payload)
		return s.driver.Set(c, payload)
	})
	if err != nil {
		return fmt.Errorf("swap set %s: %w", c, err)
	}

	s.writes.Add(1)
	s.bytesWritten.Add(uint64(written))
	metrics.SwapBytesWritten.WithLabelValues(s.backend).Add(float64(written))
	return nil
}

// StoreTile persists t directly; it lets the store serve as a tile's Storer.
func (s *Store) StoreTile(t *tile.Tile) error {
	return s.set(t.Coord(), t)
}

// Close releases the driver and everything it stored.
func (s *Store) Close() error {
	s.log.Debug("swap store closing", "backend", s.backend, "writes", s.writes.Load(), "reads", s.reads.Load())
	if err := s.driver.Close(); err != nil {
		return fmt.Errorf("close %s swap: %w", s.backend, err)
	}
	return nil
}

func (s *Store) Stats() Stats {
	return Stats{
		Backend:      s.backend,
		Codec:        s.codec.Name(),
		Reads:        s.reads.Load(),
		Writes:       s.writes.Load(),
		Deletes:      s.deletes.Load(),
		BytesRead:    s.bytesRead.Load(),
		BytesWritten: s.bytesWritten.Load(),
	}
}
