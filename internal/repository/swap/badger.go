package swap

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
)

// BadgerDriver keeps tiles in a badger database directory owned by the
// driver.
type BadgerDriver struct {
	db  *badger.DB
	dir string
}

var _ Driver = (*BadgerDriver)(nil)
var _ Syncer = (*BadgerDriver)(nil)

func NewBadgerDriver(dir string, l logger.Logger) (*BadgerDriver, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = badgerLogger{l: logger.OrNop(l)}
	opts.SyncWrites = false
	opts.ValueLogFileSize = 64 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger swap: %w", err)
	}
	return &BadgerDriver{db: db, dir: dir}, nil
}

func badgerKey(c tile.Coord) ([]byte, error) {
	if !fitsInt32(c) {
		return nil, fmt.Errorf("%w: %s", ErrOutOfRange, c)
	}
	key := make([]byte, 12)
	binary.BigEndian.PutUint32(key[0:], uint32(int32(c.Z)))
	binary.BigEndian.PutUint32(key[4:], uint32(int32(c.X)))
	binary.BigEndian.PutUint32(key[8:], uint32(int32(c.Y)))
	return key, nil
}

func (d *BadgerDriver) Get(c tile.Coord) ([]byte, bool, error) {
	key, err := badgerKey(c)
	if err != nil {
		return nil, false, nil
	}

	var value []byte
	err = d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get %s: %w", c, err)
	}
	return value, true, nil
}

func (d *BadgerDriver) Set(c tile.Coord, v []byte) error {
	key, err := badgerKey(c)
	if err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, v)
	})
}

func (d *BadgerDriver) Delete(c tile.Coord) error {
	key, err := badgerKey(c)
	if err != nil {
		return nil
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (d *BadgerDriver) Sync() error {
	return d.db.Sync()
}

func (d *BadgerDriver) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("close badger swap: %w", err)
	}
	return os.RemoveAll(d.dir)
}

// badgerLogger routes badger's own logging into ours. Its info output is
// too chatty for anything above debug.
type badgerLogger struct {
	l logger.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error("badger: " + fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn("badger: " + fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Debug("badger: " + fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug("badger: " + fmt.Sprintf(format, args...))
}
