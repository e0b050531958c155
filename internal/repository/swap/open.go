package swap

import (
	"fmt"
	"strings"

	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
)

const (
	BackendFile    = "file"
	BackendTileDir = "tiledir"
	BackendSQLite  = "sqlite"
	BackendRedis   = "redis"
	BackendBadger  = "badger"
	BackendRAM     = "ram"
)

type OpenOptions struct {
	Backend string
	Codec   string
	// Naming.Dir empty means no swap directory: disk backends fall back to RAM.
	Naming   Naming
	Seq      uint64
	TileSize int
	Redis    RedisConfig
	Logger   logger.Logger
}

// Open creates the swap store for one buffer.
func Open(opts OpenOptions) (*Store, error) {
	l := logger.OrNop(opts.Logger)

	codec, err := NewCodec(opts.Codec)
	if err != nil {
		return nil, err
	}

	backend := strings.ToLower(opts.Backend)
	if backend == "" {
		backend = BackendFile
	}
	switch backend {
	case BackendFile, BackendTileDir, BackendSQLite, BackendBadger:
		if opts.Naming.Dir == "" {
			l.Debug("no swap directory, swapping to RAM", "backend", backend)
			backend = BackendRAM
		}
	}

	var d Driver
	path := opts.Naming.Path(opts.Seq)
	switch backend {
	case BackendFile:
		d = NewFileDriver(path, l)
	case BackendTileDir:
		d, err = NewTileDirDriver(path)
	case BackendSQLite:
		d, err = NewSQLiteDriver(path, l)
	case BackendBadger:
		d, err = NewBadgerDriver(path, l)
	case BackendRedis:
		namespace := fmt.Sprintf("%s:%d:%d", opts.Naming.Prefix, opts.Naming.PID, opts.Seq)
		d, err = NewRedisDriver(opts.Redis, namespace)
	case BackendRAM:
		d, err = NewRAMDriver(opts.TileSize)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	return NewStore(d, codec, backend, l), nil
}
