package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/repository/swap"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Logger: config.Logger{Level: "info"},
		Swap:   config.Swap{Prefix: "TEST", Backend: swap.BackendFile, Codec: "zstd"},
		Cache:  config.Cache{SizeMB: 1, NodeCaches: true},
		Tile:   config.Tile{Width: 4, Height: 4, BytesPerPixel: 1, Zoom: true, MaxZoom: 4},
	}
}

func TestBufferFactory_SwapOrigin(t *testing.T) {
	dir := t.TempDir()
	naming := swap.Naming{Dir: dir, Prefix: "TEST", PID: os.Getpid()}
	factory := newBufferFactory(testConfig(), naming, logger.Nop())

	b, err := factory(usecase.BufferSource{Origin: usecase.OriginSwap})
	if err != nil {
		t.Fatal(err)
	}

	c := tile.Coord{X: 1, Y: 1}
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	if err := b.Put(c, data); err != nil {
		t.Fatal(err)
	}
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(naming.Path(b.ID())); err != nil {
		t.Fatalf("expected swap file after flush: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	matches, _ := filepath.Glob(naming.Pattern())
	if len(matches) != 0 {
		t.Fatalf("swap files left after close: %v", matches)
	}
}

func TestBufferFactory_CheckerOrigin(t *testing.T) {
	factory := newBufferFactory(testConfig(), swap.Naming{}, logger.Nop())

	b, err := factory(usecase.BufferSource{Origin: usecase.OriginChecker})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	tl, err := b.Request(tile.Coord{X: checkerCell / 4})
	if err != nil {
		t.Fatal(err)
	}
	if tl == nil {
		t.Fatal("expected a generated tile")
	}
	if got := tl.Bytes()[0]; got != 0xff {
		t.Fatalf("expected the second checker cell to be 0xff, got %#x", got)
	}
}

func TestBufferFactory_UnknownOrigin(t *testing.T) {
	factory := newBufferFactory(testConfig(), swap.Naming{}, logger.Nop())
	if _, err := factory(usecase.BufferSource{Origin: "plasma"}); !errors.Is(err, usecase.ErrUnknownOrigin) {
		t.Fatalf("expected ErrUnknownOrigin, got %v", err)
	}
}

func TestLogSwapStats(t *testing.T) {
	logSwapStats(logger.Nop(), []swap.Stats{{Backend: swap.BackendRAM, Codec: "none", Writes: 1234, BytesWritten: 1 << 20}})
}
