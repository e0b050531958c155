package app

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/tilestore/internal/buffer"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/repository/generator"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/repository/swap"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
)

// checkerCell is the side, in pixels, of one square of the checker origin.
const checkerCell = 16

func newBufferFactory(cfg *config.Config, naming swap.Naming, l logger.Logger) usecase.BufferFactory {
	tileSize := cfg.Tile.Bytes()

	return func(src usecase.BufferSource) (*buffer.Buffer, error) {
		opts := buffer.Options{
			Width:         cfg.Tile.Width,
			Height:        cfg.Tile.Height,
			BytesPerPixel: cfg.Tile.BytesPerPixel,
			NodeCaches:    cfg.Cache.NodeCaches,
			CacheSize:     cfg.Cache.SizeBytes(),
			Zoom:          cfg.Tile.Zoom,
			MaxZoom:       cfg.Tile.MaxZoom,
			Trace:         cfg.Logger.Level == "debug",
			Logger:        l,
		}

		switch {
		case src.Parent != nil:
			opts.Source = src.Parent
		case src.Origin == usecase.OriginChecker:
			opts.Source = generator.New(tileSize, generator.Checker(cfg.Tile.Width, cfg.Tile.BytesPerPixel, checkerCell))
		case src.Origin == usecase.OriginSwap:
			opts.Backend = func(id uint64) (buffer.OwnedStore, error) {
				return swap.Open(swap.OpenOptions{
					Backend:  cfg.Swap.Backend,
					Codec:    cfg.Swap.Codec,
					Naming:   naming,
					Seq:      id,
					TileSize: tileSize,
					Redis: swap.RedisConfig{
						Addr:     cfg.Redis.Addr,
						Password: cfg.Redis.Password,
						DB:       cfg.Redis.DB,
						TTL:      cfg.Redis.TTL,
					},
					Logger: l,
				})
			}
		default:
			return nil, fmt.Errorf("%w: %q", usecase.ErrUnknownOrigin, src.Origin)
		}

		return buffer.New(opts)
	}
}
