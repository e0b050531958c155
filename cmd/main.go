package main

import (
	"log"

	"github.com/alecthomas/kong"
	"github.com/jaennil/guide_helper/backend/tilestore/internal/app"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/config"
)

type CLI struct {
	Swap         string `name:"swap" help:"Directory for swap files, or RAM to keep tiles in memory. Overrides SWAP_DIR."`
	CacheSize    int    `name:"cache-size" help:"Per-buffer tile cache size in megabytes. Overrides CACHE_SIZE_MB."`
	NoNodeCaches bool   `name:"no-node-caches" help:"Do not attach a tile cache to buffers."`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("tilestore"),
		kong.Description("Tile buffer service with write-back caches and swap."),
		kong.UsageOnError(),
	)

	realMain(cli)
}

func realMain(cli CLI) {
	cfg, err := config.New()
	if err != nil {
		log.Fatalln("failed to load config: ", err)
	}

	cli.apply(cfg)

	app.Run(cfg)
}

func (cli CLI) apply(cfg *config.Config) {
	if cli.Swap != "" {
		cfg.Swap.Dir = cli.Swap
	}
	if cli.CacheSize > 0 {
		cfg.Cache.SizeMB = cli.CacheSize
	}
	if cli.NoNodeCaches {
		cfg.Cache.NodeCaches = false
	}
}
