package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Swap      Swap      `envPrefix:"SWAP_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Tile      Tile      `envPrefix:"TILE_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT" envDefault:"8080"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level  string `env:"LEVEL" envDefault:"info"`
		Format string `env:"FORMAT" envDefault:"console"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"tilestore"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	Redis struct {
		Addr     string        `env:"ADDR" envDefault:"localhost:6379"`
		Password string        `env:"PASSWORD" envDefault:""`
		DB       int           `env:"DB" envDefault:"0"`
		TTL      time.Duration `env:"TTL" envDefault:"24h"`
	}

	// Swap selects where and how tiles are swapped out of memory.
	// Dir set to "RAM" disables disk swapping.
	Swap struct {
		Dir     string `env:"DIR"`
		Prefix  string `env:"PREFIX" envDefault:"TILES"`
		Backend string `env:"BACKEND" envDefault:"file"`
		Codec   string `env:"CODEC" envDefault:"zstd"`
	}

	Cache struct {
		SizeMB     int  `env:"SIZE_MB" envDefault:"256"`
		NodeCaches bool `env:"NODE_CACHES" envDefault:"true"`
	}

	Tile struct {
		Width         int  `env:"WIDTH" envDefault:"128"`
		Height        int  `env:"HEIGHT" envDefault:"64"`
		BytesPerPixel int  `env:"BPP" envDefault:"4"`
		Zoom          bool `env:"ZOOM" envDefault:"true"`
		// MaxZoom is the highest level built from the levels below and the
		// highest z a tile address may use.
		MaxZoom int `env:"MAX_ZOOM" envDefault:"8"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SizeBytes is the per-buffer cache budget.
func (c Cache) SizeBytes() int64 {
	return int64(c.SizeMB) * 1024 * 1024
}

// Bytes is the size of one tile's pixel block.
func (t Tile) Bytes() int {
	return t.Width * t.Height * t.BytesPerPixel
}
