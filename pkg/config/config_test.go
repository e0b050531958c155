package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := New()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.HTTP.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.HTTP.Server.Port)
	}
	if cfg.Swap.Prefix != "TILES" {
		t.Errorf("expected default prefix TILES, got %q", cfg.Swap.Prefix)
	}
	if cfg.Swap.Backend != "file" {
		t.Errorf("expected default backend file, got %q", cfg.Swap.Backend)
	}
	if !cfg.Cache.NodeCaches {
		t.Error("expected node caches to be enabled by default")
	}
	if got := cfg.Tile.Bytes(); got != 128*64*4 {
		t.Errorf("unexpected tile size %d", got)
	}
	if got := cfg.Cache.SizeBytes(); got != 256*1024*1024 {
		t.Errorf("unexpected cache size %d", got)
	}
	if !cfg.Tile.Zoom || cfg.Tile.MaxZoom != 8 {
		t.Errorf("unexpected zoom defaults %v %d", cfg.Tile.Zoom, cfg.Tile.MaxZoom)
	}
}

func TestNew_Env(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SWAP_DIR", "RAM")
	t.Setenv("CACHE_SIZE_MB", "16")
	t.Setenv("CACHE_NODE_CACHES", "false")
	t.Setenv("TILE_WIDTH", "64")

	cfg, err := New()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Swap.Dir != "RAM" {
		t.Errorf("unexpected swap dir %q", cfg.Swap.Dir)
	}
	if cfg.Cache.SizeMB != 16 {
		t.Errorf("unexpected cache size %d", cfg.Cache.SizeMB)
	}
	if cfg.Cache.NodeCaches {
		t.Error("expected node caches to be disabled")
	}
	if cfg.Tile.Width != 64 {
		t.Errorf("unexpected tile width %d", cfg.Tile.Width)
	}
}

func TestNew_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("SWAP_BACKEND=sqlite\n"), 0644); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SWAP_BACKEND") })

	cfg, err := New()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Swap.Backend != "sqlite" {
		t.Errorf("expected backend from .env, got %q", cfg.Swap.Backend)
	}
}

func TestResolveSwapDir(t *testing.T) {
	t.Run("override", func(t *testing.T) {
		override := filepath.Join(t.TempDir(), "override")
		got := ResolveSwapDir(override, filepath.Join(t.TempDir(), "configured"))
		if got != override {
			t.Fatalf("expected %q, got %q", override, got)
		}
		if fi, err := os.Stat(got); err != nil || !fi.IsDir() {
			t.Fatalf("expected swap dir to be created: %v", err)
		}
	})

	t.Run("configured", func(t *testing.T) {
		configured := filepath.Join(t.TempDir(), "configured")
		if got := ResolveSwapDir("", configured); got != configured {
			t.Fatalf("expected %q, got %q", configured, got)
		}
	})

	t.Run("home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)
		want := filepath.Join(home, ".tilestore", "swap")
		if got := ResolveSwapDir("", ""); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	})

	t.Run("ram", func(t *testing.T) {
		if got := ResolveSwapDir("", "ram"); got != "" {
			t.Fatalf("expected RAM mode, got %q", got)
		}
		if got := ResolveSwapDir("RAM", t.TempDir()); got != "" {
			t.Fatalf("expected override to force RAM mode, got %q", got)
		}
	})

	t.Run("unusable", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(file, nil, 0644); err != nil {
			t.Fatal(err)
		}
		if got := ResolveSwapDir("", file); got != "" {
			t.Fatalf("expected RAM fallback for a plain file, got %q", got)
		}
		if got := ResolveSwapDir("", filepath.Join(file, "sub")); got != "" {
			t.Fatalf("expected RAM fallback when mkdir fails, got %q", got)
		}
	})
}
