package config

import (
	"os"
	"path/filepath"
	"strings"
)

// SwapDisabled is the swap directory value that keeps every tile in memory.
const SwapDisabled = "RAM"

// ResolveSwapDir picks the swap directory: an explicit override wins over the
// configured value, which wins over ~/.tilestore/swap. An empty result means
// swapping is disabled and tiles stay in RAM.
func ResolveSwapDir(override, configured string) string {
	dir := strings.TrimSpace(override)
	if dir == "" {
		dir = strings.TrimSpace(configured)
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".tilestore", "swap")
	}
	if strings.EqualFold(dir, SwapDisabled) {
		return ""
	}

	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return ""
		}
		return dir
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ""
	}
	return dir
}
