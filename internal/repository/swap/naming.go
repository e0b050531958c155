package swap

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jaennil/guide_helper/backend/tilestore/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestore/pkg/metrics"
)

// Naming derives swap file names. Every file a process creates is named
// <prefix>-<pid>-<seq>.swap so a later sweep can find them by pid.
type Naming struct {
	Dir    string
	Prefix string
	PID    int
}

func (n Naming) Path(seq uint64) string {
	return filepath.Join(n.Dir, fmt.Sprintf("%s-%d-%d.swap", n.Prefix, n.PID, seq))
}

// Pattern matches every swap file of the process.
func (n Naming) Pattern() string {
	return filepath.Join(n.Dir, fmt.Sprintf("%s-%d-*.swap", n.Prefix, n.PID))
}

// Cleanup removes every swap file or directory left behind by pid in dir.
// Failures are logged and skipped. It returns the number of entries removed.
func Cleanup(dir, prefix string, pid int, l logger.Logger) int {
	l = logger.OrNop(l)
	if dir == "" {
		return 0
	}

	pattern := Naming{Dir: dir, Prefix: prefix, PID: pid}.Pattern()
	matches, err := filepath.Glob(pattern)
	if err != nil {
		l.Warn("swap cleanup: bad pattern", "pattern", pattern, "error", err)
		return 0
	}

	removed := 0
	for _, path := range matches {
		if err := os.RemoveAll(path); err != nil {
			l.Warn("swap cleanup: failed to remove", "path", path, "error", err)
			continue
		}
		removed++
	}

	metrics.SwapCleanupRemoved.Add(float64(removed))
	if removed > 0 {
		l.Info("swap cleanup finished", "dir", dir, "removed", removed)
	}
	return removed
}
