package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupTemps removes source copies in dir older than maxAge. It targets
// names created by our helpers (pdfdl-*.pdf, s3pdf-*.pdf, upload-*.pdf) and
// returns how many were removed. Paths in live are kept regardless of age.
func CleanupTemps(dir string, maxAge time.Duration, live map[string]bool) int {
	if dir == "" {
		dir = os.TempDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	now := time.Now()
	removed := 0
	for _, e := range entries {
		p := filepath.Join(dir, e.Name())
		if e.IsDir() || !isTempSource(e.Name()) || live[p] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= maxAge {
			if os.Remove(p) == nil {
				removed++
			}
		}
	}
	return removed
}

func isTempSource(name string) bool {
	if !strings.HasSuffix(name, ".pdf") {
		return false
	}
	for _, p := range []string{prefixHTTP, prefixS3, prefixUpload} {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
