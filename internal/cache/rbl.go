package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RBLEntry is the cached outcome of one zone query.
type RBLEntry struct {
	Zone         string
	Hit          string
	Explanations []string
}

// RBLCache stores one file per address under a directory. Each row is
// "zone|hit|explanation|...".
type RBLCache struct {
	dir string
}

// NewRBLCache returns a cache rooted at dir, creating it if needed.
func NewRBLCache(dir string) (*RBLCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create rbl cache dir: %w", err)
	}
	return &RBLCache{dir: dir}, nil
}

func (c *RBLCache) path(addr string) string {
	return filepath.Join(c.dir, strings.NewReplacer("/", "_", ":", "_").Replace(addr))
}

// Read returns the cached entries for addr in file order, keeping the first
// row per zone. The boolean is false when addr has no cache file.
func (c *RBLCache) Read(addr string) ([]RBLEntry, bool, error) {
	var entries []RBLEntry
	seen := make(map[string]bool)
	err := scan(c.path(addr), func(line string) bool {
		f := splitRow(line)
		if len(f) < 2 || seen[f[0]] {
			return true
		}
		seen[f[0]] = true
		e := RBLEntry{Zone: f[0], Hit: f[1]}
		if len(f) > 2 {
			e.Explanations = f[2:]
		}
		entries = append(entries, e)
		return true
	})
	if isNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entries, true, nil
}

// Append adds entries to the cache file of addr.
func (c *RBLCache) Append(addr string, entries []RBLEntry) error {
	return write(c.path(addr), rows(entries), false)
}

// Replace discards the cache file of addr and writes entries in its place.
func (c *RBLCache) Replace(addr string, entries []RBLEntry) error {
	return write(c.path(addr), rows(entries), true)
}

func rows(entries []RBLEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, joinRow(append([]string{e.Zone, e.Hit}, e.Explanations...)...))
	}
	return out
}
