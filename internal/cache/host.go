package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// HostCache maps addresses to host names. Rows are "addr|addr|hostname";
// an in-memory LRU sits in front of the file.
type HostCache struct {
	path string
	mem  *lru.Cache[string, string]
}

// NewHostCache opens the cache at path with an in-memory front of size rows.
func NewHostCache(path string, size int) (*HostCache, error) {
	if size <= 0 {
		size = 1024
	}
	mem, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &HostCache{path: path, mem: mem}, nil
}

// Get returns the cached host name of addr. A cached empty name records a
// failed reverse lookup.
func (c *HostCache) Get(addr string) (string, bool, error) {
	if host, ok := c.mem.Get(addr); ok {
		return host, true, nil
	}

	var host string
	var found bool
	err := scan(c.path, func(line string) bool {
		f := splitRow(line)
		if len(f) < 3 || f[0] != addr {
			return true
		}
		host, found = f[2], true
		return false
	})
	if err != nil && !isNotExist(err) {
		return "", false, err
	}
	if found {
		c.mem.Add(addr, host)
	}
	return host, found, nil
}

// Put records host for addr.
func (c *HostCache) Put(addr, host string) error {
	c.mem.Add(addr, host)
	return write(c.path, []string{joinRow(addr, addr, host)}, false)
}
