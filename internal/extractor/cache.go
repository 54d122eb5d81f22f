package extractor

import (
	"fmt"
	"os"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of files kept when no size is configured.
const DefaultCacheSize = 4096

// Cache memoizes per-file extraction results. An entry is only reused while
// the file keeps the same size and modification time.
type Cache struct {
	entries *lru.Cache[string, []Symbol]
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, []Symbol](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

func cacheKey(backend, path string, info os.FileInfo) string {
	return fmt.Sprintf("%s|%s|%d|%d", backend, path, info.Size(), info.ModTime().UnixNano())
}

func (c *Cache) get(key string) ([]Symbol, bool) {
	if c == nil {
		return nil, false
	}
	syms, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
		return cloneSymbols(syms), true
	}
	c.misses.Add(1)
	return nil, false
}

func (c *Cache) put(key string, syms []Symbol) {
	if c == nil {
		return
	}
	c.entries.Add(key, cloneSymbols(syms))
}

// Stats returns hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func cloneSymbols(in []Symbol) []Symbol {
	out := make([]Symbol, len(in))
	for i, s := range in {
		s.Sources = append([]string(nil), s.Sources...)
		out[i] = s
	}
	return out
}
