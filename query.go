package dbwrapper

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// queryLoader resolves logical query names to SQL text stored as
// <dir>/<name>.sql. Names that do not map to a file are returned verbatim.
type queryLoader struct {
	dir   string
	cache *queryCache // nil when caching is disabled
}

func newQueryLoader(dir string, cache bool) *queryLoader {
	l := &queryLoader{dir: dir}
	if cache {
		l.cache = newQueryCache(cacheSize)
	}
	return l
}

// resolve returns the stored text for nameOrSQL, or nameOrSQL itself when no
// such file exists. Any other I/O failure is returned.
func (l *queryLoader) resolve(nameOrSQL string) (string, error) {
	if l.dir == "" || l.dir == "-" || nameOrSQL == "" {
		return nameOrSQL, nil
	}
	if l.cache != nil {
		if text, ok := l.cache.get(nameOrSQL); ok {
			return text, nil
		}
	}

	data, err := os.ReadFile(filepath.Join(l.dir, nameOrSQL+".sql"))
	if err != nil {
		if isMissingFile(err) {
			return nameOrSQL, nil
		}
		return "", err
	}

	text := string(data)
	if l.cache != nil {
		l.cache.put(nameOrSQL, text)
	}
	return text, nil
}

// isMissingFile reports whether err means "there is no such named query".
// Raw SQL used as a name routinely produces over-long or odd paths.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, syscall.ENAMETOOLONG) ||
		errors.Is(err, syscall.ENOTDIR) ||
		errors.Is(err, syscall.EISDIR)
}

// --------------------------------
// Cache
// --------------------------------

// queryCache implements a two-tier map with cheap rotation to bound memory.
// 'curr' is the hot set; 'prev' is the previous generation. Lookups promote.
type queryCache struct {
	mu   sync.RWMutex
	curr map[string]string
	prev map[string]string
	max  int
}

// newQueryCache creates a new two-tier cache.
func newQueryCache(max int) *queryCache {
	if max <= 0 {
		max = cacheSize
	}
	return &queryCache{
		curr: make(map[string]string, max/2),
		prev: make(map[string]string),
		max:  max,
	}
}

// get looks up the text stored for name.
func (c *queryCache) get(name string) (string, bool) {
	c.mu.RLock()
	if text, ok := c.curr[name]; ok {
		c.mu.RUnlock()
		return text, true
	}
	if text, ok := c.prev[name]; ok {
		c.mu.RUnlock()
		c.mu.Lock()
		c.rotate()
		c.curr[name] = text
		c.mu.Unlock()
		return text, true
	}
	c.mu.RUnlock()
	return "", false
}

// put stores the text for name.
func (c *queryCache) put(name, text string) {
	c.mu.Lock()
	c.rotate()
	c.curr[name] = text
	c.mu.Unlock()
}

// rotate demotes the hot set once it is full. Caller holds mu.
func (c *queryCache) rotate() {
	if len(c.curr) >= c.max {
		c.prev = c.curr
		c.curr = make(map[string]string, c.max/2)
	}
}
