package classifier

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached memoizes classification results per normalized message.
type Cached struct {
	inner *Classifier
	cache *lru.Cache[string, Result]
}

// NewCached wraps c with an LRU of the given size.
func NewCached(c *Classifier, size int) (*Cached, error) {
	if size <= 0 {
		size = 512
	}
	cache, err := lru.New[string, Result](size)
	if err != nil {
		return nil, fmt.Errorf("classifier cache: %w", err)
	}
	return &Cached{inner: c, cache: cache}, nil
}

// Classify returns a cached result when present. Results are copied so
// callers may modify them freely.
func (c *Cached) Classify(text string) Result {
	key := strings.ToLower(strings.TrimSpace(text))
	if r, ok := c.cache.Get(key); ok {
		return r.clone()
	}
	r := c.inner.Classify(key)
	c.cache.Add(key, r)
	return r.clone()
}

// Len reports the number of cached entries.
func (c *Cached) Len() int { return c.cache.Len() }
