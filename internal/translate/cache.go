// Package translate holds the per-language translation memo. Each
// target language owns an isolated partition with FIFO-by-insertion
// eviction; a durable store is optional and never load-bearing.
package translate

import (
	"log/slog"
	"strings"
	"sync"
)

// Result is one lookup outcome. OK is false on a miss.
type Result struct {
	Text string
	OK   bool
}

type partition struct {
	entries map[string]string
	order   []string // insertion order, oldest first
}

// Cache is the process-wide translation memo. Safe for concurrent use
// by per-language translation calls; partitions never merge.
type Cache struct {
	mu      sync.Mutex
	ceiling int
	store   Store
	metrics *Metrics
	logger  *slog.Logger
	parts   map[string]*partition
}

// NewCache builds a cache with the given per-language entry ceiling.
// store and metrics may be nil; a nil store means in-memory only.
func NewCache(ceiling int, store Store, metrics *Metrics, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ceiling < 1 {
		ceiling = 1
	}
	return &Cache{
		ceiling: ceiling,
		store:   store,
		metrics: metrics,
		logger:  logger,
		parts:   make(map[string]*partition),
	}
}

// Key normalizes a source text to its cache key.
func Key(text string) string {
	return strings.TrimSpace(text)
}

// Lookup returns one Result per input text, in input order. Keys are
// the trimmed texts.
func (c *Cache) Lookup(lang string, texts []string) []Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.part(lang)
	out := make([]Result, len(texts))
	for i, t := range texts {
		if v, ok := p.entries[Key(t)]; ok {
			out[i] = Result{Text: v, OK: true}
			c.count(lang, true)
		} else {
			c.count(lang, false)
		}
	}
	return out
}

// MissingUnique returns the deduplicated miss list for a batch, in
// order of first appearance. The caller issues exactly one remote
// request per returned text.
func (c *Cache) MissingUnique(lang string, texts []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.part(lang)
	seen := make(map[string]struct{})
	var out []string
	for _, t := range texts {
		k := Key(t)
		if k == "" {
			continue
		}
		if _, ok := p.entries[k]; ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Store inserts or overwrites one entry. Overwriting does not refresh
// the entry's insertion age; this is deliberately not an LRU. After a
// fresh insertion the partition is trimmed oldest-first to the
// ceiling.
func (c *Cache) Store(lang, text, translation string) {
	k := Key(text)
	if k == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.part(lang)
	_, existed := p.entries[k]
	p.entries[k] = translation
	if !existed {
		p.order = append(p.order, k)
	}
	c.persist(lang, k, translation)
	c.trim(lang, p)
}

// Len reports the entry count of one language partition.
func (c *Cache) Len(lang string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.part(lang).entries)
}

// part returns the partition for lang, loading it from the durable
// store on first touch. Callers hold c.mu.
func (c *Cache) part(lang string) *partition {
	if p, ok := c.parts[lang]; ok {
		return p
	}
	p := &partition{entries: make(map[string]string)}
	c.parts[lang] = p
	if c.store != nil {
		rows, err := c.store.Load(lang)
		if err != nil {
			c.logger.Debug("translate.cache.load_failed", "lang", lang, "error", err)
		} else {
			for _, row := range rows {
				if _, ok := p.entries[row.Source]; !ok {
					p.order = append(p.order, row.Source)
				}
				p.entries[row.Source] = row.Translated
			}
			// The ceiling may have been lowered since the rows were written.
			c.trim(lang, p)
		}
	}
	return p
}

func (c *Cache) trim(lang string, p *partition) {
	for len(p.order) > c.ceiling {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.entries, oldest)
		if c.store != nil {
			if err := c.store.Delete(lang, oldest); err != nil {
				c.logger.Debug("translate.cache.evict_persist_failed", "lang", lang, "error", err)
			}
		}
	}
}

// persist writes through to the durable store. Failures are swallowed:
// the cache is a performance optimization, never a correctness
// dependency.
func (c *Cache) persist(lang, source, translated string) {
	if c.store == nil {
		return
	}
	if err := c.store.Put(lang, source, translated); err != nil {
		c.logger.Debug("translate.cache.persist_failed", "lang", lang, "error", err)
	}
}

func (c *Cache) count(lang string, hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.Hits.WithLabelValues(lang).Inc()
	} else {
		c.metrics.Misses.WithLabelValues(lang).Inc()
	}
}
