// Package store provides the article and entity caches: a process-local
// in-memory layer with TTL semantics, and an optional SQLite-backed
// persistent layer underneath it.
package store

import (
	"strings"
	"sync"
	"time"

	"litgate/internal/core"
)

// DefaultArticleTTL is how long a cached article stays fresh.
const DefaultArticleTTL = 7 * 24 * time.Hour

// DefaultEntityTTL is how long a cached entity lookup stays fresh.
const DefaultEntityTTL = 30 * 24 * time.Hour

type memoryEntry[V any] struct {
	value   V
	expires time.Time
}

// memoryCache is a TTL map safe for concurrent readers and writers.
// Writes are last-writer-wins for the same key; a hit returns a copy so
// callers never share mutable state through the cache.
type memoryCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry[V]
	hits    int64
	misses  int64
}

func newMemoryCache[V any](ttl time.Duration) *memoryCache[V] {
	return &memoryCache[V]{
		ttl:     ttl,
		entries: make(map[string]memoryEntry[V]),
	}
}

func (c *memoryCache[V]) get(key string) (V, bool) {
	var zero V
	if key == "" {
		return zero, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expires) {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return zero, false
	}
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return entry.value, true
}

func (c *memoryCache[V]) put(key string, value V) {
	if key == "" {
		return
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry[V]{value: value, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *memoryCache[V]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache[V]) clear() {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry[V])
	c.mu.Unlock()
}

// ArticleCache caches articles by identifier, DOI preferred over PMID.
// It is a pure latency optimization: misses fall through to the adapter.
type ArticleCache struct {
	cache *memoryCache[core.Article]
}

// NewArticleCache builds a cache with the given TTL (DefaultArticleTTL
// when ttl is zero).
func NewArticleCache(ttl time.Duration) *ArticleCache {
	if ttl <= 0 {
		ttl = DefaultArticleTTL
	}
	return &ArticleCache{cache: newMemoryCache[core.Article](ttl)}
}

// cacheKeys lists every identifier key an article can be found under.
// Articles with neither a DOI nor a PMID are not cacheable.
func cacheKeys(a *core.Article) []string {
	var keys []string
	if a.DOI != "" {
		keys = append(keys, "doi:"+a.DOI)
	}
	if a.PMID != "" {
		keys = append(keys, "pmid:"+a.PMID)
	}
	return keys
}

// Get returns a clone of the cached article for the identifier, if fresh.
func (c *ArticleCache) Get(id string) (*core.Article, bool) {
	a, ok := c.cache.get(id)
	if !ok {
		return nil, false
	}
	clone := cloneArticle(a)
	return &clone, true
}

// Put stores a copy of the article under each of its identifier keys, so
// a record fetched by DOI is also found by PMID. Articles without a DOI
// or PMID are ignored.
func (c *ArticleCache) Put(a *core.Article) {
	for _, key := range cacheKeys(a) {
		c.cache.put(key, cloneArticle(*a))
	}
}

// Lookup tries the article's own keys in preference order.
func (c *ArticleCache) Lookup(a *core.Article) (*core.Article, bool) {
	if a.DOI != "" {
		if hit, ok := c.Get("doi:" + a.DOI); ok {
			return hit, true
		}
	}
	if a.PMID != "" {
		if hit, ok := c.Get("pmid:" + a.PMID); ok {
			return hit, true
		}
	}
	return nil, false
}

// Len returns the number of live entries (including expired but
// not-yet-evicted ones).
func (c *ArticleCache) Len() int { return c.cache.len() }

// Clear drops every entry. Tests construct fresh caches instead, but the
// CLI exposes this for the cache clear command.
func (c *ArticleCache) Clear() { c.cache.clear() }

// Stats reports hit/miss counters.
func (c *ArticleCache) Stats() (hits, misses int64) {
	c.cache.mu.RLock()
	defer c.cache.mu.RUnlock()
	return c.cache.hits, c.cache.misses
}

// cloneArticle deep-copies the slices and pointer fields so cached values
// stay immutable to callers.
func cloneArticle(a core.Article) core.Article {
	out := a
	out.Authors = append([]core.Author(nil), a.Authors...)
	out.Keywords = append([]string(nil), a.Keywords...)
	out.MeshTerms = append([]string(nil), a.MeshTerms...)
	out.OALinks = append([]core.OALink(nil), a.OALinks...)
	out.Sources = append([]core.SourceRecord(nil), a.Sources...)
	if a.Metrics != nil {
		m := *a.Metrics
		out.Metrics = &m
	}
	if a.PublicationDate != nil {
		d := *a.PublicationDate
		out.PublicationDate = &d
	}
	return out
}

// EntityRecord is a cached entity-lookup result used by the semantic
// enhancer.
type EntityRecord struct {
	Term      string
	Canonical string
	Synonyms  []string
	MeshID    string
}

// EntityCache caches entity lookups by lowercased term.
type EntityCache struct {
	cache *memoryCache[EntityRecord]
}

// NewEntityCache builds an entity cache (DefaultEntityTTL when ttl <= 0).
func NewEntityCache(ttl time.Duration) *EntityCache {
	if ttl <= 0 {
		ttl = DefaultEntityTTL
	}
	return &EntityCache{cache: newMemoryCache[EntityRecord](ttl)}
}

// Get returns a copy of the cached record for the term.
func (c *EntityCache) Get(term string) (EntityRecord, bool) {
	rec, ok := c.cache.get(normalizeTerm(term))
	if !ok {
		return EntityRecord{}, false
	}
	rec.Synonyms = append([]string(nil), rec.Synonyms...)
	return rec, true
}

// Put stores a record under its term.
func (c *EntityCache) Put(rec EntityRecord) {
	key := normalizeTerm(rec.Term)
	rec.Synonyms = append([]string(nil), rec.Synonyms...)
	c.cache.put(key, rec)
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
