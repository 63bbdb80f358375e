package resolver

import "sync"

// hosterTable maps provider name -> language key -> redirect URL, as parsed
// from one episode page. It captures every stream the page advertises so a
// single fetch can serve the entire fallback chain.
type hosterTable map[string]map[int]string

// pageCache remembers the hoster table for episode pages already fetched
// this session. Episode pages change rarely, but a resolution failure is
// grounds to suspect a stale table, so entries are invalidated explicitly
// rather than expiring on a clock.
type pageCache struct {
	mutex   sync.Mutex
	entries map[string]hosterTable
}

func newPageCache() *pageCache {
	return &pageCache{entries: make(map[string]hosterTable)}
}

// Retrieve returns the cached table for the given episode key, or nil.
func (cache *pageCache) Retrieve(key string) hosterTable {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return cache.entries[key]
}

// Store records the table parsed for the given episode key, replacing any
// previous entry.
func (cache *pageCache) Store(key string, table hosterTable) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.entries[key] = table
}

// Invalidate drops the entry for the given episode key, forcing the next
// resolution of that episode to re-fetch the page.
func (cache *pageCache) Invalidate(key string) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	delete(cache.entries, key)
}

// Clear drops every entry.
func (cache *pageCache) Clear() {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.entries = make(map[string]hosterTable)
}

// Len returns the number of cached episode pages.
func (cache *pageCache) Len() int {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	return len(cache.entries)
}
