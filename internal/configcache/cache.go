// Package configcache holds resolved locale configs in memory, keyed by tenant.
package configcache

import (
	"sync"
	"time"

	"market-links/internal/model"
)

// DefaultTTL is used when the cache is created without a TTL.
const DefaultTTL = 15 * time.Minute

// DefaultMaxEntries limits the number of cached tenants (LRU eviction).
const DefaultMaxEntries = 1000

// Cache is an LRU cache of resolved configs with a fixed TTL. Safe for
// concurrent use. Set TTL and MaxEntries before first use; zero values
// fall back to the defaults.
type Cache struct {
	TTL        time.Duration
	MaxEntries int

	// now is replaced in tests.
	now func() time.Time

	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	accessList []string // LRU tracking: most recent at end
}

type cacheEntry struct {
	config    *model.ResolvedConfig
	expiresAt time.Time
}

// New creates a cache with the given TTL and capacity.
func New(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{TTL: ttl, MaxEntries: maxEntries}
}

// Get returns the tenant's config if it is cached and fresh.
func (c *Cache) Get(tenant string) (*model.ResolvedConfig, bool) {
	c.mu.RLock()
	entry, exists := c.entries[tenant]
	c.mu.RUnlock()

	if !exists || !entry.expiresAt.After(c.clock()) {
		return nil, false
	}

	c.recordAccess(tenant)
	return entry.config, true
}

// GetStale returns the tenant's config even if it expired. Used as a best
// effort fallback when a refresh fails.
func (c *Cache) GetStale(tenant string) (*model.ResolvedConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[tenant]
	if !exists {
		return nil, false
	}
	return entry.config, true
}

// Put stores cfg for tenant, evicting the least recently used tenant when full.
func (c *Cache) Put(tenant string, cfg *model.ResolvedConfig) {
	if cfg == nil {
		return
	}

	entry := &cacheEntry{
		config:    cfg,
		expiresAt: c.clock().Add(c.ttl()),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries == nil {
		c.entries = make(map[string]*cacheEntry)
	}
	if _, exists := c.entries[tenant]; !exists && len(c.entries) >= c.maxEntries() {
		c.evictOldest()
	}

	c.entries[tenant] = entry
	c.recordAccessLocked(tenant)
}

// Invalidate drops the tenant's entry. Reports whether one existed.
func (c *Cache) Invalidate(tenant string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[tenant]; !exists {
		return false
	}
	delete(c.entries, tenant)
	c.removeAccessLocked(tenant)
	return true
}

// Expire marks the tenant's entry stale without removing it, so the next Get
// misses while GetStale still serves it. Reports whether an entry existed.
func (c *Cache) Expire(tenant string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[tenant]
	if !exists {
		return false
	}
	c.entries[tenant] = &cacheEntry{config: entry.config, expiresAt: time.Time{}}
	return true
}

// Clear removes all cached entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.accessList = nil
}

// Len returns the number of cached tenants, fresh or stale.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) ttl() time.Duration {
	if c.TTL <= 0 {
		return DefaultTTL
	}
	return c.TTL
}

func (c *Cache) maxEntries() int {
	if c.MaxEntries <= 0 {
		return DefaultMaxEntries
	}
	return c.MaxEntries
}

func (c *Cache) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *Cache) recordAccess(tenant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[tenant]; exists {
		c.recordAccessLocked(tenant)
	}
}

func (c *Cache) recordAccessLocked(tenant string) {
	c.removeAccessLocked(tenant)
	c.accessList = append(c.accessList, tenant)
}

func (c *Cache) removeAccessLocked(tenant string) {
	for i, t := range c.accessList {
		if t == tenant {
			c.accessList = append(c.accessList[:i], c.accessList[i+1:]...)
			return
		}
	}
}

func (c *Cache) evictOldest() {
	if len(c.accessList) == 0 {
		return
	}
	oldest := c.accessList[0]
	c.accessList = c.accessList[1:]
	delete(c.entries, oldest)
}
