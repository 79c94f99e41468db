// Package cache memoizes confirmed categorizations per tenant.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Veraticus/dre-classifier/internal/model"
	"github.com/Veraticus/dre-classifier/internal/textsim"
)

// Defaults used when the corresponding option is zero.
const (
	DefaultSimilarityThreshold = 0.90
	DefaultMinStoreConfidence  = 0.80
	DefaultMaxAge              = 30 * 24 * time.Hour
)

// DenyList rejects text that is too generic to memoize.
type DenyList interface {
	IsAmbiguous(text string) bool
}

// entry is the mutable cache record. Fields other than hitCount are guarded by Cache.mu.
type entry struct {
	timestamp    time.Time
	categoryID   string
	categoryName string
	confidence   float64
	hitCount     atomic.Int64
}

// Options configures a Cache.
type Options struct {
	DenyList           DenyList
	Logger             *slog.Logger
	Now                func() time.Time
	MinStoreConfidence float64
}

// Cache is a process-wide, tenant-partitioned map from normalized description
// to category. It is safe for concurrent use.
type Cache struct {
	tenants  map[string]map[string]*entry
	deny     DenyList
	logger   *slog.Logger
	now      func() time.Time
	minStore float64
	mu       sync.RWMutex
}

// New creates an empty cache.
func New(opts Options) *Cache {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MinStoreConfidence <= 0 {
		opts.MinStoreConfidence = DefaultMinStoreConfidence
	}
	return &Cache{
		tenants:  make(map[string]map[string]*entry),
		deny:     opts.DenyList,
		logger:   opts.Logger,
		now:      opts.Now,
		minStore: opts.MinStoreConfidence,
	}
}

func (c *Cache) denied(description string) bool {
	return c.deny != nil && c.deny.IsAmbiguous(description)
}

// Lookup returns the cached category for description. An exact key match wins;
// otherwise the closest same-tenant key with similarity >= threshold is used and
// its confidence is discounted by the similarity. A threshold <= 0 means the default.
func (c *Cache) Lookup(tenantID, description string, threshold float64) (model.CacheEntry, bool) {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	key := textsim.Normalize(description)
	if tenantID == "" || key == "" || c.denied(description) {
		return model.CacheEntry{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := c.tenants[tenantID]
	if len(entries) == 0 {
		return model.CacheEntry{}, false
	}

	if e, ok := entries[key]; ok {
		hits := e.hitCount.Add(1)
		return c.snapshot(tenantID, key, e, hits, 1), true
	}

	var (
		bestKey   string
		bestEntry *entry
		bestSim   float64
	)
	for k, e := range entries {
		sim := textsim.Similarity(key, k)
		if sim >= threshold && sim > bestSim {
			bestKey, bestEntry, bestSim = k, e, sim
		}
	}
	if bestEntry == nil {
		return model.CacheEntry{}, false
	}

	hits := bestEntry.hitCount.Add(1)
	result := c.snapshot(tenantID, bestKey, bestEntry, hits, bestSim)
	result.Confidence = bestEntry.confidence * bestSim
	return result, true
}

func (c *Cache) snapshot(tenantID, key string, e *entry, hits int64, sim float64) model.CacheEntry {
	return model.CacheEntry{
		TenantID:     tenantID,
		Key:          key,
		CategoryID:   e.categoryID,
		CategoryName: e.categoryName,
		Confidence:   e.confidence,
		HitCount:     hits,
		Timestamp:    e.timestamp,
		Similarity:   sim,
	}
}

// Store records a categorization. It is a no-op below the minimum confidence,
// for deny-listed text and for empty keys. Storing an existing key updates it
// in place and keeps its hit count. It reports whether anything was written.
func (c *Cache) Store(tenantID, description, categoryID, categoryName string, confidence float64) bool {
	if confidence < c.minStore {
		return false
	}
	key := textsim.Normalize(description)
	if tenantID == "" || key == "" || categoryID == "" || c.denied(description) {
		return false
	}

	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, ok := c.tenants[tenantID]
	if !ok {
		entries = make(map[string]*entry)
		c.tenants[tenantID] = entries
	}

	if e, exists := entries[key]; exists {
		e.categoryID = categoryID
		e.categoryName = categoryName
		e.confidence = confidence
		e.timestamp = now
		return true
	}

	entries[key] = &entry{
		categoryID:   categoryID,
		categoryName: categoryName,
		confidence:   confidence,
		timestamp:    now,
	}
	return true
}

// Evict removes entries older than maxAge across all tenants and returns how
// many were removed. A maxAge <= 0 means the default of 30 days.
func (c *Cache) Evict(maxAge time.Duration) int {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := c.now().Add(-maxAge)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for tenantID, entries := range c.tenants {
		for key, e := range entries {
			if e.timestamp.Before(cutoff) {
				delete(entries, key)
				removed++
			}
		}
		if len(entries) == 0 {
			delete(c.tenants, tenantID)
		}
	}

	if removed > 0 {
		c.logger.Debug("Evicted stale cache entries", "removed", removed, "max_age", maxAge)
	}
	return removed
}

// ClearTenant drops every entry of one tenant and returns how many were removed.
func (c *Cache) ClearTenant(tenantID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.tenants[tenantID])
	delete(c.tenants, tenantID)
	return removed
}

// Len returns the total number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := 0
	for _, entries := range c.tenants {
		total += len(entries)
	}
	return total
}

// Snapshot returns a copy of one tenant's entries.
func (c *Cache) Snapshot(tenantID string) []model.CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := c.tenants[tenantID]
	out := make([]model.CacheEntry, 0, len(entries))
	for key, e := range entries {
		out = append(out, c.snapshot(tenantID, key, e, e.hitCount.Load(), 1))
	}
	return out
}
